package lookup

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/CentreForDigitalHumanities/tscan/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tree builds an alpino_ds element from words listed in begin order, emitted
// in the given node order.
func tree(words map[int]string, order ...int) string {
	var b strings.Builder
	b.WriteString(`<alpino_ds version="1.6"><node begin="0" cat="top" id="0">`)
	for _, p := range order {
		b.WriteString(`<node begin="` + strconv.Itoa(p) + `" word="` + words[p] + `" pos="x"/>`)
	}
	b.WriteString(`</node></alpino_ds>`)
	return b.String()
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSentence_OrdersByPosition(t *testing.T) {
	words := map[int]string{0: "Dit", 1: "is", 2: "een"}
	tr := Tree{Raw: []byte(tree(words, 2, 0, 1))}

	s, err := tr.Sentence()
	require.NoError(t, err)
	assert.Equal(t, "Dit is een", s)
}

func TestSentence_DuplicatePositionLaterWins(t *testing.T) {
	raw := `<alpino_ds><node begin="0" word="a"/><node begin="0" word="b"/><node begin="1" word="c"/></alpino_ds>`
	s, err := Tree{Raw: []byte(raw)}.Sentence()
	require.NoError(t, err)
	assert.Equal(t, "b c", s)
}

func TestSentence_InvalidBegin(t *testing.T) {
	raw := `<alpino_ds><node begin="x" word="a"/></alpino_ds>`
	_, err := Tree{Raw: []byte(raw)}.Sentence()
	assert.Error(t, err)
}

func TestReadTreebank(t *testing.T) {
	dir := t.TempDir()
	words := map[int]string{0: "Dit", 1: "is", 2: "een"}

	single := writeFile(t, filepath.Join(dir, "single.xml"),
		`<?xml version="1.0" encoding="UTF-8"?>`+"\n"+tree(words, 0, 1, 2)+"\n")
	trees, err := ReadTreebank(single)
	require.NoError(t, err)
	require.Len(t, trees, 1)
	assert.Equal(t, 0, trees[0].Index)
	assert.True(t, strings.HasPrefix(string(trees[0].Raw), "<alpino_ds"))

	bank := writeFile(t, filepath.Join(dir, "bank.xml"), `<?xml version="1.0"?>
<treebank>
  `+tree(map[int]string{0: "Eerste"}, 0)+`
  <!-- comment -->
  `+tree(map[int]string{0: "Tweede"}, 0)+`
</treebank>`)
	trees, err = ReadTreebank(bank)
	require.NoError(t, err)
	require.Len(t, trees, 2)
	assert.Equal(t, 1, trees[0].Index)
	assert.Equal(t, 2, trees[1].Index)

	second, err := TreeAt(bank, 2)
	require.NoError(t, err)
	s, _ := second.Sentence()
	assert.Equal(t, "Tweede", s)

	root, err := TreeAt(single, 7)
	require.NoError(t, err, "single-tree files ignore the index")
	assert.Equal(t, 0, root.Index)

	_, err = TreeAt(bank, 3)
	assert.Error(t, err)

	other := writeFile(t, filepath.Join(dir, "other.xml"), `<corpus/>`)
	_, err = ReadTreebank(other)
	assert.Error(t, err)
}

func TestCache_LookupLastWins(t *testing.T) {
	c := NewCache(
		models.LookupEntry{Sentence: "a b", Source: "one.xml", Index: 1},
		models.LookupEntry{Sentence: "c", Source: "one.xml", Index: 2},
	)
	c.Append(models.LookupEntry{Sentence: "a b", Source: "two.xml", Index: 4})

	e, ok := c.Lookup("a b")
	require.True(t, ok)
	assert.Equal(t, "two.xml", e.Source)
	assert.Equal(t, 4, e.Index)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestCache_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	require.NoError(t, NewCache().Save(path))
	info, err := os.Stat(path)
	require.NoError(t, err, "empty cache is still written")
	assert.Zero(t, info.Size())

	c := NewCache(
		models.LookupEntry{Sentence: "Dit is een zin .", Source: "/p/input/.doc.alpino.xml", Index: 3},
		models.LookupEntry{Sentence: "Kort", Source: "/p/input/single.alpino.xml", Index: 0},
	)
	require.NoError(t, c.Save(path))

	data, _ := os.ReadFile(path)
	assert.Equal(t, "Dit is een zin .\t/p/input/.doc.alpino.xml\t3\nKort\t/p/input/single.alpino.xml\t0\n", string(data))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.Entries(), loaded.Entries())
}

func TestLoad_Malformed(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), FileName), "only one field\n")
	_, err := Load(path)
	assert.Error(t, err)

	path = writeFile(t, filepath.Join(t.TempDir(), FileName), "s\tsrc\tnope\n")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	input := t.TempDir()
	writeFile(t, filepath.Join(input, ".doc.txt.alpino.xml"),
		"<treebank>"+tree(map[int]string{0: "Verborgen", 1: "zin"}, 1, 0)+"</treebank>")
	writeFile(t, filepath.Join(input, "parses.alpino.xml"), tree(map[int]string{0: "Gegeven"}, 0))
	writeFile(t, filepath.Join(input, "broken.alpino.xml"), "<alpino_ds><node")
	writeFile(t, filepath.Join(input, "doc.txt"), "Verborgen zin")

	c, err := Seed(input, []string{
		filepath.Join(input, "parses.alpino.xml"),
		filepath.Join(input, "broken.alpino.xml"),
	})
	assert.Error(t, err, "broken parse file is reported")
	require.NotNil(t, c)
	require.Equal(t, 2, c.Len())

	// sorted by name: the hidden file sorts first
	assert.Equal(t, models.LookupEntry{Sentence: "Verborgen zin", Source: filepath.Join(input, ".doc.txt.alpino.xml"), Index: 1}, c.Entries()[0])
	assert.Equal(t, models.LookupEntry{Sentence: "Gegeven", Source: filepath.Join(input, "parses.alpino.xml"), Index: 0}, c.Entries()[1])
}

func TestSeed_Empty(t *testing.T) {
	c, err := Seed(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}

func TestMerge_RenumbersAgainstTarget(t *testing.T) {
	input := t.TempDir()
	writeFile(t, filepath.Join(input, "bank.alpino.xml"), "<treebank>"+
		tree(map[int]string{0: "een"}, 0)+
		tree(map[int]string{0: "twee"}, 0)+
		"</treebank>")
	writeFile(t, filepath.Join(input, "single.alpino.xml"), tree(map[int]string{0: "drie"}, 0))

	entries := []models.LookupEntry{
		{Sentence: "twee", Source: "input/bank.alpino.xml", Index: 2},
		{Sentence: "drie", Source: filepath.Join(input, "single.alpino.xml"), Index: 0},
		{Sentence: "een", Source: "input/bank.alpino.xml", Index: 1},
	}
	merged, err := Merge(entries, InputResolver(input), TreebankName)
	require.NoError(t, err)
	require.Len(t, merged.Trees, 3)

	var sentences []string
	for i, e := range merged.Lookup {
		assert.Equal(t, TreebankName, e.Source)
		assert.Equal(t, i+1, e.Index)
		s, err := merged.Trees[i].Sentence()
		require.NoError(t, err)
		sentences = append(sentences, s)
	}
	assert.Equal(t, []string{"twee", "drie", "een"}, sentences)

	_, err = Merge([]models.LookupEntry{{Sentence: "x", Source: "input/bank.alpino.xml", Index: 9}}, InputResolver(input), TreebankName)
	assert.Error(t, err)
}

func TestFinalize_WritesTreebankAndLookup(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "input")
	output := filepath.Join(root, "output")
	writeFile(t, filepath.Join(input, ".a.txt.alpino.xml"), "<treebank>"+
		tree(map[int]string{0: "Dit", 1: "is", 2: "een"}, 2, 1, 0)+"</treebank>")
	writeFile(t, filepath.Join(output, FileName), "Dit is een\tinput/.a.txt.alpino.xml\t1\n")

	merged, err := Finalize(output, input)
	require.NoError(t, err)
	require.Len(t, merged.Trees, 1)

	trees, err := ReadTreebank(filepath.Join(output, TreebankName))
	require.NoError(t, err)
	require.Len(t, trees, 1)
	s, _ := trees[0].Sentence()
	assert.Equal(t, "Dit is een", s)

	data, _ := os.ReadFile(filepath.Join(output, FileName))
	assert.Equal(t, "Dit is een\talpino.xml\t1\n", string(data))
}

func TestMergeDedup(t *testing.T) {
	first := []models.LookupEntry{
		{Sentence: "a", Source: "x.xml", Index: 1},
		{Sentence: "b", Source: "x.xml", Index: 2},
	}
	second := []models.LookupEntry{
		{Sentence: "c", Source: "y.xml", Index: 1},
		{Sentence: "a", Source: "y.xml", Index: 2},
	}

	out := MergeDedup(first, second)
	assert.Equal(t, []models.LookupEntry{
		{Sentence: "a", Source: "y.xml", Index: 2},
		{Sentence: "b", Source: "x.xml", Index: 2},
		{Sentence: "c", Source: "y.xml", Index: 1},
	}, out)
}

func TestFinalize_LastPointerWins(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "input")
	output := filepath.Join(root, "output")
	writeFile(t, filepath.Join(input, "a.xml"), tree(map[int]string{0: "Dit", 1: "is"}, 0, 1))
	writeFile(t, filepath.Join(input, "b.xml"), "<treebank>"+
		tree(map[int]string{0: "Ander"}, 0)+
		tree(map[int]string{0: "Dit", 1: "is"}, 1, 0)+"</treebank>")
	writeFile(t, filepath.Join(output, FileName),
		"Dit is\tinput/a.xml\t0\nAnder\tinput/b.xml\t1\nDit is\tinput/b.xml\t2\n")

	merged, err := Finalize(output, input)
	require.NoError(t, err)
	require.Len(t, merged.Trees, 2)
	assert.Equal(t, []byte(tree(map[int]string{0: "Dit", 1: "is"}, 1, 0)), merged.Trees[0].Raw,
		"tree comes from the last pointer")

	data, _ := os.ReadFile(filepath.Join(output, FileName))
	assert.Equal(t, "Dit is\talpino.xml\t1\nAnder\talpino.xml\t2\n", string(data))

	trees, err := ReadTreebank(filepath.Join(output, TreebankName))
	require.NoError(t, err)
	assert.Len(t, trees, 2)
}

func TestFuse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.alpino.xml"), "<treebank>"+
		tree(map[int]string{0: "een"}, 0)+
		tree(map[int]string{0: "twee"}, 0)+"</treebank>")
	writeFile(t, filepath.Join(dir, "two.alpino.xml"), tree(map[int]string{0: "twee"}, 0))
	writeFile(t, filepath.Join(dir, "out1."+FileName), "een\tone.alpino.xml\t1\ntwee\tone.alpino.xml\t2\n")
	writeFile(t, filepath.Join(dir, "out2."+FileName), "twee\t"+filepath.Join(dir, "two.alpino.xml")+"\t0\n")
	writeFile(t, filepath.Join(dir, "other."+FileName), "genegeerd\tmissing.xml\t1\n")

	merged, err := Fuse(dir, "fused.alpino.xml")
	require.NoError(t, err)
	require.Len(t, merged.Lookup, 2)

	data, _ := os.ReadFile(filepath.Join(dir, FileName))
	assert.Equal(t, "een\tfused.alpino.xml\t1\ntwee\tfused.alpino.xml\t2\n", string(data))

	trees, err := ReadTreebank(filepath.Join(dir, "fused.alpino.xml"))
	require.NoError(t, err)
	require.Len(t, trees, 2)
	s, _ := trees[1].Sentence()
	assert.Equal(t, "twee", s)

	_, err = Fuse(t.TempDir(), TreebankName)
	assert.Error(t, err, "nothing to fuse")
}
