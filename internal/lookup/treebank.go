// Package lookup maintains the sentence to parse-tree cache shared between
// the documents of one project, and combines cached parses into a single
// treebank.
package lookup

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

const (
	treeElement     = "alpino_ds"
	treebankElement = "treebank"
	nodeElement     = "node"
)

// Tree is one syntactic parse. Raw holds the element exactly as it appeared
// in its source file.
type Tree struct {
	// Index is 0 for a file that is a single tree, otherwise the 1-based
	// position inside its treebank.
	Index int
	Raw   []byte
}

// Sentence reconstructs the surface sentence of the tree: every node with a
// word, ordered by its begin position and joined by single spaces. A later
// node with the same position replaces an earlier one.
func (t Tree) Sentence() (string, error) {
	words := make(map[int]string)
	d := xml.NewDecoder(bytes.NewReader(t.Raw))
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading tree: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != nodeElement {
			continue
		}
		word, hasWord := attr(start, "word")
		if !hasWord {
			continue
		}
		beginText, _ := attr(start, "begin")
		begin, err := strconv.Atoi(beginText)
		if err != nil {
			return "", fmt.Errorf("node %q has invalid begin %q", word, beginText)
		}
		words[begin] = word
	}

	positions := make([]int, 0, len(words))
	for p := range words {
		positions = append(positions, p)
	}
	sort.Ints(positions)

	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = words[p]
	}
	return strings.Join(parts, " "), nil
}

func attr(start xml.StartElement, name string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// ReadTreebank returns the trees stored in a parse file. A file rooted at
// alpino_ds is a single tree with index 0; a treebank root yields its
// alpino_ds children numbered from 1.
func ReadTreebank(path string) ([]Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trees, err := parseTreebank(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return trees, nil
}

func parseTreebank(data []byte) ([]Tree, error) {
	d := xml.NewDecoder(bytes.NewReader(data))

	root, err := nextStart(d)
	if err != nil {
		return nil, err
	}
	switch root.Name.Local {
	case treeElement:
		if err := d.Skip(); err != nil {
			return nil, err
		}
		return []Tree{{Index: 0, Raw: data[root.offset:d.InputOffset()]}}, nil
	case treebankElement:
	default:
		return nil, fmt.Errorf("unexpected root element <%s>", root.Name.Local)
	}

	var trees []Tree
	for {
		off := d.InputOffset()
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := d.Skip(); err != nil {
				return nil, err
			}
			if t.Name.Local != treeElement {
				continue
			}
			raw := make([]byte, d.InputOffset()-off)
			copy(raw, data[off:d.InputOffset()])
			trees = append(trees, Tree{Index: len(trees) + 1, Raw: raw})
		case xml.EndElement:
			return trees, nil
		}
	}
}

type startAt struct {
	xml.StartElement
	offset int64
}

func nextStart(d *xml.Decoder) (startAt, error) {
	for {
		off := d.InputOffset()
		tok, err := d.Token()
		if err == io.EOF {
			return startAt{}, errors.New("empty document")
		}
		if err != nil {
			return startAt{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return startAt{StartElement: start, offset: off}, nil
		}
	}
}

// TreeAt returns the tree at index in a parse file. Single-tree files return
// their root whatever the index.
func TreeAt(path string, index int) (Tree, error) {
	trees, err := ReadTreebank(path)
	if err != nil {
		return Tree{}, err
	}
	return pick(trees, index, path)
}

func pick(trees []Tree, index int, path string) (Tree, error) {
	if len(trees) == 1 && trees[0].Index == 0 {
		return trees[0], nil
	}
	if index < 1 || index > len(trees) {
		return Tree{}, fmt.Errorf("%s has no tree %d (%d trees)", path, index, len(trees))
	}
	return trees[index-1], nil
}

// WriteTreebank writes trees under a single treebank root.
func WriteTreebank(path string, trees []Tree) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<" + treebankElement + ">\n")
	for _, t := range trees {
		buf.WriteString("  ")
		buf.Write(t.Raw)
		buf.WriteByte('\n')
	}
	buf.WriteString("</" + treebankElement + ">\n")
	return storage.WriteFileAtomic(path, buf.Bytes(), 0644)
}
