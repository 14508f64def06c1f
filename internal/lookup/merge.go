package lookup

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/CentreForDigitalHumanities/tscan/internal/models"
)

// TreebankName is the combined treebank written when parse output is kept.
const TreebankName = "alpino.xml"

// Resolver maps a lookup source to a readable path.
type Resolver func(source string) string

// InputResolver resolves sources recorded relative to the project as
// "input/<file>" against inputDir. Other sources are returned unchanged.
func InputResolver(inputDir string) Resolver {
	return func(source string) string {
		if rest, ok := strings.CutPrefix(source, "input/"); ok {
			return filepath.Join(inputDir, rest)
		}
		return source
	}
}

// Merged is a combined treebank and the lookup entries pointing into it.
type Merged struct {
	Trees  []Tree
	Lookup []models.LookupEntry
}

// Merge fetches the tree behind every entry, in order, and renumbers the
// entries against one combined treebank named target.
func Merge(entries []models.LookupEntry, resolve Resolver, target string) (*Merged, error) {
	if resolve == nil {
		resolve = func(s string) string { return s }
	}
	files := make(map[string][]Tree)
	out := &Merged{}

	for _, e := range entries {
		path := resolve(e.Source)
		trees, ok := files[path]
		if !ok {
			var err error
			trees, err = ReadTreebank(path)
			if err != nil {
				return nil, err
			}
			files[path] = trees
		}
		tree, err := pick(trees, e.Index, path)
		if err != nil {
			return nil, fmt.Errorf("sentence %q: %w", e.Sentence, err)
		}
		out.Trees = append(out.Trees, tree)
		out.Lookup = append(out.Lookup, models.LookupEntry{
			Sentence: e.Sentence,
			Source:   target,
			Index:    len(out.Trees),
		})
	}
	return out, nil
}

// MergeDedup fuses several lookups into one with a single entry per
// sentence. The last pointer seen for a sentence wins; sentences keep the
// position where they first appeared.
func MergeDedup(lookups ...[]models.LookupEntry) []models.LookupEntry {
	pos := make(map[string]int)
	var out []models.LookupEntry
	for _, l := range lookups {
		for _, e := range l {
			if i, ok := pos[e.Sentence]; ok {
				out[i] = e
				continue
			}
			pos[e.Sentence] = len(out)
			out = append(out, e)
		}
	}
	return out
}

// Finalize merges the lookup file in outputDir into outputDir/alpino.xml and
// rewrites the lookup to point into it. A sentence listed more than once
// keeps only its last pointer.
func Finalize(outputDir, inputDir string) (*Merged, error) {
	c, err := Load(filepath.Join(outputDir, FileName))
	if err != nil {
		return nil, err
	}
	return mergeInto(outputDir, TreebankName, MergeDedup(c.Entries()), InputResolver(inputDir))
}

// FusePattern matches the per-run lookup files fused by Fuse.
const FusePattern = "out*." + FileName

// Fuse combines every lookup file in dir matching FusePattern, in name
// order, into dir/target and a single dir/alpino_lookup.data. Relative
// sources are resolved against dir. It returns an error when no lookup
// file matches.
func Fuse(dir, target string) (*Merged, error) {
	paths, err := filepath.Glob(filepath.Join(dir, FusePattern))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no %s files in %s", FusePattern, dir)
	}
	sort.Strings(paths)

	lookups := make([][]models.LookupEntry, 0, len(paths))
	for _, p := range paths {
		c, err := Load(p)
		if err != nil {
			return nil, err
		}
		lookups = append(lookups, c.Entries())
	}
	return mergeInto(dir, target, MergeDedup(lookups...), func(source string) string {
		if filepath.IsAbs(source) {
			return source
		}
		return filepath.Join(dir, source)
	})
}

func mergeInto(dir, target string, entries []models.LookupEntry, resolve Resolver) (*Merged, error) {
	merged, err := Merge(entries, resolve, target)
	if err != nil {
		return nil, err
	}
	if err := WriteTreebank(filepath.Join(dir, target), merged.Trees); err != nil {
		return nil, err
	}
	if err := NewCache(merged.Lookup...).Save(filepath.Join(dir, FileName)); err != nil {
		return nil, err
	}
	return merged, nil
}
