package lookup

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/CentreForDigitalHumanities/tscan/internal/models"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

// FileName is the lookup file the engine reads from the output directory.
const FileName = "alpino_lookup.data"

// HiddenParses matches parse files cached in an input directory by earlier
// runs.
const HiddenParses = ".*.alpino.xml"

// Cache is an ordered list of lookup entries. Duplicated sentences are
// allowed; the last entry for a sentence wins.
type Cache struct {
	entries []models.LookupEntry
}

// NewCache returns a cache holding entries.
func NewCache(entries ...models.LookupEntry) *Cache {
	c := &Cache{}
	c.Append(entries...)
	return c
}

// Append adds entries to the end of the cache.
func (c *Cache) Append(entries ...models.LookupEntry) {
	c.entries = append(c.entries, entries...)
}

// Entries returns the entries in order.
func (c *Cache) Entries() []models.LookupEntry {
	return c.entries
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Lookup returns the most recent entry for a sentence.
func (c *Cache) Lookup(sentence string) (models.LookupEntry, bool) {
	for i := len(c.entries) - 1; i >= 0; i-- {
		if c.entries[i].Sentence == sentence {
			return c.entries[i], true
		}
	}
	return models.LookupEntry{}, false
}

// Load reads a lookup file of sentence<TAB>source<TAB>index lines.
func Load(path string) (*Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := &Cache{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		entry, err := parseEntry(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		c.entries = append(c.entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseEntry(line string) (models.LookupEntry, error) {
	last := strings.LastIndexByte(line, '\t')
	if last < 0 {
		return models.LookupEntry{}, errors.New("expected 3 tab separated fields")
	}
	mid := strings.LastIndexByte(line[:last], '\t')
	if mid < 0 {
		return models.LookupEntry{}, errors.New("expected 3 tab separated fields")
	}
	index, err := strconv.Atoi(strings.TrimSpace(line[last+1:]))
	if err != nil {
		return models.LookupEntry{}, fmt.Errorf("invalid index: %w", err)
	}
	return models.LookupEntry{
		Sentence: line[:mid],
		Source:   line[mid+1 : last],
		Index:    index,
	}, nil
}

// Save writes the cache, creating an empty file for an empty cache.
func (c *Cache) Save(path string) error {
	var buf bytes.Buffer
	for _, e := range c.entries {
		fmt.Fprintf(&buf, "%s\t%s\t%d\n", e.Sentence, e.Source, e.Index)
	}
	return storage.WriteFileAtomic(path, buf.Bytes(), 0644)
}

// Seed builds the initial cache from the parse files of a project: hidden
// parses left in inputDir by earlier runs plus the explicitly submitted
// files. Each file is read once, in name order. Files that cannot be parsed
// are skipped and reported in the returned error; the cache is still usable.
func Seed(inputDir string, explicit []string) (*Cache, error) {
	names := make(map[string]struct{})
	for _, p := range explicit {
		names[filepath.Base(p)] = struct{}{}
	}
	hidden, err := filepath.Glob(filepath.Join(inputDir, HiddenParses))
	if err != nil {
		return nil, err
	}
	for _, p := range hidden {
		names[filepath.Base(p)] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	c := &Cache{}
	var errs []error
	for _, name := range sorted {
		path := filepath.Join(inputDir, name)
		trees, err := ReadTreebank(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, t := range trees {
			sentence, err := t.Sentence()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s tree %d: %w", path, t.Index, err))
				continue
			}
			c.entries = append(c.entries, models.LookupEntry{Sentence: sentence, Source: path, Index: t.Index})
		}
	}
	return c, errors.Join(errs...)
}
