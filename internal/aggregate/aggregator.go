// Package aggregate concatenates per-document statistics into corpus totals.
package aggregate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/labstack/gommon/log"

	"github.com/CentreForDigitalHumanities/tscan/internal/models"
)

const (
	documentLabel = "Document statistics"
	corpusLabel   = "Corpus statistics"
	totalDocument = "TOTAL"
)

// Result describes one category merge.
type Result struct {
	Category  models.Category
	Total     string
	Header    string
	Fragments []string
	Rejected  []string
	Rows      int
}

// HeaderMismatchError lists fragments left out of a total because their
// column names differ from the first fragment's.
type HeaderMismatchError struct {
	Category  models.Category
	Header    string
	Fragments []string
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("%s: %d fragment(s) with a different header skipped: %s",
		e.Category.TotalName(), len(e.Fragments), strings.Join(e.Fragments, ", "))
}

// Aggregator merges statistics fragments.
type Aggregator struct {
	log *log.Logger
}

// New returns an Aggregator logging to logger.
func New(logger *log.Logger) *Aggregator {
	return &Aggregator{log: logger}
}

// Merge writes outputDir/total.<category>.csv from every fragment of the
// category in name order. The total is truncated first, so merging again
// gives the same result. The first fragment supplies the header; later
// fragments contribute their rows only.
func (a *Aggregator) Merge(outputDir string, category models.Category) (*Result, error) {
	res := &Result{
		Category: category,
		Total:    filepath.Join(outputDir, category.TotalName()),
	}

	out, err := os.Create(res.Total)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", category.TotalName(), err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	fragments, err := a.fragments(outputDir, category)
	if err != nil {
		return nil, err
	}

	for _, name := range fragments {
		path := filepath.Join(outputDir, name)
		if res.Header == "" {
			header, rows, err := copyFragment(w, path, "")
			if err != nil {
				return nil, err
			}
			if header == "" {
				a.log.Warnf("[%s] skipping empty fragment %s", category, name)
				continue
			}
			res.Header = header
			res.Rows += rows
			res.Fragments = append(res.Fragments, name)
			a.copyMetadata(outputDir, name, category)
			continue
		}

		header, rows, err := copyFragment(w, path, res.Header)
		if errors.Is(err, errHeader) {
			a.log.Warnf("[%s] %s: header differs from %s, not merged", category, name, res.Fragments[0])
			res.Rejected = append(res.Rejected, name)
			continue
		}
		if err != nil {
			return nil, err
		}
		if header != "" {
			res.Rows += rows
			res.Fragments = append(res.Fragments, name)
		}
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("writing %s: %w", category.TotalName(), err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	a.log.Debugf("[%s] merged %d fragments, %d rows", category, len(res.Fragments), res.Rows)
	if len(res.Rejected) > 0 {
		return res, &HeaderMismatchError{Category: category, Header: res.Header, Fragments: res.Rejected}
	}
	return res, nil
}

// MergeAll merges every category. A failing category does not stop the
// others; the errors are joined.
func (a *Aggregator) MergeAll(outputDir string) ([]*Result, error) {
	var results []*Result
	var errs []error
	for _, c := range models.Categories {
		res, err := a.Merge(outputDir, c)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

func (a *Aggregator) fragments(outputDir string, category models.Category) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(outputDir, "*"+category.Suffix()))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, m := range matches {
		name := filepath.Base(m)
		if name == category.TotalName() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// copyMetadata derives the total's sidecar from the first fragment's.
func (a *Aggregator) copyMetadata(outputDir, fragment string, category models.Category) {
	src := filepath.Join(outputDir, "."+fragment+".METADATA")
	data, err := os.ReadFile(src)
	if err != nil {
		a.log.Warnf("[%s] no metadata for %s: %v", category, fragment, err)
		return
	}
	content := strings.ReplaceAll(string(data), documentLabel, corpusLabel)
	if doc := category.DocumentName(fragment); doc != "" {
		content = strings.ReplaceAll(content, doc, totalDocument)
	}
	dst := filepath.Join(outputDir, "."+category.TotalName()+".METADATA")
	if err := os.WriteFile(dst, []byte(content), 0644); err != nil {
		a.log.Warnf("[%s] writing %s: %v", category, dst, err)
	}
}

var errHeader = errors.New("header mismatch")

// copyFragment appends a fragment to w. With an empty want the header line
// is copied too; otherwise it is compared with want and dropped. Nothing is
// written when the header differs. It returns the fragment's header and the
// number of data rows copied.
func copyFragment(w *bufio.Writer, path, want string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	first, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", 0, fmt.Errorf("reading %s: %w", path, err)
	}
	header := strings.TrimRight(first, "\r\n")
	if header == "" {
		return "", 0, nil
	}
	if want != "" && header != want {
		return header, 0, errHeader
	}
	if want == "" {
		if err := writeLine(w, first); err != nil {
			return "", 0, err
		}
	}

	rows := 0
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if err := writeLine(w, line); err != nil {
				return "", 0, err
			}
			rows++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return header, rows, nil
}

// writeLine writes a line, terminating it when the source did not.
func writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	if !strings.HasSuffix(line, "\n") {
		return w.WriteByte('\n')
	}
	return nil
}
