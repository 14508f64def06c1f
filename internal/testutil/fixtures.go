// fixtures.go - Project directory fixtures for testing
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/CentreForDigitalHumanities/tscan/internal/config"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

// ProjectFile is the project parameter file name used by fixtures.
const ProjectFile = "project.yml"

// ProjectFixture is a project directory under a temporary projects root.
type ProjectFixture struct {
	Layout *storage.Layout
	Owner  string
	Name   string
	Paths  storage.ProjectPaths
}

// NewProject creates <root>/<owner>/<name> with empty input and output
// directories.
func NewProject(t testing.TB, layout *storage.Layout, owner, name string) *ProjectFixture {
	t.Helper()
	p := &ProjectFixture{
		Layout: layout,
		Owner:  owner,
		Name:   name,
		Paths:  layout.Paths(owner, name, ProjectFile),
	}
	for _, dir := range []string{p.Paths.Input, p.Paths.Output} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}
	return p
}

// NewLayout creates a projects root in a temporary directory.
func NewLayout(t testing.TB) *storage.Layout {
	t.Helper()
	l, err := storage.NewLayout(filepath.Join(t.TempDir(), "projects"))
	if err != nil {
		t.Fatalf("creating layout: %v", err)
	}
	return l
}

// AddInput writes a file into the input directory and returns its path.
func (p *ProjectFixture) AddInput(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(p.Paths.Input, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing input %s: %v", name, err)
	}
	return path
}

// WriteFile writes a file relative to the project directory.
func (p *ProjectFixture) WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(p.Paths.Dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// WriteParams saves the project parameter file.
func (p *ProjectFixture) WriteParams(t testing.TB, params *config.ProjectParams) {
	t.Helper()
	if err := config.SaveProject(p.Paths.ProjectFile, params); err != nil {
		t.Fatalf("writing project file: %v", err)
	}
}

// DefaultParams returns valid parameters for the given text documents.
func DefaultParams(documents ...string) *config.ProjectParams {
	params := &config.ProjectParams{
		WordFreqLex:  "freqlist_staphorsius_CLIB_words.freq",
		LemmaFreqLex: "freqlist_staphorsius_CLIB_lemma.freq",
		TopFreqLex:   "freqlist_staphorsius_CLIB_words.freq",
	}
	for _, d := range documents {
		params.Inputs = append(params.Inputs, config.InputFile{Filename: d, Template: config.TemplateText})
	}
	return params
}

// WriteIndex writes raw index JSON for an owner.
func WriteIndex(t testing.TB, layout *storage.Layout, owner, content string) {
	t.Helper()
	dir := layout.OwnerDir(owner)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating owner dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, storage.IndexFile), []byte(content), 0644); err != nil {
		t.Fatalf("writing index: %v", err)
	}
}
