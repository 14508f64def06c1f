package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// Marker and artifact names inside a project directory.
const (
	IndexFile     = ".index"
	DoneMarker    = ".done"
	AbortedMarker = ".aborted"
	StatusFile    = ".status"
	PIDFile       = ".pid"
	LookupOutput  = "out.alpino_lookup.data"
	ProblemsLog   = "problems.log"
	InputDir      = "input"
	OutputDir     = "output"
)

// TransientArtifacts are removed before a project is restarted.
var TransientArtifacts = []string{
	DoneMarker,
	AbortedMarker,
	StatusFile,
	LookupOutput,
	ProblemsLog,
}

// Layout resolves paths inside the projects root:
//
//	<root>/<owner>/.index
//	<root>/<owner>/<project>/{.status,.done,input/,output/,...}
type Layout struct {
	root string
}

// ProjectPaths are the locations of one project's files.
type ProjectPaths struct {
	Dir         string
	Input       string
	Output      string
	Status      string
	Done        string
	Aborted     string
	PID         string
	ProjectFile string
}

// NewLayout creates a Layout, creating the root if needed.
func NewLayout(root string) (*Layout, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("projects root is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating projects directory: %w", err)
	}
	return &Layout{root: root}, nil
}

// Root returns the projects root.
func (l *Layout) Root() string {
	return l.root
}

// Owners returns the owner directories, sorted.
func (l *Layout) Owners() ([]string, error) {
	return listDirs(l.root)
}

// Projects returns the project directories of an owner, sorted.
func (l *Layout) Projects(owner string) ([]string, error) {
	return listDirs(l.OwnerDir(owner))
}

// OwnerDir returns the directory holding an owner's projects and index.
func (l *Layout) OwnerDir(owner string) string {
	return filepath.Join(l.root, owner)
}

// ProjectDir returns the directory of one project.
func (l *Layout) ProjectDir(owner, project string) string {
	return filepath.Join(l.root, owner, project)
}

// Paths returns the file locations of one project.
func (l *Layout) Paths(owner, project, projectFile string) ProjectPaths {
	return PathsFor(l.ProjectDir(owner, project), projectFile)
}

// PathsFor returns the file locations for a project directory.
func PathsFor(dir, projectFile string) ProjectPaths {
	return ProjectPaths{
		Dir:         dir,
		Input:       filepath.Join(dir, InputDir) + string(filepath.Separator),
		Output:      filepath.Join(dir, OutputDir) + string(filepath.Separator),
		Status:      filepath.Join(dir, StatusFile),
		Done:        filepath.Join(dir, DoneMarker),
		Aborted:     filepath.Join(dir, AbortedMarker),
		PID:         filepath.Join(dir, PIDFile),
		ProjectFile: filepath.Join(dir, projectFile),
	}
}

// ResetTransient deletes the artifacts of a previous run. Files that do not
// exist are skipped. It returns the names that were removed.
func ResetTransient(projectDir string) ([]string, error) {
	var removed []string
	var errs []error
	for _, name := range TransientArtifacts {
		err := os.Remove(filepath.Join(projectDir, name))
		switch {
		case err == nil:
			removed = append(removed, name)
		case os.IsNotExist(err):
		default:
			errs = append(errs, fmt.Errorf("removing %s: %w", name, err))
		}
	}
	return removed, errors.Join(errs...)
}

// RemoveGlob removes every file matching pattern and returns the count.
func RemoveGlob(pattern string) (int, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing %s: %w", m, err)
		}
		removed++
	}
	return removed, nil
}

// MoveFile renames src to dst, copying when the two are on different devices.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// CopyFile copies src to dst, replacing dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
