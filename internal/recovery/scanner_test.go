package recovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CentreForDigitalHumanities/tscan/internal/config"
	"github.com/CentreForDigitalHumanities/tscan/internal/models"
	"github.com/CentreForDigitalHumanities/tscan/internal/status"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
	"github.com/CentreForDigitalHumanities/tscan/internal/testutil"
)

// recordingDispatcher records restart commands instead of running them.
type recordingDispatcher struct {
	errors   map[string]error
	commands []Command
	mu       sync.Mutex
}

func (r *recordingDispatcher) Dispatch(_ context.Context, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	return r.errors[cmd.Project]
}

func (r *recordingDispatcher) projects() []string {
	var out []string
	for _, c := range r.commands {
		out = append(out, c.Owner+"/"+c.Project)
	}
	return out
}

func newTestScanner(t *testing.T) (*Scanner, *storage.Layout, *recordingDispatcher) {
	t.Helper()
	layout := testutil.NewLayout(t)
	cfg := config.DefaultConfig()
	cfg.Storage.ProjectsDirectory = layout.Root()
	d := &recordingDispatcher{errors: map[string]error{}}
	s := NewScanner(cfg, layout, d)
	s.PID = 4242
	return s, layout, d
}

func project(t *testing.T, layout *storage.Layout, owner, name string) *testutil.ProjectFixture {
	t.Helper()
	return testutil.NewProject(t, layout, owner, name)
}

func TestScan_ClassifiesProjects(t *testing.T) {
	s, layout, d := newTestScanner(t)

	project(t, layout, "alice", "running")
	staged := project(t, layout, "alice", "staged")
	ok := project(t, layout, "alice", "ok")
	failed := project(t, layout, "alice", "failed")
	project(t, layout, "alice", "unfinished")

	require.NoError(t, status.WriteExitCode(ok.Paths.Dir, 0))
	require.NoError(t, status.WriteExitCode(failed.Paths.Dir, 3))
	staged.WriteFile(t, storage.StatusFile, "0\t1\tStaged\n")

	testutil.WriteIndex(t, layout, "alice", `{"projects":[
		["running",1],["staged",0],["ok",2],["failed",2],["unfinished",2]
	]}`)

	report, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Queued)
	assert.Equal(t, []string{"alice/running", "alice/failed", "alice/unfinished"}, d.projects())
	assert.Empty(t, report.DispatchFailures)

	idx, err := status.ReadIndex(layout.OwnerDir("alice"))
	require.NoError(t, err)
	want := map[string]models.Status{
		"running":    models.StatusRunning,
		"staged":     models.StatusStaged,
		"ok":         models.StatusDone,
		"failed":     models.StatusRunning,
		"unfinished": models.StatusRunning,
	}
	for _, e := range idx.Entries {
		assert.Equal(t, want[e.Name], e.Status, e.Name)
	}

	assert.Equal(t, 0, status.ReadExitCode(ok.Paths.Dir), "successful projects are untouched")
	latest, err := status.ReadLatest(staged.Paths.Status)
	require.NoError(t, err)
	assert.Equal(t, "Staged", latest.Message)
}

func TestScan_ResetsRestartedProject(t *testing.T) {
	s, layout, _ := newTestScanner(t)
	p := project(t, layout, "bob", "essay")
	for _, name := range storage.TransientArtifacts {
		p.WriteFile(t, name, "old")
	}
	require.NoError(t, status.WriteExitCode(p.Paths.Dir, 1))
	p.WriteFile(t, "project.yml", "word_freq_lex: x\n")
	testutil.WriteIndex(t, layout, "bob", `{"projects":[["essay",2]]}`)

	_, err := s.Scan(context.Background())
	require.NoError(t, err)

	for _, name := range storage.TransientArtifacts {
		if name == storage.StatusFile {
			continue
		}
		assert.NoFileExists(t, filepath.Join(p.Paths.Dir, name))
	}
	assert.FileExists(t, filepath.Join(p.Paths.Dir, "project.yml"))

	records, err := status.ReadAll(p.Paths.Status)
	require.NoError(t, err)
	require.Len(t, records, 1, "old status history is discarded")
	assert.Equal(t, ScheduledMessage, records[0].Message)
	assert.Equal(t, 0, records[0].Completion)

	pid, err := os.ReadFile(p.Paths.PID)
	require.NoError(t, err)
	assert.Equal(t, "4242", string(pid))
}

func TestScan_CommandLine(t *testing.T) {
	s, layout, d := newTestScanner(t)
	p := project(t, layout, "bob", "essay")
	testutil.WriteIndex(t, layout, "bob", `{"projects":[["essay",1]]}`)

	_, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, d.commands, 1)

	cmd := d.commands[0]
	assert.Equal(t, []string{
		"clamdispatcher",
		"/src/tscan/webservice/tscanservice",
		"tscanservice.tscan",
		p.Paths.Dir,
		"tscanctl", "wrapper",
		p.Paths.ProjectFile,
		p.Paths.Status,
		p.Paths.Input,
		p.Paths.Output,
		"/usr/local/bin",
		"/usr/local/share/tscan",
		"/src/tscan",
		"/Alpino",
	}, cmd.Argv())
	assert.Contains(t, cmd.String(), "clamdispatcher /src/tscan/webservice/tscanservice tscanservice.tscan "+p.Paths.Dir)
}

func TestScan_SkipsOwnersWithUnusableIndex(t *testing.T) {
	s, layout, d := newTestScanner(t)
	project(t, layout, "broken", "p")
	testutil.WriteIndex(t, layout, "broken", `{"projects":[["p"`)
	project(t, layout, "noindex", "p")
	project(t, layout, "zed", "p")
	testutil.WriteIndex(t, layout, "zed", `{"projects":[["p",1]]}`)

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "noindex"}, report.SkippedOwners)
	assert.Equal(t, []string{"zed/p"}, d.projects())
}

func TestScan_MarksAllBeforeDispatching(t *testing.T) {
	s, layout, _ := newTestScanner(t)
	a := project(t, layout, "alice", "a")
	b := project(t, layout, "bob", "b")
	testutil.WriteIndex(t, layout, "alice", `{"projects":[["a",1]]}`)
	testutil.WriteIndex(t, layout, "bob", `{"projects":[["b",1]]}`)

	var seen []string
	s.dispatcher = dispatchFunc(func(_ context.Context, cmd Command) error {
		// by the first dispatch every project is already scheduled
		for _, p := range []*testutil.ProjectFixture{a, b} {
			latest, err := status.ReadLatest(p.Paths.Status)
			if err == nil {
				seen = append(seen, p.Name+":"+latest.Message)
			}
		}
		return nil
	})

	_, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, seen, 4)
	assert.Equal(t, "a:"+ScheduledMessage, seen[0])
	assert.Equal(t, "b:"+ScheduledMessage, seen[1])
}

func TestScan_DispatchFailureIsIsolated(t *testing.T) {
	s, layout, d := newTestScanner(t)
	project(t, layout, "alice", "a")
	project(t, layout, "alice", "b")
	testutil.WriteIndex(t, layout, "alice", `{"projects":[["a",1],["b",1]]}`)
	d.errors["a"] = errors.New("queue full")

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Queued)
	assert.Equal(t, []string{"alice/a", "alice/b"}, d.projects())
	require.Len(t, report.DispatchFailures, 1)
	assert.Equal(t, "a", report.DispatchFailures[0].Project)
}

func TestScan_NothingToRestartLeavesIndexAlone(t *testing.T) {
	s, layout, d := newTestScanner(t)
	project(t, layout, "alice", "a")
	content := `{"projects": [["a", 0]]}`
	testutil.WriteIndex(t, layout, "alice", content)

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Queued)
	assert.Empty(t, d.commands)

	data, err := os.ReadFile(filepath.Join(layout.OwnerDir("alice"), storage.IndexFile))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestScan_CancelledContextStopsDispatch(t *testing.T) {
	s, layout, d := newTestScanner(t)
	project(t, layout, "alice", "a")
	testutil.WriteIndex(t, layout, "alice", `{"projects":[["a",1]]}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Queued)
	assert.Empty(t, d.commands)
}

type dispatchFunc func(ctx context.Context, cmd Command) error

func (f dispatchFunc) Dispatch(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}
