package status

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CentreForDigitalHumanities/tscan/internal/models"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *testing.T, ts int64) {
	t.Helper()
	orig := now
	now = func() time.Time { return time.Unix(ts, 0) }
	t.Cleanup(func() { now = orig })
}

func TestWriteAndReadLatest(t *testing.T) {
	fixedClock(t, 1700000000)
	path := filepath.Join(t.TempDir(), storage.StatusFile)

	require.NoError(t, Write(path, "Starting", 0))
	require.NoError(t, Write(path, "Started processing\ta.txt\n", 10))

	latest, err := ReadLatest(path)
	require.NoError(t, err)
	assert.Equal(t, 10, latest.Completion)
	assert.Equal(t, "Started processing a.txt ", latest.Message)
	assert.Equal(t, int64(1700000000), latest.Time.Unix())

	all, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Starting", all[0].Message)
}

func TestWrite_ClampsCompletion(t *testing.T) {
	path := filepath.Join(t.TempDir(), storage.StatusFile)
	require.NoError(t, Write(path, "over", 140))
	require.NoError(t, Write(path, "under", -3))

	all, err := ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, 100, all[0].Completion)
	assert.Equal(t, 0, all[1].Completion)
}

func TestReadAll_SkipsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), storage.StatusFile)
	content := "garbage\n50\t1700000000\tHalfway\nx\ty\tz\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	all, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Halfway", all[0].Message)
}

func TestReadLatest_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), storage.StatusFile)
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := ReadLatest(path)
	assert.ErrorIs(t, err, ErrNoStatus)

	_, err = ReadLatest(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadExitCode(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, ExitNotFinished, ReadExitCode(dir), "missing marker")

	require.NoError(t, os.WriteFile(filepath.Join(dir, storage.DoneMarker), []byte("nonsense"), 0644))
	assert.Equal(t, ExitNotFinished, ReadExitCode(dir), "unparseable marker")

	require.NoError(t, os.WriteFile(filepath.Join(dir, storage.DoneMarker), []byte("0\n"), 0644))
	assert.Equal(t, 0, ReadExitCode(dir))

	require.NoError(t, WriteExitCode(dir, 5))
	assert.Equal(t, 5, ReadExitCode(dir))
}

func TestMarkers(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, IsAborted(dir))
	require.NoError(t, MarkAborted(dir))
	assert.True(t, IsAborted(dir))

	require.NoError(t, WritePID(dir, 4242))
	data, err := os.ReadFile(filepath.Join(dir, storage.PIDFile))
	require.NoError(t, err)
	assert.Equal(t, "4242", string(data))
}

func TestReadIndex_Missing(t *testing.T) {
	ownerDir := filepath.Join(t.TempDir(), "alice")
	require.NoError(t, os.MkdirAll(ownerDir, 0755))

	_, err := ReadIndex(ownerDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingIndex)

	var ie *IndexError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "alice", ie.Owner)
}

func TestReadIndex_Corrupt(t *testing.T) {
	cases := map[string]string{
		"not json":       "{projects",
		"no projects":    `{"other":[]}`,
		"short entry":    `{"projects":[["p1"]]}`,
		"string status":  `{"projects":[["p1","running"]]}`,
		"non-array rows": `{"projects":{"p1":1}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			ownerDir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(ownerDir, storage.IndexFile), []byte(content), 0644))

			_, err := ReadIndex(ownerDir)
			assert.ErrorIs(t, err, ErrCorruptIndex)
			assert.NotErrorIs(t, err, ErrMissingIndex)
		})
	}
}

func TestIndexRoundTrip_PreservesUnknownFields(t *testing.T) {
	ownerDir := t.TempDir()
	content := `{"projects":[["p1",1024,1699999999,1],["p2",2048,1699999998,2]],"totalsize":3072}`
	require.NoError(t, os.WriteFile(filepath.Join(ownerDir, storage.IndexFile), []byte(content), 0644))

	idx, err := ReadIndex(ownerDir)
	require.NoError(t, err)
	require.Len(t, idx.Entries, 2)
	assert.Equal(t, "p1", idx.Entries[0].Name)
	assert.Equal(t, models.StatusRunning, idx.Entries[0].Status)

	entry, ok := idx.Find("p1")
	require.True(t, ok)
	entry.Status = models.StatusStaged
	require.NoError(t, WriteIndex(ownerDir, idx))

	data, err := os.ReadFile(filepath.Join(ownerDir, storage.IndexFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"projects":[["p1",1024,1699999999,0],["p2",2048,1699999998,2]],"totalsize":3072}`, string(data))
}

func TestReporter_SwallowsWriteErrors(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(filepath.Join(dir, "missing-dir", storage.StatusFile), testLogger())
	assert.NotPanics(t, func() { r.Report("Starting", 0) })

	r = NewReporter(filepath.Join(dir, storage.StatusFile), testLogger())
	r.Report("Done", 100)
	latest, err := ReadLatest(r.Path())
	require.NoError(t, err)
	assert.Equal(t, "Done", latest.Message)
}
