// Package status persists project progress, completion markers and the
// per-owner project index.
package status

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/CentreForDigitalHumanities/tscan/internal/models"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

// ExitNotFinished is returned by ReadExitCode when a project never wrote a
// completion marker. It counts as a failure.
const ExitNotFinished = -1

var (
	ErrMissingIndex = errors.New("index not found")
	ErrCorruptIndex = errors.New("malformed index")
	ErrNoStatus     = errors.New("no status recorded")
)

// IndexError reports an unusable owner index.
type IndexError struct {
	Owner string
	Kind  error // ErrMissingIndex or ErrCorruptIndex
	Cause error
}

func (e *IndexError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s for %s", e.Kind, e.Owner)
	}
	return fmt.Sprintf("%s for %s: %v", e.Kind, e.Owner, e.Cause)
}

func (e *IndexError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

var now = time.Now

// Write appends a status record. The last record in the file is the current
// status; earlier ones are history for polling clients.
func Write(path, message string, completion int) error {
	if completion < 0 {
		completion = 0
	}
	if completion > 100 {
		completion = 100
	}
	message = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(message)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening status file: %w", err)
	}
	line := fmt.Sprintf("%d\t%d\t%s\n", completion, now().Unix(), message)
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("writing status file: %w", err)
	}
	return f.Close()
}

// ReadAll returns every record of a status file in write order. Lines that
// cannot be parsed are skipped.
func ReadAll(path string) ([]models.StatusRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []models.StatusRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if rec, ok := parseRecord(scanner.Text()); ok {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadLatest returns the current status record.
func ReadLatest(path string) (models.StatusRecord, error) {
	records, err := ReadAll(path)
	if err != nil {
		return models.StatusRecord{}, err
	}
	if len(records) == 0 {
		return models.StatusRecord{}, ErrNoStatus
	}
	return records[len(records)-1], nil
}

func parseRecord(line string) (models.StatusRecord, bool) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return models.StatusRecord{}, false
	}
	completion, err := strconv.Atoi(parts[0])
	if err != nil {
		return models.StatusRecord{}, false
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return models.StatusRecord{}, false
	}
	return models.StatusRecord{
		Completion: completion,
		Time:       time.Unix(ts, 0),
		Message:    parts[2],
	}, true
}

// ReadExitCode returns the exit code stored in a project's completion
// marker, or ExitNotFinished when the marker is absent or unreadable.
func ReadExitCode(projectDir string) int {
	data, err := os.ReadFile(filepath.Join(projectDir, storage.DoneMarker))
	if err != nil {
		return ExitNotFinished
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return ExitNotFinished
	}
	return code
}

// WriteExitCode writes a project's completion marker.
func WriteExitCode(projectDir string, code int) error {
	return os.WriteFile(filepath.Join(projectDir, storage.DoneMarker), []byte(strconv.Itoa(code)), 0644)
}

// MarkAborted writes the abort marker of a project.
func MarkAborted(projectDir string) error {
	return os.WriteFile(filepath.Join(projectDir, storage.AbortedMarker), []byte(now().UTC().Format(time.RFC3339)), 0644)
}

// IsAborted reports whether a project carries an abort marker.
func IsAborted(projectDir string) bool {
	return storage.Exists(filepath.Join(projectDir, storage.AbortedMarker))
}

// WritePID records the process that owns a project.
func WritePID(projectDir string, pid int) error {
	return os.WriteFile(filepath.Join(projectDir, storage.PIDFile), []byte(strconv.Itoa(pid)), 0644)
}

// ReadIndex loads an owner's project index.
func ReadIndex(ownerDir string) (*models.ProjectIndex, error) {
	owner := filepath.Base(ownerDir)
	data, err := os.ReadFile(filepath.Join(ownerDir, storage.IndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &IndexError{Owner: owner, Kind: ErrMissingIndex}
		}
		return nil, fmt.Errorf("reading index for %s: %w", owner, err)
	}

	var idx models.ProjectIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, &IndexError{Owner: owner, Kind: ErrCorruptIndex, Cause: err}
	}
	return &idx, nil
}

// WriteIndex replaces an owner's project index atomically.
func WriteIndex(ownerDir string, idx *models.ProjectIndex) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	return storage.WriteFileAtomic(filepath.Join(ownerDir, storage.IndexFile), data, 0644)
}
