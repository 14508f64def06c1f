// Package models contains domain types for the T-Scan project orchestrator.
package models

import "fmt"

// Status is the lifecycle state of a project as persisted in the owner index.
// The integer values are shared with the web submission layer.
type Status int

const (
	StatusStaged  Status = 0
	StatusRunning Status = 1
	StatusDone    Status = 2
	// StatusFailed is never persisted; it is derived from StatusDone and a
	// non-zero exit code.
	StatusFailed Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusStaged:
		return "staged"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Project identifies one submission of an owner.
type Project struct {
	Owner    string `json:"owner" msgpack:"owner"`
	Name     string `json:"name" msgpack:"name"`
	Status   Status `json:"status" msgpack:"status"`
	ExitCode int    `json:"exitCode" msgpack:"exitCode"`
}

// State folds the exit code into the persisted status.
func (p Project) State() Status {
	if p.Status == StatusDone && p.ExitCode != 0 {
		return StatusFailed
	}
	return p.Status
}

// NeedsRestart reports whether a project was interrupted or finished with a
// failure during its last run.
func NeedsRestart(status Status, exitCode int) bool {
	switch status {
	case StatusRunning:
		return true
	case StatusDone:
		return exitCode != 0
	default:
		return false
	}
}
