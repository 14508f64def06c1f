package status

import (
	"github.com/labstack/gommon/log"
)

// Reporter writes progress for one project and mirrors it to the log.
// Status write failures are logged, never returned: progress reporting must
// not abort a run.
type Reporter struct {
	path string
	log  *log.Logger
}

// NewReporter returns a Reporter appending to the status file at path.
func NewReporter(path string, logger *log.Logger) *Reporter {
	return &Reporter{path: path, log: logger}
}

// Report records a status message at the given completion percentage.
func (r *Reporter) Report(message string, completion int) {
	r.log.Infof("%3d%% %s", completion, message)
	if err := Write(r.path, message, completion); err != nil {
		r.log.Warnf("status update lost: %v", err)
	}
}

// Path returns the status file location.
func (r *Reporter) Path() string {
	return r.path
}
