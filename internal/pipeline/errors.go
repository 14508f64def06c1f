package pipeline

import "fmt"

// Precondition codes.
const (
	CodeMissingParameter = "MISSING_PARAMETER"
	CodeIllegalFilename  = "ILLEGAL_FILENAME"
	CodeInvalidProject   = "INVALID_PROJECT"
	CodeNoInput          = "NO_INPUT"
)

// PreconditionError stops a run before any document is analysed.
type PreconditionError struct {
	Code    string
	Message string
	Err     error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// Status is the message recorded in the status file.
func (e *PreconditionError) Status() string {
	return "Failed, " + e.Message
}

// failureCode maps an engine exit status onto the run's exit code. Codes
// with a reserved meaning and values a process cannot exit with become 1.
func failureCode(code int) int {
	switch {
	case code == ExitPrecondition, code == ExitAborted:
		return ExitFailed
	case code < 1, code > 255:
		return ExitFailed
	default:
		return code
	}
}
