package recovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/labstack/gommon/log"

	"github.com/CentreForDigitalHumanities/tscan/internal/pipeline"
)

// Command re-queues one project through the job dispatcher, which runs the
// wrapper with the project's positional arguments.
type Command struct {
	Owner   string
	Project string

	Dispatcher    string
	ServicePath   string
	ServiceModule string
	ProjectPath   string
	Wrapper       []string
	Args          pipeline.Args
}

// Argv returns the full command line.
func (c Command) Argv() []string {
	argv := []string{c.Dispatcher, c.ServicePath, c.ServiceModule, c.ProjectPath}
	argv = append(argv, c.Wrapper...)
	return append(argv, c.Args.Argv()...)
}

// String renders the command as a shell line for logs.
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Dispatcher hands a restart command to the job system.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) error
}

// ExecDispatcher runs commands as subprocesses and waits for them.
type ExecDispatcher struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecDispatcher returns a dispatcher sharing the caller's stdio.
func NewExecDispatcher() *ExecDispatcher {
	return &ExecDispatcher{Stdout: os.Stdout, Stderr: os.Stderr}
}

func (d *ExecDispatcher) Dispatch(ctx context.Context, cmd Command) error {
	argv := cmd.Argv()
	if argv[0] == "" {
		return fmt.Errorf("no dispatcher configured")
	}
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Stdout = d.Stdout
	c.Stderr = d.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

// DryRunDispatcher logs commands without running them.
type DryRunDispatcher struct {
	Log *log.Logger
}

func (d *DryRunDispatcher) Dispatch(_ context.Context, cmd Command) error {
	d.Log.Infof("dry run: %s", cmd)
	return nil
}
