// Package engine runs the T-Scan analysis binary on one document.
package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// Engine analyses one input document with a prepared tscan.cfg. The
// returned code is the engine's exit status; err is set only when the
// engine could not be run at all.
type Engine interface {
	Run(ctx context.Context, configPath, inputFile string) (int, error)
}

// DefaultWaitDelay bounds how long a terminated engine may take to exit
// before it is killed.
const DefaultWaitDelay = 30 * time.Second

// Exec runs the tscan binary as a subprocess. Cancelling the context sends
// SIGTERM so the engine can flush its output.
type Exec struct {
	Binary     string
	AlpinoHome string
	WaitDelay  time.Duration
	Stdout     io.Writer
	Stderr     io.Writer
}

// NewExec returns an Exec for binary with stdio inherited from the wrapper.
func NewExec(binary, alpinoHome string) *Exec {
	return &Exec{
		Binary:     binary,
		AlpinoHome: alpinoHome,
		WaitDelay:  DefaultWaitDelay,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
}

// Env returns the variables the parser needs in addition to the inherited
// environment.
func (e *Exec) Env() []string {
	tcl := filepath.Join(e.AlpinoHome, "create_bin", "tcl8.5")
	return []string{
		"ALPINO_HOME=" + e.AlpinoHome,
		"TCL_LIBRARY=" + tcl,
		"TCLLIBPATH=" + tcl,
	}
}

// Args returns the command line for one document.
func (e *Exec) Args(configPath, inputFile string) []string {
	return []string{"--config=" + configPath, inputFile}
}

func (e *Exec) Run(ctx context.Context, configPath, inputFile string) (int, error) {
	cmd := exec.CommandContext(ctx, e.Binary, e.Args(configPath, inputFile)...)
	cmd.Env = append(os.Environ(), e.Env()...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = e.WaitDelay

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 1, err
}
