// Package recovery finds projects that were interrupted or failed while the
// service was down and hands them back to the dispatcher.
package recovery

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/CentreForDigitalHumanities/tscan/internal/config"
	"github.com/CentreForDigitalHumanities/tscan/internal/logging"
	"github.com/CentreForDigitalHumanities/tscan/internal/models"
	"github.com/CentreForDigitalHumanities/tscan/internal/pipeline"
	"github.com/CentreForDigitalHumanities/tscan/internal/status"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

// ScheduledMessage is the status a re-queued project shows until the
// wrapper starts.
const ScheduledMessage = "Scheduled for restart"

// DispatchFailure is a restart command the dispatcher rejected.
type DispatchFailure struct {
	Owner   string
	Project string
	Err     error
}

// Report summarises one scan.
type Report struct {
	RunID string
	// Queued counts projects scheduled for restart, whether or not their
	// dispatch succeeded.
	Queued           int
	Commands         []Command
	SkippedOwners    []string
	DispatchFailures []DispatchFailure
}

// Scanner walks the projects root once per Scan.
type Scanner struct {
	layout     *storage.Layout
	cfg        *config.AppConfig
	dispatcher Dispatcher
	log        *log.Logger

	// PID is written into each restarted project's .pid marker.
	PID int
}

// NewScanner creates a Scanner.
func NewScanner(cfg *config.AppConfig, layout *storage.Layout, dispatcher Dispatcher) *Scanner {
	return &Scanner{
		layout:     layout,
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        logging.New("restart-projects"),
		PID:        os.Getpid(),
	}
}

// Scan schedules every interrupted or failed project for restart, then
// dispatches the restarts in scan order. All projects are marked before the
// first dispatch so their owners see the new status straight away.
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}

	owners, err := s.layout.Owners()
	if err != nil {
		return report, fmt.Errorf("listing owners: %w", err)
	}

	for _, owner := range owners {
		cmds, err := s.scanOwner(owner)
		if err != nil {
			s.log.Warnf("skipping %s: %v", owner, err)
			report.SkippedOwners = append(report.SkippedOwners, owner)
			continue
		}
		report.Commands = append(report.Commands, cmds...)
	}
	report.Queued = len(report.Commands)

	for _, cmd := range report.Commands {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.dispatcher.Dispatch(ctx, cmd); err != nil {
			s.log.Errorf("failed to restart project %q for user %q: %v", cmd.Project, cmd.Owner, err)
			report.DispatchFailures = append(report.DispatchFailures, DispatchFailure{
				Owner:   cmd.Owner,
				Project: cmd.Project,
				Err:     err,
			})
		}
	}

	s.log.Infof("finished restarting %d projects (%d dispatch failures)", report.Queued, len(report.DispatchFailures))
	return report, nil
}

func (s *Scanner) scanOwner(owner string) ([]Command, error) {
	ownerDir := s.layout.OwnerDir(owner)
	idx, err := status.ReadIndex(ownerDir)
	if err != nil {
		return nil, err
	}

	var cmds []Command
	for i := range idx.Entries {
		entry := &idx.Entries[i]
		exitCode := 0
		if entry.Status == models.StatusDone {
			exitCode = status.ReadExitCode(s.layout.ProjectDir(owner, entry.Name))
		}
		if !models.NeedsRestart(entry.Status, exitCode) {
			continue
		}

		s.log.Infof("schedule restart of project %q for %q", entry.Name, owner)
		entry.Status = models.StatusRunning
		cmds = append(cmds, s.schedule(owner, entry.Name))
	}

	if len(cmds) > 0 {
		if err := status.WriteIndex(ownerDir, idx); err != nil {
			return nil, fmt.Errorf("saving index: %w", err)
		}
	}
	return cmds, nil
}

// schedule resets a project's run artifacts and builds its restart command.
func (s *Scanner) schedule(owner, project string) Command {
	paths := s.layout.Paths(owner, project, s.cfg.Dispatcher.ProjectFile)

	removed, err := storage.ResetTransient(paths.Dir)
	if err != nil {
		s.log.Warnf("[%s/%s] cleanup: %v", owner, project, err)
	}
	s.log.Debugf("[%s/%s] removed %v", owner, project, removed)

	if err := status.WritePID(paths.Dir, s.PID); err != nil {
		s.log.Warnf("[%s/%s] pid marker: %v", owner, project, err)
	}
	if err := status.Write(paths.Status, ScheduledMessage, 0); err != nil {
		s.log.Warnf("[%s/%s] status: %v", owner, project, err)
	}

	eng := s.cfg.Engine
	return Command{
		Owner:         owner,
		Project:       project,
		Dispatcher:    s.cfg.Dispatcher.Command,
		ServicePath:   s.cfg.Dispatcher.ServicePath,
		ServiceModule: s.cfg.Dispatcher.ServiceModule,
		ProjectPath:   paths.Dir,
		Wrapper:       s.cfg.WrapperArgv(),
		Args: pipeline.Args{
			ConfigFile: paths.ProjectFile,
			StatusFile: paths.Status,
			InputDir:   paths.Input,
			OutputDir:  paths.Output,
			TscanDir:   eng.TscanDir,
			TscanData:  eng.TscanData,
			TscanSrc:   eng.TscanSrc,
			AlpinoHome: eng.AlpinoHome,
		},
	}
}
