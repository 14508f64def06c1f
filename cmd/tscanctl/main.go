package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/CentreForDigitalHumanities/tscan/internal/api"
	"github.com/CentreForDigitalHumanities/tscan/internal/config"
	"github.com/CentreForDigitalHumanities/tscan/internal/engine"
	"github.com/CentreForDigitalHumanities/tscan/internal/logging"
	"github.com/CentreForDigitalHumanities/tscan/internal/lookup"
	"github.com/CentreForDigitalHumanities/tscan/internal/pipeline"
	"github.com/CentreForDigitalHumanities/tscan/internal/recovery"
	"github.com/CentreForDigitalHumanities/tscan/internal/results"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const configFileName = "tscan.config.xml"

// cfg is loaded once by the root command before any subcommand runs.
var cfg *config.AppConfig

func main() {
	rootCmd := &cobra.Command{
		Use:           "tscanctl",
		Short:         "Run, recover and monitor T-Scan projects",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			if path == "" {
				path = defaultConfigPath()
			}
			cfg, err = config.LoadConfig(path)
			if err != nil {
				return err
			}
			logging.Configure(cfg.Advanced.LogLevel, os.Stderr)
			return nil
		},
	}
	rootCmd.PersistentFlags().String("config", "", "Path to "+configFileName+" (default: next to the executable, or $TSCAN_CONFIG)")

	wrapperCmd := &cobra.Command{
		Use:   "wrapper " + argsUsage(),
		Short: "Analyse every document of one project",
		Long: `Runs the analysis engine over the project's input documents one at a
time, then aggregates the statistics. Exits 0 on success, 2 when the
project cannot be started, 5 when terminated and any other non-zero code
when a document failed.`,
		Args: cobra.ExactArgs(len(pipeline.ArgNames)),
		RunE: runWrapper,
	}

	restartCmd := &cobra.Command{
		Use:   "restart-projects",
		Short: "Re-queue projects that were interrupted or failed",
		Args:  cobra.NoArgs,
		RunE:  runRestart,
	}
	restartCmd.Flags().Bool("dry-run", false, "Log restart commands without dispatching them")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only project status API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().Bool("no-restart", false, "Skip the restart scan even if the config enables it")

	mergeCmd := &cobra.Command{
		Use:   "merge-parses [dir]",
		Short: "Fuse out*.alpino_lookup.data files into one lookup and treebank",
		Args:  cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: runMergeParses,
	}
	mergeCmd.Flags().String("target", lookup.TreebankName, "Name of the combined treebank")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tscanctl %s (built %s)\n", Version, BuildTime)
		},
	}

	rootCmd.AddCommand(wrapperCmd, restartCmd, serveCmd, mergeCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tscanctl: %v\n", err)
		os.Exit(1)
	}
}

func runWrapper(cmd *cobra.Command, argv []string) error {
	args, err := pipeline.ParseArgs(argv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var importer pipeline.Importer
	if cfg.Results.Enabled {
		importer = &results.Importer{
			FileName: cfg.Results.FileName,
			Options: results.Options{
				Threads:     cfg.Results.DuckDBThreads,
				MemoryLimit: cfg.Results.DuckDBMemoryLimit,
			},
		}
	}

	eng := engine.NewExec(engineBinary(cfg.Engine.Binary, args.TscanDir), args.AlpinoHome)
	code := pipeline.NewDriver(eng, cfg.Services, importer).Run(ctx, args)
	stop()
	os.Exit(code)
	return nil
}

func runRestart(cmd *cobra.Command, args []string) error {
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}

	layout, err := storage.NewLayout(cfg.GetProjectsDir())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return restart(ctx, newScanner(layout, dryRun))
}

// restart runs one scan. Dispatch failures are logged but do not fail the
// command: the exit status only reflects whether the scan itself ran.
func restart(ctx context.Context, scanner *recovery.Scanner) error {
	report, err := scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("restart scan: %w", err)
	}
	logger := logging.New("restart-projects")
	for _, f := range report.DispatchFailures {
		logger.Warnf("%s/%s was scheduled but not dispatched: %v", f.Owner, f.Project, f.Err)
	}
	fmt.Printf("%d projects re-queued\n", report.Queued)
	return nil
}

func runMergeParses(cmd *cobra.Command, args []string) error {
	target, err := cmd.Flags().GetString("target")
	if err != nil {
		return err
	}
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	merged, err := lookup.Fuse(dir, target)
	if err != nil {
		return err
	}
	fmt.Printf("%d sentences merged into %s\n", len(merged.Lookup), filepath.Join(dir, target))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	noRestart, err := cmd.Flags().GetBool("no-restart")
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	layout, err := storage.NewLayout(cfg.GetProjectsDir())
	if err != nil {
		return err
	}
	logger := logging.New("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Dispatch is synchronous, so the scan runs beside the server.
	if cfg.Advanced.RestartOnServe && !noRestart {
		go func() {
			if _, err := newScanner(layout, false).Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("restart scan: %v", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.Server.IdleTimeout) * time.Second

	api.SetupMiddleware(e, cfg)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Config:  cfg,
		Layout:  layout,
		Version: Version,
	}))

	go func() {
		logger.Infof("listening on %s, projects root %s", cfg.GetServerAddr(), layout.Root())
		if err := e.Start(cfg.GetServerAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newScanner(layout *storage.Layout, dryRun bool) *recovery.Scanner {
	var dispatcher recovery.Dispatcher = recovery.NewExecDispatcher()
	if dryRun {
		dispatcher = &recovery.DryRunDispatcher{Log: logging.New("restart-projects")}
	}
	return recovery.NewScanner(cfg, layout, dispatcher)
}

// defaultConfigPath prefers $TSCAN_CONFIG, then the executable's directory.
func defaultConfigPath() string {
	if path := os.Getenv("TSCAN_CONFIG"); path != "" {
		return path
	}
	exePath, err := os.Executable()
	if err != nil {
		return configFileName
	}
	return filepath.Join(filepath.Dir(exePath), configFileName)
}

// engineBinary resolves a bare binary name against the service directory,
// falling back to $PATH lookup.
func engineBinary(binary, serviceDir string) string {
	if filepath.IsAbs(binary) || serviceDir == "" || filepath.Base(binary) != binary {
		return binary
	}
	candidate := filepath.Join(serviceDir, binary)
	if storage.Exists(candidate) {
		return candidate
	}
	return binary
}

func argsUsage() string {
	return "<" + strings.Join(pipeline.ArgNames, "> <") + ">"
}
