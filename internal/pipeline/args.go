package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/CentreForDigitalHumanities/tscan/internal/config"
)

// Process exit codes of a run.
const (
	ExitOK           = 0
	ExitFailed       = 1
	ExitPrecondition = 2
	ExitAborted      = 5
)

// Args are the positional arguments handed over by the dispatcher.
type Args struct {
	ConfigFile string
	StatusFile string
	InputDir   string
	OutputDir  string
	TscanDir   string
	TscanData  string
	TscanSrc   string
	AlpinoHome string
}

// ArgNames lists the positional arguments in order, for usage messages.
var ArgNames = []string{
	"configFile", "statusFile", "inputDir", "outputDir",
	"serviceRoot", "dataRoot", "srcRoot", "auxServiceHome",
}

// ParseArgs reads the positional argument list.
func ParseArgs(argv []string) (Args, error) {
	if len(argv) != len(ArgNames) {
		return Args{}, fmt.Errorf("expected %d arguments, got %d", len(ArgNames), len(argv))
	}
	return Args{
		ConfigFile: argv[0],
		StatusFile: argv[1],
		InputDir:   argv[2],
		OutputDir:  argv[3],
		TscanDir:   argv[4],
		TscanData:  argv[5],
		TscanSrc:   argv[6],
		AlpinoHome: argv[7],
	}, nil
}

// Argv renders the arguments in positional order.
func (a Args) Argv() []string {
	return []string{
		a.ConfigFile, a.StatusFile, a.InputDir, a.OutputDir,
		a.TscanDir, a.TscanData, a.TscanSrc, a.AlpinoHome,
	}
}

// ProjectDir is the directory holding the status file and markers.
func (a Args) ProjectDir() string {
	return filepath.Dir(a.StatusFile)
}

// Paths returns the service locations for config resolution.
func (a Args) Paths() config.Paths {
	return config.Paths{
		InputDir:   a.InputDir,
		OutputDir:  a.OutputDir,
		TscanDir:   a.TscanDir,
		TscanData:  a.TscanData,
		TscanSrc:   a.TscanSrc,
		AlpinoHome: a.AlpinoHome,
	}
}
