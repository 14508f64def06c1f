// Package pipeline drives one project run: it prepares the engine
// configuration, analyses the documents one after another and collects
// their output, also when the run is terminated early.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/CentreForDigitalHumanities/tscan/internal/aggregate"
	"github.com/CentreForDigitalHumanities/tscan/internal/config"
	"github.com/CentreForDigitalHumanities/tscan/internal/engine"
	"github.com/CentreForDigitalHumanities/tscan/internal/logging"
	"github.com/CentreForDigitalHumanities/tscan/internal/lookup"
	"github.com/CentreForDigitalHumanities/tscan/internal/status"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

// StylesheetName is the XSL view copied next to the output documents.
const StylesheetName = "tscanview.xsl"

// Importer loads a finished run's totals into a queryable store.
type Importer interface {
	Import(ctx context.Context, outputDir string) error
}

// Driver runs projects. A Driver holds no per-run state and may be reused.
type Driver struct {
	engine   engine.Engine
	services config.ServicesConfig
	importer Importer
}

// NewDriver creates a Driver. importer may be nil.
func NewDriver(eng engine.Engine, services config.ServicesConfig, importer Importer) *Driver {
	return &Driver{engine: eng, services: services, importer: importer}
}

// document is one analysed input and the engine's verdict.
type document struct {
	input string
	code  int
}

type run struct {
	id     string
	args   Args
	rc     *config.RunConfig
	log    *log.Logger
	status *status.Reporter
	agg    *aggregate.Aggregator
}

// Run executes a project and returns the process exit code: 0 on success,
// 2 when the project cannot be started, 5 when ctx was cancelled, and any
// other non-zero value when at least one document failed.
func (d *Driver) Run(ctx context.Context, args Args) int {
	id := uuid.NewString()
	logger := logging.New("pipeline " + logging.ShortID(id))
	r := &run{
		id:     id,
		args:   args,
		log:    logger,
		status: status.NewReporter(args.StatusFile, logger),
		agg:    aggregate.New(logger),
	}

	r.cleanInput()
	r.status.Report("Starting...", 0)

	rc, err := r.prepare()
	if err != nil {
		var pe *PreconditionError
		if errors.As(err, &pe) {
			r.log.Errorf("%v", pe)
			r.status.Report(pe.Status(), 100)
			return ExitPrecondition
		}
		r.log.Errorf("configuration failed: %v", err)
		r.status.Report("Failed, unable to configure the analysis", 100)
		return ExitFailed
	}
	rc.Services = d.services
	r.rc = rc

	if err := r.configure(); err != nil {
		r.log.Errorf("configuration failed: %v", err)
		r.status.Report("Failed, unable to configure the analysis", 100)
		return ExitFailed
	}

	processed, ref, aborted := d.process(ctx, r)

	// Postprocessing runs to completion even after cancellation.
	post := context.WithoutCancel(ctx)

	if aborted {
		r.log.Warnf("terminated after %d of %d documents", len(processed), len(rc.TextInputs))
		r.status.Report("Postprocessing after forceful abortion", 90)
		if err := status.MarkAborted(args.ProjectDir()); err != nil {
			r.log.Warnf("writing abort marker: %v", err)
		}
		d.finalize(post, r, processed)
		return ExitAborted
	}

	r.status.Report("Postprocessing", 90)
	if missing := d.finalize(post, r, processed); missing > 0 && ref == 0 {
		ref = ExitFailed
	}
	if ref != 0 {
		r.status.Report("Failed", 90)
	}

	if rc.AlpinoOutput {
		r.status.Report("Merging Alpino output", 95)
		r.mergeParses()
	}

	r.status.Report("Done", 100)
	return ref
}

// cleanInput removes engine output left in the input directory by an
// earlier attempt.
func (r *run) cleanInput() {
	for _, pattern := range []string{"*.tscan.xml", "*.csv"} {
		n, err := storage.RemoveGlob(filepath.Join(r.args.InputDir, pattern))
		if err != nil {
			r.log.Warnf("cleanup %s: %v", pattern, err)
			continue
		}
		if n > 0 {
			r.log.Infof("removed %d stale %s files", n, pattern)
		}
	}
}

// prepare loads and checks the project configuration. Nothing is written.
func (r *run) prepare() (*config.RunConfig, error) {
	params, err := config.LoadProject(r.args.ConfigFile)
	if err != nil {
		return nil, &PreconditionError{Code: CodeInvalidProject, Message: "unable to read project configuration", Err: err}
	}

	var missing *config.MissingParameterError
	if err := params.Validate(); errors.As(err, &missing) {
		return nil, &PreconditionError{Code: CodeMissingParameter, Message: "missing parameter: " + missing.Name, Err: err}
	}

	for _, name := range params.InputsFor(config.TemplateText) {
		if strings.Contains(name, `"`) {
			return nil, &PreconditionError{Code: CodeIllegalFilename, Message: "filename has a &quot;, illegal!"}
		}
	}

	rc := params.Resolve(r.args.Paths(), config.ServicesConfig{})
	if len(rc.TextInputs) == 0 {
		return nil, &PreconditionError{Code: CodeNoInput, Message: "no input documents"}
	}
	return rc, nil
}

// configure seeds the parse lookup, writes tscan.cfg and clears lookup
// output of earlier runs.
func (r *run) configure() error {
	out := r.args.OutputDir
	if err := os.MkdirAll(out, 0755); err != nil {
		return err
	}

	cache, err := lookup.Seed(r.args.InputDir, r.rc.AlpinoInputs)
	if err != nil {
		r.log.Warnf("some parse files were skipped: %v", err)
	}
	lookupPath := filepath.Join(out, lookup.FileName)
	if err := cache.Save(lookupPath); err != nil {
		return fmt.Errorf("saving parse lookup: %w", err)
	}
	r.log.Infof("parse lookup seeded with %d sentences", cache.Len())

	f, err := os.Create(filepath.Join(out, ConfigName))
	if err != nil {
		return err
	}
	if err := WriteConfig(f, r.rc, lookupPath); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", ConfigName, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	xsl := filepath.Join(r.args.TscanSrc, "view", StylesheetName)
	if err := storage.CopyFile(xsl, filepath.Join(out, StylesheetName)); err != nil {
		r.log.Warnf("stylesheet not copied: %v", err)
	}

	if _, err := storage.RemoveGlob(filepath.Join(out, "..", "out*.alpino_lookup.data")); err != nil {
		r.log.Warnf("removing previous lookup output: %v", err)
	}
	return nil
}

// process analyses the documents in order. It stops at the first
// cancellation it observes and reports which documents finished.
func (d *Driver) process(ctx context.Context, r *run) (processed []document, ref int, aborted bool) {
	inputs := r.rc.TextInputs
	n := len(inputs)
	cfgPath := filepath.Join(r.args.OutputDir, ConfigName)

	r.status.Report(fmt.Sprintf("Processing %d files, this may take a while...", n), 10)
	for i, input := range inputs {
		if ctx.Err() != nil {
			return processed, ref, true
		}
		progress := 10 + i*80/n

		if i > 0 {
			r.promoteLookup(progress)
		}
		r.status.Report("Started processing ... "+input, progress)

		code, err := d.engine.Run(ctx, cfgPath, input)
		if err != nil {
			r.log.Errorf("engine did not run on %s: %v", input, err)
			code = ExitFailed
		}
		if ctx.Err() != nil && code != 0 {
			return processed, ref, true
		}

		processed = append(processed, document{input: input, code: code})
		if code == 0 {
			r.status.Report("Finished processing "+input, progress)
		} else {
			r.status.Report(fmt.Sprintf("PROBLEM PROCESSING %s ERROR CODE %d consult error log", input, code), progress)
			ref = failureCode(code)
		}

		if ctx.Err() != nil {
			return processed, ref, true
		}
	}
	return processed, ref, false
}

// promoteLookup makes the parses of the previous document available to the
// next one.
func (r *run) promoteLookup(progress int) {
	src := filepath.Join(r.args.OutputDir, "..", storage.LookupOutput)
	dst := filepath.Join(r.args.OutputDir, lookup.FileName)
	if err := storage.MoveFile(src, dst); err != nil {
		if !os.IsNotExist(err) {
			r.log.Warnf("promoting parse lookup: %v", err)
		}
		r.status.Report("No Alpino parses, empty document?", progress)
		return
	}
	r.status.Report("Updated Alpino lookup cache", progress)
}

// finalize collects the output of the processed documents and builds the
// corpus totals. Both the normal and the aborted path end here. It returns
// the number of documents whose output document is missing.
func (d *Driver) finalize(ctx context.Context, r *run, processed []document) int {
	out := r.args.OutputDir
	missing := 0

	for _, doc := range processed {
		src := doc.input + ".tscan.xml"
		dst := filepath.Join(out, OutputName(doc.input))
		if err := storage.MoveFile(src, dst); err != nil {
			r.log.Errorf("expected output %s not created, something went wrong earlier? (%v)", src, err)
			if doc.code == 0 {
				missing++
			}
		}
		if err := r.moveFragments(doc.input); err != nil {
			r.log.Warnf("moving statistics of %s: %v", doc.input, err)
		}
	}

	if _, err := r.agg.MergeAll(out); err != nil {
		r.log.Warnf("aggregation: %v", err)
	}

	if d.importer != nil {
		if err := d.importer.Import(ctx, out); err != nil {
			r.log.Warnf("results import: %v", err)
		}
	}
	return missing
}

// moveFragments moves the statistics files the engine wrote next to an
// input document into the output directory.
func (r *run) moveFragments(input string) error {
	dir := filepath.Dir(input)
	prefix := filepath.Base(input) + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".csv") {
			continue
		}
		if err := storage.MoveFile(filepath.Join(dir, name), filepath.Join(r.args.OutputDir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// mergeParses combines every parse used in this run into alpino.xml.
func (r *run) mergeParses() {
	out := r.args.OutputDir
	src := filepath.Join(out, "..", storage.LookupOutput)
	if err := storage.MoveFile(src, filepath.Join(out, lookup.FileName)); err != nil && !os.IsNotExist(err) {
		r.log.Warnf("promoting parse lookup: %v", err)
	}
	merged, err := lookup.Finalize(out, r.args.InputDir)
	if err != nil {
		r.log.Errorf("merging parses: %v", err)
		return
	}
	r.log.Infof("wrote %s with %d trees", lookup.TreebankName, len(merged.Trees))
}

// OutputName is the name of the analysed document in the output directory.
func OutputName(input string) string {
	base := filepath.Base(input)
	base = strings.ReplaceAll(base, ".txt.tscan", "")
	base = strings.ReplaceAll(base, ".txt", "")
	return base + ".xml"
}
