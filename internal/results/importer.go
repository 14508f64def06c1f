package results

import (
	"context"
	"path/filepath"
)

// DefaultFileName is the database created in a project's output directory.
const DefaultFileName = "results.duckdb"

// Importer writes a run's totals into <outputDir>/<FileName>.
type Importer struct {
	FileName string
	Options  Options
}

// Import opens the project's database, loads the totals and closes it.
func (i *Importer) Import(ctx context.Context, outputDir string) error {
	name := i.FileName
	if name == "" {
		name = DefaultFileName
	}
	store, err := Open(filepath.Join(outputDir, name), i.Options)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = store.ImportTotals(ctx, outputDir)
	return err
}
