// Package results loads a project's corpus totals into DuckDB so they can
// be queried without re-reading the CSV files.
package results

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/marcboeker/go-duckdb"

	"github.com/CentreForDigitalHumanities/tscan/internal/logging"
	"github.com/CentreForDigitalHumanities/tscan/internal/models"
)

// ErrNoTable is returned when a category has no imported totals.
var ErrNoTable = errors.New("no totals imported")

// Options tune the embedded database.
type Options struct {
	Threads     int
	MemoryLimit string
	ReadOnly    bool
}

// Store is a DuckDB file holding one table per statistics category.
type Store struct {
	db   *sql.DB
	path string
	log  *log.Logger

	// limits concurrent queries from the status API
	querySem chan struct{}
}

// Table is a page of rows from a totals table.
type Table struct {
	Category models.Category `json:"category" msgpack:"category"`
	Columns  []string        `json:"columns" msgpack:"columns"`
	Rows     [][]string      `json:"rows" msgpack:"rows"`
	Total    int             `json:"total" msgpack:"total"`
}

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	logger := logging.New("results")

	dsn := path
	if opts.ReadOnly {
		dsn += "?access_mode=READ_ONLY"
	}
	connector, err := duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
		var pragmas []string
		if opts.MemoryLimit != "" {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit))
		}
		if opts.Threads > 0 {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
		}
		pragmas = append(pragmas, "PRAGMA enable_progress_bar=false")
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				logger.Warnf("pragma %q: %v", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &Store{
		db:       db,
		path:     path,
		log:      logger,
		querySem: make(chan struct{}, 3),
	}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// ImportTotals replaces the totals tables with the total.<category>.csv
// files in outputDir and returns the row count per category. Categories
// without a non-empty total are dropped.
func (s *Store) ImportTotals(ctx context.Context, outputDir string) (map[models.Category]int, error) {
	counts := make(map[models.Category]int)
	for _, c := range models.Categories {
		table := c.TableName()
		csvPath := filepath.Join(outputDir, c.TotalName())

		info, err := os.Stat(csvPath)
		if err != nil || info.Size() == 0 {
			if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return counts, fmt.Errorf("dropping %s: %w", table, err)
			}
			continue
		}

		query := fmt.Sprintf(
			"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(%s, header=true, all_varchar=true)",
			table, quote(csvPath))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return counts, fmt.Errorf("importing %s: %w", c.TotalName(), err)
		}

		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return counts, fmt.Errorf("counting %s: %w", table, err)
		}
		counts[c] = n
	}
	s.log.Infof("imported totals into %s: %v", filepath.Base(s.path), counts)
	return counts, nil
}

// Counts returns the row count of every imported category.
func (s *Store) Counts(ctx context.Context) (map[models.Category]int, error) {
	counts := make(map[models.Category]int)
	for _, c := range models.Categories {
		n, err := s.count(ctx, c)
		if errors.Is(err, ErrNoTable) {
			continue
		}
		if err != nil {
			return nil, err
		}
		counts[c] = n
	}
	return counts, nil
}

// Rows returns a page of a category's totals in file order.
func (s *Store) Rows(ctx context.Context, c models.Category, limit, offset int) (*Table, error) {
	select {
	case s.querySem <- struct{}{}:
		defer func() { <-s.querySem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	total, err := s.count(ctx, c)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", c.TableName(), limit, offset))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.TableName(), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := &Table{Category: c, Columns: cols, Total: total, Rows: [][]string{}}
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = v.String
		}
		out.Rows = append(out.Rows, row)
	}
	return out, rows.Err()
}

func (s *Store) count(ctx context.Context, c models.Category) (int, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?", c.TableName()).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, fmt.Errorf("%w for %s", ErrNoTable, c)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.TableName()).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
