// handlers_results.go - Corpus totals served from the results database
package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/CentreForDigitalHumanities/tscan/internal/models"
	"github.com/CentreForDigitalHumanities/tscan/internal/results"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

const (
	defaultPageSize = 100
	maxPageSize     = 10000
)

// ResultsHandlerImpl implements the ResultsHandler interface
type ResultsHandlerImpl struct {
	projects *ProjectHandlerImpl
	fileName string
	options  results.Options
}

// NewResultsHandler creates a handler that opens each project's results
// database read-only per request.
func NewResultsHandler(projects *ProjectHandlerImpl, fileName string, opts results.Options) *ResultsHandlerImpl {
	if fileName == "" {
		fileName = results.DefaultFileName
	}
	opts.ReadOnly = true
	return &ResultsHandlerImpl{
		projects: projects,
		fileName: fileName,
		options:  opts,
	}
}

// HandleTotals returns a page of a category's total table
func (h *ResultsHandlerImpl) HandleTotals(c echo.Context) error {
	table, err := h.totals(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, table)
}

// HandleTotalsMsgpack returns a page of a category's total table in
// MessagePack format
func (h *ResultsHandlerImpl) HandleTotalsMsgpack(c echo.Context) error {
	table, err := h.totals(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(table)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleTotalsSummary returns the row count of every imported category
func (h *ResultsHandlerImpl) HandleTotalsSummary(c echo.Context) error {
	store, err := h.open(c)
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.Counts(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to count totals", err)
	}

	summary := make(map[string]int, len(counts))
	for category, n := range counts {
		summary[string(category)] = n
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"categories": summary,
	})
}

func (h *ResultsHandlerImpl) totals(c echo.Context) (*results.Table, error) {
	category, ok := models.ParseCategory(c.Param("category"))
	if !ok {
		return nil, NewValidationError("category")
	}

	limit := defaultPageSize
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, NewValidationError("limit")
		}
		limit = min(n, maxPageSize)
	}
	offset := 0
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, NewValidationError("offset")
		}
		offset = n
	}

	store, err := h.open(c)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	table, err := store.Rows(c.Request().Context(), category, limit, offset)
	if err != nil {
		if errors.Is(err, results.ErrNoTable) {
			return nil, NewNotFoundError("totals", string(category))
		}
		return nil, NewInternalError("failed to query totals", err)
	}
	return table, nil
}

func (h *ResultsHandlerImpl) open(c echo.Context) (*results.Store, error) {
	p, err := h.projects.lookup(c.Param("owner"), c.Param("project"))
	if err != nil {
		return nil, err
	}

	path := filepath.Join(h.projects.layout.ProjectDir(p.Owner, p.Name), storage.OutputDir, h.fileName)
	if !storage.Exists(path) {
		return nil, NewNotFoundError("results", p.Owner+"/"+p.Name)
	}

	store, err := results.Open(path, h.options)
	if err != nil {
		return nil, NewServiceUnavailableError("results database unavailable: " + err.Error())
	}
	return store, nil
}
