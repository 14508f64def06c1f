// handlers_projects.go - Project listing, status and progress handlers
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/CentreForDigitalHumanities/tscan/internal/models"
	"github.com/CentreForDigitalHumanities/tscan/internal/status"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

// ProjectHandlerImpl implements the ProjectHandler interface
type ProjectHandlerImpl struct {
	layout       *storage.Layout
	pollInterval time.Duration
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(layout *storage.Layout, pollInterval time.Duration) *ProjectHandlerImpl {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &ProjectHandlerImpl{
		layout:       layout,
		pollInterval: pollInterval,
	}
}

// HandleListOwners returns the owners that have a project directory
func (h *ProjectHandlerImpl) HandleListOwners(c echo.Context) error {
	owners, err := h.layout.Owners()
	if err != nil {
		return NewInternalError("failed to list owners", err)
	}
	if owners == nil {
		owners = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"owners": owners,
	})
}

// HandleListProjects returns an owner's projects with their derived state
func (h *ProjectHandlerImpl) HandleListProjects(c echo.Context) error {
	owner := c.Param("owner")
	if !validName(owner) {
		return NewValidationError("owner")
	}

	names, err := h.layout.Projects(owner)
	if err != nil {
		if os.IsNotExist(err) {
			return NewNotFoundError("owner", owner)
		}
		return NewInternalError("failed to list projects", err)
	}

	idx, _ := status.ReadIndex(h.layout.OwnerDir(owner))

	type projectView struct {
		models.Project
		State string `json:"state"`
	}
	projects := make([]projectView, 0, len(names))
	for _, name := range names {
		p := h.describe(idx, owner, name)
		projects = append(projects, projectView{Project: p, State: p.State().String()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"owner":    owner,
		"projects": projects,
	})
}

// HandleProjectStatus returns the current status record of a project
func (h *ProjectHandlerImpl) HandleProjectStatus(c echo.Context) error {
	view, err := h.statusView(c, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// HandleProjectStatusMsgpack returns the current status in MessagePack format
func (h *ProjectHandlerImpl) HandleProjectStatusMsgpack(c echo.Context) error {
	view, err := h.statusView(c, false)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(view)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleProjectHistory returns every status record written by the last run
func (h *ProjectHandlerImpl) HandleProjectHistory(c echo.Context) error {
	view, err := h.statusView(c, true)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// HandleProgressStream streams status changes via SSE until the project
// finishes or the client goes away
func (h *ProjectHandlerImpl) HandleProgressStream(c echo.Context) error {
	p, err := h.lookup(c.Param("owner"), c.Param("project"))
	if err != nil {
		return err
	}
	paths := h.layout.Paths(p.Owner, p.Name, "")

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var last *models.StatusRecord
	for {
		rec, err := status.ReadLatest(paths.Status)
		if err == nil && !sameRecord(last, rec) {
			h.sendSSEData(c, rec)
			last = &rec
		}

		if finished(paths.Dir, last) {
			p.ExitCode = status.ReadExitCode(paths.Dir)
			h.sendSSEEvent(c, "complete", map[string]interface{}{
				"project":  p,
				"exitCode": p.ExitCode,
				"aborted":  status.IsAborted(paths.Dir),
			})
			return nil
		}

		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

// lookup validates the path parameters and resolves a project.
func (h *ProjectHandlerImpl) lookup(owner, name string) (models.Project, error) {
	if !validName(owner) {
		return models.Project{}, NewValidationError("owner")
	}
	if !validName(name) {
		return models.Project{}, NewValidationError("project")
	}

	info, err := os.Stat(h.layout.ProjectDir(owner, name))
	if err != nil || !info.IsDir() {
		return models.Project{}, NewNotFoundError("project", owner+"/"+name)
	}

	idx, _ := status.ReadIndex(h.layout.OwnerDir(owner))
	return h.describe(idx, owner, name), nil
}

// describe builds a project from the owner index, falling back to the
// markers in the project directory when the index has no entry for it.
func (h *ProjectHandlerImpl) describe(idx *models.ProjectIndex, owner, name string) models.Project {
	dir := h.layout.ProjectDir(owner, name)
	p := models.Project{
		Owner:    owner,
		Name:     name,
		ExitCode: status.ReadExitCode(dir),
	}

	if idx != nil {
		if entry, ok := idx.Find(name); ok {
			p.Status = entry.Status
			return p
		}
	}

	switch {
	case p.ExitCode != status.ExitNotFinished:
		p.Status = models.StatusDone
	case storage.Exists(filepath.Join(dir, storage.StatusFile)):
		p.Status = models.StatusRunning
	default:
		p.Status = models.StatusStaged
	}
	return p
}

func (h *ProjectHandlerImpl) statusView(c echo.Context, withHistory bool) (*models.ProjectStatus, error) {
	p, err := h.lookup(c.Param("owner"), c.Param("project"))
	if err != nil {
		return nil, err
	}
	dir := h.layout.ProjectDir(p.Owner, p.Name)

	view := &models.ProjectStatus{
		Project: p,
		State:   p.State().String(),
		Aborted: status.IsAborted(dir),
	}

	records, err := status.ReadAll(filepath.Join(dir, storage.StatusFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, NewInternalError("failed to read status", err)
	}
	if len(records) > 0 {
		current := records[len(records)-1]
		view.Current = &current
	}
	if withHistory {
		view.History = records
	}
	return view, nil
}

func (h *ProjectHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *ProjectHandlerImpl) sendSSEEvent(c echo.Context, event string, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, jsonData)
	c.Response().Flush()
}

// finished reports whether a project has a completion marker or its last
// status record reached 100%.
func finished(projectDir string, last *models.StatusRecord) bool {
	if status.ReadExitCode(projectDir) != status.ExitNotFinished {
		return true
	}
	return last != nil && last.Completion >= 100
}

func sameRecord(last *models.StatusRecord, rec models.StatusRecord) bool {
	return last != nil &&
		last.Completion == rec.Completion &&
		last.Message == rec.Message &&
		last.Time.Equal(rec.Time)
}

// validName rejects empty names, hidden entries and anything that could
// escape the projects root.
func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
