// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	layout  *storage.Layout
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, layout *storage.Layout) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		layout:  layout,
		started: time.Now(),
	}
}

// HandleHealth returns server health status. The server is degraded when
// the projects root has gone away.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"uptime":  int64(time.Since(h.started).Seconds()),
	}
	if !storage.Exists(h.layout.Root()) {
		body["status"] = "degraded"
		body["error"] = "projects root unavailable"
		return c.JSON(http.StatusServiceUnavailable, body)
	}
	return c.JSON(http.StatusOK, body)
}
