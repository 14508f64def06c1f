// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// ProjectHandler serves project listings and status files
type ProjectHandler interface {
	HandleListOwners(c echo.Context) error
	HandleListProjects(c echo.Context) error
	HandleProjectStatus(c echo.Context) error
	HandleProjectStatusMsgpack(c echo.Context) error
	HandleProjectHistory(c echo.Context) error
	HandleProgressStream(c echo.Context) error
}

// ResultsHandler serves rows from a project's results database
type ResultsHandler interface {
	HandleTotals(c echo.Context) error
	HandleTotalsMsgpack(c echo.Context) error
	HandleTotalsSummary(c echo.Context) error
}
