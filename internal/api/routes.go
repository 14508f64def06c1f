// routes.go - Route registration helpers
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/CentreForDigitalHumanities/tscan/internal/config"
	"github.com/CentreForDigitalHumanities/tscan/internal/logging"
	"github.com/CentreForDigitalHumanities/tscan/internal/results"
	"github.com/CentreForDigitalHumanities/tscan/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Config  *config.AppConfig
	Layout  *storage.Layout
	Version string
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Projects ProjectHandler
	Results  ResultsHandler
	Progress *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	cfg := deps.Config
	projects := NewProjectHandler(deps.Layout, time.Duration(cfg.Advanced.ProgressPollMillis)*time.Millisecond)
	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Layout),
		Projects: projects,
		Results: NewResultsHandler(projects, cfg.Results.FileName, results.Options{
			Threads:     cfg.Results.DuckDBThreads,
			MemoryLimit: cfg.Results.DuckDBMemoryLimit,
		}),
		Progress: NewWebSocketHandler(projects),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/health", handlers.Health.HandleHealth)

	apiGroup := e.Group("/api")
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/ws/progress", handlers.Progress.HandleWebSocket)

	apiGroup.GET("/owners", handlers.Projects.HandleListOwners)
	apiGroup.GET("/owners/:owner/projects", handlers.Projects.HandleListProjects)

	projectGroup := apiGroup.Group("/projects/:owner/:project")
	projectGroup.GET("/status", handlers.Projects.HandleProjectStatus)
	projectGroup.GET("/status/msgpack", handlers.Projects.HandleProjectStatusMsgpack)
	projectGroup.GET("/history", handlers.Projects.HandleProjectHistory)
	projectGroup.GET("/progress", handlers.Projects.HandleProgressStream)

	projectGroup.GET("/totals", handlers.Results.HandleTotalsSummary)
	projectGroup.GET("/totals/:category", handlers.Results.HandleTotals)
	projectGroup.GET("/totals/:category/msgpack", handlers.Results.HandleTotalsMsgpack)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg *config.AppConfig) {
	e.HTTPErrorHandler = ErrorHandler
	e.Logger.SetLevel(logging.Level())

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") ||
				strings.HasSuffix(path, "/progress") ||
				strings.HasSuffix(path, "/health")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if cfg.Server.ReadTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return strings.HasSuffix(path, "/progress") ||
					c.Request().Header.Get("Accept") == "text/event-stream"
			},
			ErrorMessage: "Request timeout - query took too long",
		}))
	}

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
}
