package api

import (
	"github.com/datallboy/sheetflow/internal/api/controllers"
	"github.com/datallboy/sheetflow/internal/app"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

// RunHandler is the run coordinator as seen from HTTP.
type RunHandler interface {
	controllers.RunService
	controllers.ResultHandler
}

// RegisterRoutes mounts the workflow callback and, when full is set, the
// local control API.
func RegisterRoutes(e *echo.Echo, app *app.Context, runs RunHandler, full bool) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Debug("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	cbCtrl := &controllers.CallbackController{Handler: runs, Logger: app.Logger}
	sysCtrl := &controllers.SystemController{App: app}

	// Workflow result endpoint (called by n8n)
	e.POST("/callback/results", cbCtrl.HandleResults)
	e.GET("/health", sysCtrl.Health)

	if !full {
		return
	}

	runCtrl := &controllers.RunsController{Runs: runs}

	g := e.Group("/api")
	g.POST("/runs", runCtrl.Create)
	g.GET("/runs", runCtrl.List)
	g.GET("/runs/:id", runCtrl.Get)

	g.GET("/logs", sysCtrl.Logs)

	g.GET("/container", sysCtrl.ContainerStatus)
	g.POST("/container/start", sysCtrl.ContainerStart)
	g.POST("/container/stop", sysCtrl.ContainerStop)

	g.POST("/export", sysCtrl.Export)
	g.POST("/import", sysCtrl.Import)
}
