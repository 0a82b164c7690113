package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/datallboy/sheetflow/internal/app"
	"github.com/datallboy/sheetflow/internal/infra/logger"
	"github.com/labstack/echo/v5"
)

const defaultLogLines = 100

type SystemController struct {
	App *app.Context
}

func (ctrl *SystemController) Health(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Time: time.Now().Format(time.RFC3339)})
}

// Logs returns the most recent log panel entries, oldest first.
func (ctrl *SystemController) Logs(c *echo.Context) error {
	n, err := strconv.Atoi(c.QueryParam("n"))
	if err != nil || n <= 0 {
		n = defaultLogLines
	}

	entries := ctrl.App.Logger.Recent(n)
	if entries == nil {
		entries = []logger.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (ctrl *SystemController) ContainerStatus(c *echo.Context) error {
	resp := ContainerResponse{Name: ctrl.App.Config.Container.Name}

	status, err := ctrl.App.Container.Status(c.Request().Context())
	resp.Status = status
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

func (ctrl *SystemController) ContainerStart(c *echo.Context) error {
	ctrl.App.Logger.Info("Starting n8n container...")
	if err := ctrl.App.Container.Start(scriptContext(c)); err != nil {
		ctrl.App.Logger.Error("Failed to start container: %v", err)
		return respondError(c, err)
	}
	ctrl.App.Logger.Info("Container started successfully")
	return ctrl.ContainerStatus(c)
}

func (ctrl *SystemController) ContainerStop(c *echo.Context) error {
	ctrl.App.Logger.Info("Stopping n8n container...")
	if err := ctrl.App.Container.Stop(scriptContext(c)); err != nil {
		ctrl.App.Logger.Error("Failed to stop container: %v", err)
		return respondError(c, err)
	}
	ctrl.App.Logger.Info("Container stopped successfully")
	return ctrl.ContainerStatus(c)
}

// scriptContext drops the request's cancellation so a client disconnect
// cannot kill a start or stop script halfway.
func scriptContext(c *echo.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}

func (ctrl *SystemController) Export(c *echo.Context) error {
	ctrl.App.Logger.Info("Exporting n8n data...")
	res, err := ctrl.App.Backup.Export(c.Request().Context(), ctrl.progress("Export"))
	if err != nil {
		ctrl.App.Logger.Error("Export failed: %v", err)
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (ctrl *SystemController) Import(c *echo.Context) error {
	var req ImportRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "path is required"})
	}

	ctrl.App.Logger.Info("Importing n8n data from %s...", req.Path)
	res, err := ctrl.App.Backup.Import(c.Request().Context(), req.Path, ctrl.progress("Import"))
	if err != nil {
		ctrl.App.Logger.Error("Import failed: %v", err)
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (ctrl *SystemController) progress(op string) func(int) {
	return func(pct int) {
		ctrl.App.Logger.Debug("%s progress: %d%%", op, pct)
	}
}
