package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/labstack/echo/v5"
)

type RunService interface {
	Submit(req domain.SubmitRequest) (*domain.Run, error)
	Get(ctx context.Context, id string) (*domain.Run, error)
	List(ctx context.Context, limit int) ([]*domain.Run, error)
}

type RunsController struct {
	Runs RunService
}

// Create starts a run from {"url"} or {"path","keep_source"}.
func (ctrl *RunsController) Create(c *echo.Context) error {
	var req domain.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	run, err := ctrl.Runs.Submit(req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, run)
}

func (ctrl *RunsController) List(c *echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	runs, err := ctrl.Runs.List(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, err)
	}
	if runs == nil {
		runs = []*domain.Run{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (ctrl *RunsController) Get(c *echo.Context) error {
	run, err := ctrl.Runs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found"})
	}
	return c.JSON(http.StatusOK, run)
}
