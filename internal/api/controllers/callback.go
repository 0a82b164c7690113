package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/datallboy/sheetflow/internal/infra/logger"
	"github.com/labstack/echo/v5"
)

// ResultHandler receives parsed workflow results.
type ResultHandler interface {
	HandleCallback(ctx context.Context, res domain.CallbackResult)
}

type CallbackController struct {
	Handler ResultHandler
	Logger  *logger.Logger
}

// HandleResults accepts whatever the workflow posts. The workflow only
// needs to know the result was received, so the answer is always 200.
func (ctrl *CallbackController) HandleResults(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		ctrl.Logger.Warn("Could not read callback body: %v", err)
	}

	res := domain.ParseCallback(body)
	ctrl.Handler.HandleCallback(c.Request().Context(), res)

	return c.JSON(http.StatusOK, ReceivedResponse{Status: "received"})
}
