package controllers

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/labstack/echo/v5"
)

// statusFor maps domain failures onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrContainerRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPermission):
		return http.StatusLocked
	case errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, domain.ErrInvalidFileType),
		errors.Is(err, domain.ErrNotZip),
		errors.Is(err, domain.ErrNothingToExport):
		return http.StatusBadRequest
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrScriptFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *echo.Context, err error) error {
	return c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
}
