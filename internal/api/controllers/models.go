package controllers

import "github.com/datallboy/sheetflow/internal/container"

// -- CALLBACK (/callback/results) ---
type ReceivedResponse struct {
	Status string `json:"status"`
}

// -- SYSTEM ---
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

type ContainerResponse struct {
	Name   string           `json:"name"`
	Status container.Status `json:"status"`
	Error  string           `json:"error,omitempty"`
}

type ImportRequest struct {
	Path string `json:"path"`
}

// -- ERRORS ---
type ErrorResponse struct {
	Error string `json:"error"`
}
