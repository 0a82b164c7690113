package domain

import "errors"

// ErrInvalidURL indicates the input is not a spreadsheet share link
var ErrInvalidURL = errors.New("invalid Google Sheets URL or unable to extract file ID")

// ErrAuthRequired indicates the export endpoint answered with a login wall
var ErrAuthRequired = errors.New("authentication required")

var (
	ErrBrowserLaunch = errors.New("failed to open browser")
	ErrHTTPStatus    = errors.New("unexpected HTTP status")
	ErrNetwork       = errors.New("network error")
	ErrTimeout       = errors.New("request timed out")
)

// ErrWatchTimeout is reported when no new download appeared before the watch expired
var ErrWatchTimeout = errors.New("no downloaded file detected before timeout")

var ErrInvalidFileType = errors.New("the file must be an Excel file (.xlsx)")

var (
	ErrWebhookStatus      = errors.New("failed to trigger webhook")
	ErrWebhookUnreachable = errors.New("cannot reach n8n")
)

// ErrBusy rejects a submission while a workflow run is waiting for its callback
var ErrBusy = errors.New("a workflow run is already in progress")

// ErrSuperseded marks a run whose browser watch was replaced by a newer submission
var ErrSuperseded = errors.New("superseded by a newer request")

var (
	ErrContainerRunning = errors.New("n8n container is running")
	ErrPermission       = errors.New("permission denied: files may be locked by the running container")
	ErrNotZip           = errors.New("file is not a valid zip archive")
	ErrNothingToExport  = errors.New("no files found in n8n-data directory")
	ErrScriptFailed     = errors.New("container script failed")
)
