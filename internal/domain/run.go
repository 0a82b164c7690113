package domain

import (
	"context"
	"time"
)

type RunStatus string

const (
	StatusPending          RunStatus = "pending"
	StatusDownloading      RunStatus = "downloading"
	StatusAwaitingDownload RunStatus = "awaiting_download" // browser sign-in
	StatusHandingOff       RunStatus = "handing_off"       // copying to the inbox, webhook in flight
	StatusProcessing       RunStatus = "processing"        // webhook fired, waiting for callback
	StatusCompleted        RunStatus = "completed"
	StatusFailed           RunStatus = "failed"
	StatusSuperseded       RunStatus = "superseded"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSuperseded
}

// Busy reports whether the workflow may already have been triggered, so the
// run must not be superseded.
func (s RunStatus) Busy() bool {
	return s == StatusHandingOff || s == StatusProcessing
}

type SourceKind string

const (
	SourceURL  SourceKind = "url"
	SourceFile SourceKind = "file"
)

// Run is one spreadsheet travelling through acquisition, hand-off and the
// workflow callback.
type Run struct {
	ID     string     `json:"id"`
	Kind   SourceKind `json:"kind"`
	Source string     `json:"source"`
	Status RunStatus  `json:"status"`

	ExportURL  string `json:"export_url,omitempty"`
	StagedPath string `json:"staged_path,omitempty"`
	InboxName  string `json:"inbox_name,omitempty"`
	FileHash   string `json:"file_hash,omitempty"`

	Files  []string `json:"files,omitempty"`
	Copied []string `json:"copied,omitempty"`
	Error  string   `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	KeepSource bool               `json:"-"`
	CancelFunc context.CancelFunc `json:"-"`
}

// Clone returns a copy safe to hand to other goroutines.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	c.Files = append([]string(nil), r.Files...)
	c.Copied = append([]string(nil), r.Copied...)
	c.CancelFunc = nil
	return &c
}

// SubmitRequest starts a run from either a sheet URL or a local workbook.
type SubmitRequest struct {
	URL        string `json:"url,omitempty"`
	Path       string `json:"path,omitempty"`
	KeepSource bool   `json:"keep_source,omitempty"`
}
