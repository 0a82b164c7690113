package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// DownloadStatus is the outcome of a single acquisition attempt.
// Negative values are failures, matching the codes users see in logs.
type DownloadStatus int

const (
	DownloadUnexpected    DownloadStatus = -6
	DownloadTimeout       DownloadStatus = -5
	DownloadNetworkError  DownloadStatus = -4
	DownloadHTTPError     DownloadStatus = -3
	DownloadBrowserFailed DownloadStatus = -2
	DownloadInvalidURL    DownloadStatus = -1
	DownloadSuccess       DownloadStatus = 0
	DownloadManual        DownloadStatus = 1 // waiting on the browser
)

func (s DownloadStatus) String() string {
	switch s {
	case DownloadSuccess:
		return "success"
	case DownloadManual:
		return "manual download in progress"
	case DownloadInvalidURL:
		return "Invalid Google Sheets URL"
	case DownloadBrowserFailed:
		return "Failed to open browser for authentication"
	case DownloadHTTPError:
		return "HTTP error during download"
	case DownloadNetworkError:
		return "Network error during download"
	case DownloadTimeout:
		return "Timeout during download"
	default:
		return "Unknown error"
	}
}

// Failed reports whether the status ends the acquisition without a file.
func (s DownloadStatus) Failed() bool { return s < 0 }

// AcquiredFile identifies a spreadsheet on disk. ModTime is part of the
// identity so a re-download over the same name still counts as new.
type AcquiredFile struct {
	Path    string
	ModTime time.Time
}

func (f *AcquiredFile) Same(other *AcquiredFile) bool {
	if f == nil || other == nil {
		return f == nil && other == nil
	}
	return f.Path == other.Path && f.ModTime.Equal(other.ModTime)
}

const SheetExtension = ".xlsx"

func IsSheetFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), SheetExtension)
}
