package downloader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datallboy/sheetflow/internal/domain"
)

// Service performs the single direct-download attempt for an export URL.
type Service struct {
	client     *http.Client
	userAgent  string
	stagingDir string
	now        func() time.Time
}

func NewService(stagingDir, userAgent string, timeout time.Duration) *Service {
	return &Service{
		client:     &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		stagingDir: stagingDir,
		now:        time.Now,
	}
}

// Fetch issues one GET. On success the body is staged and its path returned.
// A login page or 401 yields domain.ErrAuthRequired, which callers treat as
// the cue for browser sign-in rather than a failure.
func (s *Service) Fetch(ctx context.Context, exportURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || isLoginPage(resp.Header.Get("Content-Type")) {
		return "", domain.ErrAuthRequired
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d", domain.ErrHTTPStatus, resp.StatusCode)
	}

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging dir: %w", err)
	}

	finalPath := filepath.Join(s.stagingDir, fmt.Sprintf("sheet_%d%s", s.now().UnixNano(), domain.SheetExtension))
	if err := writeStaged(finalPath, resp.Body); err != nil {
		var re *readError
		if errors.As(err, &re) {
			return "", classifyTransportError(re.err)
		}
		return "", fmt.Errorf("failed to stage download: %w", err)
	}

	return finalPath, nil
}

// isLoginPage spots the sign-in page Google serves in place of the file.
func isLoginPage(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/json")
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
}

// StatusOf maps a Fetch error onto the user-facing status codes.
func StatusOf(err error) domain.DownloadStatus {
	switch {
	case err == nil:
		return domain.DownloadSuccess
	case errors.Is(err, domain.ErrAuthRequired):
		return domain.DownloadManual
	case errors.Is(err, domain.ErrInvalidURL):
		return domain.DownloadInvalidURL
	case errors.Is(err, domain.ErrBrowserLaunch):
		return domain.DownloadBrowserFailed
	case errors.Is(err, domain.ErrHTTPStatus):
		return domain.DownloadHTTPError
	case errors.Is(err, domain.ErrTimeout):
		return domain.DownloadTimeout
	case errors.Is(err, domain.ErrNetwork):
		return domain.DownloadNetworkError
	default:
		return domain.DownloadUnexpected
	}
}
