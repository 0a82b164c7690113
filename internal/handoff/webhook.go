package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/datallboy/sheetflow/internal/infra/logger"
)

// Trigger posts the hand-off payload to the n8n webhook endpoints.
type Trigger struct {
	client   *http.Client
	testURL  string
	prodURL  string
	template string
	log      *logger.Logger
}

func NewTrigger(testURL, prodURL, template string, timeout time.Duration, log *logger.Logger) *Trigger {
	return &Trigger{
		client:   &http.Client{Timeout: timeout},
		testURL:  testURL,
		prodURL:  prodURL,
		template: template,
		log:      log,
	}
}

// Fire posts to the test trigger and then the production trigger. The test
// trigger only answers while the editor is listening, so its outcome is
// logged and otherwise ignored.
func (t *Trigger) Fire(ctx context.Context, filename string) error {
	payload := domain.WebhookPayload{Filename: filename, Template: t.template}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if t.testURL != "" {
		if status, err := t.post(ctx, t.testURL, body); err != nil {
			t.log.Debug("Test webhook unreachable: %v", err)
		} else {
			t.log.Debug("Test webhook answered %d", status)
		}
	}

	status, err := t.post(ctx, t.prodURL, body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWebhookUnreachable, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status code %d", domain.ErrWebhookStatus, status)
	}
	return nil
}

func (t *Trigger) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
