package handoff

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/datallboy/sheetflow/internal/infra/logger"
)

type trigger interface {
	Fire(ctx context.Context, filename string) error
}

// Service places acquired sheets in the shared inbox and starts the workflow.
type Service struct {
	inboxDir string
	trigger  trigger
	log      *logger.Logger
	now      func() time.Time
}

func NewService(inboxDir string, t trigger, log *logger.Logger) *Service {
	return &Service{inboxDir: inboxDir, trigger: t, log: log, now: time.Now}
}

// Delivery describes a sheet that reached the inbox.
type Delivery struct {
	InboxName string
	InboxPath string
	FileHash  string
}

// Deliver validates src, copies it to the inbox under a time-based name and
// fires the webhook. The original is removed afterwards unless keepSource is
// set or it already lives in the inbox. A Delivery is returned whenever the
// copy succeeded, even if the trigger then failed.
func (s *Service) Deliver(ctx context.Context, src string, keepSource bool) (*Delivery, error) {
	if !domain.IsSheetFile(src) {
		s.log.Error("File does not have .xlsx extension: %s", src)
		return nil, domain.ErrInvalidFileType
	}

	if err := os.MkdirAll(s.inboxDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}

	name := fmt.Sprintf("sheet_%d%s", s.now().Unix(), domain.SheetExtension)
	dest := filepath.Join(s.inboxDir, name)

	// Copy instead of rename to avoid cross-device link errors
	if err := copyFile(src, dest); err != nil {
		return nil, fmt.Errorf("failed to move file to inbox: %w", err)
	}

	if !keepSource && !sameDir(src, dest) {
		if err := os.Remove(src); err != nil {
			s.log.Warn("Could not remove original %s: %v", src, err)
		}
	}
	s.log.Info("File moved to: %s", dest)

	d := &Delivery{InboxName: name, InboxPath: dest}
	if hash, err := domain.HashFile(dest); err == nil {
		d.FileHash = hash
	}

	s.log.Info("Triggering n8n workflow...")
	if err := s.trigger.Fire(ctx, name); err != nil {
		s.log.Error("%v", err)
		return d, err
	}

	s.log.Info("Webhook triggered successfully - waiting for results...")
	return d, nil
}
