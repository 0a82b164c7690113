package app

import (
	"context"
	"time"

	"github.com/datallboy/sheetflow/internal/backup"
	"github.com/datallboy/sheetflow/internal/container"
	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/datallboy/sheetflow/internal/handoff"
	"github.com/datallboy/sheetflow/internal/infra/config"
	"github.com/datallboy/sheetflow/internal/infra/logger"
	"github.com/datallboy/sheetflow/internal/platform"
	"github.com/datallboy/sheetflow/internal/watcher"
)

type Store interface {
	SaveRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*domain.Run, error)
	MarkInterrupted(ctx context.Context, at time.Time) (int64, error)
	Close() error
}

type Downloader interface {
	// Fetch stages the export and returns the local path
	Fetch(ctx context.Context, exportURL string) (string, error)
}

type Watcher interface {
	Begin(ctx context.Context, exportURL string, cb watcher.Callback) (*watcher.Watch, error)
	Stop()
}

type Handoff interface {
	Deliver(ctx context.Context, src string, keepSource bool) (*handoff.Delivery, error)
}

type Container interface {
	IsRunning(ctx context.Context) (bool, error)
	Status(ctx context.Context) (container.Status, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Archiver moves the container's persisted state in and out of zip archives.
type Archiver interface {
	Export(ctx context.Context, progress backup.Progress) (*backup.ExportResult, error)
	Import(ctx context.Context, archivePath string, progress backup.Progress) (*backup.ImportResult, error)
}

// Context holds the core environment and shared resources for sheetflow.
// Services receive it instead of importing each other.
type Context struct {
	Config *config.Config
	Logger *logger.Logger
	Env    platform.Environment

	Store      Store
	Downloader Downloader
	Watcher    Watcher
	Handoff    Handoff
	Container  Container
	Backup     Archiver
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}
