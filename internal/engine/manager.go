package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/datallboy/sheetflow/internal/app"
	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/datallboy/sheetflow/internal/downloader"
	"github.com/datallboy/sheetflow/internal/infra/logger"
	"github.com/datallboy/sheetflow/internal/sheets"
	"github.com/segmentio/ksuid"
)

// RunManager owns the single run slot. Background work reports through
// Events and the store; nothing here touches a front end.
type RunManager struct {
	mu         sync.Mutex
	store      app.Store
	downloader app.Downloader
	watcher    app.Watcher
	handoff    app.Handoff
	log        *logger.Logger

	filesDir  string
	outputDir string

	active *domain.Run
	events chan domain.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewRunManager(app *app.Context) *RunManager {
	ctx, cancel := context.WithCancel(context.Background())

	var outputDir string
	if app.Config.Output.Dir != "" {
		outputDir = app.Config.ResolvePath(app.Config.Output.Dir)
	}

	return &RunManager{
		store:      app.Store,
		downloader: app.Downloader,
		watcher:    app.Watcher,
		handoff:    app.Handoff,
		log:        app.Logger,
		filesDir:   app.Config.Layout().FilesDir,
		outputDir:  outputDir,
		events:     make(chan domain.Event, eventBuffer),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

// Events delivers run progress. Events are dropped when nobody drains the
// channel.
func (m *RunManager) Events() <-chan domain.Event {
	return m.events
}

// SetOutputDir changes where generated files are copied. Empty disables
// copying.
func (m *RunManager) SetOutputDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputDir = dir
}

// Recover fails runs a previous process left unfinished.
func (m *RunManager) Recover(ctx context.Context) error {
	n, err := m.store.MarkInterrupted(ctx, m.now())
	if err != nil {
		return err
	}
	if n > 0 {
		m.log.Warn("Marked %d unfinished run(s) from a previous session as failed", n)
	}
	return nil
}

// Submit validates req and starts a run. A run still waiting on the browser
// (or downloading) is superseded; a run handing off or waiting on the
// workflow makes Submit fail with domain.ErrBusy.
func (m *RunManager) Submit(req domain.SubmitRequest) (*domain.Run, error) {
	run, err := m.newRun(req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if prev := m.active; prev != nil {
		if prev.Status.Busy() {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: run %s is %s", domain.ErrBusy, prev.ID, prev.Status)
		}
		m.supersedeLocked(prev)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	run.CancelFunc = cancel
	m.active = run
	m.persistLocked(run)
	snap := run.Clone()
	m.mu.Unlock()

	m.log.Info("Starting run %s for %s", run.ID, run.Source)
	m.emit(domain.EventRunStarted, run.ID, fmt.Sprintf("Processing %s", run.Source), nil)

	m.wg.Add(1)
	go m.process(ctx, run)

	return snap, nil
}

func (m *RunManager) newRun(req domain.SubmitRequest) (*domain.Run, error) {
	url := strings.TrimSpace(req.URL)
	path := strings.TrimSpace(req.Path)

	if (url == "") == (path == "") {
		return nil, fmt.Errorf("%w: provide either a sheet URL or a file path", domain.ErrInvalidURL)
	}

	now := m.now()
	run := &domain.Run{
		ID:         ksuid.New().String(),
		Status:     domain.StatusPending,
		KeepSource: req.KeepSource,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if url != "" {
		exportURL, err := sheets.ResolveExportURL(url)
		if err != nil {
			return nil, err
		}
		run.Kind = domain.SourceURL
		run.Source = url
		run.ExportURL = exportURL
		return run, nil
	}

	if !domain.IsSheetFile(path) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidFileType, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidFileType, path)
	}
	run.Kind = domain.SourceFile
	run.Source = path
	return run, nil
}

func (m *RunManager) process(ctx context.Context, run *domain.Run) {
	defer m.wg.Done()

	if run.Kind == domain.SourceFile {
		m.deliver(ctx, run, run.Source, run.KeepSource)
		return
	}

	if !m.update(run, func(r *domain.Run) { r.Status = domain.StatusDownloading }) {
		return
	}
	m.log.Info("Downloading Google Sheet...")

	staged, err := m.downloader.Fetch(ctx, run.ExportURL)
	switch {
	case err == nil:
		if !m.update(run, func(r *domain.Run) { r.StagedPath = staged }) {
			os.Remove(staged)
			return
		}
		m.emit(domain.EventAcquired, run.ID, fmt.Sprintf("Downloaded to %s", staged), nil)
		m.deliver(ctx, run, staged, false)
	case errors.Is(err, domain.ErrAuthRequired):
		m.awaitBrowser(ctx, run)
	default:
		if code := downloader.StatusOf(err); code.Failed() {
			m.log.Error("Download failed with error code: %d (%s)", int(code), code)
		}
		m.fail(run, err)
	}
}

// awaitBrowser hands sign-in to the user's browser and picks the file up
// from the downloads directory. It returns once the watch has settled, so
// a hand-off started from the watch is covered by the worker's WaitGroup.
func (m *RunManager) awaitBrowser(ctx context.Context, run *domain.Run) {
	if !m.update(run, func(r *domain.Run) { r.Status = domain.StatusAwaitingDownload }) {
		return
	}
	m.log.Warn(msgAuthRequired)
	m.emit(domain.EventAwaitingBrowser, run.ID, msgAuthRequired, nil)

	w, err := m.watcher.Begin(ctx, run.ExportURL, func(f *domain.AcquiredFile, err error) {
		if err != nil {
			m.fail(run, err)
			return
		}
		m.log.Info("New file detected: %s", f.Path)
		if !m.update(run, func(r *domain.Run) { r.StagedPath = f.Path }) {
			return
		}
		m.emit(domain.EventAcquired, run.ID, fmt.Sprintf("New file detected: %s", f.Path), nil)
		m.deliver(ctx, run, f.Path, false)
	})
	if err != nil {
		m.fail(run, err)
		return
	}
	<-w.Done()
}

func (m *RunManager) deliver(ctx context.Context, run *domain.Run, src string, keepSource bool) {
	if !m.update(run, func(r *domain.Run) { r.Status = domain.StatusHandingOff }) {
		return
	}
	m.log.Info("Processing file: %s", src)

	d, err := m.handoff.Deliver(ctx, src, keepSource)
	if d != nil {
		m.update(run, func(r *domain.Run) {
			r.InboxName = d.InboxName
			r.FileHash = d.FileHash
		})
	}
	if err != nil {
		m.fail(run, err)
		return
	}

	if m.update(run, func(r *domain.Run) { r.Status = domain.StatusProcessing }) {
		m.emit(domain.EventTriggered, run.ID, msgTriggered, nil)
	}
}

// HandleCallback attaches a workflow result to the run in flight.
func (m *RunManager) HandleCallback(_ context.Context, res domain.CallbackResult) {
	summary := res.Summary()

	m.mu.Lock()
	run := m.active
	m.mu.Unlock()

	switch res.Kind {
	case domain.CallbackFailure:
		m.log.Error("n8n workflow error: %s", res.Error)
		if run == nil {
			m.log.Warn("Workflow result arrived with no run in flight")
			m.emit(domain.EventFailed, "", summary, nil)
			return
		}
		m.finish(run, domain.StatusFailed, res.Error, nil, nil, summary)

	case domain.CallbackSuccess:
		m.log.Info("Workflow completed successfully! Generated %d file(s)", len(res.Files))
		copied := m.copyResults(res.Files)
		if run == nil {
			m.log.Warn("Workflow result arrived with no run in flight")
			m.emit(domain.EventCompleted, "", summary, res.Files)
			return
		}
		m.finish(run, domain.StatusCompleted, "", res.Files, copied, summary)

	default:
		m.log.Warn("%s", summary)
		var id string
		if run != nil {
			id = run.ID
		}
		m.emit(domain.EventUnrecognized, id, summary, nil)
		if run != nil {
			m.finish(run, domain.StatusFailed, "unrecognized workflow result", nil, nil, summary)
		}
	}
}

// update applies fn while run still owns the slot. It reports false once
// the run has been superseded or finished.
func (m *RunManager) update(run *domain.Run, fn func(*domain.Run)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != run {
		return false
	}
	fn(run)
	run.UpdatedAt = m.now()
	m.persistLocked(run)
	return true
}

func (m *RunManager) fail(run *domain.Run, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrWatchTimeout):
		msg = "Timed out waiting for the browser download. Please download the file manually."
	case errors.Is(err, context.Canceled):
		msg = "Cancelled"
	}
	m.log.Error("Run %s failed: %v", run.ID, err)
	m.finish(run, domain.StatusFailed, err.Error(), nil, nil, msg)
}

func (m *RunManager) finish(run *domain.Run, status domain.RunStatus, errMsg string, files, copied []string, message string) {
	m.mu.Lock()
	if m.active != run {
		m.mu.Unlock()
		return
	}
	run.Status = status
	run.Error = errMsg
	run.Files = files
	run.Copied = copied
	run.UpdatedAt = m.now()
	m.persistLocked(run)
	m.active = nil
	cancel := run.CancelFunc
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	evt := domain.EventCompleted
	if status == domain.StatusFailed {
		evt = domain.EventFailed
	}
	m.emit(evt, run.ID, message, files)
}

func (m *RunManager) supersedeLocked(prev *domain.Run) {
	m.log.Warn("Superseding run %s (%s)", prev.ID, prev.Status)
	if prev.CancelFunc != nil {
		prev.CancelFunc()
	}
	prev.Status = domain.StatusSuperseded
	prev.Error = domain.ErrSuperseded.Error()
	prev.UpdatedAt = m.now()
	m.persistLocked(prev)
	m.active = nil
	m.emit(domain.EventSuperseded, prev.ID, domain.ErrSuperseded.Error(), nil)
}

func (m *RunManager) persistLocked(run *domain.Run) {
	if err := m.store.SaveRun(context.Background(), run); err != nil {
		m.log.Error("Failed to persist run %s: %v", run.ID, err)
	}
}

func (m *RunManager) emit(t domain.EventType, runID, msg string, files []string) {
	e := domain.Event{Type: t, RunID: runID, Message: msg, Files: files, At: m.now()}
	select {
	case m.events <- e:
	default:
		m.log.Debug("Event channel full, dropping %s event", t)
	}
}

// Active returns a copy of the run in flight, or nil.
func (m *RunManager) Active() *domain.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.Clone()
}

// Get prefers the live run and falls back to the store.
func (m *RunManager) Get(ctx context.Context, id string) (*domain.Run, error) {
	m.mu.Lock()
	if m.active != nil && m.active.ID == id {
		r := m.active.Clone()
		m.mu.Unlock()
		return r, nil
	}
	m.mu.Unlock()
	return m.store.GetRun(ctx, id)
}

func (m *RunManager) List(ctx context.Context, limit int) ([]*domain.Run, error) {
	return m.store.ListRuns(ctx, limit)
}

// Close cancels the run in flight and waits for its worker, including any
// hand-off started by a browser watch.
func (m *RunManager) Close() {
	m.cancel()
	m.watcher.Stop()
	m.wg.Wait()
}
