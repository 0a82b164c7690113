package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/datallboy/sheetflow/internal/app"
	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/datallboy/sheetflow/internal/handoff"
	"github.com/datallboy/sheetflow/internal/infra/config"
	"github.com/datallboy/sheetflow/internal/infra/logger"
	"github.com/datallboy/sheetflow/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shareURL = "https://docs.google.com/spreadsheets/d/abc123/edit#gid=0"

type memStore struct {
	mu   sync.Mutex
	runs map[string]domain.Run
}

func newMemStore() *memStore { return &memStore{runs: map[string]domain.Run{}} }

func (s *memStore) SaveRun(_ context.Context, r *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = *r.Clone()
	return nil
}

func (s *memStore) GetRun(_ context.Context, id string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *memStore) ListRuns(context.Context, int) ([]*domain.Run, error) { return nil, nil }

func (s *memStore) MarkInterrupted(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *memStore) Close() error { return nil }

func (s *memStore) status(id string) domain.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id].Status
}

type fakeDownloader struct {
	path string
	err  error
}

func (d *fakeDownloader) Fetch(context.Context, string) (string, error) { return d.path, d.err }

type fakeWatcher struct {
	mu      sync.Mutex
	cb      watcher.Callback
	ctx     context.Context
	err     error
	stopped bool
}

func (w *fakeWatcher) Begin(ctx context.Context, _ string, cb watcher.Callback) (*watcher.Watch, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	w.cb = cb
	w.ctx = ctx
	return &watcher.Watch{}, nil
}

func (w *fakeWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}

func (w *fakeWatcher) callback() (watcher.Callback, context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cb, w.ctx
}

// begun waits for the manager to start a watch.
func (w *fakeWatcher) begun(t *testing.T) (watcher.Callback, context.Context) {
	t.Helper()
	require.Eventually(t, func() bool {
		cb, _ := w.callback()
		return cb != nil
	}, 2*time.Second, 5*time.Millisecond)
	return w.callback()
}

type fakeHandoff struct {
	mu      sync.Mutex
	sources []string
	keep    []bool
	err     error
}

func (h *fakeHandoff) Deliver(_ context.Context, src string, keep bool) (*handoff.Delivery, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources = append(h.sources, src)
	h.keep = append(h.keep, keep)
	return &handoff.Delivery{InboxName: "sheet_1.xlsx", FileHash: "deadbeef"}, h.err
}

// blockingHandoff holds every Deliver call until finish is called.
type blockingHandoff struct {
	mu      sync.Mutex
	sources []string
	entered chan string
	release chan struct{}
	once    sync.Once
}

func newBlockingHandoff(t *testing.T) *blockingHandoff {
	b := &blockingHandoff{entered: make(chan string, 4), release: make(chan struct{})}
	t.Cleanup(b.finish)
	return b
}

func (b *blockingHandoff) Deliver(_ context.Context, src string, _ bool) (*handoff.Delivery, error) {
	b.mu.Lock()
	b.sources = append(b.sources, src)
	b.mu.Unlock()

	b.entered <- src
	<-b.release
	return &handoff.Delivery{InboxName: filepath.Base(src)}, nil
}

func (b *blockingHandoff) finish() { b.once.Do(func() { close(b.release) }) }

func (b *blockingHandoff) delivered() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sources...)
}

// wait blocks until a hand-off is in progress.
func (b *blockingHandoff) wait(t *testing.T) string {
	t.Helper()
	select {
	case src := <-b.entered:
		return src
	case <-time.After(2 * time.Second):
		t.Fatal("hand-off never started")
		return ""
	}
}

type signalBrowser chan string

func (b signalBrowser) OpenURL(_ context.Context, u string) error {
	b <- u
	return nil
}

type harness struct {
	m       *RunManager
	store   *memStore
	dl      *fakeDownloader
	watch   *fakeWatcher
	handoff *fakeHandoff
	root    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Paths.Root = root
	cfg.Paths.FilesDir = "n8n-files"
	cfg.Output.Dir = "out"

	h := &harness{
		store:   newMemStore(),
		dl:      &fakeDownloader{path: filepath.Join(root, "staged.xlsx")},
		watch:   &fakeWatcher{},
		handoff: &fakeHandoff{},
		root:    root,
	}

	a := app.NewContext(cfg, logger.Discard())
	a.Store = h.store
	a.Downloader = h.dl
	a.Watcher = h.watch
	a.Handoff = h.handoff

	h.m = NewRunManager(a)
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) next(t *testing.T) domain.Event {
	t.Helper()
	select {
	case e := <-h.m.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return domain.Event{}
	}
}

// until drains events until one of type want arrives.
func (h *harness) until(t *testing.T, want domain.EventType) domain.Event {
	t.Helper()
	for {
		if e := h.next(t); e.Type == want {
			return e
		}
	}
}

func TestSubmitURLDirectDownload(t *testing.T) {
	h := newHarness(t)

	run, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceURL, run.Kind)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc123/export?format=xlsx", run.ExportURL)

	assert.Equal(t, domain.EventRunStarted, h.next(t).Type)
	h.until(t, domain.EventTriggered)

	assert.Equal(t, []string{h.dl.path}, h.handoff.sources)
	assert.Equal(t, []bool{false}, h.handoff.keep)

	active := h.m.Active()
	require.NotNil(t, active)
	assert.Equal(t, domain.StatusProcessing, active.Status)
	assert.Equal(t, "sheet_1.xlsx", active.InboxName)
	assert.Equal(t, domain.StatusProcessing, h.store.status(run.ID))
}

func TestSubmitReturnsSnapshot(t *testing.T) {
	h := newHarness(t)

	run, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)
	h.until(t, domain.EventTriggered)

	assert.Equal(t, domain.StatusPending, run.Status)
	assert.Empty(t, run.InboxName)
	assert.Equal(t, domain.StatusProcessing, h.m.Active().Status)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.m.Submit(domain.SubmitRequest{URL: "https://example.com/sheet"})
	assert.ErrorIs(t, err, domain.ErrInvalidURL)

	_, err = h.m.Submit(domain.SubmitRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidURL)

	_, err = h.m.Submit(domain.SubmitRequest{URL: shareURL, Path: "x.xlsx"})
	assert.ErrorIs(t, err, domain.ErrInvalidURL)

	csv := filepath.Join(h.root, "data.csv")
	require.NoError(t, os.WriteFile(csv, []byte("a"), 0o644))
	_, err = h.m.Submit(domain.SubmitRequest{Path: csv})
	assert.ErrorIs(t, err, domain.ErrInvalidFileType)

	assert.Nil(t, h.m.Active())
}

func TestSubmitLocalFileSkipsDownload(t *testing.T) {
	h := newHarness(t)
	h.dl.err = errors.New("must not be called")

	src := filepath.Join(h.root, "mine.xlsx")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	_, err := h.m.Submit(domain.SubmitRequest{Path: src, KeepSource: true})
	require.NoError(t, err)
	h.until(t, domain.EventTriggered)

	assert.Equal(t, []string{src}, h.handoff.sources)
	assert.Equal(t, []bool{true}, h.handoff.keep)
}

func TestBusyWhileProcessing(t *testing.T) {
	h := newHarness(t)

	_, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)
	h.until(t, domain.EventTriggered)

	_, err = h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.ErrorIs(t, err, domain.ErrBusy)
}

func TestBusyWhileHandingOff(t *testing.T) {
	h := newHarness(t)
	slow := newBlockingHandoff(t)
	h.m.handoff = slow

	a := filepath.Join(h.root, "a.xlsx")
	b := filepath.Join(h.root, "b.xlsx")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))

	first, err := h.m.Submit(domain.SubmitRequest{Path: a})
	require.NoError(t, err)
	assert.Equal(t, a, slow.wait(t))
	assert.Equal(t, domain.StatusHandingOff, h.m.Active().Status)

	_, err = h.m.Submit(domain.SubmitRequest{Path: b})
	require.ErrorIs(t, err, domain.ErrBusy)

	slow.finish()
	h.until(t, domain.EventTriggered)
	assert.Equal(t, []string{a}, slow.delivered())
	assert.Equal(t, first.ID, h.m.Active().ID)
}

func TestCloseWaitsForHandoffFromWatch(t *testing.T) {
	h := newHarness(t)
	h.dl.err = domain.ErrAuthRequired

	downloads := t.TempDir()
	opened := make(signalBrowser, 1)
	h.m.watcher = watcher.NewService(downloads, opened, 10*time.Millisecond, time.Minute, logger.Discard())
	slow := newBlockingHandoff(t)
	h.m.handoff = slow

	_, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("browser never opened")
	}
	sheet := filepath.Join(downloads, "Sheet.xlsx")
	require.NoError(t, os.WriteFile(sheet, []byte("PK"), 0o644))
	assert.Equal(t, sheet, slow.wait(t))

	closed := make(chan struct{})
	go func() {
		h.m.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a hand-off was still running")
	case <-time.After(50 * time.Millisecond):
	}

	slow.finish()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the hand-off finished")
	}
}

func TestAuthWallWaitsForBrowser(t *testing.T) {
	h := newHarness(t)
	h.dl.err = domain.ErrAuthRequired

	run, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)
	h.until(t, domain.EventAwaitingBrowser)
	assert.Equal(t, domain.StatusAwaitingDownload, h.m.Active().Status)

	cb, _ := h.watch.begun(t)
	cb(&domain.AcquiredFile{Path: "/home/u/Downloads/Sheet.xlsx"}, nil)

	h.until(t, domain.EventTriggered)
	assert.Equal(t, []string{"/home/u/Downloads/Sheet.xlsx"}, h.handoff.sources)
	assert.Equal(t, "/home/u/Downloads/Sheet.xlsx", h.m.Active().StagedPath)
	assert.Equal(t, run.ID, h.m.Active().ID)
}

func TestWatchTimeoutFailsRun(t *testing.T) {
	h := newHarness(t)
	h.dl.err = domain.ErrAuthRequired

	run, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)
	h.until(t, domain.EventAwaitingBrowser)

	cb, _ := h.watch.begun(t)
	cb(nil, domain.ErrWatchTimeout)

	e := h.until(t, domain.EventFailed)
	assert.Equal(t, run.ID, e.RunID)
	assert.Nil(t, h.m.Active())
	assert.Equal(t, domain.StatusFailed, h.store.status(run.ID))
}

func TestBrowserLaunchFailure(t *testing.T) {
	h := newHarness(t)
	h.dl.err = domain.ErrAuthRequired
	h.watch.err = domain.ErrBrowserLaunch

	_, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)

	e := h.until(t, domain.EventFailed)
	assert.Contains(t, e.Message, "browser")
	assert.Nil(t, h.m.Active())
}

func TestNewSubmissionSupersedesBrowserWait(t *testing.T) {
	h := newHarness(t)
	h.dl.err = domain.ErrAuthRequired

	first, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)
	h.until(t, domain.EventAwaitingBrowser)
	oldCB, oldCtx := h.watch.begun(t)

	second, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)

	e := h.until(t, domain.EventSuperseded)
	assert.Equal(t, first.ID, e.RunID)
	assert.Equal(t, domain.StatusSuperseded, h.store.status(first.ID))
	assert.Error(t, oldCtx.Err(), "the old watch context is cancelled")

	h.until(t, domain.EventAwaitingBrowser)

	// A late callback for the superseded run is ignored.
	oldCB(&domain.AcquiredFile{Path: "/tmp/late.xlsx"}, nil)
	assert.Empty(t, h.handoff.sources)
	assert.Equal(t, second.ID, h.m.Active().ID)
}

func TestTriggerFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	h.handoff.err = domain.ErrWebhookStatus

	run, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)

	h.until(t, domain.EventFailed)
	got, err := h.m.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "sheet_1.xlsx", got.InboxName, "the copy is recorded even when the trigger fails")
}

func TestSuccessCallbackCopiesResults(t *testing.T) {
	h := newHarness(t)

	outDir := filepath.Join(h.root, "n8n-files", "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "a.docx"), []byte("A"), 0o644))

	run, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)
	h.until(t, domain.EventTriggered)

	files := []string{"/files/out/a.docx", "/files/out/missing.docx"}
	h.m.HandleCallback(context.Background(), domain.CallbackResult{Kind: domain.CallbackSuccess, Files: files})

	e := h.until(t, domain.EventCompleted)
	assert.Equal(t, run.ID, e.RunID)
	assert.Equal(t, files, e.Files)
	assert.Contains(t, e.Message, "Generated 2 file(s)")

	copied, err := os.ReadFile(filepath.Join(h.root, "out", "a.docx"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(copied))

	got, err := h.m.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, []string{filepath.Join(h.root, "out", "a.docx")}, got.Copied)

	// The slot is free again.
	_, err = h.m.Submit(domain.SubmitRequest{URL: shareURL})
	assert.NoError(t, err)
}

func TestFailureCallback(t *testing.T) {
	h := newHarness(t)

	run, err := h.m.Submit(domain.SubmitRequest{URL: shareURL})
	require.NoError(t, err)
	h.until(t, domain.EventTriggered)

	h.m.HandleCallback(context.Background(), domain.CallbackResult{Kind: domain.CallbackFailure, Error: "template missing"})

	e := h.until(t, domain.EventFailed)
	assert.Equal(t, "n8n workflow failed: template missing", e.Message)
	assert.Equal(t, domain.StatusFailed, h.store.status(run.ID))
}

func TestCallbackWithoutRun(t *testing.T) {
	h := newHarness(t)

	h.m.HandleCallback(context.Background(), domain.CallbackResult{Kind: domain.CallbackUnrecognized, Raw: `{"foo":1}`})
	e := h.next(t)
	assert.Equal(t, domain.EventUnrecognized, e.Type)
	assert.Empty(t, e.RunID)
	assert.Equal(t, `Received callback with unknown format. Data: {"foo":1}`, e.Message)
}

func TestResultPathStaysInsideFilesDir(t *testing.T) {
	m := &RunManager{filesDir: "/srv/n8n-files"}

	assert.Equal(t, filepath.Join("/srv/n8n-files", "out", "a.docx"), m.resultPath("/files/out/a.docx"))
	assert.Equal(t, filepath.Join("/srv/n8n-files", "out", "b.docx"), m.resultPath("out/b.docx"))
	assert.Equal(t, filepath.Join("/srv/n8n-files", "passwd"), m.resultPath("/files/../../etc/passwd"))
}
