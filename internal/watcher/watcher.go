package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/datallboy/sheetflow/internal/domain"
	"github.com/datallboy/sheetflow/internal/infra/logger"
	"github.com/fsnotify/fsnotify"
)

// Callback receives the detected download, or domain.ErrWatchTimeout.
// It is never called for a watch that was superseded or stopped.
type Callback func(file *domain.AcquiredFile, err error)

type opener interface {
	OpenURL(ctx context.Context, rawURL string) error
}

// Service runs at most one browser download watch at a time. Starting a new
// watch supersedes the previous one.
type Service struct {
	dir      string
	browser  opener
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	current *Watch
}

func NewService(downloadsDir string, browser opener, interval, timeout time.Duration, log *logger.Logger) *Service {
	return &Service{
		dir:      downloadsDir,
		browser:  browser,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// Watch is a handle on one background watch.
type Watch struct {
	Baseline *domain.AcquiredFile

	cancel context.CancelFunc
	done   chan struct{}
}

// settled stands in for the done channel of a Watch that never started.
var settled = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Done is closed when the watch goroutine exits for any reason, after any
// callback has returned.
func (w *Watch) Done() <-chan struct{} {
	if w == nil || w.done == nil {
		return settled
	}
	return w.done
}

// Stop cancels the watch without invoking its callback.
func (w *Watch) Stop() {
	if w != nil && w.cancel != nil {
		w.cancel()
	}
}

// Begin captures the baseline, opens exportURL in the browser and starts
// polling. If the browser cannot be opened no watch is started and the error
// wraps domain.ErrBrowserLaunch. ctx bounds the watch's lifetime, not just
// this call.
func (s *Service) Begin(ctx context.Context, exportURL string, cb Callback) (*Watch, error) {
	baseline, err := LatestSheet(s.dir)
	if err != nil {
		s.log.Warn("Could not scan %s for a baseline: %v", s.dir, err)
	}

	if err := s.browser.OpenURL(ctx, exportURL); err != nil {
		s.log.Error("Failed to open web browser for authentication. Please download the file manually: %s", exportURL)
		return nil, fmt.Errorf("%w: %v", domain.ErrBrowserLaunch, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watch{Baseline: baseline, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.current != nil {
		s.log.Warn("Superseding previous download watch")
		s.current.Stop()
	}
	s.current = w
	s.mu.Unlock()

	go s.run(watchCtx, w, cb)

	return w, nil
}

// Stop cancels the active watch, if any.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Stop()
		s.current = nil
	}
}

func (s *Service) run(ctx context.Context, w *Watch, cb Callback) {
	defer close(w.done)
	defer w.cancel()
	defer s.release(w)

	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	wake := s.subscribe(ctx)

	var once sync.Once
	fire := func(f *domain.AcquiredFile, err error) {
		once.Do(func() {
			if ctx.Err() != nil {
				return
			}
			cb(f, err)
		})
	}

	check := func() bool {
		latest, err := LatestSheet(s.dir)
		if err != nil {
			s.log.Debug("Error while monitoring downloads: %v", err)
			return false
		}
		if latest == nil || latest.Same(w.Baseline) {
			return false
		}
		s.log.Info("New file detected: %s", latest.Path)
		fire(latest, nil)
		return true
	}

	if check() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			s.log.Warn("Watcher timed out after %s", s.timeout)
			fire(nil, domain.ErrWatchTimeout)
			return
		case <-ticker.C:
			if check() {
				return
			}
		case <-wake:
			if check() {
				return
			}
		}
	}
}

func (s *Service) release(w *Watch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == w {
		s.current = nil
	}
}

// subscribe returns a channel nudged on spreadsheet writes in the downloads
// directory. Polling stays authoritative: inotify does not fire for files
// written by Windows into a WSL /mnt mount.
func (s *Service) subscribe(ctx context.Context) <-chan struct{} {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := fw.Add(s.dir); err != nil {
		fw.Close()
		s.log.Debug("fsnotify unavailable for %s, polling only: %v", s.dir, err)
		return nil
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if !domain.IsSheetFile(ev.Name) || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-fw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return wake
}

// LatestSheet returns the most recently modified non-empty .xlsx in dir, or
// nil when there is none. A missing directory counts as empty.
func LatestSheet(dir string) (*domain.AcquiredFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var latest *domain.AcquiredFile
	for _, e := range entries {
		if e.IsDir() || !domain.IsSheetFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		if latest == nil || info.ModTime().After(latest.ModTime) {
			latest = &domain.AcquiredFile{Path: filepath.Join(dir, e.Name()), ModTime: info.ModTime()}
		}
	}
	return latest, nil
}
