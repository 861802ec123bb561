package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"jordanella.com/activity-agent/internal/logging"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize
var ErrWatcherFailed = errors.New("failed to initialize config watcher")

// DefaultDebounce collapses the burst of events editors emit on save
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives every successfully reloaded config
type ReloadFunc func(cfg *Config)

// Watcher reloads the config file when it changes on disk. The parent
// directory is watched rather than the file so that editors which save by
// renaming a temp file are still seen.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *logging.Logger
	debounce time.Duration

	onReload ReloadFunc
	onError  func(err error)

	mu      sync.Mutex
	timer   *time.Timer
	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for the config file at path
func NewWatcher(path string, onReload ReloadFunc, logger *logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		logger:   logging.OrDiscard(logger),
		debounce: DefaultDebounce,
		onReload: onReload,
		stop:     make(chan struct{}),
	}, nil
}

// WithDebounce sets the quiet period before a reload
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// WithErrorHandler is called when a changed file fails to load
func (w *Watcher) WithErrorHandler(fn func(err error)) *Watcher {
	w.onError = fn
	return w
}

// Path returns the absolute path being watched
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching in a background goroutine
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching config directory: %w", err)
	}

	w.wg.Add(1)
	go w.processEvents(ctx)

	w.logger.InfoWithContext("Watching config file", map[string]interface{}{
		"path": w.path,
	})
	return nil
}

// Stop stops watching and waits for the event loop to exit. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.stop)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	_ = w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(fmt.Sprintf("Config watcher error: %v", err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	cfg, err := LoadFromINI(w.path)
	if err != nil {
		w.logger.Error("Config reload failed, keeping previous settings", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.logger.InfoWithContext("Config reloaded", map[string]interface{}{
		"path": w.path,
	})
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
