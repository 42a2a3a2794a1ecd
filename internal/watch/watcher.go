// Package watch re-runs work when a repository's session state file changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Rogers-F/governance-engine/internal/logging"
)

// DefaultDebounce is the quiet period before a burst of events triggers a run.
const DefaultDebounce = 100 * time.Millisecond

// Config configures a SessionWatcher.
type Config struct {
	// Path is the session state file. Its directory must exist.
	Path     string
	Debounce time.Duration
	Logger   *zap.Logger
}

// SessionWatcher watches one session state file. The parent directory is
// watched because atomic replacement swaps the file's inode.
type SessionWatcher struct {
	path     string
	base     string
	debounce time.Duration
	logger   *zap.Logger
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	closed  bool
}

// New creates a watcher and registers the session directory immediately, so
// changes made before Run starts are still delivered.
func New(cfg Config) (*SessionWatcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("watch: session path is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", cfg.Path, err)
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: session directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch: add %s: %w", dir, err)
	}

	return &SessionWatcher{
		path:     path,
		base:     filepath.Base(path),
		debounce: cfg.Debounce,
		logger:   logging.OrNop(cfg.Logger),
		watcher:  fw,
	}, nil
}

// Path is the watched session file.
func (w *SessionWatcher) Path() string { return w.path }

// Run calls onChange after each debounced burst of changes to the session
// file until ctx is cancelled. A failing onChange is logged and watching
// continues. Run returns nil on cancellation.
func (w *SessionWatcher) Run(ctx context.Context, onChange func(ctx context.Context) error) error {
	w.mu.Lock()
	switch {
	case w.closed:
		w.mu.Unlock()
		return errors.New("watch: watcher is closed")
	case w.running:
		w.mu.Unlock()
		return errors.New("watch: watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	w.logger.Info("session watcher started",
		zap.String("path", w.path),
		zap.Duration("debounce", w.debounce),
	)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("session watcher stopped")
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watch: events channel closed")
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("session file event", zap.String("op", ev.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			if err := onChange(ctx); err != nil {
				w.logger.Warn("session change handler failed", zap.Error(err))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watch: errors channel closed")
			}
			w.logger.Warn("session watcher error", zap.Error(err))
		}
	}
}

// Close releases the underlying watcher. It is safe to call more than once.
func (w *SessionWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}

func (w *SessionWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Base(ev.Name) != w.base {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}
