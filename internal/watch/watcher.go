// Package watch repacks a graphics tree whenever files under it change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the tree must stay quiet before a run starts.
const DefaultDebounce = 500 * time.Millisecond

// RunFunc performs one pack. It is never called concurrently with itself.
type RunFunc func(ctx context.Context) error

// Watcher triggers RunFunc after bursts of filesystem events settle.
type Watcher struct {
	root       string
	run        RunFunc
	debounce   time.Duration
	runOnStart bool
	ignoreDirs map[string]bool
	logger     *zap.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	runs    int
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRunOnStart makes Run pack once before waiting for events.
func WithRunOnStart(on bool) Option {
	return func(w *Watcher) { w.runOnStart = on }
}

// New watches root and every directory below it.
func New(root string, run RunFunc, logger *zap.Logger, opts ...Option) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:     filepath.Clean(root),
		run:      run,
		debounce: DefaultDebounce,
		ignoreDirs: map[string]bool{
			"$process": true,
			".svn":     true,
			".git":     true,
		},
		logger:  logger,
		watcher: fw,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addTree(w.root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("initializing watch: %w", err)
	}
	return w, nil
}

// addTree registers dir and its subdirectories with the watcher.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ShouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

// Run blocks until ctx is done, packing after each quiet period. It closes
// the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if w.runOnStart {
		w.trigger(ctx)
	}

	// Timers created on go1.23+ never deliver stale values after Stop or Reset.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.handleFSEvent(event) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))

		case <-timer.C:
			w.trigger(ctx)
		}
	}
}

// handleFSEvent reports whether event should schedule a run.
func (w *Watcher) handleFSEvent(event fsnotify.Event) bool {
	if w.ShouldIgnore(event.Name) {
		return false
	}
	if event.Op == fsnotify.Chmod {
		return false
	}

	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Error("adding new directory to watcher", zap.String("path", event.Name), zap.Error(err))
			}
		}
	}
	w.logger.Debug("change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	return true
}

func (w *Watcher) trigger(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	w.runs++
	w.mu.Unlock()

	if err := w.run(ctx); err != nil {
		w.logger.Warn("pack run ended with error", zap.Error(err))
	}
}

// Runs reports how many times RunFunc has been called.
func (w *Watcher) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// ShouldIgnore reports whether path lies in a skipped directory.
func (w *Watcher) ShouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.ignoreDirs[part] || strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
