// Package watch re-runs an audit when source files under the watched roots
// change.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/panbanda/refaudit/pkg/config"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a file must be quiet before a change fires.
const DefaultDebounce = 500 * time.Millisecond

// Watcher collects changes to auditable files and hands them to a callback
// in debounced batches. Batches are delivered one at a time.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    *config.Config
	roots     []string
	debounce  time.Duration
	logger    *zap.Logger
	callback  func(ctx context.Context, paths []string)

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewWatcher creates a watcher over roots. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(roots []string, cfg *config.Config, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		fsWatcher: fsWatcher,
		config:    cfg,
		roots:     roots,
		debounce:  debounce,
		logger:    logger,
		pending:   make(map[string]time.Time),
	}, nil
}

// SetCallback sets the function receiving each batch of changed paths,
// sorted.
func (w *Watcher) SetCallback(cb func(ctx context.Context, paths []string)) {
	w.callback = cb
}

// Start watches until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			return err
		}
	}
	w.logger.Info("watching for changes", zap.Strings("roots", w.roots))

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// addTree watches dir and every non-excluded directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != dir && w.excludedDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) excludedDir(name string) bool {
	for _, excluded := range w.config.Exclude.Dirs {
		if name == strings.TrimSuffix(excluded, "/") {
			return true
		}
	}
	return false
}

func (w *Watcher) auditable(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range w.config.Exclude.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		// new directories are watched as they appear
		if err := w.addTree(event.Name); err != nil {
			w.logger.Debug("could not watch new path", zap.String("path", event.Name), zap.Error(err))
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !w.auditable(event.Name) {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(max(w.debounce/5, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if batch := w.takeReady(time.Now()); len(batch) > 0 && w.callback != nil {
				w.callback(ctx, batch)
			}
		}
	}
}

// takeReady removes and returns the paths quiet for at least the debounce
// period.
func (w *Watcher) takeReady(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.fsWatcher.WatchList()
}
