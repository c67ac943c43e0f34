package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driving"
	"github.com/custodia-labs/librarian/internal/logger"
)

// DefaultDebounce is how long the catalog must stay quiet before a run.
const DefaultDebounce = 2 * time.Second

// Watcher re-runs indexing when catalog files change.
type Watcher struct {
	indexing driving.IndexingService
	files    map[string]bool
	debounce time.Duration
}

// NewWatcher watches the given catalog files. A debounce of zero uses
// DefaultDebounce.
func NewWatcher(indexing driving.IndexingService, files []string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[filepath.Clean(f)] = true
	}
	return &Watcher{indexing: indexing, files: set, debounce: debounce}
}

// Watch blocks until ctx is done, running an incremental index after
// each burst of catalog changes.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		logger.Debug("watching %s", dir)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			logger.Debug("catalog change: %s", ev)
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: %v", err)
		case <-timer.C:
			w.reindex(ctx)
		}
	}
}

func (w *Watcher) reindex(ctx context.Context) {
	logger.Info("catalog changed, indexing")
	summary, err := w.indexing.Run(ctx, domain.IndexOptions{})
	switch {
	case errors.Is(err, domain.ErrIndexingInProgress):
		logger.Info("indexing already running, change will be picked up by the active run")
	case ctx.Err() != nil:
	case err != nil:
		logger.Error("indexing after catalog change: %v", err)
	default:
		logger.Info("indexed %d books after catalog change", summary.BooksDone)
	}
}

// relevant reports whether ev touches a watched file. SQLite sidecar
// files count as the database itself.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	name := filepath.Clean(ev.Name)
	for _, suffix := range []string{"-wal", "-journal", "-shm"} {
		name = strings.TrimSuffix(name, suffix)
	}
	return w.files[name]
}
