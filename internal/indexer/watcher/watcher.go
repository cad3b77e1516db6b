// Package watcher reloads an index when segment files appear in or vanish
// from its data directory.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/segment"
)

// Reloader is the part of the index engine the watcher drives.
type Reloader interface {
	ReloadSegments() (bool, error)
	Generation() uint64
}

// Watcher batches segment file events and triggers one reload per quiet
// period.
type Watcher struct {
	dir      string
	reloader Reloader
	debounce time.Duration
	onReload func(generation uint64)
	logger   *slog.Logger
}

// New creates a watcher for dir. onReload, if non-nil, is called after every
// reload that changed the segment set.
func New(dir string, reloader Reloader, debounce time.Duration, onReload func(uint64)) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{
		dir:      dir,
		reloader: reloader,
		debounce: debounce,
		onReload: onReload,
		logger:   slog.Default().With("component", "segment-watcher"),
	}
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching segment directory", "dir", w.dir, "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !isSegmentEvent(event) {
				continue
			}
			w.logger.Debug("segment event", "file", filepath.Base(event.Name), "op", event.Op.String())
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("segment watcher error", "error", err)
		case <-timer.C:
			pending = false
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	changed, err := w.reloader.ReloadSegments()
	if err != nil {
		w.logger.Error("segment reload failed", "error", err)
		return
	}
	if !changed {
		return
	}
	gen := w.reloader.Generation()
	w.logger.Info("segments reloaded", "generation", gen)
	if w.onReload != nil {
		w.onReload(gen)
	}
}

func isSegmentEvent(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, segment.Extension) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
