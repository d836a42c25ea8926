package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/labwire/workcell/internal/logging"
)

// LayoutWatcher reloads the workcell layout when its file changes on disk.
// The transfer graph has no incremental update path: any change triggers a
// full reload and rebuild via the callback.
type LayoutWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *logging.Logger
	onLoad  func(*Layout)
}

// NewLayoutWatcher creates a watcher for the given layout file. onLoad is
// called with each successfully parsed layout.
func NewLayoutWatcher(path string, logger *logging.Logger, onLoad func(*Layout)) (*LayoutWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors and atomic writers replace
	// the file inode on save.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	return &LayoutWatcher{
		path:    path,
		watcher: w,
		logger:  logger,
		onLoad:  onLoad,
	}, nil
}

// Run processes file events until the context is cancelled.
func (lw *LayoutWatcher) Run(ctx context.Context) {
	defer lw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(lw.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			layout, err := LoadLayout(lw.path)
			if err != nil {
				lw.logger.Warn("layout reload failed", "path", lw.path, "error", err)
				continue
			}
			lw.logger.Info("layout reloaded",
				"path", lw.path,
				"locations", len(layout.Locations),
				"templates", len(layout.Templates),
			)
			lw.onLoad(layout)
		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			lw.logger.Warn("layout watcher error", "error", err)
		}
	}
}
