package catalogue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"memebox/internal/logging"
)

// watchDebounce batches the burst of events an editor or an atomic rename
// produces into one reload.
const watchDebounce = 250 * time.Millisecond

// Watch reloads the snapshot whenever the catalogue file changes on disk and
// blocks until ctx is cancelled. The parent directory is watched so atomic
// replacements (rename over the file) are observed. A reload that fails keeps
// the previous snapshot and is logged.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalogue watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	r.logger.Debug("watching catalogue", logging.String("dir", dir))

	target := filepath.Clean(r.path)
	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(r.logger, "catalogue watcher error", "catalogue_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "external catalogue edits may not be picked up until restart"),
			)

		case <-timer.C:
			if err := r.Reload(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				logging.WarnWithContext(r.logger, "catalogue reload failed; keeping previous snapshot", "catalogue_reload_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "fix the catalogue file; it is re-read on the next change"),
					logging.String(logging.FieldImpact, "lookups keep serving the last good catalogue"),
				)
			}
		}
	}
}
