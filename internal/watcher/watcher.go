// Package watcher triggers config reloads when the file changes on disk.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher watches one file and invokes a callback after changes settle.
type Watcher struct {
	path     string
	onChange func()
	debounce time.Duration
	log      zerolog.Logger
}

// New creates a watcher for path. onChange runs after writes settle.
func New(path string, onChange func(), log zerolog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		log:      log,
	}
}

// WithDebounce sets the settle window.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Watch blocks until ctx is cancelled, invoking onChange for each settled
// burst of writes. The containing directory is watched rather than the
// file itself so editor-style replace-by-rename is still observed.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	filename := filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}

	w.log.Debug().Str("path", w.path).Msg("watching for changes")

	var debounceTimer *time.Timer
	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				w.log.Info().Str("path", w.path).Msg("config changed, reloading")
				w.onChange()
			})

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")

		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return ctx.Err()
		}
	}
}
