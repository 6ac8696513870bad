// Package watcher reloads the vault when its file is changed by another
// process, for example a sync client or a second lauth instance.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lightauth/internal/apperr"
)

// DefaultDebounce is how long the watcher waits after the last event before
// reloading. Atomic writes produce a burst of create/rename events.
const DefaultDebounce = 200 * time.Millisecond

// Reloader re-reads the vault. It reports whether the contents changed.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// Callback is called after a reload that changed the vault.
type Callback func(path string)

// Watch watches the directory holding vaultFile and calls r.Reload after
// the file is created, written, replaced or removed. The directory is
// watched rather than the file because atomic writes replace the inode.
// It runs until ctx is cancelled.
func Watch(ctx context.Context, vaultFile string, r Reloader, debounce time.Duration, logger *slog.Logger, cb Callback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(vaultFile)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("file", abs))

	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			timer, fire = nil, nil
			changed, err := r.Reload(ctx)
			switch {
			case errors.Is(err, apperr.ErrLocked):
				logger.Debug("watcher: vault locked, change ignored", slog.String("file", abs))
			case err != nil:
				logger.Warn("watcher: reload failed", slog.String("file", abs), slog.String("error", err.Error()))
			case changed:
				logger.Info("watcher: vault reloaded", slog.String("file", abs))
				if cb != nil {
					cb(abs)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				logger.Debug("watcher: event", slog.String("file", abs), slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
