// Package watcher triggers sync runs when candidate files change on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/zensync/internal/apperr"
	"github.com/starford/zensync/internal/storage"
)

// ChangeCallback is called for every filesystem event on a matching file.
// kind is one of "created", "updated", "deleted".
type ChangeCallback func(kind string, path string)

// RunFunc performs one sync pass. Errors are logged, never fatal to the watch.
// A run that fails with apperr.ErrConflict is retried after the debounce.
type RunFunc func(ctx context.Context) error

// Config describes what to watch.
type Config struct {
	// Root is the workspace root; Pattern is relative to it.
	Root     string
	Pattern  string
	Debounce time.Duration
}

// Watch starts an fsnotify watcher on the directory holding the pattern and
// calls run once changes to matching files have settled for cfg.Debounce.
// Events arriving while run is executing schedule one more pass afterwards.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, cfg Config, logger *slog.Logger, run RunFunc, cb ChangeCallback) error {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	pattern := filepath.Clean(cfg.Pattern)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return fmt.Errorf("watcher: bad pattern %q: %w", cfg.Pattern, err)
	}
	dir := filepath.Join(cfg.Root, literalPrefix(pattern))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("watcher: create %s: %w", dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("dir", dir), slog.String("pattern", pattern))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(cfg.Debounce)
			fire = timer.C
		} else {
			timer.Reset(cfg.Debounce)
		}
	}

	done := make(chan error, 1)
	running := false
	pending := false
	start := func() {
		running = true
		go func() {
			done <- run(ctx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if running {
				<-done
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			if running {
				pending = true
				continue
			}
			start()

		case err := <-done:
			running = false
			if errors.Is(err, apperr.ErrConflict) {
				logger.Info("watcher: another sync is running, retrying")
				schedule()
				continue
			}
			if err != nil {
				logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
			}
			if pending {
				pending = false
				start()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			rel, relErr := filepath.Rel(cfg.Root, ev.Name)
			if relErr != nil {
				continue
			}
			if ok, _ := filepath.Match(pattern, rel); !ok || storage.Hidden(pattern, rel) {
				continue
			}

			kind := ""
			switch {
			case ev.Op&fsnotify.Create != 0:
				kind = "created"
			case ev.Op&fsnotify.Write != 0:
				kind = "updated"
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				kind = "deleted"
			default:
				continue
			}
			logger.Debug("watcher: change", slog.String("path", rel), slog.String("op", kind))
			if cb != nil {
				cb(kind, rel)
			}
			if kind != "deleted" {
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

// literalPrefix returns the directory part of pattern up to the first
// element containing a glob metacharacter.
func literalPrefix(pattern string) string {
	parts := strings.Split(filepath.Dir(pattern), string(filepath.Separator))
	n := 0
	for _, p := range parts {
		if strings.ContainsAny(p, `*?[\`) {
			break
		}
		n++
	}
	if n == 0 {
		return "."
	}
	return filepath.Join(parts[:n]...)
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
