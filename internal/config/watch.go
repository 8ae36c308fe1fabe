package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 250 * time.Millisecond

// Watcher reports changes to a config file and the files it includes.
// The containing directories are watched so editors that save by
// renaming are seen too.
type Watcher struct {
	files    []string
	onChange func()
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher watches files and calls onChange, at most once per debounce
// window, after any of them is written, created, renamed or removed.
func NewWatcher(files []string, onChange func(), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		files:    files,
		onChange: onChange,
		debounce: defaultWatchDebounce,
		logger:   logger.With("component", "config-watcher"),
	}
}

func (w *Watcher) String() string { return "config-watcher" }

// Serve watches until ctx is done.
func (w *Watcher) Serve(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	watched := make(map[string]bool, len(w.files))
	dirs := make(map[string]bool)
	for _, file := range w.files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	w.logger.Debug("watching config files", "files", w.files)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("fsnotify event channel closed")
			}
			if !watched[filepath.Clean(ev.Name)] || !relevant(ev.Op) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("fsnotify error channel closed")
			}
			w.logger.Warn("config watcher error", "error", err)
		case <-pending:
			pending = nil
			w.logger.Info("config file changed")
			w.onChange()
		}
	}
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create) ||
		op.Has(fsnotify.Rename) || op.Has(fsnotify.Remove)
}
