package config

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// FileWatcher polls a file for changes. Mounted config volumes swap files via
// symlinks, which inotify based watchers miss.
type FileWatcher struct {
	path     string
	interval time.Duration
	lastMod  time.Time
	lastSize int64
	logger   *slog.Logger
}

func NewFileWatcher(path string, interval time.Duration, logger *slog.Logger) *FileWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	w := &FileWatcher{
		path:     path,
		interval: interval,
		logger:   logger.With("component", "file_watcher", "path", path),
	}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
		w.lastSize = info.Size()
	}
	return w
}

// Watch calls onChange after every observed modification until ctx is done.
// A failing onChange keeps the watcher running.
func (w *FileWatcher) Watch(ctx context.Context, onChange func() error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Config watcher started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.changed() {
				continue
			}
			w.logger.Info("Config file changed, reloading...")
			if err := onChange(); err != nil {
				w.logger.Error("Config reload rejected", "error", err)
			}
		}
	}
}

func (w *FileWatcher) changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false // temporarily gone during a swap
	}
	if info.ModTime().Equal(w.lastMod) && info.Size() == w.lastSize {
		return false
	}
	w.lastMod = info.ModTime()
	w.lastSize = info.Size()
	return true
}
