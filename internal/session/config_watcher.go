package session

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/panel-deck/internal/logging"
)

var watcherLog = logging.ForComponent(logging.CompSession)

// configDebounce coalesces rapid editor write events into one reload.
const configDebounce = 100 * time.Millisecond

// ConfigWatcher watches the user config file and reports reloaded configs,
// letting a running session pick up capture-rate changes without a restart.
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc

	onReload func(Config)
}

// NewConfigWatcher creates a watcher for the config file at path. Call
// Start() in a goroutine to begin watching.
func NewConfigWatcher(path string, onReload func(Config)) (*ConfigWatcher, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ConfigWatcher{
		path:     path,
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
		onReload: onReload,
	}, nil
}

// Start watches the config file's directory (editors replace files rather
// than write in place, so watching the file itself misses renames). Must be
// called in a goroutine.
func (w *ConfigWatcher) Start() {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		watcherLog.Warn("config_watch_failed", slog.String("dir", dir), slog.String("error", err.Error()))
		return
	}

	var debounceTimer *time.Timer
	var debounceMu sync.Mutex

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			debounceMu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(configDebounce, w.reload)
			debounceMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			watcherLog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		watcherLog.Warn("config_reload_failed", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}
	watcherLog.Info("config_reloaded", slog.String("path", w.path), slog.Int("fps", cfg.Capture.FPS))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Stop ends watching and releases the underlying watcher.
func (w *ConfigWatcher) Stop() {
	w.cancel()
	_ = w.watcher.Close()
}
