package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads cfg in place whenever the file at path changes. Editors often
// emit several events per save, so reloads are debounced. Secrets stay intact
// because env overrides re-apply after every reload. Blocks until ctx is done.
func Watch(ctx context.Context, path string, cfg *Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: saves that replace the file
	// (rename-over) would otherwise drop the watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var timer *time.Timer
	reload := func() {
		next, err := Load(path)
		if err != nil {
			slog.Warn("config reload failed", "path", path, "error", err)
			return
		}
		cfg.ReplaceFrom(next)
		slog.Info("config reloaded", "path", path)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(250*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
