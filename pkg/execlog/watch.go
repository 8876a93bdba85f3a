package execlog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch calls fn with fresh Stats once immediately and again whenever a
// record is created or rewritten, until ctx is done.
func (l *Logger) Watch(ctx context.Context, fn func(Stats)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}

	l.emit(fn)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
				l.emit(fn)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("log directory watcher error", zap.Error(err))
		}
	}
}

func (l *Logger) emit(fn func(Stats)) {
	stats, err := l.Stats()
	if err != nil {
		l.logger.Warn("failed to aggregate log stats", zap.Error(err))
		return
	}
	fn(stats)
}
