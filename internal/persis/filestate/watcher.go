package filestate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with the current snapshot and again every time the state
// file changes, until ctx is done. The parent directory is watched rather
// than the file itself because atomic writes replace the file on each Set.
func (s *Store) Watch(ctx context.Context, fn func(State)) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s.emit(ctx, fn)

	name := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.emit(ctx, fn)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error(ctx, "State watcher error", tag.File(s.path), tag.Error(err))
		}
	}
}

func (s *Store) emit(ctx context.Context, fn func(State)) {
	st, err := s.Snapshot(ctx)
	if err != nil {
		logger.Warn(ctx, "Failed to read state snapshot", tag.File(s.path), tag.Error(err))
		return
	}
	fn(st)
}
