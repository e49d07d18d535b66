package reconciler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// watchDelay debounces bursts of editor writes into one rerun.
const watchDelay = 500 * time.Millisecond

// Watch calls onChange after any of the manifest files changes, until ctx
// is cancelled. The parent directories are watched so that editors which
// replace files on save are seen too. onChange never runs concurrently with
// itself; its error is logged and watching goes on.
func Watch(ctx context.Context, paths []string, logger zerolog.Logger, onChange func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	logger = logger.With().Str("component", "watch").Logger()
	logger.Info().Strs("files", paths).Msg("Watching manifests")

	timer := time.NewTimer(watchDelay)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !watched[abs] {
				continue
			}
			logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Manifest changed")
			timer.Reset(watchDelay)

		case <-timer.C:
			if err := onChange(ctx); err != nil {
				logger.Error().Err(err).Msg("Rerun failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
