package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"fovwatch/internal/ledger"
	"fovwatch/internal/logging"
	"fovwatch/internal/notifications"
)

// WatchOptions configures a watch session.
type WatchOptions struct {
	RunFolder       string
	LogFolder       string
	PollInterval    time.Duration
	ZeroSizeTimeout time.Duration
	Callbacks       Callbacks
	Logger          *slog.Logger
	Ledger          *ledger.Store
	LedgerRunID     int64
	Notifier        notifications.Service
}

const defaultPollInterval = 30 * time.Second

// Watch monitors the run folder until every expected FOV completes or ctx
// is cancelled. The initial backfill walk runs before live events are
// consumed, so a watcher started mid-run behaves as if started before the
// first file arrived. In-flight event handling finishes before return.
func Watch(ctx context.Context, opts WatchOptions) error {
	logger := logging.NewComponentLogger(opts.Logger, "watch-loop")

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	defer fsWatcher.Close()

	if err := addWatchTree(fsWatcher, opts.RunFolder); err != nil {
		return fmt.Errorf("watch run folder: %w", err)
	}

	handler, err := NewHandler(ctx, HandlerOptions{
		RunFolder:       opts.RunFolder,
		LogFolder:       opts.LogFolder,
		ZeroSizeTimeout: opts.ZeroSizeTimeout,
		Callbacks:       opts.Callbacks,
		Logger:          opts.Logger,
		Ledger:          opts.Ledger,
		LedgerRunID:     opts.LedgerRunID,
		Notifier:        opts.Notifier,
	})
	if err != nil {
		return err
	}
	defer handler.Close()

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumeEvents(ctx, fsWatcher, handler, logger, done)
	}()

	logger.Info("watching run folder",
		logging.String(logging.FieldRun, filepath.Base(opts.RunFolder)),
		logging.Duration("poll_interval", pollInterval),
	)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var watchErr error
poll:
	for {
		if handler.Complete() {
			logger.Info("run complete, stopping watch",
				logging.String(logging.FieldRun, filepath.Base(opts.RunFolder)),
			)
			break
		}
		select {
		case <-ctx.Done():
			watchErr = ctx.Err()
			break poll
		case <-ticker.C:
		}
	}

	close(done)
	_ = fsWatcher.Close()
	wg.Wait()

	if watchErr != nil && !errors.Is(watchErr, context.Canceled) {
		return watchErr
	}
	return nil
}

// consumeEvents feeds fsnotify events into the handler. Files moved into
// the watched tree surface as Create events on the destination path, so
// Create covers both event kinds (create and move); Rename events name
// the vacated source path and carry no completion information.
func consumeEvents(ctx context.Context, fsWatcher *fsnotify.Watcher, handler *Handler, logger *slog.Logger, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				// The path may have been renamed away already; the
				// handler logs vanished paths itself for files it cares
				// about.
				handler.OnCreated(ctx, event.Name)
				continue
			}
			if info.IsDir() {
				if err := addWatchTree(fsWatcher, event.Name); err != nil {
					logger.Warn("failed to watch new directory",
						logging.String("path", event.Name),
						logging.Error(err),
					)
				}
				// Files may have landed before the watch was in place.
				replayDirectory(ctx, handler, event.Name, logger)
				continue
			}
			handler.OnCreated(ctx, event.Name)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Warn("filesystem watch error", logging.Error(err))
		}
	}
}

// addWatchTree registers path and every subdirectory with the watcher.
func addWatchTree(fsWatcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return fsWatcher.Add(path)
		}
		return nil
	})
}

func replayDirectory(ctx context.Context, handler *Handler, dir string, logger *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("failed to list new directory", logging.String("path", dir), logging.Error(err))
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			handler.OnCreated(ctx, filepath.Join(dir, entry.Name()))
		}
	}
}
