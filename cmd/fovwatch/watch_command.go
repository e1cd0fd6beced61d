package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fovwatch/internal/config"
	"fovwatch/internal/hooks"
	"fovwatch/internal/ledger"
	"fovwatch/internal/logging"
	"fovwatch/internal/manifest"
	"fovwatch/internal/notifications"
	"fovwatch/internal/preflight"
	"fovwatch/internal/watcher"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		logFolderFlag   string
		pollInterval    int
		zeroSizeTimeout int
	)

	cmd := &cobra.Command{
		Use:   "watch <run-folder>",
		Short: "Watch a run folder until every FOV completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runFolder, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve run folder: %w", err)
			}

			if pollInterval > 0 {
				cfg.Watcher.CompletionPollInterval = pollInterval
			}
			if zeroSizeTimeout > 0 {
				cfg.Watcher.ZeroSizeTimeout = zeroSizeTimeout
			}
			logFolder := cfg.Paths.LogDir
			if trimmed := strings.TrimSpace(logFolderFlag); trimmed != "" {
				if logFolder, err = config.ExpandPath(trimmed); err != nil {
					return fmt.Errorf("resolve log folder: %w", err)
				}
			}

			return runWatch(cmd, cfg, runFolder, logFolder)
		},
	}

	cmd.Flags().StringVar(&logFolderFlag, "log-folder", "", "Override the per-run log directory")
	cmd.Flags().IntVar(&pollInterval, "poll-interval", 0, "Completion check interval in seconds")
	cmd.Flags().IntVar(&zeroSizeTimeout, "zero-size-timeout", 0, "Zero-size file wait budget in seconds")
	return cmd
}

func runWatch(cmd *cobra.Command, cfg *config.Config, runFolder, logFolder string) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if failed := preflight.Failed(preflight.Run(cfg, runFolder)); len(failed) > 0 {
		for _, result := range failed {
			fmt.Fprintf(cmd.ErrOrStderr(), "preflight: %s: %s\n", result.Name, result.Detail)
		}
		return errors.New("preflight checks failed")
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	runName := filepath.Base(runFolder)

	// One watcher per run folder; a second invocation would double-fire
	// callbacks.
	lockPath := filepath.Join(cfg.Paths.LedgerDir, runName+".lock")
	runLock := flock.New(lockPath)
	locked, err := runLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another fovwatch instance is already watching %s", runFolder)
	}
	defer func() { _ = runLock.Unlock() }()

	store, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	callbacks := hooks.FromConfig(cfg, logger)

	run, err := manifest.Load(runFolder)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	runID, err := store.BeginRun(signalCtx, runFolder, sessionID, run.TotalFOVs())
	if err != nil {
		return fmt.Errorf("record watch session: %w", err)
	}

	logger.Info("starting watch session",
		logging.String(logging.FieldRun, runName),
		logging.String(logging.FieldSessionID, sessionID),
		logging.Int("total_fovs", run.TotalFOVs()),
	)
	if err := notifier.NotifyRunStarted(signalCtx, runName, run.TotalFOVs()); err != nil {
		logger.Warn("run-started notification failed", logging.Error(err))
	}

	err = watcher.Watch(signalCtx, watcher.WatchOptions{
		RunFolder:       runFolder,
		LogFolder:       logFolder,
		PollInterval:    cfg.CompletionPollInterval(),
		ZeroSizeTimeout: cfg.ZeroSizeTimeout(),
		Callbacks:       callbacks,
		Logger:          logger,
		Ledger:          store,
		LedgerRunID:     runID,
		Notifier:        notifier,
	})
	if err != nil {
		_ = notifier.NotifyError(signalCtx, err, "watch session "+runName)
		return err
	}

	logger.Info("watch session finished", logging.String(logging.FieldRun, runName))
	return nil
}
