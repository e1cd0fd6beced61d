package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fovwatch/internal/ledger"
	"fovwatch/internal/logging"
	"fovwatch/internal/manifest"
	"fovwatch/internal/notifications"
	"fovwatch/internal/runstate"
	"fovwatch/internal/textutil"
)

// HandlerOptions configures Handler construction.
type HandlerOptions struct {
	RunFolder string
	LogFolder string
	// ZeroSizeTimeout bounds the wait for a FOV file to become non-empty.
	ZeroSizeTimeout time.Duration
	Callbacks       Callbacks
	Logger          *slog.Logger
	// Ledger is optional; when nil, no persistence happens.
	Ledger *ledger.Store
	// LedgerRunID identifies the run row dispatch outcomes attach to.
	LedgerRunID int64
	// Notifier is optional; nil disables push notifications.
	Notifier notifications.Service
}

// Handler consumes filesystem events for one run and invokes callbacks
// exactly once per completed FOV and once for the whole run.
type Handler struct {
	runFolder string
	tracker   *runstate.Tracker
	runLog    *logging.RunLog
	logger    *slog.Logger
	store     *ledger.Store
	runID     int64
	notifier  notifications.Service
	callbacks Callbacks

	// mu serializes all event handling, including the zero-size wait.
	mu sync.Mutex

	// lastProcessed is the highest FOV ordinal whose callback sequence
	// has completed; gaps above it trigger backfill.
	lastProcessed int
	// completed latches whole-run completion so the per-run callback
	// fires exactly once.
	completed bool
	// release frees state held by the previous intermediate callback.
	release func()

	processedCount int
	timedOutCount  int
}

// NewHandler parses the run manifest, opens the run log, and replays a
// synthetic creation event for every pre-existing file in natural numeric
// order, so starting the watcher late is equivalent to starting it early.
func NewHandler(ctx context.Context, opts HandlerOptions) (*Handler, error) {
	runLog, err := logging.NewRunLog(opts.RunFolder, opts.LogFolder)
	if err != nil {
		return nil, err
	}

	tracker, err := runstate.NewTracker(opts.RunFolder, opts.ZeroSizeTimeout, opts.Logger)
	if err != nil {
		return nil, err
	}

	h := &Handler{
		runFolder: opts.RunFolder,
		tracker:   tracker,
		runLog:    runLog,
		logger:    logging.NewComponentLogger(opts.Logger, "watcher"),
		store:     opts.Ledger,
		runID:     opts.LedgerRunID,
		notifier:  opts.Notifier,
		callbacks: opts.Callbacks,
	}

	if err := h.replayExisting(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// replayExisting walks the run folder and dispatches a creation event per
// file, natural-sorted per directory so fov-2 precedes fov-10.
func (h *Handler) replayExisting(ctx context.Context) error {
	return filepath.WalkDir(h.runFolder, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		textutil.SortNatural(names)
		for _, name := range names {
			h.OnCreated(ctx, filepath.Join(path, name))
		}
		return nil
	})
}

// Tracker exposes the underlying run structure for the watch loop's
// completion polling.
func (h *Handler) Tracker() *runstate.Tracker {
	return h.tracker
}

// RunLogPath returns the per-run text log location.
func (h *Handler) RunLogPath() string {
	return h.runLog.Path()
}

// Complete reports whole-run completion. Safe for concurrent use with
// event handling.
func (h *Handler) Complete() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracker.Complete()
}

// OnCreated handles a file creation event for path.
func (h *Handler) OnCreated(ctx context.Context, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handleEvent(ctx, path)
	h.checkLastFOV(ctx, path)
}

// OnMoved handles a file moved to destPath. Moves into the watched tree
// carry the same completion information as creations.
func (h *Handler) OnMoved(ctx context.Context, destPath string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handleEvent(ctx, destPath)
	h.checkLastFOV(ctx, destPath)
}

// Close releases any state held by the last intermediate callback.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.release != nil {
		h.release()
		h.release = nil
	}
}

func (h *Handler) handleEvent(ctx context.Context, path string) {
	h.processMissedFOVs(ctx, path)

	ready, fovID, err := h.tracker.CheckRunCondition(path)
	if err != nil {
		if runstate.IsTimeout(err) {
			h.handleTimeout(ctx, path, fovID, err)
		} else {
			h.logger.Error("run condition check failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "fov_check_failed"),
			)
		}
		return
	}
	if !ready {
		return
	}

	h.dispatchFOV(ctx, fovID)
	if ordinal, _, ok := manifest.ParseFOVID(fovID); ok {
		h.advanceMarker(ordinal)
	}
}

// processMissedFOVs backfills FOVs whose creation events were dropped.
// Only scan-1 bin paths are meaningful: later scans carry no new
// completion information. By the time a later FOV's bin file appears,
// earlier FOVs are already fully written, so the skipped ordinals are
// force-completed and dispatched in order.
func (h *Handler) processMissedFOVs(ctx context.Context, path string) {
	name, ext, ok := splitFilename(path)
	if !ok || ext != runstate.KindBin {
		return
	}
	ordinal, scan, ok := manifest.ParseFOVID(name)
	if !ok || scan != 1 {
		return
	}
	if ordinal <= h.lastProcessed+1 {
		return
	}
	for i := h.lastProcessed + 1; i < ordinal; i++ {
		h.dispatchOrdinal(ctx, i)
	}
}

// checkLastFOV eagerly finishes the run when a file of the final FOV
// arrives: the last FOV has no successor whose arrival would trigger
// backfill, so everything outstanding is dispatched and completion
// checked on the spot.
func (h *Handler) checkLastFOV(ctx context.Context, path string) {
	name, _, ok := splitFilename(path)
	if !ok {
		return
	}
	ordinal, _, ok := manifest.ParseFOVID(name)
	if !ok {
		return
	}
	lastOrdinal := h.tracker.Run().MaxRunOrder()
	if ordinal != lastOrdinal {
		return
	}
	for i := h.lastProcessed + 1; i <= lastOrdinal; i++ {
		h.dispatchOrdinal(ctx, i)
	}
	h.checkComplete(ctx)
}

// dispatchOrdinal force-completes and dispatches the scan-1 FOV at the
// given ordinal, skipping moly points and already-processed FOVs.
func (h *Handler) dispatchOrdinal(ctx context.Context, ordinal int) {
	defer h.advanceMarker(ordinal)

	fovID := manifest.FOVID(ordinal, 1)
	if h.tracker.IsProcessed(fovID) || h.tracker.IsMoly(fovID) {
		return
	}
	if !h.tracker.Known(fovID) {
		// Timed-out FOVs are skipped, never retried.
		return
	}
	h.tracker.ForceComplete(fovID)
	h.dispatchFOV(ctx, fovID)
}

// dispatchFOV runs the per-FOV callback sequence: run-log lines, the FOV
// callback, processed bookkeeping, and the intermediate callback with
// release of the previous invocation's state.
func (h *Handler) dispatchFOV(ctx context.Context, fovID string) {
	h.logger.Info("discovered FOV, beginning per-fov callbacks",
		logging.String(logging.FieldFOV, fovID),
		logging.String(logging.FieldEventType, "fov_discovered"),
	)
	h.logRunf("Extracting %s", fovID)
	h.logRunf("Running per-fov callback on %s", fovID)

	ordinal, _, _ := manifest.ParseFOVID(fovID)

	var callbackErr error
	if h.callbacks.FOV != nil {
		callbackErr = h.callbacks.FOV(ctx, h.runFolder, fovID)
	}
	// A failing callback is logged and the FOV still marked processed:
	// retrying would break ordering and a daemon supervising a multi-hour
	// acquisition must outlive one bad FOV.
	if callbackErr != nil {
		h.logger.Error("per-fov callback failed",
			logging.String(logging.FieldFOV, fovID),
			logging.Error(callbackErr),
			logging.String(logging.FieldEventType, "fov_callback_failed"),
		)
		h.logRunf("Callback failed on %s: %v", fovID, callbackErr)
		h.recordLedger(ctx, func() error {
			return h.store.MarkFailed(ctx, h.runID, fovID, ordinal, callbackErr.Error())
		})
		if h.notifier != nil {
			_ = h.notifier.NotifyError(ctx, callbackErr, "per-fov callback: "+fovID)
		}
	} else {
		h.recordLedger(ctx, func() error {
			return h.store.MarkProcessed(ctx, h.runID, fovID, ordinal)
		})
	}

	h.tracker.Processed(fovID)
	h.processedCount++

	h.runIntermediate(ctx)
	h.checkComplete(ctx)
}

func (h *Handler) runIntermediate(ctx context.Context) {
	if h.callbacks.Intermediate == nil {
		return
	}
	// State held by the previous invocation is stale once a new FOV has
	// been processed; free it before re-running.
	if h.release != nil {
		h.release()
		h.release = nil
	}
	release, err := h.callbacks.Intermediate(ctx, h.runFolder)
	if err != nil {
		h.logger.Error("intermediate callback failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "intermediate_callback_failed"),
		)
		return
	}
	h.release = release
}

func (h *Handler) handleTimeout(ctx context.Context, path, fovID string, err error) {
	h.logger.Error("FOV file never reached non-zero size",
		logging.String("path", path),
		logging.String(logging.FieldFOV, fovID),
		logging.Error(err),
		logging.String(logging.FieldEventType, "fov_timeout"),
	)
	h.logRunf("%s never reached non-zero file size...", path)

	h.timedOutCount++
	if ordinal, _, ok := manifest.ParseFOVID(fovID); ok {
		h.recordLedger(ctx, func() error {
			return h.store.MarkTimedOut(ctx, h.runID, fovID, ordinal, err.Error())
		})
		// A timed-out FOV counts as resolved; skip past it so backfill
		// never tries to revive it.
		h.advanceMarker(ordinal)
	}
	if h.notifier != nil {
		_ = h.notifier.NotifyFOVTimeout(ctx, filepath.Base(h.runFolder), fovID)
	}

	// The tracker entry is gone, so the remaining FOVs may now satisfy
	// whole-run completion.
	h.checkComplete(ctx)
}

// checkComplete dispatches the per-run callback once every non-moly FOV
// shows all flags true. The latch guarantees a single invocation even
// when completion is re-checked by late events or the last-FOV pass.
func (h *Handler) checkComplete(ctx context.Context) {
	if h.completed || !h.tracker.Complete() {
		return
	}
	h.completed = true

	h.logger.Info("all FOVs finished",
		logging.Int("processed", h.processedCount),
		logging.Int("timed_out", h.timedOutCount),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	h.logRunf("All FOVs finished")
	h.logRunf("Running per-run callback on whole run")

	if h.callbacks.Run != nil {
		if err := h.callbacks.Run(ctx, h.runFolder); err != nil {
			h.logger.Error("per-run callback failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "run_callback_failed"),
			)
			if h.notifier != nil {
				_ = h.notifier.NotifyError(ctx, err, "per-run callback")
			}
		}
	}

	h.recordLedger(ctx, func() error {
		return h.store.MarkRunComplete(ctx, h.runID)
	})
	if h.notifier != nil {
		_ = h.notifier.NotifyRunCompleted(ctx, filepath.Base(h.runFolder), h.processedCount, h.timedOutCount)
	}
}

func (h *Handler) advanceMarker(ordinal int) {
	if ordinal > h.lastProcessed {
		h.lastProcessed = ordinal
	}
}

func (h *Handler) logRunf(format string, args ...any) {
	if err := h.runLog.Printf(format, args...); err != nil {
		h.logger.Warn("run log write failed", logging.Error(err))
	}
}

func (h *Handler) recordLedger(ctx context.Context, op func() error) {
	if h.store == nil {
		return
	}
	if err := op(); err != nil {
		h.logger.Warn("ledger update failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "ledger_write_failed"),
		)
	}
}

func splitFilename(path string) (name, ext string, ok bool) {
	filename := filepath.Base(path)
	if strings.HasPrefix(filename, ".") {
		return "", "", false
	}
	parts := strings.Split(filename, ".")
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
