package runstate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fovwatch/internal/logging"
	"fovwatch/internal/manifest"
)

// File kinds required for FOV completion.
const (
	KindBin  = "bin"
	KindJSON = "json"
)

const (
	// defaultTimeout applies when a Tracker is constructed without an
	// explicit zero-size budget.
	defaultTimeout = 10 * time.Minute

	// zeroSizePollDivisor sets the poll cadence for the zero-size wait:
	// one check every timeout/zeroSizePollDivisor.
	zeroSizePollDivisor = 10
)

// TimeoutError reports a file that never reached non-zero size within the
// configured budget. The affected FOV has been dropped from tracking.
type TimeoutError struct {
	Path    string
	FOV     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s to become non-empty", e.Timeout, e.Path)
}

// IsTimeout reports whether err is a zero-size timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Tracker maps FOV identifier → per-kind completion flags for one run.
// It is not safe for concurrent use; the orchestrator serializes access.
type Tracker struct {
	timeout time.Duration
	logger  *slog.Logger
	run     *manifest.Run

	progress  map[string]map[string]bool
	processed map[string]struct{}
	moly      map[string]struct{}

	// sleep is swappable in tests.
	sleep func(time.Duration)
}

// NewTracker parses the manifest inside runFolder and builds the expected
// completion structure. A non-positive timeout selects the default budget.
func NewTracker(runFolder string, timeout time.Duration, logger *slog.Logger) (*Tracker, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	run, err := manifest.Load(runFolder)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		timeout:   timeout,
		logger:    logging.NewComponentLogger(logger, "runstate"),
		run:       run,
		progress:  make(map[string]map[string]bool, len(run.FOVs)),
		processed: make(map[string]struct{}),
		moly:      make(map[string]struct{}),
		sleep:     time.Sleep,
	}
	for _, fov := range run.FOVs {
		t.progress[fov.ID] = map[string]bool{
			KindBin:  false,
			KindJSON: false,
		}
		if fov.Moly {
			t.moly[fov.ID] = struct{}{}
		}
	}
	return t, nil
}

// Run returns the parsed manifest backing this tracker.
func (t *Tracker) Run() *manifest.Run {
	return t.run
}

// CheckRunCondition inspects an observed file path and updates completion
// flags. It returns ready=true once both kinds for the FOV have been seen
// with non-zero size. A *TimeoutError is returned when the file never left
// zero size; the FOV entry has already been removed in that case.
func (t *Tracker) CheckRunCondition(path string) (bool, string, error) {
	filename := filepath.Base(path)

	// Hidden files are editor/instrument temp artifacts.
	if strings.HasPrefix(filename, ".") {
		return false, "", nil
	}

	parts := strings.Split(filename, ".")
	if len(parts) != 2 {
		t.logger.Warn("skipping file with unrecognized name",
			logging.String("file", filename),
			logging.String(logging.FieldEventType, "fov_file_malformed"),
		)
		return false, "", nil
	}
	fovID, ext := parts[0], parts[1]

	if _, err := os.Stat(path); err != nil {
		t.logger.Warn("recently created path vanished before inspection",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "fov_file_vanished"),
		)
		return false, "", nil
	}

	// Duplicate events for an already-dispatched FOV are no-ops.
	if t.IsProcessed(fovID) {
		return false, fovID, nil
	}

	// Calibration points are never processed.
	if t.IsMoly(fovID) {
		return false, fovID, nil
	}

	kinds, known := t.progress[fovID]
	if !known {
		if ext == KindBin {
			t.logger.Warn("found unexpected bin file",
				logging.String("path", path),
				logging.String(logging.FieldEventType, "fov_bin_unexpected"),
			)
		}
		return false, "", nil
	}

	if _, tracked := kinds[ext]; tracked {
		if err := t.waitNonZeroSize(path, fovID); err != nil {
			if errors.Is(err, errVanished) {
				return false, fovID, nil
			}
			return false, fovID, err
		}
		kinds[ext] = true
	}

	for _, seen := range kinds {
		if !seen {
			return false, fovID, nil
		}
	}
	return true, fovID, nil
}

// errVanished marks a file that disappeared during the zero-size wait.
// The kind flag must stay unset: the file was never observed at non-zero
// size, so treating it as seen would fabricate completion.
var errVanished = errors.New("file vanished during zero-size wait")

// waitNonZeroSize blocks until path has non-zero size, polling every
// timeout/zeroSizePollDivisor. On budget exhaustion the FOV entry is
// deleted and a *TimeoutError returned: a file the instrument never
// flushes will not recover, and leaving the entry would stall the run
// completion check forever.
func (t *Tracker) waitNonZeroSize(path, fovID string) error {
	poll := t.timeout / zeroSizePollDivisor
	var waited time.Duration
	for {
		info, err := os.Stat(path)
		if err != nil {
			t.logger.Warn("file vanished during zero-size wait",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "fov_file_vanished"),
			)
			return errVanished
		}
		if info.Size() > 0 {
			return nil
		}
		if waited >= t.timeout {
			delete(t.progress, fovID)
			return &TimeoutError{Path: path, FOV: fovID, Timeout: t.timeout}
		}
		t.sleep(poll)
		waited += poll
	}
}

// Processed records that the per-FOV callback has been dispatched for
// fovID. Duplicate calls are harmless; membership is all that is read.
func (t *Tracker) Processed(fovID string) {
	t.processed[fovID] = struct{}{}
}

// IsProcessed reports whether fovID has already been dispatched.
func (t *Tracker) IsProcessed(fovID string) bool {
	_, ok := t.processed[fovID]
	return ok
}

// IsMoly reports whether fovID is a calibration point.
func (t *Tracker) IsMoly(fovID string) bool {
	_, ok := t.moly[fovID]
	return ok
}

// Known reports whether fovID is still being tracked.
func (t *Tracker) Known(fovID string) bool {
	_, ok := t.progress[fovID]
	return ok
}

// ForceComplete marks every kind flag for fovID as observed. Backfill uses
// this when a later FOV's arrival implies fovID must already be fully
// written even though its own events were missed.
func (t *Tracker) ForceComplete(fovID string) {
	kinds, ok := t.progress[fovID]
	if !ok {
		return
	}
	for kind := range kinds {
		kinds[kind] = true
	}
}

// CheckFOVProgress reports, for every non-moly FOV still tracked, whether
// all of its kind flags are set. Whole-run completion is every value true.
func (t *Tracker) CheckFOVProgress() map[string]bool {
	result := make(map[string]bool, len(t.progress))
	for fovID, kinds := range t.progress {
		if t.IsMoly(fovID) {
			continue
		}
		done := true
		for _, seen := range kinds {
			if !seen {
				done = false
				break
			}
		}
		result[fovID] = done
	}
	return result
}

// Complete reports whether every non-moly FOV has all flags set.
func (t *Tracker) Complete() bool {
	for _, done := range t.CheckFOVProgress() {
		if !done {
			return false
		}
	}
	return true
}
