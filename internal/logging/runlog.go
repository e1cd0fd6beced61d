package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// runLogTimestampLayout matches the instrument convention: day first.
const runLogTimestampLayout = "02/01/2006 15:04:05"

// RunLog is the append-only per-run text log consumed by instrument
// operators and downstream tooling. One RunLog exists per watched run;
// writes are serialized by the orchestrator's event lock, so the type
// itself carries no mutex.
type RunLog struct {
	path string
	now  func() time.Time
}

// NewRunLog creates (if needed) logFolder and returns a RunLog writing to
// `<logFolder>/<basename(runFolder)>_log.txt`.
func NewRunLog(runFolder, logFolder string) (*RunLog, error) {
	if err := os.MkdirAll(logFolder, 0o755); err != nil {
		return nil, fmt.Errorf("create log folder: %w", err)
	}
	name := filepath.Base(filepath.Clean(runFolder)) + "_log.txt"
	return &RunLog{
		path: filepath.Join(logFolder, name),
		now:  time.Now,
	}, nil
}

// Path returns the log file location.
func (l *RunLog) Path() string {
	return l.path
}

// Printf appends one timestamped line to the run log.
func (l *RunLog) Printf(format string, args ...any) error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	line := fmt.Sprintf("%s -- %s\n", l.now().Format(runLogTimestampLayout), fmt.Sprintf(format, args...))
	if _, err := file.WriteString(line); err != nil {
		_ = file.Close()
		return fmt.Errorf("append run log: %w", err)
	}
	return file.Close()
}
