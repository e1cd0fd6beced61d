package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fovwatch/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes; a mismatched
// database must be deleted and recreated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match
// the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// FOV dispatch outcomes.
const (
	StateProcessed = "processed"
	StateTimedOut  = "timed_out"
	StateFailed    = "failed"
)

const timeLayout = time.RFC3339

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the ledger database under the
// configured ledger directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LedgerDir, "ledger.db"))
}

// OpenPath initializes or connects to the ledger database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete the ledger database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// BeginRun records the start of a watch session and returns the run row id.
func (s *Store) BeginRun(ctx context.Context, runFolder, sessionID string, totalFOVs int) (int64, error) {
	res, err := s.execWithRetry(ctx,
		"INSERT INTO runs (run_folder, session_id, total_fovs, started_at) VALUES (?, ?, ?, ?)",
		runFolder, sessionID, totalFOVs, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("begin run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run row id: %w", err)
	}
	return id, nil
}

func (s *Store) recordFOV(ctx context.Context, runID int64, fovID string, ordinal int, state, detail string) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO run_fovs (run_id, fov_id, ordinal, state, detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, fov_id) DO UPDATE SET state=excluded.state, detail=excluded.detail, recorded_at=excluded.recorded_at`,
		runID, fovID, ordinal, state, detail, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record fov %s: %w", fovID, err)
	}
	return nil
}

// MarkProcessed records a successful per-FOV dispatch.
func (s *Store) MarkProcessed(ctx context.Context, runID int64, fovID string, ordinal int) error {
	return s.recordFOV(ctx, runID, fovID, ordinal, StateProcessed, "")
}

// MarkTimedOut records a FOV dropped by the zero-size timeout.
func (s *Store) MarkTimedOut(ctx context.Context, runID int64, fovID string, ordinal int, detail string) error {
	return s.recordFOV(ctx, runID, fovID, ordinal, StateTimedOut, detail)
}

// MarkFailed records a FOV whose callback returned an error.
func (s *Store) MarkFailed(ctx context.Context, runID int64, fovID string, ordinal int, detail string) error {
	return s.recordFOV(ctx, runID, fovID, ordinal, StateFailed, detail)
}

// MarkRunComplete stamps the run row's completion time.
func (s *Store) MarkRunComplete(ctx context.Context, runID int64) error {
	_, err := s.execWithRetry(ctx,
		"UPDATE runs SET completed_at = ? WHERE id = ? AND completed_at IS NULL",
		time.Now().UTC().Format(timeLayout), runID,
	)
	if err != nil {
		return fmt.Errorf("mark run complete: %w", err)
	}
	return nil
}
