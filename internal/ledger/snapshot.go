package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunRecord describes one watch session row.
type RunRecord struct {
	ID          int64
	RunFolder   string
	SessionID   string
	TotalFOVs   int
	StartedAt   time.Time
	CompletedAt *time.Time
}

// FOVRecord describes one dispatched FOV.
type FOVRecord struct {
	FOVID      string
	Ordinal    int
	State      string
	Detail     string
	RecordedAt time.Time
}

// Snapshot is a point-in-time view of a run's ledger rows.
type Snapshot struct {
	Run  RunRecord
	FOVs []FOVRecord
}

// ErrRunNotFound indicates no ledger rows exist for the run folder.
var ErrRunNotFound = errors.New("run not found in ledger")

// LatestSnapshot returns the most recent watch session for runFolder
// together with its FOV rows in ordinal order.
func (s *Store) LatestSnapshot(ctx context.Context, runFolder string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_folder, session_id, total_fovs, started_at, completed_at
		 FROM runs WHERE run_folder = ? ORDER BY id DESC LIMIT 1`, runFolder)

	var (
		rec         RunRecord
		startedAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.RunFolder, &rec.SessionID, &rec.TotalFOVs, &startedAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runFolder)
		}
		return nil, fmt.Errorf("load run row: %w", err)
	}

	var err error
	if rec.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if completedAt.Valid {
		done, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		rec.CompletedAt = &done
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT fov_id, ordinal, state, detail, recorded_at
		 FROM run_fovs WHERE run_id = ? ORDER BY ordinal`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("load fov rows: %w", err)
	}
	defer rows.Close()

	snapshot := &Snapshot{Run: rec}
	for rows.Next() {
		var (
			fov        FOVRecord
			recordedAt string
		)
		if err := rows.Scan(&fov.FOVID, &fov.Ordinal, &fov.State, &fov.Detail, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan fov row: %w", err)
		}
		if fov.RecordedAt, err = time.Parse(timeLayout, recordedAt); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		snapshot.FOVs = append(snapshot.FOVs, fov)
	}
	return snapshot, rows.Err()
}
