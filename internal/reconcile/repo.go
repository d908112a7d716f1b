package reconcile

import (
	"context"
	"database/sql"
	"strings"
)

// Repository persists checkpoints and run history in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// LoadCheckpoints returns the full session-to-checkpoint mapping.
func (r *Repository) LoadCheckpoints(ctx context.Context) (map[string]Checkpoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, last_query_epoch
		FROM checkpoints
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checkpoints := make(map[string]Checkpoint)
	for rows.Next() {
		var id string
		var epoch int64
		if err := rows.Scan(&id, &epoch); err != nil {
			return nil, err
		}
		checkpoints[id] = Checkpoint{LastQueryEpoch: epoch}
	}
	return checkpoints, rows.Err()
}

// SaveCheckpoints upserts the whole mapping in one transaction so a cycle's
// bookkeeping lands atomically or not at all.
func (r *Repository) SaveCheckpoints(ctx context.Context, checkpoints map[string]Checkpoint) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for id, cp := range checkpoints {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO checkpoints (session_id, last_query_epoch)
			VALUES ($1, $2)
			ON CONFLICT (session_id) DO UPDATE SET
				last_query_epoch = EXCLUDED.last_query_epoch,
				updated_at = NOW()
		`, id, cp.LastQueryEpoch); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordRun writes one run-history row.
func (r *Repository) RecordRun(ctx context.Context, run Run) error {
	var errText *string
	if len(run.Errors) > 0 {
		joined := strings.Join(run.Errors, "\n")
		errText = &joined
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, sessions_seen, registrations_updated, error_count, errors, aborted)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, run.ID, run.StartedAt, run.FinishedAt, run.Sessions, run.Updated, len(run.Errors), errText, run.Aborted)
	return err
}

// ListRuns returns the most recent runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, sessions_seen, registrations_updated, errors, aborted
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var finished sql.NullTime
		var errText sql.NullString
		if err := rows.Scan(&run.ID, &run.StartedAt, &finished, &run.Sessions, &run.Updated, &errText, &run.Aborted); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		if errText.Valid && errText.String != "" {
			run.Errors = strings.Split(errText.String, "\n")
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ensure Repository satisfies the runner's store contract.
var _ Store = (*Repository)(nil)
