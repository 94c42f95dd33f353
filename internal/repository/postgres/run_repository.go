package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/repository"
)

// RunRepository implements repository.RunRepository.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository builds the repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// StartRun inserts the run record together with its zeroed counter row.
func (r *RunRepository) StartRun(ctx context.Context, run *domain.DialRun) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dial runs: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO dial_runs (id, session_id, worklist_id, identity, total_entries, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.SessionID, run.WorklistID, run.Identity, run.TotalEntries, run.StartedAt); err != nil {
		return fmt.Errorf("dial runs: insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO dial_run_stats (run_id)
		VALUES ($1) ON CONFLICT (run_id) DO NOTHING`, run.ID); err != nil {
		return fmt.Errorf("dial runs: ensure stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dial runs: commit: %w", err)
	}
	return nil
}

// CloseRun stamps the stop time.
func (r *RunRepository) CloseRun(ctx context.Context, runID uuid.UUID, stoppedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE dial_runs SET stopped_at = $2 WHERE id = $1 AND stopped_at IS NULL`, runID, stoppedAt)
	if err != nil {
		return fmt.Errorf("dial runs: close: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ApplyDelta applies counter deltas atomically.
func (r *RunRepository) ApplyDelta(ctx context.Context, runID uuid.UUID, delta repository.StatsDelta) error {
	_, err := r.db.ExecContext(ctx, `UPDATE dial_run_stats SET
		placed = placed + $2,
		completed = completed + $3,
		failed = failed + $4,
		voicemail = voicemail + $5,
		no_answer = no_answer + $6,
		busy = busy + $7,
		canceled = canceled + $8,
		skipped = skipped + $9,
		updated_at = NOW()
	WHERE run_id = $1`,
		runID,
		delta.PlacedDelta,
		delta.CompletedDelta,
		delta.FailedDelta,
		delta.VoicemailDelta,
		delta.NoAnswerDelta,
		delta.BusyDelta,
		delta.CanceledDelta,
		delta.SkippedDelta,
	)
	if err != nil {
		return fmt.Errorf("dial runs: apply delta: %w", err)
	}
	return nil
}

// GetStats retrieves the counters for a run.
func (r *RunRepository) GetStats(ctx context.Context, runID uuid.UUID) (*domain.RunStats, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT placed, completed, failed, voicemail, no_answer, busy, canceled, skipped
		FROM dial_run_stats WHERE run_id = $1`, runID)

	var stats domain.RunStats
	if err := row.StructScan(&stats); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("dial runs: get stats: %w", err)
	}
	return &stats, nil
}
