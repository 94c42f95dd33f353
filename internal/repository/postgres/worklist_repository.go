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

// WorklistRepository persists worklists and their entries.
type WorklistRepository struct {
	db *sqlx.DB
}

// NewWorklistRepository constructs the repository.
func NewWorklistRepository(db *sqlx.DB) *WorklistRepository {
	return &WorklistRepository{db: db}
}

// Create inserts the worklist and its entries in one transaction, keeping
// the stored position equal to the slice order.
func (r *WorklistRepository) Create(ctx context.Context, worklist *domain.Worklist) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("worklists: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO worklists (id, name, created_at)
		VALUES ($1, $2, $3)`, worklist.ID, worklist.Name, worklist.CreatedAt); err != nil {
		return fmt.Errorf("worklists: insert: %w", err)
	}

	if len(worklist.Entries) > 0 {
		query := `INSERT INTO worklist_entries (
			worklist_id, position, entry_id, phone_number, display_name, selection_id, request_id
		) VALUES (:worklist_id, :position, :entry_id, :phone_number, :display_name, :selection_id, :request_id)`

		rows := make([]map[string]any, 0, len(worklist.Entries))
		for i, entry := range worklist.Entries {
			rows = append(rows, map[string]any{
				"worklist_id":  worklist.ID,
				"position":     i,
				"entry_id":     entry.ID,
				"phone_number": entry.Number,
				"display_name": entry.Name,
				"selection_id": entry.SelectionID,
				"request_id":   entry.RequestID,
			})
		}
		if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
			return fmt.Errorf("worklists: insert entries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("worklists: commit: %w", err)
	}
	return nil
}

type worklistRow struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type entryRow struct {
	EntryID     string `db:"entry_id"`
	PhoneNumber string `db:"phone_number"`
	DisplayName string `db:"display_name"`
	SelectionID string `db:"selection_id"`
	RequestID   string `db:"request_id"`
}

// Get loads a worklist with its entries in stored order.
func (r *WorklistRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Worklist, error) {
	var row worklistRow
	if err := r.db.GetContext(ctx, &row, `SELECT id, name, created_at FROM worklists WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("worklists: get: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT entry_id, phone_number, display_name, selection_id, request_id
		FROM worklist_entries
		WHERE worklist_id = $1
		ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("worklists: list entries: %w", err)
	}
	defer rows.Close()

	worklist := &domain.Worklist{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt}
	for rows.Next() {
		var e entryRow
		if err := rows.StructScan(&e); err != nil {
			return nil, fmt.Errorf("worklists: scan entry: %w", err)
		}
		worklist.Entries = append(worklist.Entries, domain.WorklistEntry{
			ID:          e.EntryID,
			Number:      e.PhoneNumber,
			Name:        e.DisplayName,
			SelectionID: e.SelectionID,
			RequestID:   e.RequestID,
			Status:      domain.QueueStatusPending,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("worklists: rows err: %w", err)
	}

	return worklist, nil
}
