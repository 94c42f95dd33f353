package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/repository"
)

// AttemptStore persists finalized call attempts in Scylla, partitioned by
// session and daily bucket so a session's history reads sequentially.
type AttemptStore struct {
	session *gocql.Session
}

// NewAttemptStore creates a new attempt store.
func NewAttemptStore(session *gocql.Session) *AttemptStore {
	return &AttemptStore{session: session}
}

// AppendAttempt inserts one attempt record.
func (s *AttemptStore) AppendAttempt(ctx context.Context, record repository.AttemptRecord) error {
	bucket := bucketDate(record.OccurredAt)
	if err := s.session.Query(`INSERT INTO attempts_by_session (session_id, bucket, attempt_id, run_id, entry_id, phone_number, outcome, call_sid, error, duration_ms, auto_dial, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID.String(), bucket, record.ID.String(), record.RunID.String(), record.EntryID,
		record.Number, string(record.Outcome), record.CallSID, record.Error,
		record.Duration.Milliseconds(), record.AutoDial, record.OccurredAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt store: insert attempts_by_session: %w", err)
	}
	return nil
}

// ListBySession pages through a session's attempts.
func (s *AttemptStore) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int, pagingState []byte) ([]repository.AttemptRecord, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.session.Query(`SELECT bucket, attempt_id, run_id, entry_id, phone_number, outcome, call_sid, error, duration_ms, auto_dial, occurred_at
		FROM attempts_by_session WHERE session_id = ?`, sessionID.String()).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	records := make([]repository.AttemptRecord, 0, limit)

	var (
		bucket     time.Time
		attemptID  string
		runID      string
		entryID    string
		number     string
		outcome    string
		callSID    string
		errText    string
		durationMs int64
		autoDial   bool
		occurredAt time.Time
	)

	for iter.Scan(&bucket, &attemptID, &runID, &entryID, &number, &outcome, &callSID, &errText, &durationMs, &autoDial, &occurredAt) {
		id, err := uuid.Parse(attemptID)
		if err != nil {
			continue
		}
		run, err := uuid.Parse(runID)
		if err != nil {
			run = uuid.Nil
		}

		records = append(records, repository.AttemptRecord{
			ID:         id,
			SessionID:  sessionID,
			RunID:      run,
			EntryID:    entryID,
			Number:     number,
			Outcome:    domain.AttemptStatus(outcome),
			CallSID:    callSID,
			Error:      errText,
			Duration:   time.Duration(durationMs) * time.Millisecond,
			AutoDial:   autoDial,
			OccurredAt: occurredAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("attempt store: iter close: %w", err)
	}

	nextState := iter.PageState()
	if len(records) < limit {
		nextState = nil
	}
	return records, nextState, nil
}

func bucketDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
