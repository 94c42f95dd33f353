package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	apperrors "github.com/FinalPatel1678/twilio-voice-sdk/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// WorklistRepository stores worklists and their ordered entries.
type WorklistRepository interface {
	Create(ctx context.Context, worklist *domain.Worklist) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Worklist, error)
}

// RunRepository records auto-dial runs and their outcome counters.
type RunRepository interface {
	StartRun(ctx context.Context, run *domain.DialRun) error
	CloseRun(ctx context.Context, runID uuid.UUID, stoppedAt time.Time) error
	ApplyDelta(ctx context.Context, runID uuid.UUID, delta StatsDelta) error
	GetStats(ctx context.Context, runID uuid.UUID) (*domain.RunStats, error)
}

// AttemptStore persists finalized call attempts.
type AttemptStore interface {
	AppendAttempt(ctx context.Context, record AttemptRecord) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int, pagingState []byte) ([]AttemptRecord, []byte, error)
}

// AttemptRecord is the storage representation of one finalized attempt.
type AttemptRecord struct {
	ID         uuid.UUID
	SessionID  uuid.UUID
	RunID      uuid.UUID
	EntryID    string
	Number     string
	Outcome    domain.AttemptStatus
	CallSID    string
	Error      string
	Duration   time.Duration
	AutoDial   bool
	OccurredAt time.Time
}

// StatsDelta captures atomic counter increments for a run.
type StatsDelta struct {
	PlacedDelta    int64
	CompletedDelta int64
	FailedDelta    int64
	VoicemailDelta int64
	NoAnswerDelta  int64
	BusyDelta      int64
	CanceledDelta  int64
	SkippedDelta   int64
}

// DeltaForOutcome maps a final attempt outcome to its counter delta.
func DeltaForOutcome(outcome domain.AttemptStatus) StatsDelta {
	delta := StatsDelta{PlacedDelta: 1}
	switch outcome {
	case domain.AttemptSuccess:
		delta.CompletedDelta = 1
	case domain.AttemptVoicemail:
		delta.VoicemailDelta = 1
	case domain.AttemptNoAnswer:
		delta.NoAnswerDelta = 1
	case domain.AttemptBusy:
		delta.BusyDelta = 1
	case domain.AttemptCanceled:
		delta.CanceledDelta = 1
	default:
		delta.FailedDelta = 1
	}
	return delta
}
