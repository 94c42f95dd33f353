package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
)

// CallStatusEvent is published for every finalized call attempt, manual or
// auto-dial. Consumers persist attempt history and run statistics from it.
type CallStatusEvent struct {
	SessionID  uuid.UUID            `json:"session_id"`
	RunID      uuid.UUID            `json:"run_id,omitempty"`
	EntryID    string               `json:"entry_id,omitempty"`
	EntryIndex int                  `json:"entry_index"`
	Number     string               `json:"number"`
	Identity   string               `json:"identity"`
	Outcome    domain.AttemptStatus `json:"outcome"`
	CallSID    string               `json:"call_sid,omitempty"`
	DurationMs int64                `json:"duration_ms"`
	Error      string               `json:"error,omitempty"`
	AutoDial   bool                 `json:"auto_dial"`
	OccurredAt time.Time            `json:"occurred_at"`
}
