package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueueStatus enumerates the lifecycle of a worklist entry within one run.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// AttemptStatus classifies how a call attempt ended.
type AttemptStatus string

const (
	AttemptSuccess       AttemptStatus = "success"
	AttemptVoicemail     AttemptStatus = "voicemail"
	AttemptNoAnswer      AttemptStatus = "no-answer"
	AttemptBusy          AttemptStatus = "busy"
	AttemptFailed        AttemptStatus = "failed"
	AttemptCanceled      AttemptStatus = "canceled"
	AttemptRejected      AttemptStatus = "rejected"
	AttemptInvalidNumber AttemptStatus = "invalid-number"
	AttemptError         AttemptStatus = "error"
)

// AgentState reflects the device/agent availability shown to callers.
type AgentState string

const (
	AgentConnecting AgentState = "connecting"
	AgentReady      AgentState = "ready"
	AgentOnCall     AgentState = "on_call"
	AgentOffline    AgentState = "offline"
)

// WorklistEntry is one candidate number to dial.
type WorklistEntry struct {
	ID          string
	Number      string
	Name        string
	SelectionID string
	RequestID   string

	Status    QueueStatus
	Attempt   *CallAttempt
	LastError string
}

// CallAttempt records the outcome of one placement for an entry.
// It is created when the call is initiated and refined twice: provisionally
// on disconnect, then finally after outcome classification.
type CallAttempt struct {
	Status     AttemptStatus
	Timestamp  time.Time
	Duration   time.Duration
	CallSID    string
	Error      string
	AnswerTime *time.Time
	EndTime    *time.Time
	Recordings []string
}

// AutoDialState is the progression cursor of one run.
// CurrentIndex is meaningful only while IsActive; IsPaused is meaningful
// only while IsActive.
type AutoDialState struct {
	IsActive     bool
	IsPaused     bool
	CurrentIndex int
}

// CallDetail is the provider call record returned by the call-detail lookup.
type CallDetail struct {
	CallSID    string   `json:"sid"`
	Status     string   `json:"status"`
	AnsweredBy string   `json:"answeredBy"`
	Error      string   `json:"error,omitempty"`
	Recordings []string `json:"recordings,omitempty"`
	Duration   string   `json:"duration,omitempty"`
}

// Worklist is a stored, ordered set of candidates.
type Worklist struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	Entries   []WorklistEntry
}

// DialRun records one start-to-stop auto-dial pass over a worklist.
type DialRun struct {
	ID           uuid.UUID
	SessionID    uuid.UUID
	WorklistID   *uuid.UUID
	Identity     string
	TotalEntries int
	StartedAt    time.Time
	StoppedAt    *time.Time
}

// RunStats aggregates per-run outcome counters.
type RunStats struct {
	Placed    int64 `db:"placed"`
	Completed int64 `db:"completed"`
	Failed    int64 `db:"failed"`
	Voicemail int64 `db:"voicemail"`
	NoAnswer  int64 `db:"no_answer"`
	Busy      int64 `db:"busy"`
	Canceled  int64 `db:"canceled"`
	Skipped   int64 `db:"skipped"`
}
