package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/phone"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/queue"
	apperrors "github.com/FinalPatel1678/twilio-voice-sdk/pkg/errors"
)

// resolveOutcome classifies a finished auto-dial call and finalizes its
// worklist entry. It runs on the disconnect path before per-call state is
// reset, while the entry and answer timestamp are still intact.
//
// Dedup and in-flight bookkeeping happen before the lookup, so a slow or
// failing lookup can never let the same entry be dialed twice.
func (e *Engine) resolveOutcome(callSID string, entryIdx int, placedAt time.Time, duration time.Duration) {
	now := time.Now()

	e.mu.Lock()
	if entryIdx < 0 || entryIdx >= len(e.worklist) {
		e.mu.Unlock()
		return
	}
	entry := &e.worklist[entryIdx]
	entryID := entry.ID
	number := phone.Sanitize(entry.Number)

	e.dialed.Add(entryID, number)
	delete(e.inFlight, entryID)

	// Provisional attempt so the entry is never outcome-less, even if the
	// process dies mid-lookup.
	var answered *time.Time
	if !e.answerTime.IsZero() {
		t := e.answerTime
		answered = &t
	}
	entry.Attempt = &domain.CallAttempt{
		Status:     domain.AttemptError,
		Timestamp:  placedAt,
		Duration:   duration,
		CallSID:    callSID,
		AnswerTime: answered,
		EndTime:    &now,
	}
	runID := e.runID
	e.mu.Unlock()

	tracer := otel.Tracer("autodial.engine")
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.LookupTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "outcome.resolve", trace.WithAttributes(
		attribute.String("call.sid", callSID),
		attribute.Int("entry.index", entryIdx),
	))
	defer span.End()

	var (
		detail    *domain.CallDetail
		lookupErr error
	)
	if e.opts.Lookup == nil {
		lookupErr = fmt.Errorf("%w: no call detail fetcher configured", apperrors.ErrOutcomeLookup)
	} else {
		detail, lookupErr = e.opts.Lookup.FetchCallDetail(ctx, callSID)
	}

	var outcome domain.AttemptStatus
	var outcomeErr string
	if lookupErr != nil {
		// Fail open: the run keeps moving, the entry just records why it
		// could not be classified.
		span.RecordError(lookupErr)
		e.log.Error("outcome lookup failed",
			zap.String("call_sid", callSID),
			zap.Int("index", entryIdx),
			zap.Error(lookupErr))
		outcome = domain.AttemptError
		outcomeErr = lookupErr.Error()
	} else {
		outcome = classifyOutcome(detail)
	}
	span.SetAttributes(attribute.String("outcome", string(outcome)))

	e.mu.Lock()
	if entryIdx < len(e.worklist) && e.worklist[entryIdx].ID == entryID {
		entry := &e.worklist[entryIdx]
		entry.Attempt.Status = outcome
		entry.Attempt.Error = outcomeErr
		if detail != nil {
			entry.Attempt.Recordings = detail.Recordings
		}
		if lookupErr != nil {
			entry.Status = domain.QueueStatusFailed
			entry.LastError = outcomeErr
		} else {
			entry.Status = domain.QueueStatusCompleted
		}
	}

	if outcome == domain.AttemptSuccess && e.auto.IsActive {
		// The cursor stays put until the agent acknowledges the summary.
		e.summaryPending = true
	} else if e.auto.IsActive && e.auto.CurrentIndex == entryIdx {
		e.auto.CurrentIndex++
	}
	e.mu.Unlock()

	e.log.Info("call outcome resolved",
		zap.String("call_sid", callSID),
		zap.Int("index", entryIdx),
		zap.String("outcome", string(outcome)))

	e.publishStatus(queue.CallStatusEvent{
		SessionID:  e.opts.SessionID,
		RunID:      runID,
		EntryID:    entryID,
		EntryIndex: entryIdx,
		Number:     number,
		Identity:   e.opts.Identity,
		Outcome:    outcome,
		CallSID:    callSID,
		DurationMs: duration.Milliseconds(),
		Error:      outcomeErr,
		AutoDial:   true,
		OccurredAt: now,
	})
}

// classifyOutcome maps a provider call record to a final attempt status.
// The provider's terminal status wins; answering-machine detection applies
// only to calls the provider considers completed.
func classifyOutcome(detail *domain.CallDetail) domain.AttemptStatus {
	if detail == nil {
		return domain.AttemptError
	}
	switch strings.ToLower(detail.Status) {
	case "no-answer":
		return domain.AttemptNoAnswer
	case "busy":
		return domain.AttemptBusy
	case "failed":
		return domain.AttemptFailed
	case "canceled":
		return domain.AttemptCanceled
	}
	if strings.Contains(strings.ToLower(detail.AnsweredBy), "machine") {
		return domain.AttemptVoicemail
	}
	return domain.AttemptSuccess
}

// publishStatus emits a finalized attempt event. Best effort; persistence
// failures never interrupt progression.
func (e *Engine) publishStatus(event queue.CallStatusEvent) {
	if e.opts.Status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.opts.Status.PublishStatus(ctx, event); err != nil && !isContextErr(err) {
		e.log.Warn("publish call status event", zap.Error(err))
	}
}
