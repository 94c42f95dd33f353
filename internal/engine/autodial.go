package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/phone"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/queue"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/repository"
	apperrors "github.com/FinalPatel1678/twilio-voice-sdk/pkg/errors"
)

// Start begins a fresh auto-dial run from index zero. Every entry is reset
// to pending and dedup state from the previous run is discarded.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("%w: session closed", apperrors.ErrUnavailable)
	}
	if e.auto.IsActive {
		e.mu.Unlock()
		return fmt.Errorf("%w: auto-dial already active", apperrors.ErrConflict)
	}
	if !e.deviceReady {
		e.mu.Unlock()
		return fmt.Errorf("%w: device not ready", apperrors.ErrValidation)
	}
	if len(e.worklist) == 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: worklist is empty", apperrors.ErrValidation)
	}

	for i := range e.worklist {
		e.worklist[i].Status = domain.QueueStatusPending
		e.worklist[i].Attempt = nil
		e.worklist[i].LastError = ""
	}
	e.dialed.Clear()
	e.inFlight = make(map[string]struct{})
	e.summaryPending = false
	e.errorMessage = ""
	e.auto = domain.AutoDialState{IsActive: true}
	e.runID = uuid.New()

	runID := e.runID
	total := len(e.worklist)
	e.mu.Unlock()

	e.log.Info("auto-dial started",
		zap.String("run_id", runID.String()),
		zap.Int("entries", total))

	if e.opts.Runs != nil {
		run := &domain.DialRun{
			ID:           runID,
			SessionID:    e.opts.SessionID,
			WorklistID:   e.opts.WorklistID,
			Identity:     e.opts.Identity,
			TotalEntries: total,
			StartedAt:    time.Now(),
		}
		if err := e.opts.Runs.StartRun(ctx, run); err != nil {
			e.log.Warn("record dial run", zap.Error(err))
		}
	}

	e.tryAdvance()
	return nil
}

// Pause suspends advancement. An in-flight call is unaffected; its
// disconnect still resolves, and the run resumes where it left off.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.auto.IsActive {
		return fmt.Errorf("%w: auto-dial is not active", apperrors.ErrValidation)
	}
	e.auto.IsPaused = true
	e.log.Info("auto-dial paused", zap.Int("index", e.auto.CurrentIndex))
	return nil
}

// Resume lifts a pause and immediately attempts the next placement.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if !e.auto.IsActive {
		e.mu.Unlock()
		return fmt.Errorf("%w: auto-dial is not active", apperrors.ErrValidation)
	}
	e.auto.IsPaused = false
	e.mu.Unlock()

	e.log.Info("auto-dial resumed")
	e.tryAdvance()
	return nil
}

// Stop ends the run. The active call, if any, keeps ringing; stopping only
// halts further progression.
func (e *Engine) Stop() {
	e.mu.Lock()
	active := e.auto.IsActive
	e.stopLocked()
	e.mu.Unlock()

	if active {
		e.log.Info("auto-dial stopped")
	}
}

// stopLocked resets the progression state. Caller holds the mutex.
func (e *Engine) stopLocked() {
	runID := e.runID
	active := e.auto.IsActive

	e.auto = domain.AutoDialState{}
	e.summaryPending = false
	e.inFlight = make(map[string]struct{})

	if active && runID != uuid.Nil && e.opts.Runs != nil {
		stoppedAt := time.Now()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.opts.Runs.CloseRun(ctx, runID, stoppedAt); err != nil {
				e.log.Warn("close dial run", zap.Error(err))
			}
		}()
	}
}

// AcknowledgeSummary clears the post-call summary gate. While a run is
// active this is the only thing that moves the cursor past a successful
// entry.
func (e *Engine) AcknowledgeSummary() {
	e.mu.Lock()
	if !e.summaryPending {
		e.mu.Unlock()
		return
	}
	e.summaryPending = false
	if e.auto.IsActive {
		e.auto.CurrentIndex++
	}
	e.mu.Unlock()

	e.tryAdvance()
}

// RemoveEntry deletes a worklist entry by position. Removal is refused
// while a call is active and, during a run, for the current or any already
// processed position.
func (e *Engine) RemoveEntry(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.worklist) {
		return fmt.Errorf("%w: index %d out of range", apperrors.ErrValidation, index)
	}
	if e.activeCall != nil || e.placing {
		return fmt.Errorf("%w: cannot remove entries during a call", apperrors.ErrConflict)
	}
	if e.auto.IsActive && index <= e.auto.CurrentIndex {
		return fmt.Errorf("%w: entry %d already reached by the active run", apperrors.ErrConflict, index)
	}

	removed := e.worklist[index]
	e.worklist = append(e.worklist[:index], e.worklist[index+1:]...)

	e.log.Info("worklist entry removed",
		zap.Int("index", index),
		zap.String("entry_id", removed.ID))
	return nil
}

// tryAdvance is the progression tick. It runs after every event that can
// unblock the queue: start, resume, summary acknowledgement, call
// disconnect, call error. A loop rather than recursion so a stretch of
// skippable entries is consumed in one pass.
func (e *Engine) tryAdvance() {
	for {
		e.mu.Lock()
		if e.closed || !e.auto.IsActive || e.auto.IsPaused || !e.deviceReady ||
			e.activeCall != nil || e.placing || e.summaryPending {
			e.mu.Unlock()
			return
		}

		idx := e.auto.CurrentIndex
		if idx >= len(e.worklist) {
			e.stopLocked()
			e.mu.Unlock()
			e.log.Info("worklist exhausted, auto-dial finished")
			return
		}

		entry := e.worklist[idx]
		number := phone.Sanitize(entry.Number)

		if _, busy := e.inFlight[entry.ID]; busy {
			e.auto.CurrentIndex++
			e.mu.Unlock()
			e.log.Warn("skipping entry with call still in flight",
				zap.Int("index", idx), zap.String("entry_id", entry.ID))
			e.recordSkip()
			continue
		}
		if e.dialed.Has(entry.ID, number) {
			e.auto.CurrentIndex++
			e.mu.Unlock()
			e.log.Warn("skipping already dialed entry",
				zap.Int("index", idx), zap.String("entry_id", entry.ID))
			e.recordSkip()
			continue
		}

		e.worklist[idx].Status = domain.QueueStatusProcessing
		e.inFlight[entry.ID] = struct{}{}
		e.mu.Unlock()

		if err := e.placeCall(context.Background(), entry.Number, entry.Name, idx, true); err != nil {
			e.mu.Lock()
			delete(e.inFlight, entry.ID)
			e.mu.Unlock()
			e.handleCallError(err, idx)
			continue
		}
		return
	}
}

// handleCallError finalizes an entry whose placement or call failed before
// any outcome could be looked up, and moves the cursor past it. It does
// not re-enter the progression loop; the caller does.
func (e *Engine) handleCallError(err error, entryIdx int) {
	status := domain.AttemptError
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidNumber):
		status = domain.AttemptInvalidNumber
	case apperrors.Is(err, apperrors.ErrAlreadyInCall):
		status = domain.AttemptRejected
	case apperrors.Is(err, apperrors.ErrPlacement):
		status = domain.AttemptFailed
	}

	now := time.Now()

	e.mu.Lock()
	var entryID, number string
	if entryIdx >= 0 && entryIdx < len(e.worklist) {
		entry := &e.worklist[entryIdx]
		entry.Status = domain.QueueStatusFailed
		entry.LastError = err.Error()
		entry.Attempt = &domain.CallAttempt{
			Status:    status,
			Timestamp: now,
			Error:     err.Error(),
		}
		entryID = entry.ID
		number = phone.Sanitize(entry.Number)
		e.dialed.Add(entryID, number)
	}
	if e.auto.IsActive && e.auto.CurrentIndex == entryIdx {
		e.auto.CurrentIndex++
	}
	runID := e.runID
	e.mu.Unlock()

	e.log.Warn("entry failed without outcome lookup",
		zap.Int("index", entryIdx),
		zap.String("status", string(status)),
		zap.Error(err))

	e.publishStatus(queue.CallStatusEvent{
		SessionID:  e.opts.SessionID,
		RunID:      runID,
		EntryID:    entryID,
		EntryIndex: entryIdx,
		Number:     number,
		Identity:   e.opts.Identity,
		Outcome:    status,
		Error:      err.Error(),
		AutoDial:   true,
		OccurredAt: now,
	})
}

// recordSkip counts a skipped entry against the run. Best effort.
func (e *Engine) recordSkip() {
	if e.opts.Runs == nil {
		return
	}
	e.mu.Lock()
	runID := e.runID
	e.mu.Unlock()
	if runID == uuid.Nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.opts.Runs.ApplyDelta(ctx, runID, repository.StatsDelta{SkippedDelta: 1}); err != nil {
		e.log.Warn("record skipped entry", zap.Error(err))
	}
}
