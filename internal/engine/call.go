package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/phone"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/telephony"
	apperrors "github.com/FinalPatel1678/twilio-voice-sdk/pkg/errors"
)

// manualIndex marks a placement that does not belong to the worklist.
const manualIndex = -1

// Dial places a manual call outside the auto-dial queue. It is vetoed if
// another session holds the shared on-call flag.
func (e *Engine) Dial(ctx context.Context, number string) error {
	e.mu.Lock()
	hasActive := e.activeCall != nil
	e.mu.Unlock()

	if !hasActive && e.opts.Flags != nil {
		onCall, err := e.opts.Flags.Get(ctx, OnCallFlagKey)
		if err != nil {
			e.log.Warn("read on-call flag", zap.Error(err))
		} else if onCall {
			return fmt.Errorf("%w: another session is on a call", apperrors.ErrConflict)
		}
	}

	if err := e.placeCall(ctx, number, "", manualIndex, false); err != nil {
		e.mu.Lock()
		e.errorMessage = err.Error()
		e.mu.Unlock()
		return err
	}
	return nil
}

// HangUp disconnects the active call. Queue advancement happens through
// the resulting disconnect event, never here.
func (e *Engine) HangUp() {
	e.mu.Lock()
	call := e.activeCall
	e.mu.Unlock()
	if call != nil {
		call.Disconnect()
	}
}

// SetMute forwards a mute request to the active call. Engine state follows
// the handle's mute event, not this request, because the provider can
// originate mute changes too.
func (e *Engine) SetMute(muted bool) error {
	e.mu.Lock()
	call := e.activeCall
	e.mu.Unlock()
	if call == nil {
		return fmt.Errorf("%w: no active call", apperrors.ErrValidation)
	}
	call.Mute(muted)
	return nil
}

// placeCall validates the number, acquires the presence claim and connects
// through the device. entryIdx/entryID identify the worklist entry for
// auto-dial placements; manual placements pass manualIndex.
//
// The placing guard covers the asynchronous window between requesting the
// call and obtaining the handle; it is distinct from "a call is connected".
func (e *Engine) placeCall(ctx context.Context, number, entryName string, entryIdx int, autoDial bool) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("%w: session closed", apperrors.ErrUnavailable)
	}
	if e.placing {
		e.mu.Unlock()
		e.log.Warn("call placement blocked, another placement in flight",
			zap.String("number", number), zap.Int("index", entryIdx))
		return nil
	}
	if e.activeCall != nil {
		e.mu.Unlock()
		e.log.Warn("call placement blocked, call already active",
			zap.String("number", number), zap.Int("index", entryIdx))
		return fmt.Errorf("%w: a call is already active", apperrors.ErrConflict)
	}
	e.placing = true
	deviceReady := e.deviceReady
	device := e.device
	var selectionID, requestID string
	if autoDial && entryIdx >= 0 && entryIdx < len(e.worklist) {
		selectionID = e.worklist[entryIdx].SelectionID
		requestID = e.worklist[entryIdx].RequestID
	}
	e.mu.Unlock()

	releasePlacing := func() {
		e.mu.Lock()
		e.placing = false
		e.mu.Unlock()
	}

	tracer := otel.Tracer("autodial.engine")
	ctx, span := tracer.Start(ctx, "call.place", trace.WithAttributes(
		attribute.String("session.id", e.opts.SessionID.String()),
		attribute.Int("entry.index", entryIdx),
		attribute.Bool("auto_dial", autoDial),
	))
	defer span.End()

	clean := phone.Sanitize(number)
	if !phone.Valid(clean) {
		releasePlacing()
		err := fmt.Errorf("%w: %q", apperrors.ErrInvalidNumber, number)
		span.RecordError(err)
		return err
	}

	if !deviceReady || device == nil {
		releasePlacing()
		err := fmt.Errorf("%w: device not ready", apperrors.ErrPlacement)
		span.RecordError(err)
		return err
	}

	claimed := false
	if e.opts.Presence != nil {
		ok, err := e.opts.Presence.Claim(ctx, clean, e.opts.SessionID.String())
		if err != nil {
			// Advisory check; a registry outage must not stall dialing.
			e.log.Warn("presence claim failed, continuing", zap.Error(err))
		} else if !ok {
			releasePlacing()
			vetoErr := fmt.Errorf("%w: %s is on a call with another agent", apperrors.ErrAlreadyInCall, clean)
			span.RecordError(vetoErr)
			return vetoErr
		} else {
			claimed = true
		}
	}

	requestIDValue := requestID
	if requestIDValue == "" {
		requestIDValue = e.opts.RequestID
	}

	call, err := device.Connect(ctx, telephony.ConnectParams{
		To:            clean,
		Identity:      e.opts.Identity,
		RequestID:     requestIDValue,
		CallerID:      e.opts.CallerID,
		CandidateName: entryName,
		SelectionID:   selectionID,
	})
	if err != nil {
		if claimed {
			e.releasePresence(clean)
		}
		releasePlacing()
		wrapped := fmt.Errorf("%w: %v", apperrors.ErrPlacement, err)
		span.RecordError(wrapped)
		return wrapped
	}

	placedAt := time.Now()

	e.mu.Lock()
	e.activeCall = call
	e.currentNumber = clean
	e.placing = false
	e.mu.Unlock()

	e.log.Info("call placed",
		zap.String("call_sid", call.SID()),
		zap.String("number", clean),
		zap.Bool("auto_dial", autoDial),
		zap.Int("index", entryIdx))

	// disconnectOnce absorbs a re-fired disconnect event; the engine must
	// finalize each call exactly once.
	var disconnectOnce int32
	call.SetHandlers(telephony.CallHandlers{
		Accept: func() { e.onCallAccept(call) },
		Mute:   func(muted bool) { e.onCallMute(muted) },
		Disconnect: func() {
			if !atomic.CompareAndSwapInt32(&disconnectOnce, 0, 1) {
				e.log.Warn("duplicate disconnect event ignored", zap.String("call_sid", call.SID()))
				return
			}
			e.onCallDisconnect(call, placedAt, entryIdx, autoDial)
		},
		Error: func(callErr error) {
			if !atomic.CompareAndSwapInt32(&disconnectOnce, 0, 1) {
				return
			}
			e.onCallRuntimeError(call, callErr, entryIdx, autoDial)
		},
	})

	return nil
}

func (e *Engine) onCallAccept(call telephony.Call) {
	e.mu.Lock()
	if e.activeCall != call {
		e.mu.Unlock()
		return
	}
	e.connected = true
	e.agentState = domain.AgentOnCall
	e.answerTime = time.Now()
	e.errorMessage = ""
	// The handle's mute state is authoritative; never assume unmuted.
	e.muted = call.IsMuted()
	e.mu.Unlock()

	e.log.Info("call accepted", zap.String("call_sid", call.SID()))
	e.raiseSharedCallState()
}

func (e *Engine) onCallMute(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

// onCallDisconnect finalizes the call. For auto-dial placements the
// outcome is resolved before any call state is reset, because resolution
// needs the entry and number the reset would clear.
func (e *Engine) onCallDisconnect(call telephony.Call, placedAt time.Time, entryIdx int, autoDial bool) {
	e.mu.Lock()
	if e.activeCall != call {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	duration := time.Since(placedAt)
	callSID := call.SID()

	e.log.Info("call disconnected",
		zap.String("call_sid", callSID),
		zap.Duration("duration", duration),
		zap.Bool("auto_dial", autoDial),
		zap.Int("index", entryIdx))

	if autoDial && entryIdx >= 0 {
		e.resolveOutcome(callSID, entryIdx, placedAt, duration)
	}

	e.resetCall(call)
	e.tryAdvance()
}

func (e *Engine) onCallRuntimeError(call telephony.Call, callErr error, entryIdx int, autoDial bool) {
	e.log.Error("call error",
		zap.Error(callErr),
		zap.String("call_sid", call.SID()),
		zap.Bool("auto_dial", autoDial))

	e.resetCall(call)

	if autoDial && entryIdx >= 0 {
		e.mu.Lock()
		if entryIdx < len(e.worklist) {
			delete(e.inFlight, e.worklist[entryIdx].ID)
		}
		e.mu.Unlock()
		e.handleCallError(fmt.Errorf("%w: %v", apperrors.ErrCallRuntime, callErr), entryIdx)
		e.tryAdvance()
		return
	}

	e.mu.Lock()
	e.errorMessage = fmt.Sprintf("Call failed: %v", callErr)
	e.mu.Unlock()
}

// resetCall clears all per-call state, detaches the handle's listeners and
// lowers the shared flags.
func (e *Engine) resetCall(call telephony.Call) {
	call.ClearHandlers()

	e.mu.Lock()
	if e.activeCall != call {
		e.mu.Unlock()
		return
	}
	number := e.currentNumber
	e.activeCall = nil
	e.connected = false
	e.muted = false
	e.currentNumber = ""
	e.answerTime = time.Time{}
	if e.agentState == domain.AgentOnCall {
		if e.deviceReady {
			e.agentState = domain.AgentReady
		} else {
			e.agentState = domain.AgentOffline
		}
	}
	e.mu.Unlock()

	e.clearSharedCallState(number)
}

func (e *Engine) releasePresence(number string) {
	if e.opts.Presence == nil || number == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.opts.Presence.Release(ctx, number, e.opts.SessionID.String()); err != nil {
		e.log.Warn("release presence claim", zap.Error(err))
	}
}
