// Package engine implements the auto-dial progression engine: device
// lifecycle, call lifecycle, sequential advancement over a worklist, and
// post-call outcome resolution. One Engine serves one agent session.
//
// The engine is single-writer: every mutation of the worklist and the
// progression state goes through the engine mutex, and the asynchronous
// event streams from the device and from call handles are serialized
// through it.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/credentials"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/lookup"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/queue"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/repository"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/telephony"
	"github.com/FinalPatel1678/twilio-voice-sdk/pkg/logger"
)

// OnCallFlagKey is the shared flag raised while any call is connected.
const OnCallFlagKey = "isOnCall"

// FlagStore is the persistent boolean flag shared across sessions.
type FlagStore interface {
	Get(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value bool) error
}

// Presence claims numbers for the duration of a call so other agents can
// be warned off. Claim returning false is an advisory veto.
type Presence interface {
	Claim(ctx context.Context, number, sessionID string) (bool, error)
	Release(ctx context.Context, number, sessionID string) error
}

// StatusPublisher emits finalized attempt events.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event queue.CallStatusEvent) error
}

// Options wire an engine's collaborators and identity context.
type Options struct {
	SessionID uuid.UUID
	Identity  string
	RequestID string
	CallerID  string

	WorklistID *uuid.UUID
	Worklist   []domain.WorklistEntry

	DeviceFactory telephony.Factory
	DeviceOptions telephony.DeviceOptions
	Tokens        credentials.Source
	Lookup        lookup.Fetcher
	LookupTimeout time.Duration

	// Optional collaborators; nil disables the concern.
	Flags    FlagStore
	Presence Presence
	Status   StatusPublisher
	Runs     repository.RunRepository

	Logger *logger.Logger
}

// Engine owns one agent session: its device, its worklist, and the
// auto-dial state machine.
type Engine struct {
	mu sync.Mutex

	opts Options
	log  *logger.Logger

	device      telephony.Device
	initialized bool
	deviceReady bool
	agentState  domain.AgentState
	deviceError string

	worklist []domain.WorklistEntry
	auto     domain.AutoDialState
	dialed   *dialedSet
	inFlight map[string]struct{}

	placing        bool
	activeCall     telephony.Call
	connected      bool
	muted          bool
	currentNumber  string
	answerTime     time.Time
	summaryPending bool
	errorMessage   string

	runID  uuid.UUID
	closed bool
}

// New constructs an engine in the idle state. The worklist is copied; the
// caller keeps no shared reference into engine state.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.SessionID == uuid.Nil {
		opts.SessionID = uuid.New()
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 15 * time.Second
	}

	worklist := make([]domain.WorklistEntry, len(opts.Worklist))
	copy(worklist, opts.Worklist)
	for i := range worklist {
		worklist[i].Status = domain.QueueStatusPending
	}

	return &Engine{
		opts:       opts,
		log:        opts.Logger,
		agentState: domain.AgentOffline,
		worklist:   worklist,
		dialed:     newDialedSet(),
		inFlight:   make(map[string]struct{}),
	}
}

// SessionID returns the engine's session identity.
func (e *Engine) SessionID() uuid.UUID {
	return e.opts.SessionID
}

// Initialize obtains a token, constructs the device and registers it.
// Idempotent: once initialization has been attempted it is a no-op.
// Failures do not surface as a return value; initialization usually runs
// at session mount with no caller positioned to handle one. They are
// observable through the state snapshot instead.
func (e *Engine) Initialize(ctx context.Context) {
	e.mu.Lock()
	if e.initialized || e.closed {
		e.mu.Unlock()
		return
	}
	e.initialized = true
	e.agentState = domain.AgentConnecting
	e.mu.Unlock()

	e.log.Info("initializing device", zap.String("session_id", e.opts.SessionID.String()))

	token, err := e.opts.Tokens.Token(ctx, e.opts.Identity)
	if err != nil {
		e.failInitialization("fetch access token", err)
		return
	}

	device := e.opts.DeviceFactory(token, e.opts.DeviceOptions)
	device.SetHandlers(telephony.DeviceHandlers{
		Registered:      e.onDeviceRegistered,
		TokenWillExpire: e.onTokenWillExpire,
		Disconnect:      e.onDeviceDisconnect,
		Error:           e.onDeviceError,
	})

	e.mu.Lock()
	e.device = device
	e.mu.Unlock()

	if err := device.Register(ctx); err != nil {
		e.failInitialization("register device", err)
		return
	}

	e.mu.Lock()
	e.deviceReady = true
	e.agentState = domain.AgentReady
	e.deviceError = ""
	e.mu.Unlock()

	e.log.Info("device registered", zap.String("session_id", e.opts.SessionID.String()))
}

func (e *Engine) failInitialization(stage string, err error) {
	e.log.Error("device initialization failed", zap.String("stage", stage), zap.Error(err))
	e.mu.Lock()
	e.deviceReady = false
	e.agentState = domain.AgentOffline
	e.deviceError = err.Error()
	e.mu.Unlock()
}

func (e *Engine) onDeviceRegistered() {
	e.mu.Lock()
	e.deviceReady = true
	e.deviceError = ""
	if e.agentState != domain.AgentOnCall {
		e.agentState = domain.AgentReady
	}
	e.mu.Unlock()
}

func (e *Engine) onTokenWillExpire() {
	e.log.Warn("access token expiring, refreshing")
	e.refreshToken()
}

func (e *Engine) refreshToken() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := e.opts.Tokens.Token(ctx, e.opts.Identity)
	if err != nil {
		e.log.Error("token refresh failed", zap.Error(err))
		return
	}

	e.mu.Lock()
	device := e.device
	e.mu.Unlock()
	if device != nil {
		device.UpdateToken(token)
	}
}

func (e *Engine) onDeviceError(devErr telephony.DeviceError) {
	e.log.Error("device error", zap.Int("code", devErr.Code), zap.String("message", devErr.Message))

	if devErr.Code == telephony.CodeTokenInvalid {
		e.refreshToken()
	}

	// The device may recover via re-registration moments later, but until
	// it does the agent is offline.
	e.mu.Lock()
	e.agentState = domain.AgentOffline
	e.deviceError = devErr.Message
	e.mu.Unlock()
}

// onDeviceDisconnect mirrors the device-level disconnect into the active
// call's disconnect path. The call handler is the authoritative one; this
// is a fallback for providers that only report at device level.
func (e *Engine) onDeviceDisconnect(callSID string) {
	e.mu.Lock()
	call := e.activeCall
	e.mu.Unlock()
	if call == nil || (callSID != "" && call.SID() != callSID) {
		return
	}
	call.Disconnect()
}

// Close tears the session down. Any active call is left to the provider;
// the device itself is destroyed.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopLocked()
	device := e.device
	call := e.activeCall
	number := e.currentNumber
	e.mu.Unlock()

	if call != nil {
		call.ClearHandlers()
	}
	if device != nil {
		device.Destroy()
	}
	e.clearSharedCallState(number)
}

// DismissError clears the transient user-visible call error.
func (e *Engine) DismissError() {
	e.mu.Lock()
	e.errorMessage = ""
	e.mu.Unlock()
}

// DismissDeviceError clears the persistent device error banner.
func (e *Engine) DismissDeviceError() {
	e.mu.Lock()
	e.deviceError = ""
	e.mu.Unlock()
}

// Snapshot is a read-only view of the engine for the presentation layer.
type Snapshot struct {
	SessionID      uuid.UUID
	Identity       string
	AgentState     domain.AgentState
	DeviceReady    bool
	DeviceError    string
	ErrorMessage   string
	OnCall         bool
	Muted          bool
	CurrentNumber  string
	Elapsed        time.Duration
	AutoDial       domain.AutoDialState
	SummaryPending bool
	RunID          uuid.UUID
	Worklist       []domain.WorklistEntry
}

// State returns a deep-copied snapshot. Elapsed time is computed from the
// answer timestamp on every read; there is no internal display ticker.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	worklist := make([]domain.WorklistEntry, len(e.worklist))
	copy(worklist, e.worklist)
	for i := range worklist {
		if worklist[i].Attempt != nil {
			attempt := *worklist[i].Attempt
			worklist[i].Attempt = &attempt
		}
	}

	var elapsed time.Duration
	if e.connected && !e.answerTime.IsZero() {
		elapsed = time.Since(e.answerTime)
	}

	return Snapshot{
		SessionID:      e.opts.SessionID,
		Identity:       e.opts.Identity,
		AgentState:     e.agentState,
		DeviceReady:    e.deviceReady,
		DeviceError:    e.deviceError,
		ErrorMessage:   e.errorMessage,
		OnCall:         e.connected,
		Muted:          e.muted,
		CurrentNumber:  e.currentNumber,
		Elapsed:        elapsed,
		AutoDial:       e.auto,
		SummaryPending: e.summaryPending,
		RunID:          e.runID,
		Worklist:       worklist,
	}
}

// clearSharedCallState lowers the shared on-call flag and releases the
// presence claim for the given number. Best effort.
func (e *Engine) clearSharedCallState(number string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.opts.Flags != nil {
		if err := e.opts.Flags.Set(ctx, OnCallFlagKey, false); err != nil {
			e.log.Warn("lower on-call flag", zap.Error(err))
		}
	}
	if e.opts.Presence != nil && number != "" {
		if err := e.opts.Presence.Release(ctx, number, e.opts.SessionID.String()); err != nil {
			e.log.Warn("release presence claim", zap.Error(err))
		}
	}
}

func (e *Engine) raiseSharedCallState() {
	if e.opts.Flags == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.opts.Flags.Set(ctx, OnCallFlagKey, true); err != nil {
		e.log.Warn("raise on-call flag", zap.Error(err))
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
