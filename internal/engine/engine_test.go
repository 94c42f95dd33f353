package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/queue"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/repository"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/telephony"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/telephony/sim"
	apperrors "github.com/FinalPatel1678/twilio-voice-sdk/pkg/errors"
)

type fakeTokens struct {
	mu     sync.Mutex
	tokens []string
	calls  int
	err    error
}

func (f *fakeTokens) Token(ctx context.Context, identity string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls++
	if len(f.tokens) == 0 {
		return fmt.Sprintf("token-%d", f.calls), nil
	}
	i := f.calls - 1
	if i >= len(f.tokens) {
		i = len(f.tokens) - 1
	}
	return f.tokens[i], nil
}

type fakeFlags struct {
	mu    sync.Mutex
	flags map[string]bool
}

func newFakeFlags() *fakeFlags {
	return &fakeFlags{flags: make(map[string]bool)}
}

func (f *fakeFlags) Get(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags[key], nil
}

func (f *fakeFlags) Set(ctx context.Context, key string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[key] = value
	return nil
}

type fakePresence struct {
	mu       sync.Mutex
	claims   map[string]string
	rejected map[string]bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{claims: make(map[string]string), rejected: make(map[string]bool)}
}

func (f *fakePresence) Claim(ctx context.Context, number, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejected[number] {
		return false, nil
	}
	if holder, ok := f.claims[number]; ok && holder != sessionID {
		return false, nil
	}
	f.claims[number] = sessionID
	return true, nil
}

func (f *fakePresence) Release(ctx context.Context, number, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claims[number] == sessionID {
		delete(f.claims, number)
	}
	return nil
}

func (f *fakePresence) held(number string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.claims[number]
	return ok
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.CallStatusEvent
}

func (f *fakePublisher) PublishStatus(ctx context.Context, event queue.CallStatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) all() []queue.CallStatusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queue.CallStatusEvent, len(f.events))
	copy(out, f.events)
	return out
}

type fakeRuns struct {
	mu     sync.Mutex
	runs   []*domain.DialRun
	deltas []repository.StatsDelta
	closed []uuid.UUID
}

func (f *fakeRuns) StartRun(ctx context.Context, run *domain.DialRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRuns) CloseRun(ctx context.Context, runID uuid.UUID, stoppedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, runID)
	return nil
}

func (f *fakeRuns) ApplyDelta(ctx context.Context, runID uuid.UUID, delta repository.StatsDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas = append(f.deltas, delta)
	return nil
}

func (f *fakeRuns) GetStats(ctx context.Context, runID uuid.UUID) (*domain.RunStats, error) {
	return &domain.RunStats{}, nil
}

func (f *fakeRuns) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.closed)
}

func (f *fakeRuns) skipped() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, d := range f.deltas {
		n += d.SkippedDelta
	}
	return n
}

// fakeFetcher returns queued call details in placement order.
type fakeFetcher struct {
	mu      sync.Mutex
	details []*domain.CallDetail
	errs    []error
	calls   int
}

func (f *fakeFetcher) queue(detail *domain.CallDetail, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = append(f.details, detail)
	f.errs = append(f.errs, err)
}

func (f *fakeFetcher) FetchCallDetail(ctx context.Context, callSID string) (*domain.CallDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.details) {
		return &domain.CallDetail{CallSID: callSID, Status: "completed"}, nil
	}
	detail, err := f.details[f.calls], f.errs[f.calls]
	f.calls++
	if err != nil {
		return nil, err
	}
	if detail != nil {
		detail.CallSID = callSID
	}
	return detail, nil
}

type harness struct {
	engine    *Engine
	device    *sim.Device
	tokens    *fakeTokens
	flags     *fakeFlags
	presence  *fakePresence
	publisher *fakePublisher
	runs      *fakeRuns
	fetcher   *fakeFetcher
}

func newHarness(t *testing.T, entries []domain.WorklistEntry) *harness {
	t.Helper()

	h := &harness{
		tokens:    &fakeTokens{},
		flags:     newFakeFlags(),
		presence:  newFakePresence(),
		publisher: &fakePublisher{},
		runs:      &fakeRuns{},
		fetcher:   &fakeFetcher{},
	}

	factory := func(token string, opts telephony.DeviceOptions) telephony.Device {
		h.device = sim.NewDevice(token, opts)
		return h.device
	}

	h.engine = New(Options{
		SessionID:     uuid.New(),
		Identity:      "agent-1",
		CallerID:      "+15550000000",
		Worklist:      entries,
		DeviceFactory: factory,
		Tokens:        h.tokens,
		Lookup:        h.fetcher,
		LookupTimeout: time.Second,
		Flags:         h.flags,
		Presence:      h.presence,
		Status:        h.publisher,
		Runs:          h.runs,
	})
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) initialize(t *testing.T) {
	t.Helper()
	h.engine.Initialize(context.Background())
	require.True(t, h.engine.State().DeviceReady)
}

func (h *harness) lastCall(t *testing.T) *sim.Call {
	t.Helper()
	calls := h.device.Calls()
	require.NotEmpty(t, calls)
	return calls[len(calls)-1]
}

func entries(numbers ...string) []domain.WorklistEntry {
	out := make([]domain.WorklistEntry, len(numbers))
	for i, n := range numbers {
		out[i] = domain.WorklistEntry{
			ID:     fmt.Sprintf("entry-%d", i),
			Number: n,
			Name:   fmt.Sprintf("Candidate %d", i),
		}
	}
	return out
}

func TestInitializeRegistersDevice(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.Initialize(context.Background())

	snap := h.engine.State()
	assert.True(t, snap.DeviceReady)
	assert.Equal(t, domain.AgentReady, snap.AgentState)
	assert.Empty(t, snap.DeviceError)

	// Re-initialization is a no-op.
	h.engine.Initialize(context.Background())
	h.tokens.mu.Lock()
	calls := h.tokens.calls
	h.tokens.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestInitializeTokenFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.tokens.err = fmt.Errorf("credential service down")

	h.engine.Initialize(context.Background())

	snap := h.engine.State()
	assert.False(t, snap.DeviceReady)
	assert.Equal(t, domain.AgentOffline, snap.AgentState)
	assert.Contains(t, snap.DeviceError, "credential service down")

	h.engine.DismissDeviceError()
	assert.Empty(t, h.engine.State().DeviceError)
}

func TestTokenRefreshOnExpiry(t *testing.T) {
	h := newHarness(t, nil)
	h.tokens.tokens = []string{"first", "second"}
	h.initialize(t)
	require.Equal(t, "first", h.device.Token())

	h.device.FireTokenWillExpire()
	assert.Equal(t, "second", h.device.Token())
}

func TestDeviceErrorInvalidTokenRefreshes(t *testing.T) {
	h := newHarness(t, nil)
	h.tokens.tokens = []string{"first", "second"}
	h.initialize(t)

	h.device.FireError(telephony.DeviceError{Code: telephony.CodeTokenInvalid, Message: "token expired"})

	assert.Equal(t, "second", h.device.Token())
	snap := h.engine.State()
	assert.Equal(t, domain.AgentOffline, snap.AgentState)
	assert.Contains(t, snap.DeviceError, "token expired")
}

func TestManualDialLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)

	require.NoError(t, h.engine.Dial(context.Background(), "+1 (555) 111-2222"))
	call := h.lastCall(t)
	assert.Equal(t, "+15551112222", call.Params().To)
	assert.Equal(t, "agent-1", call.Params().Identity)
	assert.True(t, h.presence.held("+15551112222"))

	call.FireAccept()
	snap := h.engine.State()
	assert.True(t, snap.OnCall)
	assert.Equal(t, domain.AgentOnCall, snap.AgentState)
	assert.Equal(t, "+15551112222", snap.CurrentNumber)
	onCall, _ := h.flags.Get(context.Background(), OnCallFlagKey)
	assert.True(t, onCall)

	require.NoError(t, h.engine.SetMute(true))
	assert.True(t, h.engine.State().Muted)
	require.NoError(t, h.engine.SetMute(false))
	assert.False(t, h.engine.State().Muted)

	call.FireDisconnect()
	snap = h.engine.State()
	assert.False(t, snap.OnCall)
	assert.Equal(t, domain.AgentReady, snap.AgentState)
	assert.Empty(t, snap.CurrentNumber)
	onCall, _ = h.flags.Get(context.Background(), OnCallFlagKey)
	assert.False(t, onCall)
	assert.False(t, h.presence.held("+15551112222"))
}

func TestManualDialVetoedBySharedFlag(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)
	require.NoError(t, h.flags.Set(context.Background(), OnCallFlagKey, true))

	err := h.engine.Dial(context.Background(), "+15551112222")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	assert.Empty(t, h.device.Calls())
}

func TestDialInvalidNumber(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)

	err := h.engine.Dial(context.Background(), "garbage")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidNumber))
	assert.NotEmpty(t, h.engine.State().ErrorMessage)

	h.engine.DismissError()
	assert.Empty(t, h.engine.State().ErrorMessage)
}

func TestDialWhileCallActive(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)

	require.NoError(t, h.engine.Dial(context.Background(), "+15551112222"))
	err := h.engine.Dial(context.Background(), "+15553334444")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	assert.Len(t, h.device.Calls(), 1)
}

func TestDialVetoedByPresenceClaim(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)
	h.presence.mu.Lock()
	h.presence.rejected["+15551112222"] = true
	h.presence.mu.Unlock()

	err := h.engine.Dial(context.Background(), "+15551112222")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrAlreadyInCall))
	assert.Empty(t, h.device.Calls())
}

func TestMuteWithoutActiveCall(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)

	err := h.engine.SetMute(true)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestHangUpDisconnectsActiveCall(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)

	require.NoError(t, h.engine.Dial(context.Background(), "+15551112222"))
	call := h.lastCall(t)
	call.FireAccept()
	require.True(t, h.engine.State().OnCall)

	h.engine.HangUp()
	assert.Equal(t, "closed", call.Status())
	assert.False(t, h.engine.State().OnCall)
}

func TestMuteFollowsProviderState(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)

	require.NoError(t, h.engine.Dial(context.Background(), "+15551112222"))
	call := h.lastCall(t)

	// The provider reports the call already muted at accept time.
	call.SetMutedRemote(true)
	call.FireAccept()
	assert.True(t, h.engine.State().Muted)

	call.SetMutedRemote(false)
	assert.False(t, h.engine.State().Muted)
}

func TestCloseDestroysDevice(t *testing.T) {
	h := newHarness(t, nil)
	h.initialize(t)

	h.engine.Close()
	assert.True(t, h.device.Destroyed())

	// Operations after close are refused.
	err := h.engine.Dial(context.Background(), "+15551112222")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnavailable))
}
