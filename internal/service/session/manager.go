// Package session manages the lifecycle of agent dialing sessions. Each
// session owns one engine; the manager maps session ids to engines and
// builds engines with the shared infrastructure collaborators.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/config"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/credentials"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/engine"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/lookup"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/repository"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/telephony"
	"github.com/FinalPatel1678/twilio-voice-sdk/pkg/errors"
	"github.com/FinalPatel1678/twilio-voice-sdk/pkg/logger"
)

// Deps are the shared collaborators every engine is built with.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DeviceFactory telephony.Factory
	Tokens        credentials.Source
	Lookup        lookup.Fetcher
	Flags         engine.FlagStore
	Presence      engine.Presence
	Status        engine.StatusPublisher
	Runs          repository.RunRepository
	Worklists     repository.WorklistRepository
}

// CreateInput describes a new session. Entries and WorklistID are mutually
// exclusive; a worklist id loads the stored entries.
type CreateInput struct {
	Identity   string
	RequestID  string
	WorklistID *uuid.UUID
	Entries    []domain.WorklistEntry
}

// Manager owns all live sessions for this process.
type Manager struct {
	mu       sync.Mutex
	deps     Deps
	sessions map[uuid.UUID]*engine.Engine
}

// NewManager builds an empty session manager.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps,
		sessions: make(map[uuid.UUID]*engine.Engine),
	}
}

// Create builds a session engine, initializes its device and registers it
// under a fresh session id.
func (m *Manager) Create(ctx context.Context, input CreateInput) (*engine.Engine, error) {
	if input.Identity == "" {
		return nil, fmt.Errorf("%w: identity is required", errors.ErrValidation)
	}
	if input.WorklistID != nil && len(input.Entries) > 0 {
		return nil, fmt.Errorf("%w: worklist_id and entries are mutually exclusive", errors.ErrValidation)
	}

	entries := input.Entries
	worklistID := input.WorklistID
	if worklistID != nil {
		stored, err := m.deps.Worklists.Get(ctx, *worklistID)
		if err != nil {
			return nil, fmt.Errorf("load worklist %s: %w", worklistID, err)
		}
		entries = stored.Entries
	}

	for i, entry := range entries {
		if entry.ID == "" {
			entries[i].ID = uuid.NewString()
		}
	}

	cfg := m.deps.Config
	eng := engine.New(engine.Options{
		SessionID:  uuid.New(),
		Identity:   input.Identity,
		RequestID:  input.RequestID,
		CallerID:   cfg.Provider.CallerID,
		WorklistID: worklistID,
		Worklist:   entries,

		DeviceFactory: m.deps.DeviceFactory,
		DeviceOptions: telephony.DeviceOptions{
			Edge:            cfg.Telephony.Edge,
			CloseProtection: cfg.Telephony.CloseProtection,
			LogLevel:        cfg.Telephony.LogLevel,
		},
		Tokens:        m.deps.Tokens,
		Lookup:        m.deps.Lookup,
		LookupTimeout: cfg.Telephony.LookupTimeout,

		Flags:    m.deps.Flags,
		Presence: m.deps.Presence,
		Status:   m.deps.Status,
		Runs:     m.deps.Runs,

		Logger: m.deps.Logger,
	})

	eng.Initialize(ctx)

	m.mu.Lock()
	m.sessions[eng.SessionID()] = eng
	m.mu.Unlock()

	m.deps.Logger.Info("session created",
		zap.String("session_id", eng.SessionID().String()),
		zap.String("identity", input.Identity),
		zap.Int("entries", len(entries)))

	return eng, nil
}

// Get returns the engine for a session id.
func (m *Manager) Get(id uuid.UUID) (*engine.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eng, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", errors.ErrNotFound, id)
	}
	return eng, nil
}

// Close tears down one session.
func (m *Manager) Close(id uuid.UUID) error {
	m.mu.Lock()
	eng, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: session %s", errors.ErrNotFound, id)
	}
	eng.Close()
	m.deps.Logger.Info("session closed", zap.String("session_id", id.String()))
	return nil
}

// CloseAll tears down every live session. Used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	engines := make([]*engine.Engine, 0, len(m.sessions))
	for _, eng := range m.sessions {
		engines = append(engines, eng)
	}
	m.sessions = make(map[uuid.UUID]*engine.Engine)
	m.mu.Unlock()

	for _, eng := range engines {
		eng.Close()
	}
}
