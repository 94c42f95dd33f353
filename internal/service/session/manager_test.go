package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/config"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/telephony/sim"
	apperrors "github.com/FinalPatel1678/twilio-voice-sdk/pkg/errors"
	"github.com/FinalPatel1678/twilio-voice-sdk/pkg/logger"
)

type staticTokens struct{}

func (staticTokens) Token(ctx context.Context, identity string) (string, error) {
	return "test-token", nil
}

func testDeps() Deps {
	return Deps{
		Config: &config.Config{
			Telephony: config.TelephonyConfig{
				Edge:          "ashburn",
				LookupTimeout: time.Second,
			},
			Provider: config.ProviderConfig{CallerID: "+15550000000"},
		},
		Logger:        logger.Nop(),
		DeviceFactory: sim.Factory(),
		Tokens:        staticTokens{},
	}
}

func TestManagerCreateAndGet(t *testing.T) {
	m := NewManager(testDeps())

	eng, err := m.Create(context.Background(), CreateInput{
		Identity: "agent-1",
		Entries: []domain.WorklistEntry{
			{Number: "+15551110000", Name: "First"},
		},
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	snap := eng.State()
	assert.True(t, snap.DeviceReady)
	require.Len(t, snap.Worklist, 1)
	assert.NotEmpty(t, snap.Worklist[0].ID)

	got, err := m.Get(eng.SessionID())
	require.NoError(t, err)
	assert.Same(t, eng, got)
}

func TestManagerCreateValidation(t *testing.T) {
	m := NewManager(testDeps())

	_, err := m.Create(context.Background(), CreateInput{})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	id := uuid.New()
	_, err = m.Create(context.Background(), CreateInput{
		Identity:   "agent-1",
		WorklistID: &id,
		Entries:    []domain.WorklistEntry{{Number: "+15551110000"}},
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestManagerClose(t *testing.T) {
	m := NewManager(testDeps())

	eng, err := m.Create(context.Background(), CreateInput{Identity: "agent-1"})
	require.NoError(t, err)

	require.NoError(t, m.Close(eng.SessionID()))
	_, err = m.Get(eng.SessionID())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	assert.True(t, apperrors.Is(m.Close(eng.SessionID()), apperrors.ErrNotFound))
}
