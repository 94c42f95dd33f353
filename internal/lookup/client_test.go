package lookup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/config"
	apperrors "github.com/FinalPatel1678/twilio-voice-sdk/pkg/errors"
)

func TestClientFetchCallDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/calls/lookup", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "CA123", req["callSid"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"call": map[string]string{
				"sid":        "CA123-child",
				"status":     "completed",
				"answeredBy": "machine_end_beep",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	detail, err := client.FetchCallDetail(context.Background(), "CA123")
	require.NoError(t, err)
	assert.Equal(t, "CA123-child", detail.CallSID)
	assert.Equal(t, "completed", detail.Status)
	assert.Equal(t, "machine_end_beep", detail.AnsweredBy)
}

func TestClientFetchCallDetailErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)

	_, err := client.FetchCallDetail(context.Background(), "")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = client.FetchCallDetail(context.Background(), "CA123")
	assert.True(t, apperrors.Is(err, apperrors.ErrOutcomeLookup))
}

func TestProviderClientFetchCallDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2010-04-01/Accounts/AC1/Calls.json", r.URL.Path)
		require.Equal(t, "CAparent", r.URL.Query().Get("ParentCallSid"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key", user)
		require.Equal(t, "secret", pass)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"calls": []map[string]string{
				{"sid": "CAchild", "status": "no-answer", "answered_by": "", "duration": "0"},
			},
		})
	}))
	defer srv.Close()

	client := NewProviderClient(config.ProviderConfig{
		AccountSID: "AC1",
		APIKey:     "key",
		APISecret:  "secret",
		BaseURL:    srv.URL,
	}, time.Second)

	detail, err := client.FetchCallDetail(context.Background(), "CAparent")
	require.NoError(t, err)
	assert.Equal(t, "CAchild", detail.CallSID)
	assert.Equal(t, "no-answer", detail.Status)
}

func TestProviderClientNoChildLeg(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"calls": []any{}})
	}))
	defer srv.Close()

	client := NewProviderClient(config.ProviderConfig{AccountSID: "AC1", BaseURL: srv.URL}, time.Second)
	_, err := client.FetchCallDetail(context.Background(), "CAparent")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
