package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/token", r.URL.Path)
		require.Equal(t, "agent-7", r.URL.Query().Get("identity"))
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "jwt-value"})
	}))
	defer srv.Close()

	source := NewHTTPSource(srv.URL, time.Second)
	token, err := source.Token(context.Background(), "agent-7")
	require.NoError(t, err)
	assert.Equal(t, "jwt-value", token)
}

func TestHTTPSourceTokenFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("identity") {
		case "empty":
			_ = json.NewEncoder(w).Encode(map[string]string{"token": ""})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	source := NewHTTPSource(srv.URL, time.Second)

	_, err := source.Token(context.Background(), "empty")
	assert.ErrorContains(t, err, "empty token")

	_, err = source.Token(context.Background(), "boom")
	assert.ErrorContains(t, err, "returned 500")
}
