package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPSource fetches tokens from a remote credential endpoint:
// GET <base>/api/v1/token?identity=<id> -> {"token": "..."}.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a source against the given base URL.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Token requests a token for the identity.
func (s *HTTPSource) Token(ctx context.Context, identity string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/token?identity=%s", s.baseURL, url.QueryEscape(identity))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("credentials: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("credentials: fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("credentials: token endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("credentials: decode token response: %w", err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("credentials: empty token in response")
	}
	return body.Token, nil
}
