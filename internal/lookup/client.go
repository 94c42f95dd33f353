// Package lookup fetches the provider call record used to classify how a
// call actually ended. The device-side disconnect event cannot tell a
// human hangup from voicemail or a ring-out; the record can.
package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/config"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/domain"
	apperrors "github.com/FinalPatel1678/twilio-voice-sdk/pkg/errors"
)

// Fetcher resolves a provider call id to its call record.
type Fetcher interface {
	FetchCallDetail(ctx context.Context, callSID string) (*domain.CallDetail, error)
}

// Client queries the backend call-detail endpoint:
// POST <base>/api/v1/calls/lookup {"callSid": "..."}.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a lookup client against the backend base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// FetchCallDetail retrieves the call record for a provider call id.
func (c *Client) FetchCallDetail(ctx context.Context, callSID string) (*domain.CallDetail, error) {
	if callSID == "" {
		return nil, fmt.Errorf("%w: call sid is required", apperrors.ErrValidation)
	}

	payload, err := json.Marshal(map[string]string{"callSid": callSID})
	if err != nil {
		return nil, fmt.Errorf("lookup: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/calls/lookup", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("lookup: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrOutcomeLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: lookup endpoint returned %d", apperrors.ErrOutcomeLookup, resp.StatusCode)
	}

	var body struct {
		Call domain.CallDetail `json:"call"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", apperrors.ErrOutcomeLookup, err)
	}
	return &body.Call, nil
}

// ProviderClient queries the provider REST API directly. The backend uses
// it to serve the lookup endpoint; it asks for the leg dialed out of the
// parent call, which is the one machine detection reports on.
type ProviderClient struct {
	accountSID string
	apiKey     string
	apiSecret  string
	baseURL    string
	client     *http.Client
}

// NewProviderClient builds a provider REST client.
func NewProviderClient(cfg config.ProviderConfig, timeout time.Duration) *ProviderClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ProviderClient{
		accountSID: cfg.AccountSID,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    cfg.BaseURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// FetchCallDetail lists child calls of the given parent and returns the
// first leg.
func (c *ProviderClient) FetchCallDetail(ctx context.Context, callSID string) (*domain.CallDetail, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json?ParentCallSid=%s&PageSize=1",
		c.baseURL, c.accountSID, url.QueryEscape(callSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup: build provider request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrOutcomeLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned %d", apperrors.ErrOutcomeLookup, resp.StatusCode)
	}

	var body struct {
		Calls []struct {
			SID        string `json:"sid"`
			Status     string `json:"status"`
			AnsweredBy string `json:"answered_by"`
			Duration   string `json:"duration"`
		} `json:"calls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode provider response: %v", apperrors.ErrOutcomeLookup, err)
	}
	if len(body.Calls) == 0 {
		return nil, fmt.Errorf("%w: no child call for %s", apperrors.ErrNotFound, callSID)
	}

	leg := body.Calls[0]
	return &domain.CallDetail{
		CallSID:    leg.SID,
		Status:     leg.Status,
		AnsweredBy: leg.AnsweredBy,
		Duration:   leg.Duration,
	}, nil
}
