// Package credentials issues and fetches the opaque access tokens a
// telephony device registers with.
package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/config"
)

// Source yields an access token for a user identity. The engine holds a
// Source so it can refresh in place when the device warns about expiry.
type Source interface {
	Token(ctx context.Context, identity string) (string, error)
}

// Minter signs voice access tokens carrying an outgoing-application grant.
type Minter struct {
	accountSID string
	apiKey     string
	apiSecret  string
	appSID     string
	ttl        time.Duration
}

// NewMinter builds a minter from provider credentials.
func NewMinter(cfg config.ProviderConfig) (*Minter, error) {
	if cfg.AccountSID == "" || cfg.APIKey == "" || cfg.APISecret == "" || cfg.AppSID == "" {
		return nil, fmt.Errorf("credentials: incomplete provider configuration")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Minter{
		accountSID: cfg.AccountSID,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		appSID:     cfg.AppSID,
		ttl:        ttl,
	}, nil
}

// Token mints a signed access token for the identity.
func (m *Minter) Token(ctx context.Context, identity string) (string, error) {
	if identity == "" {
		identity = "unknown_user"
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"jti": fmt.Sprintf("%s-%s", m.apiKey, uuid.NewString()),
		"iss": m.apiKey,
		"sub": m.accountSID,
		"iat": now.Unix(),
		"exp": now.Add(m.ttl).Unix(),
		"grants": map[string]any{
			"identity": identity,
			"voice": map[string]any{
				"outgoing": map[string]any{
					"application_sid": m.appSID,
				},
				"incoming": map[string]any{
					"allow": true,
				},
			},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["cty"] = "twilio-fpa;v=1"

	signed, err := token.SignedString([]byte(m.apiSecret))
	if err != nil {
		return "", fmt.Errorf("credentials: sign token: %w", err)
	}
	return signed, nil
}
