// Package telephony defines the boundary to the voice provider: a
// registered device that can place calls, and the handle for one call in
// flight. Implementations deliver events through explicitly registered
// handlers so a discarded handle can be detached deterministically.
package telephony

import (
	"context"
	"fmt"
)

// ConnectParams are passed through to the provider when placing a call.
// The engine does not interpret them beyond To; the provider attaches them
// to the call record.
type ConnectParams struct {
	To            string
	Identity      string
	RequestID     string
	CallerID      string
	CandidateName string
	SelectionID   string
}

// DeviceOptions shape device construction.
type DeviceOptions struct {
	Edge            string
	CloseProtection string
	LogLevel        int
}

// DeviceError is a provider-raised device error.
type DeviceError struct {
	Code    int
	Message string
}

func (e DeviceError) Error() string {
	return fmt.Sprintf("device error %d: %s", e.Code, e.Message)
}

// CodeTokenInvalid is the provider error code for an invalid or expired
// access token; the device owner should refresh the token on sight.
const CodeTokenInvalid = 20101

// DeviceHandlers receive device-level events. Unset handlers are skipped.
type DeviceHandlers struct {
	Registered      func()
	TokenWillExpire func()
	Disconnect      func(callSID string)
	Error           func(err DeviceError)
}

// Device is a registered telephony endpoint able to place outbound calls.
type Device interface {
	Register(ctx context.Context) error
	UpdateToken(token string)
	Connect(ctx context.Context, params ConnectParams) (Call, error)
	SetHandlers(h DeviceHandlers)
	Destroy()
}

// Factory constructs a device from a fresh access token.
type Factory func(token string, opts DeviceOptions) Device

// CallHandlers receive events for one call. Unset handlers are skipped.
type CallHandlers struct {
	Accept     func()
	Mute       func(muted bool)
	Disconnect func()
	Error      func(err error)
}

// Call represents one in-flight outbound call.
type Call interface {
	SID() string
	Status() string
	Mute(muted bool)
	IsMuted() bool
	Disconnect()
	SetHandlers(h CallHandlers)
	// ClearHandlers detaches all handlers so late events cannot fire into
	// stale state.
	ClearHandlers()
}
