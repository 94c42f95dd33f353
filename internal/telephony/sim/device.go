// Package sim provides an in-process telephony device for tests and local
// runs. Call behavior is either driven manually by firing events or
// scripted per number.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/telephony"
)

// Behavior scripts what happens when a number is dialed.
type Behavior struct {
	// PlacementErr, when set, is returned synchronously from Connect.
	PlacementErr error
	// AutoAccept fires the accept event immediately after Connect.
	AutoAccept bool
	// HangupAfter fires the disconnect event this long after accept.
	// Zero leaves the call connected until something disconnects it.
	HangupAfter time.Duration
}

// Device is a scriptable telephony.Device.
type Device struct {
	mu        sync.Mutex
	token     string
	opts      telephony.DeviceOptions
	handlers  telephony.DeviceHandlers
	script    map[string]Behavior
	calls     []*Call
	destroyed bool

	// RegisterErr, when set, makes Register fail.
	RegisterErr error
}

// NewDevice builds a simulated device.
func NewDevice(token string, opts telephony.DeviceOptions) *Device {
	return &Device{
		token:  token,
		opts:   opts,
		script: make(map[string]Behavior),
	}
}

// Factory adapts NewDevice to telephony.Factory.
func Factory() telephony.Factory {
	return func(token string, opts telephony.DeviceOptions) telephony.Device {
		return NewDevice(token, opts)
	}
}

// Script sets the behavior for a number.
func (d *Device) Script(number string, b Behavior) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script[number] = b
}

// Register simulates a successful registration and fires the registered
// event.
func (d *Device) Register(ctx context.Context) error {
	if d.RegisterErr != nil {
		return d.RegisterErr
	}
	d.mu.Lock()
	h := d.handlers
	d.mu.Unlock()
	if h.Registered != nil {
		h.Registered()
	}
	return nil
}

// UpdateToken swaps the access token in place.
func (d *Device) UpdateToken(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.token = token
}

// Token returns the current access token. Used by tests to observe
// refreshes.
func (d *Device) Token() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

// SetHandlers installs device event handlers.
func (d *Device) SetHandlers(h telephony.DeviceHandlers) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = h
}

// Connect places a simulated call following the scripted behavior for the
// dialed number.
func (d *Device) Connect(ctx context.Context, params telephony.ConnectParams) (telephony.Call, error) {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return nil, fmt.Errorf("sim device: destroyed")
	}
	behavior := d.script[params.To]
	d.mu.Unlock()

	if behavior.PlacementErr != nil {
		return nil, behavior.PlacementErr
	}

	call := &Call{
		sid:    "SIM" + uuid.NewString(),
		params: params,
		status: "ringing",
	}

	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()

	if behavior.AutoAccept {
		go func() {
			call.FireAccept()
			if behavior.HangupAfter > 0 {
				time.Sleep(behavior.HangupAfter)
				call.FireDisconnect()
			}
		}()
	}

	return call, nil
}

// Destroy releases the device.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
}

// Destroyed reports whether Destroy has run.
func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// Calls returns every call the device has placed.
func (d *Device) Calls() []*Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// FireTokenWillExpire raises the token expiry warning.
func (d *Device) FireTokenWillExpire() {
	d.mu.Lock()
	h := d.handlers
	d.mu.Unlock()
	if h.TokenWillExpire != nil {
		h.TokenWillExpire()
	}
}

// FireError raises a device-level error.
func (d *Device) FireError(err telephony.DeviceError) {
	d.mu.Lock()
	h := d.handlers
	d.mu.Unlock()
	if h.Error != nil {
		h.Error(err)
	}
}

// Call is a simulated telephony.Call driven by Fire* methods.
type Call struct {
	mu       sync.Mutex
	sid      string
	params   telephony.ConnectParams
	status   string
	muted    bool
	handlers telephony.CallHandlers
}

func (c *Call) SID() string { return c.sid }

// Params returns the parameters the call was placed with.
func (c *Call) Params() telephony.ConnectParams { return c.params }

func (c *Call) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Mute toggles the mute flag and echoes the change through the mute event,
// the way the provider reports its authoritative state back.
func (c *Call) Mute(muted bool) {
	c.mu.Lock()
	c.muted = muted
	h := c.handlers
	c.mu.Unlock()
	if h.Mute != nil {
		h.Mute(muted)
	}
}

func (c *Call) IsMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Disconnect hangs the call up and fires the disconnect event.
func (c *Call) Disconnect() {
	c.FireDisconnect()
}

func (c *Call) SetHandlers(h telephony.CallHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *Call) ClearHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = telephony.CallHandlers{}
}

// FireAccept marks the call answered and raises the accept event.
func (c *Call) FireAccept() {
	c.mu.Lock()
	c.status = "open"
	h := c.handlers
	c.mu.Unlock()
	if h.Accept != nil {
		h.Accept()
	}
}

// SetMutedRemote flips the mute flag without a local Mute call, as a
// provider-originated mute change would.
func (c *Call) SetMutedRemote(muted bool) {
	c.mu.Lock()
	c.muted = muted
	h := c.handlers
	c.mu.Unlock()
	if h.Mute != nil {
		h.Mute(muted)
	}
}

// FireDisconnect marks the call closed and raises the disconnect event.
// Firing twice raises the event twice; the engine is expected to cope.
func (c *Call) FireDisconnect() {
	c.mu.Lock()
	c.status = "closed"
	h := c.handlers
	c.mu.Unlock()
	if h.Disconnect != nil {
		h.Disconnect()
	}
}

// FireCallError raises a call-level error.
func (c *Call) FireCallError(err error) {
	c.mu.Lock()
	c.status = "closed"
	h := c.handlers
	c.mu.Unlock()
	if h.Error != nil {
		h.Error(err)
	}
}
