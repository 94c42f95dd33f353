package errors

import "errors"

// Sentinels for generic domain errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation error")
	ErrUnavailable = errors.New("service unavailable")
)

// Sentinels for call lifecycle errors.
var (
	// ErrDeviceInit marks credential fetch or registration failures; the
	// device is unusable until re-initialized.
	ErrDeviceInit = errors.New("device initialization failed")
	// ErrInvalidNumber marks a number that failed local validation.
	ErrInvalidNumber = errors.New("invalid phone number")
	// ErrAlreadyInCall marks a number vetoed by the in-call registry.
	ErrAlreadyInCall = errors.New("number already in an active call")
	// ErrPlacement marks a provider rejection while establishing a call.
	ErrPlacement = errors.New("call placement failed")
	// ErrCallRuntime marks a provider-raised error during an active call.
	ErrCallRuntime = errors.New("call runtime error")
	// ErrOutcomeLookup marks a failed or timed-out call-detail lookup.
	ErrOutcomeLookup = errors.New("call outcome lookup failed")
)

// Is reports whether err is one of the sentinels.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap adds context to an error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Join(errors.New(message), err)
}
