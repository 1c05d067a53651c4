package common

import "errors"

// Sentinel errors for use with errors.Is across the core and adapter.
var (
	// ErrUnknownRequest is returned when a DoneAuth/BadAuth id does not
	// match any pending request.
	ErrUnknownRequest = errors.New("no pending request for id")
	// ErrEmptyReason is returned when a BadAuth reason is empty.
	ErrEmptyReason = errors.New("empty reason")
	// ErrNoActiveConnection is returned when an operation needs the
	// registry's active connection and none exists.
	ErrNoActiveConnection = errors.New("no active connection")
)
