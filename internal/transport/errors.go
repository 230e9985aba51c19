package transport

import "errors"

// Every network or backend failure is converted into one of these kinds
// at the transport boundary before it can reach the reconciliation
// engine.
var (
	// ErrChannelUnavailable means the backend could not be reached.
	// Non-fatal: the router falls back to polling.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrCommandTimeout means a command's round-trip deadline expired.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrCommandRejected means the backend answered with an error.
	ErrCommandRejected = errors.New("command rejected")
)
