package stream

import "errors"

var (
	// ErrNoTerminal is reported when a step stream ends before the backend
	// sent a terminal status.
	ErrNoTerminal = errors.New("stream ended without a status")
	ErrAborted    = errors.New("aborted")
)
