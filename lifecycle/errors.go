package lifecycle

import "errors"

var (
	// ErrNilContext indicates Register was called without an audio context
	ErrNilContext = errors.New("audio context is nil")
	// ErrGuardClosed indicates Register was called after Close
	ErrGuardClosed = errors.New("lifecycle guard closed")
	// ErrResumePanicked wraps a panic raised by an audio context's Resume
	ErrResumePanicked = errors.New("audio context resume panicked")
)
