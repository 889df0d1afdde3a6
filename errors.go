package audiogovernor

import "errors"

var (
	// ErrClosed indicates an operation on a governor after Cleanup
	ErrClosed = errors.New("governor closed")
	// ErrAlreadyRunning indicates Run was called while another Run is active
	ErrAlreadyRunning = errors.New("governor run loop already active")
)
