package interfaces

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/audiogovernor/graph"
)

// IGraphApplier applies compiled topology edits to an audio graph.
type IGraphApplier interface {
	// ApplyOperations executes ops in order
	ApplyOperations(ctx context.Context, ops []graph.CompiledOperation) error
}

// ContextState is the run state of an audio context.
type ContextState int

const (
	// StateSuspended means the context exists but is not rendering audio
	StateSuspended ContextState = iota
	// StateRunning means the context is rendering audio
	StateRunning
	// StateClosed means the context has been released and cannot resume
	StateClosed
)

// String returns the state name.
func (s ContextState) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// IAudioContext is a platform audio context handle.
type IAudioContext interface {
	// ID returns a stable identifier used in logs
	ID() string

	// State returns the current run state
	State() ContextState

	// Resume asks the platform to start rendering
	Resume(ctx context.Context) error
}

// ErrContextClosed indicates an attempt to resume a closed audio context.
var ErrContextClosed = errors.New("audio context closed")

// GraphApplierFunc adapts a function to IGraphApplier.
type GraphApplierFunc func(ctx context.Context, ops []graph.CompiledOperation) error

// ApplyOperations calls f.
func (f GraphApplierFunc) ApplyOperations(ctx context.Context, ops []graph.CompiledOperation) error {
	return f(ctx, ops)
}

// Compile-time check that the in-process graph satisfies the contract.
var _ IGraphApplier = (*graph.LiveGraph)(nil)
