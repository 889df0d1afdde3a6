// Package rtqueue carries timing data from the real-time audio callback to
// the control context without locks or allocation.
//
// [Ring] is a single-producer single-consumer queue over a power-of-two
// slot array. The audio callback is the only producer and the governor's
// Iterate loop the only consumer. A full ring refuses the push and counts
// an overflow instead of blocking the callback.
package rtqueue

import (
	"sync/atomic"
	"time"
)

// Sample is one callback's timing, captured on the real-time side.
type Sample struct {
	CPUTimeMs  float64
	ActualMs   float64
	ExpectedMs float64
	Frames     int
	SampleRate float64
	At         time.Time
}

// Ring is a lock-free SPSC queue.
//
// Push and Overflowed belong to the producer; Pop, Drain and Len to the
// consumer.
type Ring[T any] struct {
	// Producer and consumer counters sit on separate cache lines.
	writePos atomic.Uint64
	_pad1    [56]byte
	readPos  atomic.Uint64
	_pad2    [56]byte
	overflow atomic.Uint64

	slots []T
	mask  uint64
}

// New creates a ring with capacity rounded up to the next power of two.
func New[T any](minCapacity int) *Ring[T] {
	size := 1
	for size < minCapacity {
		size <<= 1
	}
	return &Ring[T]{
		slots: make([]T, size),
		mask:  uint64(size - 1),
	}
}

// Cap returns the slot count.
func (r *Ring[T]) Cap() int {
	return len(r.slots)
}

// Push appends v. It returns false and counts an overflow when full.
func (r *Ring[T]) Push(v T) bool {
	w := r.writePos.Load()
	if w-r.readPos.Load() == uint64(len(r.slots)) {
		r.overflow.Add(1)
		return false
	}
	r.slots[w&r.mask] = v
	r.writePos.Store(w + 1)
	return true
}

// Pop removes the oldest value.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	rd := r.readPos.Load()
	if rd == r.writePos.Load() {
		return zero, false
	}
	v := r.slots[rd&r.mask]
	r.slots[rd&r.mask] = zero
	r.readPos.Store(rd + 1)
	return v, true
}

// Drain pops every queued value into fn, oldest first, and returns how many
// were consumed. Values pushed while draining are left for the next call.
func (r *Ring[T]) Drain(fn func(T)) int {
	rd := r.readPos.Load()
	w := r.writePos.Load()
	var zero T
	n := 0
	for ; rd != w; rd++ {
		v := r.slots[rd&r.mask]
		r.slots[rd&r.mask] = zero
		r.readPos.Store(rd + 1)
		fn(v)
		n++
	}
	return n
}

// Len returns the number of queued values.
func (r *Ring[T]) Len() int {
	return int(r.writePos.Load() - r.readPos.Load())
}

// Overflowed returns the number of refused pushes since creation.
func (r *Ring[T]) Overflowed() uint64 {
	return r.overflow.Load()
}
