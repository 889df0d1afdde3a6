// Package listener implements the subscriber registry shared by every
// component that exposes an On* registration.
//
// Registrations return an opaque [Handle] that indexes into an arena of slots.
// Each slot carries a generation counter, so a stale handle from a removed
// registration can never unsubscribe whoever reuses the slot later.
//
// Callbacks are delivered in registration order, independent of which slot
// they occupy; a callback that re-registers moves to the end. Fan-out works
// on a [Registry.Snapshot] taken when the event is published, so a callback
// removed while that event is being delivered still receives it, and one
// added during delivery first sees the next event.
package listener

import "sync"

// Handle identifies one registration. The zero Handle is never issued.
type Handle struct {
	index uint32
	gen   uint32
}

// Valid reports whether h was issued by a registry.
func (h Handle) Valid() bool {
	return h.gen != 0
}

type slot[F any] struct {
	fn     F
	gen    uint32
	active bool
}

// Registry stores callbacks of type F.
type Registry[F any] struct {
	mu    sync.RWMutex
	slots []slot[F]
	free  []uint32
	// order lists occupied slot indices oldest registration first.
	order []uint32
	count int
}

// New creates an empty registry.
func New[F any]() *Registry[F] {
	return &Registry[F]{}
}

// Add registers fn and returns its handle.
func (r *Registry[F]) Add(fn F) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot[F]{})
		idx = uint32(len(r.slots) - 1)
	}

	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.fn = fn
	s.active = true
	r.order = append(r.order, idx)
	r.count++

	return Handle{index: idx, gen: s.gen}
}

// Remove unregisters the callback behind h. It reports whether h was live.
// Removing a stale or zero handle is a no-op.
func (r *Registry[F]) Remove(h Handle) bool {
	if !h.Valid() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if int(h.index) >= len(r.slots) {
		return false
	}
	s := &r.slots[h.index]
	if !s.active || s.gen != h.gen {
		return false
	}

	var zero F
	s.fn = zero
	s.active = false
	r.free = append(r.free, h.index)
	for i, idx := range r.order {
		if idx == h.index {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.count--
	return true
}

// Len returns the number of live registrations.
func (r *Registry[F]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Snapshot copies the live callbacks in registration order. Callers invoke
// them without holding the registry lock, so a callback may unsubscribe
// itself.
func (r *Registry[F]) Snapshot() []F {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}
	out := make([]F, 0, r.count)
	for _, idx := range r.order {
		out = append(out, r.slots[idx].fn)
	}
	return out
}

// Clear removes every registration. Outstanding handles become stale.
func (r *Registry[F]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero F
	r.free = r.free[:0]
	for i := range r.slots {
		r.slots[i].fn = zero
		r.slots[i].active = false
		r.free = append(r.free, uint32(i))
	}
	r.order = r.order[:0]
	r.count = 0
}
