// Package bufpool provides size-bucketed reusable sample buffers for the
// audio callback.
//
// A [Pool] keeps one free list per exact buffer length. Acquire pops the most
// recently released buffer of the requested size, or allocates when none is
// free; pool exhaustion is never an error. Release pushes the buffer back and
// stamps the release time, and Prune discards free buffers that have been idle
// longer than the retention window.
//
//	pool := bufpool.New(bufpool.DefaultConfig())
//	buf := pool.Acquire(512)
//	process(buf.Data)
//	pool.Release(buf)
//
// # Ownership
//
// A buffer has exactly one owner at a time. The in-use flag, not memory
// protection, enforces this: a buffer is never handed out twice before it is
// released, and releasing a buffer that is not in use is ignored.
//
// # Real-time use
//
// Acquire and Release on the hit path are O(1) and do not allocate. They take
// one short mutex critical section. Prune runs on the control context.
package bufpool
