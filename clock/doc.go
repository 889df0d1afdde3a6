// Package clock provides time injection and a deadline scheduler for the
// control context of the audio governor.
//
// Every component that reads the wall clock does so through a [TimeProvider]
// so that tests can substitute a [MockTimeProvider] and advance time
// deterministically:
//
//	mock := clock.NewMockTimeProvider(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	pool.SetTimeProvider(mock)
//	mock.Advance(150 * time.Millisecond)
//
// # Scheduler
//
// The governor never relies on platform timer callbacks. Instead, a
// [Scheduler] holds armed deadlines and a single Tick call, made from the
// control loop, fires every timer whose deadline has passed:
//
//	sched := clock.NewScheduler(mock)
//	timer := sched.NewTimer("batch-flush", func() { updater.Flush() })
//	timer.Reset(10 * time.Millisecond)
//	mock.Advance(10 * time.Millisecond)
//	sched.Tick() // fires the flush
//
// Timers fire at most once per arming. Reset re-arms, Stop disarms.
package clock
