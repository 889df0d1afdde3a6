package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler holds armed deadlines that are fired by an explicit Tick from
// the control context.
type Scheduler struct {
	mu     sync.Mutex
	timers map[*Timer]struct{}
	tp     TimeProvider
}

// Timer is a one-shot deadline owned by a Scheduler.
type Timer struct {
	name     string
	fn       func()
	sched    *Scheduler
	deadline time.Time
	armed    bool
}

// NewScheduler creates an empty scheduler reading time from tp.
// A nil tp uses the system clock.
func NewScheduler(tp TimeProvider) *Scheduler {
	return &Scheduler{
		timers: make(map[*Timer]struct{}),
		tp:     OrDefault(tp),
	}
}

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.tp.Now()
}

// NewTimer registers a disarmed timer that runs fn when it fires.
func (s *Scheduler) NewTimer(name string, fn func()) *Timer {
	t := &Timer{name: name, fn: fn, sched: s}

	s.mu.Lock()
	s.timers[t] = struct{}{}
	s.mu.Unlock()

	return t
}

// Reset arms the timer to fire d from now, replacing any earlier deadline.
func (t *Timer) Reset(d time.Duration) {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.timers[t]; !ok {
		return
	}
	t.deadline = s.tp.Now().Add(d)
	t.armed = true
}

// Stop disarms the timer. It reports whether the timer was armed.
func (t *Timer) Stop() bool {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()

	wasArmed := t.armed
	t.armed = false
	return wasArmed
}

// Armed reports whether the timer has a pending deadline.
func (t *Timer) Armed() bool {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.armed
}

// Deadline returns the pending deadline, or the zero time when disarmed.
func (t *Timer) Deadline() time.Time {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.armed {
		return time.Time{}
	}
	return t.deadline
}

// Remove detaches the timer from its scheduler permanently.
func (t *Timer) Remove() {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	t.armed = false
	delete(s.timers, t)
}

// Tick fires every armed timer whose deadline is at or before now, in
// deadline order, and returns how many fired. Callbacks run without the
// scheduler lock held so they may re-arm themselves.
func (s *Scheduler) Tick() int {
	now := s.tp.Now()

	type firing struct {
		timer    *Timer
		deadline time.Time
	}

	s.mu.Lock()
	var due []firing
	for t := range s.timers {
		if t.armed && !t.deadline.After(now) {
			t.armed = false
			due = append(due, firing{timer: t, deadline: t.deadline})
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})

	for _, f := range due {
		if logrus.IsLevelEnabled(logrus.TraceLevel) {
			logrus.WithFields(logrus.Fields{
				"function": "Scheduler.Tick",
				"timer":    f.timer.name,
				"deadline": f.deadline,
			}).Trace("Timer fired")
		}
		f.timer.fn()
	}
	return len(due)
}

// NextDeadline returns the earliest armed deadline and whether one exists.
func (s *Scheduler) NextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next time.Time
	found := false
	for t := range s.timers {
		if !t.armed {
			continue
		}
		if !found || t.deadline.Before(next) {
			next = t.deadline
			found = true
		}
	}
	return next, found
}

// StopAll disarms every timer. Used on shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.timers {
		t.armed = false
	}
}
