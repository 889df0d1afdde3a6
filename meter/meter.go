// Package meter measures audio callback timing on the real-time side.
//
// A [Stopwatch] reads the wall clock and the calling thread's CPU clock at
// the start and end of a callback and produces an rtqueue.Sample ready to
// push onto the governor's ring. Thread CPU time is only meaningful when
// the callback goroutine is pinned with runtime.LockOSThread, which audio
// host bindings already do.
package meter

import (
	"time"

	"github.com/opd-ai/audiogovernor/rtqueue"
)

// Mark is the state captured by Start.
type Mark struct {
	wall time.Time
	cpu  time.Duration
	// cpuOK is false when the platform has no per-thread CPU clock.
	cpuOK bool
}

// Stopwatch produces callback samples. The zero value is ready to use.
type Stopwatch struct {
	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

func (s *Stopwatch) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start records the beginning of a callback.
func (s *Stopwatch) Start() Mark {
	cpu, ok := threadCPUTime()
	return Mark{wall: s.now(), cpu: cpu, cpuOK: ok}
}

// Stop records the end of a callback started at m and returns its sample.
// When no thread CPU clock exists, CPU time falls back to wall time.
func (s *Stopwatch) Stop(m Mark, frames int, sampleRate float64) rtqueue.Sample {
	end := s.now()
	actual := end.Sub(m.wall)

	cpu := actual
	if m.cpuOK {
		if now, ok := threadCPUTime(); ok && now >= m.cpu {
			cpu = now - m.cpu
		}
	}

	sample := rtqueue.Sample{
		CPUTimeMs:  durationMs(cpu),
		ActualMs:   durationMs(actual),
		Frames:     frames,
		SampleRate: sampleRate,
		At:         end,
	}
	if frames > 0 && sampleRate > 0 {
		sample.ExpectedMs = float64(frames) / sampleRate * 1000
	}
	return sample
}

// ThreadCPUTime returns the CPU time consumed by the calling OS thread and
// whether the platform supports measuring it.
func ThreadCPUTime() (time.Duration, bool) {
	return threadCPUTime()
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
