package meter

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopwatchWallTiming(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	current := base
	sw := &Stopwatch{Now: func() time.Time { return current }}

	m := sw.Start()
	current = base.Add(5 * time.Millisecond)
	s := sw.Stop(m, 480, 48000)

	assert.InDelta(t, 5.0, s.ActualMs, 1e-9)
	assert.InDelta(t, 10.0, s.ExpectedMs, 1e-9)
	assert.Equal(t, 480, s.Frames)
	assert.Equal(t, 48000.0, s.SampleRate)
	assert.True(t, s.At.Equal(current))
	assert.GreaterOrEqual(t, s.CPUTimeMs, 0.0)
}

func TestStopwatchZeroFramesHasNoBudget(t *testing.T) {
	var sw Stopwatch
	s := sw.Stop(sw.Start(), 0, 48000)
	assert.Zero(t, s.ExpectedMs)
}

func TestThreadCPUTimeAdvancesUnderLoad(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	before, ok := ThreadCPUTime()
	if !ok {
		t.Skip("no per-thread CPU clock on this platform")
	}
	x := 0
	for i := 0; i < 5_000_000; i++ {
		x += i % 7
	}
	after, _ := ThreadCPUTime()
	assert.Greater(t, after, before, "busy loop (x=%d) should consume CPU", x)
}
