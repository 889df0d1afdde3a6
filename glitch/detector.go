// Package glitch detects audible audio callback failures by comparing each
// callback's duration and arrival time against the expected cadence.
//
// Two failure modes are distinguished:
//
//   - Underrun: the callback ran, but took longer than UnderrunTolerance
//     times its expected duration, so the next block was late.
//   - Dropout: the gap since the previous callback exceeded DropoutFactor
//     times the expected interval, so at least one callback never ran.
//
// A dropout outranks an underrun when both hold for the same callback.
package glitch

import (
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/audiogovernor/clock"
	"github.com/opd-ai/audiogovernor/limits"
	"github.com/opd-ai/audiogovernor/listener"
	"github.com/sirupsen/logrus"
)

// Type identifies the kind of glitch detected.
type Type int

const (
	// TypeNone means no glitch
	TypeNone Type = iota
	// TypeUnderrun means the callback overran its budget
	TypeUnderrun
	// TypeDropout means a callback was skipped entirely
	TypeDropout
)

// String returns the glitch type name.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeUnderrun:
		return "underrun"
	case TypeDropout:
		return "dropout"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Detection is the result of checking one callback.
type Detection struct {
	Detected  bool
	Type      Type
	Timestamp time.Time
	// Ratio is actual/expected for underruns and gap/expected for dropouts.
	Ratio float64
}

// Config holds detector tolerances.
type Config struct {
	UnderrunTolerance float64 `yaml:"underrun_tolerance"` // actual > expected * tolerance is an underrun (default: 1.5)
	DropoutFactor     float64 `yaml:"dropout_factor"`     // gap > expected * factor is a dropout (default: 2.0)
}

// DefaultConfig returns the default tolerances.
func DefaultConfig() Config {
	return Config{
		UnderrunTolerance: 1.5,
		DropoutFactor:     2.0,
	}
}

// Validate checks the configuration against package limits.
func (c Config) Validate() error {
	if err := limits.ValidateRatio("underrun tolerance", c.UnderrunTolerance); err != nil {
		return err
	}
	return limits.ValidateRatio("dropout factor", c.DropoutFactor)
}

// Stats counts detector activity since creation or the last Reset.
type Stats struct {
	Checks    uint64
	Underruns uint64
	Dropouts  uint64
}

// Handler receives detected glitches.
type Handler func(Detection)

// Detector tracks callback cadence.
type Detector struct {
	mu           sync.Mutex
	config       Config
	lastCallback time.Time
	stats        Stats

	listeners    *listener.Registry[Handler]
	timeProvider clock.TimeProvider
}

// NewDetector creates a detector with the given tolerances.
func NewDetector(config Config) *Detector {
	logrus.WithFields(logrus.Fields{
		"function":           "glitch.NewDetector",
		"underrun_tolerance": config.UnderrunTolerance,
		"dropout_factor":     config.DropoutFactor,
	}).Info("Creating glitch detector")

	return &Detector{
		config:    config,
		listeners: listener.New[Handler](),
	}
}

// SetTimeProvider sets the time provider for deterministic testing.
func (d *Detector) SetTimeProvider(tp clock.TimeProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeProvider = tp
}

// CheckCallback checks a callback that just completed.
func (d *Detector) CheckCallback(actualDurationMs, expectedDurationMs float64) Detection {
	d.mu.Lock()
	now := clock.OrDefault(d.timeProvider).Now()
	d.mu.Unlock()
	return d.CheckCallbackAt(now, actualDurationMs, expectedDurationMs)
}

// CheckCallbackAt checks a callback that completed at the given time. The
// governor uses it for samples captured on the real-time side and drained
// later.
func (d *Detector) CheckCallbackAt(at time.Time, actualDurationMs, expectedDurationMs float64) Detection {
	d.mu.Lock()
	result := d.evaluate(at, actualDurationMs, expectedDurationMs)
	d.mu.Unlock()

	if !result.Detected {
		return result
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Detector.CheckCallback",
		"type":        result.Type.String(),
		"ratio":       result.Ratio,
		"actual_ms":   actualDurationMs,
		"expected_ms": expectedDurationMs,
	}).Debug("Glitch detected")

	for _, fn := range d.listeners.Snapshot() {
		fn(result)
	}
	return result
}

func (d *Detector) evaluate(at time.Time, actualMs, expectedMs float64) Detection {
	d.stats.Checks++
	prev := d.lastCallback
	d.lastCallback = at

	result := Detection{Type: TypeNone, Timestamp: at}
	if expectedMs <= 0 {
		return result
	}

	if !prev.IsZero() {
		gapMs := float64(at.Sub(prev)) / float64(time.Millisecond)
		if gapMs > expectedMs*d.config.DropoutFactor {
			d.stats.Dropouts++
			result.Detected = true
			result.Type = TypeDropout
			result.Ratio = gapMs / expectedMs
			return result
		}
	}

	if actualMs > expectedMs*d.config.UnderrunTolerance {
		d.stats.Underruns++
		result.Detected = true
		result.Type = TypeUnderrun
		result.Ratio = actualMs / expectedMs
	}
	return result
}

// OnGlitch registers fn to be called synchronously on each detection.
func (d *Detector) OnGlitch(fn Handler) listener.Handle {
	return d.listeners.Add(fn)
}

// Unsubscribe removes an OnGlitch registration.
func (d *Detector) Unsubscribe(h listener.Handle) bool {
	return d.listeners.Remove(h)
}

// Stats returns detector counters.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Reset forgets the previous callback timestamp and zeroes the counters,
// so the next check cannot report a dropout. Used after a deliberate stream
// restart.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastCallback = time.Time{}
	d.stats = Stats{}
}

// Close drops every listener.
func (d *Detector) Close() {
	d.listeners.Clear()
}

// ExpectedDurationMs returns the real-time budget of one callback block.
func ExpectedDurationMs(bufferSizeFrames int, sampleRateHz float64) float64 {
	if bufferSizeFrames <= 0 || sampleRateHz <= 0 {
		return 0
	}
	return float64(bufferSizeFrames) / sampleRateHz * 1000
}
