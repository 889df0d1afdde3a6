// Package cpuload converts per-callback CPU timing into a rolling
// utilization estimate for the audio governor.
//
// Utilization is the fraction of the callback's real-time budget spent
// computing:
//
//	utilization = cpuTimeMs / (bufferSizeFrames / sampleRateHz * 1000)
//
// A value of 1.0 means the callback used its entire budget; anything above
// that is an overrun. The monitor keeps the most recent WindowSize values and
// reports their average and peak. Threshold crossings are reported as data
// by CheckThresholds and never returned as errors.
package cpuload

import (
	"fmt"
	"math"
	"sync"

	"github.com/opd-ai/audiogovernor/limits"
	"github.com/opd-ai/audiogovernor/listener"
	"github.com/sirupsen/logrus"
)

// Config holds CPU load monitor settings.
type Config struct {
	WindowSize            int     `yaml:"window_size"`             // Samples kept in the rolling window (default: 32)
	WarningThreshold      float64 `yaml:"warning_threshold"`       // Average utilization that raises a warning (default: 0.75)
	CriticalThreshold     float64 `yaml:"critical_threshold"`      // Average utilization that is critical (default: 0.90)
	PeakWarningThreshold  float64 `yaml:"peak_warning_threshold"`  // Peak utilization that raises a warning (default: 0.90)
	PeakCriticalThreshold float64 `yaml:"peak_critical_threshold"` // Peak utilization that is critical (default: 1.0)
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:            32,
		WarningThreshold:      0.75,
		CriticalThreshold:     0.90,
		PeakWarningThreshold:  0.90,
		PeakCriticalThreshold: 1.0,
	}
}

// Validate checks the configuration against package limits.
func (c Config) Validate() error {
	if err := limits.ValidateCapacity("cpu window size", c.WindowSize, limits.MaxCPUWindow); err != nil {
		return err
	}
	if err := limits.ValidateFraction("cpu warning threshold", c.WarningThreshold); err != nil {
		return err
	}
	if err := limits.ValidateFraction("cpu critical threshold", c.CriticalThreshold); err != nil {
		return err
	}
	if c.CriticalThreshold < c.WarningThreshold {
		return fmt.Errorf("%w: cpu critical threshold %.2f below warning threshold %.2f",
			limits.ErrOutOfRange, c.CriticalThreshold, c.WarningThreshold)
	}
	if math.IsNaN(c.PeakWarningThreshold) || math.IsNaN(c.PeakCriticalThreshold) ||
		c.PeakWarningThreshold <= 0 || c.PeakCriticalThreshold < c.PeakWarningThreshold {
		return fmt.Errorf("%w: cpu peak thresholds warning=%.2f critical=%.2f",
			limits.ErrOutOfRange, c.PeakWarningThreshold, c.PeakCriticalThreshold)
	}
	return nil
}

// ThresholdStatus reports which thresholds the current window crosses.
// Critical implies Warning.
type ThresholdStatus struct {
	Warning  bool
	Critical bool
	Average  float64
	Peak     float64
}

// ChangeHandler receives the latest utilization after every recorded sample.
type ChangeHandler func(utilization float64)

// Monitor is a rolling window of utilization samples.
type Monitor struct {
	mu      sync.RWMutex
	config  Config
	window  []float64
	next    int
	count   int
	sum     float64
	latest  float64
	dropped uint64

	listeners *listener.Registry[ChangeHandler]
}

// NewMonitor creates a monitor. A non-positive window falls back to the default.
func NewMonitor(config Config) *Monitor {
	if config.WindowSize < 1 {
		config.WindowSize = DefaultConfig().WindowSize
	}

	logrus.WithFields(logrus.Fields{
		"function":           "cpuload.NewMonitor",
		"window_size":        config.WindowSize,
		"warning_threshold":  config.WarningThreshold,
		"critical_threshold": config.CriticalThreshold,
	}).Info("Creating CPU load monitor")

	return &Monitor{
		config:    config,
		window:    make([]float64, config.WindowSize),
		listeners: listener.New[ChangeHandler](),
	}
}

// Utilization computes the fraction of the callback budget used. It returns
// false when the inputs cannot describe a real callback, including
// non-finite values.
func Utilization(cpuTimeMs float64, bufferSizeFrames int, sampleRateHz float64) (float64, bool) {
	if cpuTimeMs < 0 || bufferSizeFrames <= 0 || sampleRateHz <= 0 {
		return 0, false
	}
	if math.IsNaN(cpuTimeMs) || math.IsInf(cpuTimeMs, 0) || math.IsNaN(sampleRateHz) || math.IsInf(sampleRateHz, 0) {
		return 0, false
	}
	budgetMs := float64(bufferSizeFrames) / sampleRateHz * 1000
	return cpuTimeMs / budgetMs, true
}

// RecordSample appends the utilization of one callback to the window,
// notifies OnChange listeners, and returns the utilization. Invalid inputs
// are dropped and return 0.
func (m *Monitor) RecordSample(cpuTimeMs float64, bufferSizeFrames int, sampleRateHz float64) float64 {
	u, ok := Utilization(cpuTimeMs, bufferSizeFrames, sampleRateHz)
	if !ok {
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function":    "Monitor.RecordSample",
			"cpu_time_ms": cpuTimeMs,
			"frames":      bufferSizeFrames,
			"sample_rate": sampleRateHz,
		}).Warn("Dropping invalid CPU sample")
		return 0
	}

	m.mu.Lock()
	if m.count == len(m.window) {
		m.sum -= m.window[m.next]
	} else {
		m.count++
	}
	m.window[m.next] = u
	m.sum += u
	m.next = (m.next + 1) % len(m.window)
	m.latest = u
	m.mu.Unlock()

	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		logrus.WithFields(logrus.Fields{
			"function":    "Monitor.RecordSample",
			"utilization": u,
		}).Trace("CPU sample recorded")
	}

	for _, fn := range m.listeners.Snapshot() {
		fn(u)
	}
	return u
}

// GetAverageUsage returns the mean utilization over the window, or 0 when empty.
func (m *Monitor) GetAverageUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.averageLocked()
}

func (m *Monitor) averageLocked() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// GetPeakUsage returns the maximum utilization in the window, or 0 when empty.
func (m *Monitor) GetPeakUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peakLocked()
}

func (m *Monitor) peakLocked() float64 {
	peak := 0.0
	for i := 0; i < m.count; i++ {
		if m.window[i] > peak {
			peak = m.window[i]
		}
	}
	return peak
}

// GetLatestUsage returns the most recently recorded utilization.
func (m *Monitor) GetLatestUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// SampleCount returns how many samples the window currently holds.
func (m *Monitor) SampleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// DroppedSamples returns how many invalid samples were rejected.
func (m *Monitor) DroppedSamples() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped
}

// CheckThresholds reports whether the window's average or peak crosses the
// configured limits. An empty window crosses nothing.
func (m *Monitor) CheckThresholds() ThresholdStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avg := m.averageLocked()
	peak := m.peakLocked()
	status := ThresholdStatus{Average: avg, Peak: peak}
	if m.count == 0 {
		return status
	}

	status.Critical = avg >= m.config.CriticalThreshold || peak >= m.config.PeakCriticalThreshold
	status.Warning = status.Critical || avg >= m.config.WarningThreshold || peak >= m.config.PeakWarningThreshold
	return status
}

// OnChange registers fn to receive every recorded utilization.
func (m *Monitor) OnChange(fn ChangeHandler) listener.Handle {
	return m.listeners.Add(fn)
}

// Unsubscribe removes an OnChange registration.
func (m *Monitor) Unsubscribe(h listener.Handle) bool {
	return m.listeners.Remove(h)
}

// Reset empties the window. Listeners are kept.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.window {
		m.window[i] = 0
	}
	m.next = 0
	m.count = 0
	m.sum = 0
	m.latest = 0
}

// Close drops every listener.
func (m *Monitor) Close() {
	m.listeners.Clear()
}
