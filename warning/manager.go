package warning

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/audiogovernor/clock"
	"github.com/opd-ai/audiogovernor/limits"
	"github.com/opd-ai/audiogovernor/listener"
	"github.com/sirupsen/logrus"
)

// Config holds warning bus settings.
type Config struct {
	// HistoryCap is the maximum number of warnings retained.
	HistoryCap int `yaml:"history_cap"`
}

// DefaultConfig returns the default warning bus configuration.
func DefaultConfig() Config {
	return Config{HistoryCap: 100}
}

// Validate checks the configuration against package limits.
func (c Config) Validate() error {
	return limits.ValidateCapacity("warning history cap", c.HistoryCap, limits.MaxWarningHistory)
}

// Handler receives published warnings.
type Handler func(Warning)

// Manager is the bounded warning history plus its subscribers.
type Manager struct {
	mu      sync.RWMutex
	ring    []Warning
	head    int // index of the oldest entry
	size    int
	total   uint64
	evicted uint64

	subscribers  *listener.Registry[Handler]
	timeProvider clock.TimeProvider
}

// NewManager creates a warning bus with the configured capacity. A
// non-positive capacity falls back to the default.
func NewManager(config Config) *Manager {
	capacity := config.HistoryCap
	if capacity < 1 {
		capacity = DefaultConfig().HistoryCap
	}

	logrus.WithFields(logrus.Fields{
		"function":    "warning.NewManager",
		"history_cap": capacity,
	}).Info("Creating warning manager")

	return &Manager{
		ring:        make([]Warning, capacity),
		subscribers: listener.New[Handler](),
	}
}

// SetTimeProvider sets the time provider for deterministic testing.
func (m *Manager) SetTimeProvider(tp clock.TimeProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeProvider = tp
}

// Capacity returns the history capacity.
func (m *Manager) Capacity() int {
	return len(m.ring)
}

// Warn records a warning, logs it, and notifies subscribers synchronously.
func (m *Manager) Warn(t Type, severity Severity, message string) Warning {
	m.mu.Lock()
	w := Warning{
		ID:        uuid.New(),
		Type:      t,
		Severity:  severity,
		Message:   message,
		Timestamp: clock.OrDefault(m.timeProvider).Now(),
	}
	m.push(w)
	m.mu.Unlock()

	logWarning(w)

	for _, fn := range m.subscribers.Snapshot() {
		m.deliver(fn, w)
	}
	return w
}

func (m *Manager) push(w Warning) {
	capacity := len(m.ring)
	if m.size == capacity {
		m.ring[m.head] = w
		m.head = (m.head + 1) % capacity
		m.evicted++
	} else {
		m.ring[(m.head+m.size)%capacity] = w
		m.size++
	}
	m.total++
}

// deliver isolates the bus from a panicking subscriber.
func (m *Manager) deliver(fn Handler, w Warning) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "Manager.deliver",
				"warning_id": w.ID,
				"panic":      r,
			}).Error("Warning subscriber panicked")
		}
	}()
	fn(w)
}

func logWarning(w Warning) {
	entry := logrus.WithFields(logrus.Fields{
		"function":   "Manager.Warn",
		"warning_id": w.ID,
		"type":       w.Type,
		"severity":   w.Severity.String(),
	})
	switch w.Severity {
	case SeverityCritical:
		entry.Error(w.Message)
	case SeverityWarning:
		entry.Warn(w.Message)
	default:
		entry.Info(w.Message)
	}
}

// Subscribe registers fn for every subsequent warning.
func (m *Manager) Subscribe(fn Handler) listener.Handle {
	return m.subscribers.Add(fn)
}

// Unsubscribe stops delivery to the subscriber behind h.
func (m *Manager) Unsubscribe(h listener.Handle) bool {
	return m.subscribers.Remove(h)
}

// SubscriberCount returns the number of live subscriptions.
func (m *Manager) SubscriberCount() int {
	return m.subscribers.Len()
}

// GetRecentWarnings returns up to n of the most recent warnings, oldest first.
func (m *Manager) GetRecentWarnings(n int) []Warning {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || m.size == 0 {
		return nil
	}
	if n > m.size {
		n = m.size
	}

	out := make([]Warning, n)
	start := m.size - n
	for i := 0; i < n; i++ {
		out[i] = m.ring[(m.head+start+i)%len(m.ring)]
	}
	return out
}

// GetWarningsByType returns every retained warning of type t, oldest first.
func (m *Manager) GetWarningsByType(t Type) []Warning {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Warning
	for i := 0; i < m.size; i++ {
		w := m.ring[(m.head+i)%len(m.ring)]
		if w.Type == t {
			out = append(out, w)
		}
	}
	return out
}

// GetWarningsSince returns retained warnings stamped at or after since.
func (m *Manager) GetWarningsSince(since time.Time) []Warning {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Warning
	for i := 0; i < m.size; i++ {
		w := m.ring[(m.head+i)%len(m.ring)]
		if !w.Timestamp.Before(since) {
			out = append(out, w)
		}
	}
	return out
}

// CountBySeverity returns how many retained warnings have the given severity.
func (m *Manager) CountBySeverity(severity Severity) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for i := 0; i < m.size; i++ {
		if m.ring[(m.head+i)%len(m.ring)].Severity == severity {
			count++
		}
	}
	return count
}

// Len returns the number of retained warnings.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Stats returns the lifetime count of published and evicted warnings.
func (m *Manager) Stats() (total, evicted uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total, m.evicted
}

// ClearWarnings empties the history. Subscriptions are unaffected.
func (m *Manager) ClearWarnings() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.ring {
		m.ring[i] = Warning{}
	}
	m.head = 0
	m.size = 0

	logrus.WithFields(logrus.Fields{
		"function": "Manager.ClearWarnings",
	}).Debug("Warning history cleared")
}

// Close drops every subscription.
func (m *Manager) Close() {
	m.subscribers.Clear()
}
