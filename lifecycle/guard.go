package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/audiogovernor/interfaces"
	"github.com/opd-ai/audiogovernor/limits"
	"github.com/opd-ai/audiogovernor/listener"
	"github.com/sirupsen/logrus"
)

// Config holds Guard settings.
type Config struct {
	ResumeOnVisibility  bool          `yaml:"resume_on_visibility"`  // Resume when the host becomes visible (default: true)
	ResumeOnInteraction bool          `yaml:"resume_on_interaction"` // Resume on user interaction (default: true)
	ResumeTimeout       time.Duration `yaml:"resume_timeout"`        // Upper bound on a single Resume call (default: 2s)
}

// DefaultConfig returns the default guard configuration.
func DefaultConfig() Config {
	return Config{
		ResumeOnVisibility:  true,
		ResumeOnInteraction: true,
		ResumeTimeout:       2 * time.Second,
	}
}

// Validate checks the configuration against package limits.
func (c Config) Validate() error {
	return limits.ValidateDuration("resume timeout", c.ResumeTimeout, time.Minute)
}

// Stats counts resume attempts.
type Stats struct {
	Registered int
	Attempts   uint64
	Resumed    uint64
	Failures   uint64
}

type registration struct {
	ac          interfaces.IAudioContext
	visibility  listener.Handle
	interaction listener.Handle
}

// FailureHandler receives resume failures.
type FailureHandler func(contextID string, err error)

// Guard resumes suspended audio contexts.
type Guard struct {
	mu       sync.Mutex
	config   Config
	signals  *Signals
	regs     map[string]*registration
	stats    Stats
	closed   bool
	failures *listener.Registry[FailureHandler]
}

// NewGuard creates a guard listening on signals. A nil signals gets a
// private hub, which is only useful for resume-on-register.
func NewGuard(config Config, signals *Signals) *Guard {
	logrus.WithFields(logrus.Fields{
		"function":              "lifecycle.NewGuard",
		"resume_on_visibility":  config.ResumeOnVisibility,
		"resume_on_interaction": config.ResumeOnInteraction,
		"resume_timeout":        config.ResumeTimeout,
	}).Info("Creating audio context lifecycle guard")

	if signals == nil {
		signals = NewSignals()
	}
	return &Guard{
		config:   config,
		signals:  signals,
		regs:     make(map[string]*registration),
		failures: listener.New[FailureHandler](),
	}
}

// OnResumeFailed registers fn to be told about every failed resume.
func (g *Guard) OnResumeFailed(fn FailureHandler) listener.Handle {
	return g.failures.Add(fn)
}

// Unsubscribe removes an OnResumeFailed registration.
func (g *Guard) Unsubscribe(h listener.Handle) bool {
	return g.failures.Remove(h)
}

// Signals returns the hub the guard listens on.
func (g *Guard) Signals() *Signals {
	return g.signals
}

// Register starts guarding ac. A suspended context is resumed immediately.
// Registering the same ID twice replaces the earlier registration.
func (g *Guard) Register(ac interfaces.IAudioContext) error {
	if ac == nil {
		return ErrNilContext
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrGuardClosed
	}
	id := ac.ID()
	if old, ok := g.regs[id]; ok {
		g.detachLocked(old)
	}
	reg := &registration{ac: ac}
	if g.config.ResumeOnVisibility {
		reg.visibility = g.signals.OnVisibilityChange(func(visible bool) {
			if visible {
				g.resume(ac, "visibility")
			}
		})
	}
	if g.config.ResumeOnInteraction {
		reg.interaction = g.signals.OnInteraction(func() {
			g.resume(ac, "interaction")
		})
	}
	g.regs[id] = reg
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Guard.Register",
		"context":  id,
		"state":    ac.State().String(),
	}).Info("Guarding audio context")

	g.resume(ac, "register")
	return nil
}

// Unregister stops guarding ac and detaches its listeners.
func (g *Guard) Unregister(ac interfaces.IAudioContext) bool {
	if ac == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	reg, ok := g.regs[ac.ID()]
	if !ok {
		return false
	}
	g.detachLocked(reg)
	delete(g.regs, ac.ID())
	return true
}

func (g *Guard) detachLocked(reg *registration) {
	if reg.visibility.Valid() {
		g.signals.RemoveVisibility(reg.visibility)
	}
	if reg.interaction.Valid() {
		g.signals.RemoveInteraction(reg.interaction)
	}
}

// resume asks ac to resume when it is suspended. Failures are logged and
// counted; the next qualifying signal tries again.
func (g *Guard) resume(ac interfaces.IAudioContext, trigger string) {
	if ac.State() != interfaces.StateSuspended {
		return
	}

	g.mu.Lock()
	g.stats.Attempts++
	timeout := g.config.ResumeTimeout
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := callResume(ctx, ac)

	g.mu.Lock()
	if err != nil {
		g.stats.Failures++
	} else {
		g.stats.Resumed++
	}
	g.mu.Unlock()

	fields := logrus.Fields{
		"function": "Guard.resume",
		"context":  ac.ID(),
		"trigger":  trigger,
	}
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Audio context resume failed")
		for _, fn := range g.failures.Snapshot() {
			notifyFailure(fn, ac.ID(), err)
		}
		return
	}
	logrus.WithFields(fields).Info("Audio context resumed")
}

// callResume converts a panic in ac.Resume into an ErrResumePanicked error.
func callResume(ctx context.Context, ac interfaces.IAudioContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrResumePanicked, r)
		}
	}()
	return ac.Resume(ctx)
}

func notifyFailure(fn FailureHandler, id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Guard.notifyFailure",
				"context":  id,
				"panic":    r,
			}).Error("Resume failure handler panicked")
		}
	}()
	fn(id, err)
}

// Stats returns resume counters.
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats
	s.Registered = len(g.regs)
	return s
}

// Close unregisters every context and drops failure listeners. Register
// fails afterwards.
func (g *Guard) Close() {
	g.failures.Clear()

	g.mu.Lock()
	defer g.mu.Unlock()
	for id, reg := range g.regs {
		g.detachLocked(reg)
		delete(g.regs, id)
	}
	g.closed = true
}
