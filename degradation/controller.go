package degradation

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/opd-ai/audiogovernor/limits"
	"github.com/opd-ai/audiogovernor/listener"
	"github.com/sirupsen/logrus"
)

// Level is an ordered quality tier.
type Level int

const (
	LevelNone Level = iota
	LevelMinor
	LevelModerate
	LevelSevere
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelMinor:
		return "minor"
	case LevelModerate:
		return "moderate"
	case LevelSevere:
		return "severe"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// EffectID names an effect category the engine may switch off.
type EffectID string

const (
	EffectReverb     EffectID = "reverb"
	EffectChorus     EffectID = "chorus"
	EffectDelay      EffectID = "delay"
	EffectBitcrusher EffectID = "bitcrusher"
)

// State is the degradation decision for the current load.
type State struct {
	Level Level
	// ReducedVoices is how many of the active voices should be shed.
	ReducedVoices   uint
	ReducedQuality  bool
	DisabledEffects map[EffectID]struct{}
}

// IsDisabled reports whether effect is switched off in this state.
func (s State) IsDisabled(effect EffectID) bool {
	_, ok := s.DisabledEffects[effect]
	return ok
}

// DisabledList returns the disabled effects in sorted order.
func (s State) DisabledList() []EffectID {
	out := make([]EffectID, 0, len(s.DisabledEffects))
	for e := range s.DisabledEffects {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s State) clone() State {
	c := s
	c.DisabledEffects = make(map[EffectID]struct{}, len(s.DisabledEffects))
	for e := range s.DisabledEffects {
		c.DisabledEffects[e] = struct{}{}
	}
	return c
}

// Config holds level boundaries and per-level actions.
type Config struct {
	MinorThreshold    float64 `yaml:"minor_threshold"`    // Utilization entering minor (default: 0.70)
	ModerateThreshold float64 `yaml:"moderate_threshold"` // Utilization entering moderate (default: 0.85)
	SevereThreshold   float64 `yaml:"severe_threshold"`   // Utilization entering severe (default: 0.95)

	MinorVoiceReduction    float64 `yaml:"minor_voice_reduction"`    // Fraction of voices shed at minor (default: 0.25)
	ModerateVoiceReduction float64 `yaml:"moderate_voice_reduction"` // Fraction of voices shed at moderate (default: 0.5)
	SevereVoiceReduction   float64 `yaml:"severe_voice_reduction"`   // Fraction of voices shed at severe (default: 0.75)

	ModerateDisabledEffects int `yaml:"moderate_disabled_effects"` // Effects switched off at moderate (default: 1)
	SevereDisabledEffects   int `yaml:"severe_disabled_effects"`   // Effects switched off at severe (default: 3)

	// SheddableEffects lists effect categories in the order they are switched off.
	SheddableEffects []EffectID `yaml:"sheddable_effects"`
}

// DefaultConfig returns the default degradation policy.
func DefaultConfig() Config {
	return Config{
		MinorThreshold:          0.70,
		ModerateThreshold:       0.85,
		SevereThreshold:         0.95,
		MinorVoiceReduction:     0.25,
		ModerateVoiceReduction:  0.5,
		SevereVoiceReduction:    0.75,
		ModerateDisabledEffects: 1,
		SevereDisabledEffects:   3,
		SheddableEffects:        []EffectID{EffectReverb, EffectChorus, EffectDelay, EffectBitcrusher},
	}
}

// Validate checks the configuration against package limits.
func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"minor threshold", c.MinorThreshold},
		{"moderate threshold", c.ModerateThreshold},
		{"severe threshold", c.SevereThreshold},
		{"minor voice reduction", c.MinorVoiceReduction},
		{"moderate voice reduction", c.ModerateVoiceReduction},
		{"severe voice reduction", c.SevereVoiceReduction},
	} {
		if err := limits.ValidateFraction(f.name, f.v); err != nil {
			return err
		}
	}
	if !(c.MinorThreshold < c.ModerateThreshold && c.ModerateThreshold < c.SevereThreshold) {
		return fmt.Errorf("%w: degradation thresholds must ascend, got %.2f/%.2f/%.2f",
			limits.ErrOutOfRange, c.MinorThreshold, c.ModerateThreshold, c.SevereThreshold)
	}
	if c.ModerateDisabledEffects < 1 || c.SevereDisabledEffects < 2 || c.SevereDisabledEffects < c.ModerateDisabledEffects {
		return fmt.Errorf("%w: disabled effects moderate=%d severe=%d",
			limits.ErrOutOfRange, c.ModerateDisabledEffects, c.SevereDisabledEffects)
	}
	if len(c.SheddableEffects) < c.SevereDisabledEffects {
		return fmt.Errorf("%w: %d sheddable effects cannot satisfy %d disabled at severe",
			limits.ErrOutOfRange, len(c.SheddableEffects), c.SevereDisabledEffects)
	}
	return nil
}

// ChangeHandler receives the new state when the level changes.
type ChangeHandler func(State)

// Controller is the degradation state machine.
type Controller struct {
	mu        sync.Mutex
	config    Config
	state     State
	listeners *listener.Registry[ChangeHandler]
}

// NewController creates a controller at LevelNone.
func NewController(config Config) *Controller {
	logrus.WithFields(logrus.Fields{
		"function":           "degradation.NewController",
		"minor_threshold":    config.MinorThreshold,
		"moderate_threshold": config.ModerateThreshold,
		"severe_threshold":   config.SevereThreshold,
	}).Info("Creating degradation controller")

	return &Controller{
		config:    config,
		state:     State{Level: LevelNone, DisabledEffects: map[EffectID]struct{}{}},
		listeners: listener.New[ChangeHandler](),
	}
}

// LevelFor returns the level a utilization falls into.
func (c *Controller) LevelFor(utilization float64) Level {
	switch {
	case utilization >= c.config.SevereThreshold:
		return LevelSevere
	case utilization >= c.config.ModerateThreshold:
		return LevelModerate
	case utilization >= c.config.MinorThreshold:
		return LevelMinor
	default:
		return LevelNone
	}
}

// Update recomputes the state from the current load and returns it.
// Listeners are notified only when the level differs from the previous one.
// A NaN or infinite utilization keeps the current level.
func (c *Controller) Update(cpuUtilization float64, activeVoiceCount uint) State {
	c.mu.Lock()
	level := c.state.Level
	if !math.IsNaN(cpuUtilization) && !math.IsInf(cpuUtilization, 0) {
		level = c.LevelFor(cpuUtilization)
	}
	next := c.build(level, activeVoiceCount)
	prev := c.state.Level
	c.state = next
	out := next.clone()
	c.mu.Unlock()

	if next.Level != prev {
		logrus.WithFields(logrus.Fields{
			"function":       "Controller.Update",
			"from":           prev.String(),
			"to":             next.Level.String(),
			"utilization":    cpuUtilization,
			"reduced_voices": next.ReducedVoices,
		}).Info("Degradation level changed")
		c.notify(out)
	}
	return out
}

func (c *Controller) build(level Level, voices uint) State {
	s := State{Level: level, DisabledEffects: map[EffectID]struct{}{}}

	var fraction float64
	var effects int
	switch level {
	case LevelMinor:
		fraction = c.config.MinorVoiceReduction
	case LevelModerate:
		fraction = c.config.ModerateVoiceReduction
		effects = c.config.ModerateDisabledEffects
		s.ReducedQuality = true
	case LevelSevere:
		fraction = c.config.SevereVoiceReduction
		effects = c.config.SevereDisabledEffects
		s.ReducedQuality = true
	}

	s.ReducedVoices = reduceVoices(voices, fraction)
	if effects > len(c.config.SheddableEffects) {
		effects = len(c.config.SheddableEffects)
	}
	for _, e := range c.config.SheddableEffects[:effects] {
		s.DisabledEffects[e] = struct{}{}
	}
	return s
}

// reduceVoices returns ceil(voices*fraction), at least 1 when both are positive.
func reduceVoices(voices uint, fraction float64) uint {
	if voices == 0 || fraction <= 0 {
		return 0
	}
	n := uint(math.Ceil(float64(voices) * fraction))
	if n < 1 {
		n = 1
	}
	if n > voices {
		n = voices
	}
	return n
}

func (c *Controller) notify(s State) {
	for _, fn := range c.listeners.Snapshot() {
		fn(s.clone())
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Level returns the current level.
func (c *Controller) Level() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Level
}

// OnChange registers fn to be called on every level transition.
func (c *Controller) OnChange(fn ChangeHandler) listener.Handle {
	return c.listeners.Add(fn)
}

// Unsubscribe removes an OnChange registration.
func (c *Controller) Unsubscribe(h listener.Handle) bool {
	return c.listeners.Remove(h)
}

// Reset returns to LevelNone regardless of load.
func (c *Controller) Reset() {
	c.mu.Lock()
	prev := c.state.Level
	c.state = State{Level: LevelNone, DisabledEffects: map[EffectID]struct{}{}}
	out := c.state.clone()
	c.mu.Unlock()

	if prev != LevelNone {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.Reset",
			"from":     prev.String(),
		}).Info("Degradation reset")
		c.notify(out)
	}
}

// Close drops every listener.
func (c *Controller) Close() {
	c.listeners.Clear()
}
