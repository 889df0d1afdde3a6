// Package lifecycle keeps platform audio contexts running.
//
// Hosts suspend audio contexts for their own reasons: an autoplay policy
// that waits for a user gesture, a hidden tab, a power-saving mode. A
// [Guard] resumes a registered context as soon as it is registered and
// again whenever the host reports that the page became visible or that the
// user interacted with it. Those host events arrive through a [Signals]
// hub, which the embedding application feeds.
package lifecycle

import (
	"github.com/opd-ai/audiogovernor/listener"
)

// VisibilityHandler receives visibility changes.
type VisibilityHandler func(visible bool)

// InteractionHandler receives user interaction events.
type InteractionHandler func()

// Signals fans host lifecycle events out to listeners.
type Signals struct {
	visibility  *listener.Registry[VisibilityHandler]
	interaction *listener.Registry[InteractionHandler]
}

// NewSignals creates an empty hub.
func NewSignals() *Signals {
	return &Signals{
		visibility:  listener.New[VisibilityHandler](),
		interaction: listener.New[InteractionHandler](),
	}
}

// OnVisibilityChange registers fn for visibility events.
func (s *Signals) OnVisibilityChange(fn VisibilityHandler) listener.Handle {
	return s.visibility.Add(fn)
}

// OnInteraction registers fn for user interaction events.
func (s *Signals) OnInteraction(fn InteractionHandler) listener.Handle {
	return s.interaction.Add(fn)
}

// RemoveVisibility removes a visibility registration.
func (s *Signals) RemoveVisibility(h listener.Handle) bool {
	return s.visibility.Remove(h)
}

// RemoveInteraction removes an interaction registration.
func (s *Signals) RemoveInteraction(h listener.Handle) bool {
	return s.interaction.Remove(h)
}

// EmitVisibility reports a visibility change to every listener.
func (s *Signals) EmitVisibility(visible bool) {
	for _, fn := range s.visibility.Snapshot() {
		fn(visible)
	}
}

// EmitInteraction reports a user interaction to every listener.
func (s *Signals) EmitInteraction() {
	for _, fn := range s.interaction.Snapshot() {
		fn()
	}
}

// ListenerCount returns the number of live registrations across both events.
func (s *Signals) ListenerCount() int {
	return s.visibility.Len() + s.interaction.Len()
}
