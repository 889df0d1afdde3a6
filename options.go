package audiogovernor

import (
	"github.com/opd-ai/audiogovernor/clock"
	"github.com/opd-ai/audiogovernor/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
)

// Option customizes a Governor.
type Option func(*options)

type options struct {
	timeProvider clock.TimeProvider
	registerer   prometheus.Registerer
	signals      *lifecycle.Signals
}

// WithTimeProvider injects the clock used by every component. Tests pass
// a clock.MockTimeProvider.
func WithTimeProvider(tp clock.TimeProvider) Option {
	return func(o *options) {
		o.timeProvider = tp
	}
}

// WithMetrics registers governor metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithSignals sets the hub that host visibility and interaction events
// arrive on.
func WithSignals(s *lifecycle.Signals) Option {
	return func(o *options) {
		o.signals = s
	}
}
