// Package warning implements the performance warning bus: a bounded history
// of diagnostic events with publish/subscribe fan-out.
//
// Every overload condition in the governor is reported as data through this
// bus rather than as an error. The history is a fixed-capacity ring; when it
// is full the oldest warning is evicted, so sustained overload can never grow
// memory without bound.
//
//	bus := warning.NewManager(warning.DefaultConfig())
//	h := bus.Subscribe(func(w warning.Warning) {
//	    if w.Severity == warning.SeverityCritical {
//	        showIndicator(w.Message)
//	    }
//	})
//	defer bus.Unsubscribe(h)
//
//	bus.Warn(warning.TypeCPU, warning.SeverityWarning, "average load 82%")
//	recent := bus.GetRecentWarnings(10)
package warning
