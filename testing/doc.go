// Package testing provides simulation-based collaborators for deterministic
// testing of the audio governor.
//
// # Overview
//
// This package implements in-memory stand-ins for the things the governor
// drives in production: the audio engine's graph and the platform audio
// context. It also generates synthetic callback timing so load scenarios
// can be replayed without an audio device.
//
// # Simulation vs Real Implementation
//
//   - Simulation (this package): operations are recorded in logs for
//     verification and failures can be injected. Used for unit tests and
//     the governor-sim command.
//
//   - Real: the embedding engine supplies its own interfaces.IGraphApplier
//     and interfaces.IAudioContext.
//
// # Usage
//
//	applier := testing.NewRecordingApplier()
//	gov, err := audiogovernor.New(cfg, applier)
//
//	gov.AddNode("osc", "out")
//	gov.Flush()
//
//	log := applier.GetApplyLog()
//	if len(log) != 1 || !log[0].Success {
//	    t.Error("expected one successful apply")
//	}
//
// [LoadRamp] produces callback samples whose utilization moves linearly
// between two values, which is how the degradation walk is exercised end
// to end.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use from multiple
// goroutines. Internal synchronization uses sync.RWMutex.
package testing
