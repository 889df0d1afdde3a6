// Package audiogovernor keeps a live audio processing graph inside its
// timing budget.
//
// A [Governor] supervises two contexts. The real-time audio callback
// reports its timing through ReportCallback, which pushes onto a lock-free
// ring and never blocks, and borrows scratch buffers through
// AcquireBuffer/ReleaseBuffer. Everything else happens in the control
// context, driven by Iterate or Run:
//
//   - timing samples are drained into the CPU load monitor and glitch
//     detector
//   - the degradation controller is updated with the latest utilization
//     and the active voice count
//   - debounced graph edits are compiled and applied
//   - idle pooled buffers are pruned
//
// Overload is reported as data. CPU threshold crossings, glitches,
// degradation level changes and graph failures become warnings on the
// bus; nothing on these paths returns an error to the audio callback.
//
// # Getting Started
//
//	cfg, err := config.Load("governor.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	gov, err := audiogovernor.New(cfg, engineApplier)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gov.Cleanup()
//
//	gov.OnDegradationChange(func(s degradation.State) {
//	    engine.ShedVoices(s.ReducedVoices)
//	})
//
//	go gov.Run(ctx)
//
// Inside the audio callback:
//
//	mark := stopwatch.Start()
//	render(out)
//	gov.ReportCallback(stopwatch.Stop(mark, len(out), sampleRate))
//
// # Graph Edits
//
// Topology edits go through the governor, never straight to the engine:
//
//	gov.AddNode("reverb", "master")
//	gov.Connect("synth", "reverb")
//	gov.RemoveNode("chorus")
//
// Edits are batched until the debounce window passes without another
// edit, then compiled into the minimal disconnect/connect sequence and
// handed to the graph applier. Flush forces delivery.
//
// # Testing
//
// Pass WithTimeProvider(clock.NewMockTimeProvider(...)) and call Iterate
// directly to step the governor deterministically.
package audiogovernor
