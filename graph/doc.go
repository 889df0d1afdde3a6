// Package graph owns every topology edit applied to the live audio graph.
//
// Edits never reach the graph directly. They are queued on a
// [LazyGraphUpdater], which folds bursts of AddNode, RemoveNode and
// ModifyConnection calls into one [Batch] and delivers it once mutation
// activity has been quiet for the debounce window, or at once on Flush.
// The debounce timer lives on a clock.Scheduler, so it only fires when the
// control context calls Tick.
//
// A [Compiler] turns a batch plus the current [Topology] into the minimal
// ordered list of [CompiledOperation] values that carries the live graph
// from its pre-batch shape to its post-batch shape:
//
//	updater := graph.NewLazyGraphUpdater(graph.DefaultBatcherConfig(), sched)
//	compiler, _ := graph.NewCompiler(graph.DefaultCompilerConfig())
//	live := graph.NewLiveGraph()
//
//	updater.OnBatchReady(func(b graph.Batch) {
//	    ops := compiler.Compile(live.Snapshot(), b)
//	    if err := live.Apply(ops); err != nil {
//	        log.Printf("apply failed: %v", err)
//	    }
//	})
//
// Compilation results are memoized in a bounded LRU keyed by an xxhash of
// the topology version and the batch contents.
package graph
