// Package interfaces defines the collaborator boundary of the audio
// governor: the things it drives but does not own.
//
// This package provides the abstractions that let the same governor run
// against a real audio engine in production and against in-memory
// simulations in tests.
//
// # Core Interfaces
//
// [IGraphApplier] receives the ordered edge operations produced by the
// graph compiler and applies them to the engine's processing graph:
//
//	type EngineApplier struct {
//	    engine *Engine
//	}
//
//	func (a *EngineApplier) ApplyOperations(ctx context.Context, ops []graph.CompiledOperation) error {
//	    for _, op := range ops {
//	        var err error
//	        switch op.Type {
//	        case graph.OpConnect:
//	            err = a.engine.Connect(string(op.NodeID), string(op.TargetID))
//	        case graph.OpDisconnect:
//	            err = a.engine.Disconnect(string(op.NodeID), string(op.TargetID))
//	        }
//	        if err != nil {
//	            return err
//	        }
//	    }
//	    return nil
//	}
//
// [IAudioContext] is a platform audio context handle that may be
// suspended by the host (for example by an autoplay policy) and must be
// resumed before audio flows:
//
//	guard := lifecycle.NewGuard(lifecycle.DefaultConfig(), signals)
//	if err := guard.Register(ctx); err != nil {
//	    log.Printf("register failed: %v", err)
//	}
//
// # Implementation Selection
//
// The governor uses graph.LiveGraph when no applier is supplied. The
// simulation package (testing) provides SimulatedAudioContext and
// RecordingApplier for deterministic tests.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The governor calls
// ApplyOperations from the control context only, but Resume may be
// triggered by signal delivery on any goroutine.
//
// # Error Handling
//
// Methods return errors for:
//   - ApplyOperations: invalid operation, engine refused the edit, context cancelled
//   - Resume: platform refused to resume, context deadline exceeded
//
// Callers treat both as recoverable: a failed apply becomes a critical
// warning and a failed resume is retried on the next qualifying signal.
package interfaces
