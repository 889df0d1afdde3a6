package testing

import (
	"context"
	"sync"
	"time"

	"github.com/opd-ai/audiogovernor/graph"
	"github.com/opd-ai/audiogovernor/interfaces"
	"github.com/opd-ai/audiogovernor/rtqueue"
	"github.com/sirupsen/logrus"
)

// SimulatedAudioContext is an in-memory interfaces.IAudioContext.
type SimulatedAudioContext struct {
	id        string
	state     interfaces.ContextState
	resumeErr error
	resumes   int
	mu        sync.RWMutex
}

// NewSimulatedAudioContext creates a context in the given state.
func NewSimulatedAudioContext(id string, state interfaces.ContextState) *SimulatedAudioContext {
	logrus.WithFields(logrus.Fields{
		"function": "NewSimulatedAudioContext",
		"id":       id,
		"state":    state.String(),
	}).Info("Creating simulated audio context for testing")

	return &SimulatedAudioContext{id: id, state: state}
}

// ID implements IAudioContext.ID
func (s *SimulatedAudioContext) ID() string {
	return s.id
}

// State implements IAudioContext.State
func (s *SimulatedAudioContext) State() interfaces.ContextState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Resume implements IAudioContext.Resume with simulation
func (s *SimulatedAudioContext) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resumes++
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.state == interfaces.StateClosed {
		return interfaces.ErrContextClosed
	}
	if s.resumeErr != nil {
		return s.resumeErr
	}
	s.state = interfaces.StateRunning
	return nil
}

// Suspend moves the context to the suspended state, as a host would.
func (s *SimulatedAudioContext) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != interfaces.StateClosed {
		s.state = interfaces.StateSuspended
	}
}

// Close releases the context permanently.
func (s *SimulatedAudioContext) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = interfaces.StateClosed
}

// FailResumes makes every Resume return err until called again with nil.
func (s *SimulatedAudioContext) FailResumes(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeErr = err
}

// ResumeCalls returns how many times Resume was called.
func (s *SimulatedAudioContext) ResumeCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resumes
}

// ApplyRecord represents one ApplyOperations call for test verification
type ApplyRecord struct {
	Operations []graph.CompiledOperation
	Timestamp  int64
	Success    bool
	Error      error
}

// RecordingApplier is an interfaces.IGraphApplier that logs every call.
type RecordingApplier struct {
	applyLog []ApplyRecord
	failNext int
	failErr  error
	mu       sync.RWMutex
}

// NewRecordingApplier creates an applier with an empty log.
func NewRecordingApplier() *RecordingApplier {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	logrus.WithFields(logrus.Fields{
		"function": "NewRecordingApplier",
	}).Info("Creating recording graph applier for testing")

	return &RecordingApplier{}
}

// FailNext makes the next n calls return err without applying anything.
func (r *RecordingApplier) FailNext(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
	r.failErr = err
}

// ApplyOperations implements IGraphApplier.ApplyOperations with simulation
func (r *RecordingApplier) ApplyOperations(ctx context.Context, ops []graph.CompiledOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := ApplyRecord{
		Operations: append([]graph.CompiledOperation(nil), ops...),
		Timestamp:  time.Now().UnixNano(),
	}

	var err error
	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
	case r.failNext > 0:
		r.failNext--
		err = r.failErr
	}

	record.Success = err == nil
	record.Error = err
	r.applyLog = append(r.applyLog, record)

	logrus.WithFields(logrus.Fields{
		"function":    "RecordingApplier.ApplyOperations",
		"operations":  len(ops),
		"success":     record.Success,
		"total_calls": len(r.applyLog),
	}).Debug("Graph apply simulated")

	return err
}

// GetApplyLog returns a copy of the apply log.
func (r *RecordingApplier) GetApplyLog() []ApplyRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ApplyRecord, len(r.applyLog))
	copy(out, r.applyLog)
	return out
}

// AppliedOperations returns every operation from successful calls, in order.
func (r *RecordingApplier) AppliedOperations() []graph.CompiledOperation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []graph.CompiledOperation
	for _, rec := range r.applyLog {
		if rec.Success {
			out = append(out, rec.Operations...)
		}
	}
	return out
}

// ClearApplyLog resets the log.
func (r *RecordingApplier) ClearApplyLog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyLog = nil
}

// LoadRamp generates callback samples whose utilization moves linearly
// from Start to End over Steps callbacks.
type LoadRamp struct {
	Start      float64
	End        float64
	Steps      int
	Frames     int
	SampleRate float64
	// Origin is the timestamp of the first callback.
	Origin time.Time
	// SkipEvery drops every Nth callback's time slot to simulate a dropout.
	// Zero disables it.
	SkipEvery int
}

// ExpectedMs returns the per-callback budget.
func (l LoadRamp) ExpectedMs() float64 {
	if l.Frames <= 0 || l.SampleRate <= 0 {
		return 0
	}
	return float64(l.Frames) / l.SampleRate * 1000
}

// Utilization returns the target utilization of step i.
func (l LoadRamp) Utilization(i int) float64 {
	if l.Steps <= 1 {
		return l.End
	}
	if i >= l.Steps {
		i = l.Steps - 1
	}
	return l.Start + (l.End-l.Start)*float64(i)/float64(l.Steps-1)
}

// Sample returns the timing of callback i.
func (l LoadRamp) Sample(i int) rtqueue.Sample {
	expected := l.ExpectedMs()
	u := l.Utilization(i)

	slot := i
	if l.SkipEvery > 0 {
		slot += i / l.SkipEvery * 2
	}
	at := l.Origin.Add(time.Duration(float64(slot) * expected * float64(time.Millisecond)))

	return rtqueue.Sample{
		CPUTimeMs:  u * expected,
		ActualMs:   u * expected,
		ExpectedMs: expected,
		Frames:     l.Frames,
		SampleRate: l.SampleRate,
		At:         at,
	}
}

// Samples returns every step of the ramp.
func (l LoadRamp) Samples() []rtqueue.Sample {
	out := make([]rtqueue.Sample, l.Steps)
	for i := range out {
		out[i] = l.Sample(i)
	}
	return out
}

// Compile-time checks that the simulations satisfy the collaborator contracts.
var (
	_ interfaces.IAudioContext = (*SimulatedAudioContext)(nil)
	_ interfaces.IGraphApplier = (*RecordingApplier)(nil)
)
