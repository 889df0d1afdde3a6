package audiogovernor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/audiogovernor/bufpool"
	"github.com/opd-ai/audiogovernor/clock"
	"github.com/opd-ai/audiogovernor/config"
	"github.com/opd-ai/audiogovernor/cpuload"
	"github.com/opd-ai/audiogovernor/degradation"
	"github.com/opd-ai/audiogovernor/glitch"
	"github.com/opd-ai/audiogovernor/graph"
	"github.com/opd-ai/audiogovernor/interfaces"
	"github.com/opd-ai/audiogovernor/lifecycle"
	"github.com/opd-ai/audiogovernor/listener"
	"github.com/opd-ai/audiogovernor/metrics"
	"github.com/opd-ai/audiogovernor/rtqueue"
	"github.com/opd-ai/audiogovernor/warning"
	"github.com/sirupsen/logrus"
)

// cpuAlert is the highest CPU threshold currently crossed.
type cpuAlert int

const (
	cpuAlertNone cpuAlert = iota
	cpuAlertWarning
	cpuAlertCritical
)

// Governor wires the performance components together.
type Governor struct {
	config *config.Config
	tp     clock.TimeProvider
	sched  *clock.Scheduler

	pool        *bufpool.Pool
	warnings    *warning.Manager
	cpu         *cpuload.Monitor
	glitches    *glitch.Detector
	degradation *degradation.Controller
	updater     *graph.LazyGraphUpdater
	compiler    *graph.Compiler
	live        *graph.LiveGraph
	applier     interfaces.IGraphApplier
	guard       *lifecycle.Guard
	ring        *rtqueue.Ring[rtqueue.Sample]
	metrics     *metrics.Collector
	pruneTimer  *clock.Timer

	// iterMu serializes control-context work: Iterate, direct samples,
	// and batch application.
	iterMu       sync.Mutex
	alert        cpuAlert
	lastOverflow uint64
	unsubscribe  []func()

	voices         atomic.Uint64
	closed         atomic.Bool
	running        atomic.Bool
	done           chan struct{}
	iterations     atomic.Uint64
	samples        atomic.Uint64
	batchesApplied atomic.Uint64
	applyFailures  atomic.Uint64
	pruned         atomic.Uint64
}

// New builds a governor from cfg. A nil cfg uses config.Default(). A nil
// applier keeps edits in the governor's own graph.LiveGraph only; a
// non-nil applier receives every compiled batch before the internal graph
// records it.
func New(cfg *config.Config, applier interfaces.IGraphApplier, opts ...Option) (*Governor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	tp := clock.OrDefault(o.timeProvider)

	logrus.WithFields(logrus.Fields{
		"function":           "audiogovernor.New",
		"iteration_interval": cfg.Governor.IterationInterval,
		"ring_capacity":      cfg.Governor.RingCapacity,
		"external_applier":   applier != nil,
	}).Info("Creating performance governor")

	compiler, err := graph.NewCompiler(cfg.Compiler)
	if err != nil {
		return nil, fmt.Errorf("create graph compiler: %w", err)
	}

	var collector *metrics.Collector
	if o.registerer != nil {
		collector, err = metrics.NewCollector(o.registerer)
		if err != nil {
			return nil, err
		}
	}

	sched := clock.NewScheduler(tp)
	g := &Governor{
		config:      cfg,
		tp:          tp,
		sched:       sched,
		pool:        bufpool.New(cfg.Pool),
		warnings:    warning.NewManager(cfg.Warnings),
		cpu:         cpuload.NewMonitor(cfg.CPU),
		glitches:    glitch.NewDetector(cfg.Glitch),
		degradation: degradation.NewController(cfg.Degradation),
		updater:     graph.NewLazyGraphUpdater(cfg.Batcher, sched),
		compiler:    compiler,
		live:        graph.NewLiveGraph(),
		applier:     applier,
		guard:       lifecycle.NewGuard(cfg.Lifecycle, o.signals),
		ring:        rtqueue.New[rtqueue.Sample](cfg.Governor.RingCapacity),
		metrics:     collector,
		done:        make(chan struct{}),
	}
	g.pool.SetTimeProvider(tp)
	g.warnings.SetTimeProvider(tp)
	g.glitches.SetTimeProvider(tp)
	g.voices.Store(uint64(cfg.Governor.InitialVoices))

	g.wire()

	g.pruneTimer = sched.NewTimer("pool-prune", g.prunePool)
	g.pruneTimer.Reset(cfg.Pool.PruneInterval)

	return g, nil
}

// wire installs the internal subscriptions that turn component events into
// warnings, metrics and graph edits.
func (g *Governor) wire() {
	gh := g.glitches.OnGlitch(g.onGlitch)
	dh := g.degradation.OnChange(g.onLevelChange)
	bh := g.updater.OnBatchReady(g.onBatch)
	wh := g.warnings.Subscribe(func(w warning.Warning) {
		g.metrics.IncWarning(string(w.Type), w.Severity.String())
	})
	lh := g.guard.OnResumeFailed(func(id string, err error) {
		g.warnings.Warn(warning.TypeLifecycle, warning.SeverityWarning,
			fmt.Sprintf("audio context %s failed to resume: %v", id, err))
	})

	g.unsubscribe = []func(){
		func() { g.glitches.Unsubscribe(gh) },
		func() { g.degradation.Unsubscribe(dh) },
		func() { g.updater.Unsubscribe(bh) },
		func() { g.warnings.Unsubscribe(wh) },
		func() { g.guard.Unsubscribe(lh) },
	}
}

// ReportCallback queues one callback's timing for the control context. It
// is safe to call from the real-time audio callback: it never allocates,
// locks or blocks. It returns false when the sample was dropped because
// the ring was full or the governor is closed.
func (g *Governor) ReportCallback(sample rtqueue.Sample) bool {
	if g.closed.Load() {
		return false
	}
	return g.ring.Push(sample)
}

// AcquireBuffer borrows a buffer of size samples from the pool.
func (g *Governor) AcquireBuffer(size int) *bufpool.PooledBuffer {
	return g.pool.Acquire(size)
}

// ReleaseBuffer returns a buffer to the pool.
func (g *Governor) ReleaseBuffer(buf *bufpool.PooledBuffer) {
	g.pool.Release(buf)
}

// IterationInterval returns the recommended interval between Iterate calls.
func (g *Governor) IterationInterval() time.Duration {
	return g.config.Governor.IterationInterval
}

// Iterate runs one control-context pass: drain timing samples, update
// degradation, fire due timers (batch debounce, pool prune) and refresh
// metrics. A panic raised by a collaborator is recovered and reported as a
// critical warning.
func (g *Governor) Iterate() {
	if g.closed.Load() {
		return
	}
	start := time.Now()

	g.iterMu.Lock()
	g.guarded("Governor.Iterate", func() {
		g.ring.Drain(g.consumeSample)
	})
	g.checkOverflow()
	g.iterMu.Unlock()

	// Timer callbacks take iterMu themselves.
	g.guarded("Governor.Iterate", func() { g.sched.Tick() })

	g.iterations.Add(1)
	g.refreshMetrics()
	g.metrics.ObserveIteration(time.Since(start))
}

// guarded runs fn and converts a panic into a critical warning. It reports
// whether fn completed.
func (g *Governor) guarded(where string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": where,
				"panic":    r,
			}).Error("Recovered panic in control context")
			g.warnings.Warn(warning.TypeGraph, warning.SeverityCritical,
				fmt.Sprintf("recovered panic in %s: %v", where, r))
			ok = false
		}
	}()
	fn()
	return true
}

func (g *Governor) consumeSample(s rtqueue.Sample) {
	g.samples.Add(1)
	g.metrics.AddSamplesDrained(1)
	g.recordLocked(s.CPUTimeMs, s.Frames, s.SampleRate)
	if s.ExpectedMs > 0 {
		at := s.At
		if at.IsZero() {
			at = g.tp.Now()
		}
		g.glitches.CheckCallbackAt(at, s.ActualMs, s.ExpectedMs)
	}
}

func (g *Governor) checkOverflow() {
	total := g.ring.Overflowed()
	if total == g.lastOverflow {
		return
	}
	dropped := total - g.lastOverflow
	g.lastOverflow = total
	g.metrics.AddRingOverflows(dropped)
	g.warnings.Warn(warning.TypeCPU, warning.SeverityWarning,
		fmt.Sprintf("timing ring full: %d callback samples dropped", dropped))
}

// Run calls Iterate every IterationInterval until ctx is cancelled or
// Cleanup is called. It returns ctx.Err() on cancellation and nil after
// Cleanup.
func (g *Governor) Run(ctx context.Context) error {
	if g.closed.Load() {
		return ErrClosed
	}
	if !g.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer g.running.Store(false)

	ticker := time.NewTicker(g.IterationInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.done:
			return nil
		case <-ticker.C:
			g.Iterate()
		}
	}
}

// IsRunning reports whether a Run loop is active.
func (g *Governor) IsRunning() bool {
	return g.running.Load()
}

// RecordSample feeds one CPU timing sample directly, for hosts that
// measure on the control context. It returns the sample's utilization.
func (g *Governor) RecordSample(cpuTimeMs float64, bufferSizeFrames int, sampleRateHz float64) float64 {
	g.iterMu.Lock()
	defer g.iterMu.Unlock()
	g.samples.Add(1)
	return g.recordLocked(cpuTimeMs, bufferSizeFrames, sampleRateHz)
}

// recordLocked records a CPU sample, raises threshold warnings and updates
// the degradation level. Callers hold iterMu.
func (g *Governor) recordLocked(cpuTimeMs float64, frames int, rate float64) float64 {
	if _, ok := cpuload.Utilization(cpuTimeMs, frames, rate); !ok {
		// Dropped and logged by the monitor; the degradation level stays put.
		return g.cpu.RecordSample(cpuTimeMs, frames, rate)
	}
	u := g.cpu.RecordSample(cpuTimeMs, frames, rate)
	g.checkThresholds()
	g.degradation.Update(u, g.ActiveVoices())
	return u
}

func (g *Governor) checkThresholds() {
	status := g.cpu.CheckThresholds()
	next := cpuAlertNone
	switch {
	case status.Critical:
		next = cpuAlertCritical
	case status.Warning:
		next = cpuAlertWarning
	}

	prev := g.alert
	g.alert = next
	if next <= prev {
		return
	}

	severity := warning.SeverityWarning
	if next == cpuAlertCritical {
		severity = warning.SeverityCritical
	}
	g.warnings.Warn(warning.TypeCPU, severity,
		fmt.Sprintf("CPU load high: average %.0f%%, peak %.0f%%", status.Average*100, status.Peak*100))
}

// CheckCallback checks one callback's duration against its budget
// directly, for hosts that measure on the control context.
func (g *Governor) CheckCallback(actualDurationMs, expectedDurationMs float64) glitch.Detection {
	return g.glitches.CheckCallback(actualDurationMs, expectedDurationMs)
}

func (g *Governor) onGlitch(d glitch.Detection) {
	g.metrics.IncGlitch(d.Type.String())

	severity := warning.SeverityWarning
	if d.Type == glitch.TypeDropout {
		severity = warning.SeverityCritical
	}
	g.warnings.Warn(warning.TypeGlitch, severity,
		fmt.Sprintf("audio %s detected (%.1fx expected)", d.Type, d.Ratio))
}

func (g *Governor) onLevelChange(s degradation.State) {
	g.metrics.SetDegradation(int(s.Level), s.ReducedVoices)

	severity := warning.SeverityInfo
	switch s.Level {
	case degradation.LevelModerate:
		severity = warning.SeverityWarning
	case degradation.LevelSevere:
		severity = warning.SeverityCritical
	}
	g.warnings.Warn(warning.TypeDegradation, severity,
		fmt.Sprintf("degradation level %s: shed %d voices, reduced quality %t, %d effects disabled",
			s.Level, s.ReducedVoices, s.ReducedQuality, len(s.DisabledEffects)))
}

// SetActiveVoices sets the voice count used by the next degradation update.
func (g *Governor) SetActiveVoices(n uint) {
	g.voices.Store(uint64(n))
}

// ActiveVoices returns the current voice count.
func (g *Governor) ActiveVoices() uint {
	return uint(g.voices.Load())
}

// AddNode declares node with the targets it should feed and queues its
// addition.
func (g *Governor) AddNode(id graph.NodeID, targets ...graph.NodeID) {
	if g.closed.Load() {
		return
	}
	g.live.Declare(id, targets...)
	g.updater.AddNode(id)
}

// RemoveNode queues the removal of node and all of its edges.
func (g *Governor) RemoveNode(id graph.NodeID) {
	if g.closed.Load() {
		return
	}
	g.updater.RemoveNode(id)
}

// ModifyConnection queues a re-evaluation of one edge against its
// declaration. A live, declared edge is re-patched.
func (g *Governor) ModifyConnection(id graph.ConnectionID) {
	if g.closed.Load() {
		return
	}
	g.updater.ModifyConnection(id)
}

// Connect declares source->target and queues the edge.
func (g *Governor) Connect(source, target graph.NodeID) {
	if g.closed.Load() {
		return
	}
	conn := graph.ConnectionID{Source: source, Target: target}
	g.live.SetDeclared(conn, true)
	g.updater.ModifyConnection(conn)
}

// Disconnect withdraws source->target and queues its removal.
func (g *Governor) Disconnect(source, target graph.NodeID) {
	if g.closed.Load() {
		return
	}
	conn := graph.ConnectionID{Source: source, Target: target}
	g.live.SetDeclared(conn, false)
	g.updater.ModifyConnection(conn)
}

// Flush delivers pending graph edits now.
func (g *Governor) Flush() graph.Batch {
	return g.updater.Flush()
}

// Topology returns a snapshot of the governor's view of the graph.
func (g *Governor) Topology() graph.Topology {
	return g.live.Snapshot()
}

func (g *Governor) onBatch(b graph.Batch) {
	if b.Empty() {
		return
	}
	g.iterMu.Lock()
	defer g.iterMu.Unlock()
	g.guarded("Governor.onBatch", func() { g.applyBatch(b) })
}

func (g *Governor) applyBatch(b graph.Batch) {
	ops := g.compiler.Compile(g.live.Snapshot(), b)

	if len(ops) > 0 {
		if g.applier != nil {
			ctx, cancel := context.WithTimeout(context.Background(), g.config.Governor.ApplyTimeout)
			err := g.applier.ApplyOperations(ctx, ops)
			cancel()
			if err != nil {
				g.failApply(len(ops), err)
				return
			}
		}
		if err := g.live.Apply(ops); err != nil {
			g.failApply(len(ops), err)
			return
		}
	}

	var gone []graph.NodeID
	for id := range b.RemovedNodes {
		if _, readded := b.AddedNodes[id]; !readded {
			gone = append(gone, id)
		}
	}
	g.live.Forget(gone...)

	connects := 0
	for _, op := range ops {
		if op.Type == graph.OpConnect {
			connects++
		}
	}
	g.metrics.AddOperations(graph.OpConnect.String(), connects)
	g.metrics.AddOperations(graph.OpDisconnect.String(), len(ops)-connects)
	g.batchesApplied.Add(1)

	logrus.WithFields(logrus.Fields{
		"function":   "Governor.applyBatch",
		"edits":      b.Len(),
		"operations": len(ops),
	}).Debug("Applied graph batch")
}

func (g *Governor) failApply(ops int, err error) {
	g.applyFailures.Add(1)
	logrus.WithFields(logrus.Fields{
		"function":   "Governor.applyBatch",
		"operations": ops,
		"error":      err.Error(),
	}).Error("Graph batch application failed")
	g.warnings.Warn(warning.TypeGraph, warning.SeverityCritical,
		fmt.Sprintf("graph batch of %d operations failed: %v", ops, err))
}

func (g *Governor) prunePool() {
	n := g.pool.Prune()
	g.pruned.Add(uint64(n))
	if !g.closed.Load() {
		g.pruneTimer.Reset(g.config.Pool.PruneInterval)
	}
}

func (g *Governor) refreshMetrics() {
	if g.metrics == nil {
		return
	}
	g.metrics.ObserveCPU(g.cpu.GetAverageUsage(), g.cpu.GetPeakUsage())
	cache := g.compiler.GetCacheStats()
	g.metrics.SetCompilerCache(cache.Hits, cache.Misses, cache.Size)
	pool := g.pool.GetStats()
	g.metrics.SetPool(pool.TotalBuffers, pool.InUse)
}

// RegisterAudioContext guards ac against host suspension.
func (g *Governor) RegisterAudioContext(ac interfaces.IAudioContext) error {
	if g.closed.Load() {
		return ErrClosed
	}
	return g.guard.Register(ac)
}

// UnregisterAudioContext stops guarding ac.
func (g *Governor) UnregisterAudioContext(ac interfaces.IAudioContext) bool {
	return g.guard.Unregister(ac)
}

// Signals returns the hub host lifecycle events are delivered on.
func (g *Governor) Signals() *lifecycle.Signals {
	return g.guard.Signals()
}

// OnDegradationChange registers fn for degradation level changes.
func (g *Governor) OnDegradationChange(fn degradation.ChangeHandler) listener.Handle {
	return g.degradation.OnChange(fn)
}

// OffDegradationChange removes an OnDegradationChange registration.
func (g *Governor) OffDegradationChange(h listener.Handle) bool {
	return g.degradation.Unsubscribe(h)
}

// OnWarning registers fn for every published warning.
func (g *Governor) OnWarning(fn warning.Handler) listener.Handle {
	return g.warnings.Subscribe(fn)
}

// OffWarning removes an OnWarning registration.
func (g *Governor) OffWarning(h listener.Handle) bool {
	return g.warnings.Unsubscribe(h)
}

// DegradationState returns the current degradation decision.
func (g *Governor) DegradationState() degradation.State {
	return g.degradation.State()
}

// Warnings returns the warning bus for queries.
func (g *Governor) Warnings() *warning.Manager {
	return g.warnings
}

// Stats is a point-in-time summary of every component.
type Stats struct {
	CPUAverage     float64
	CPUPeak        float64
	CPULatest      float64
	Degradation    degradation.State
	Pool           bufpool.Stats
	Compiler       graph.CacheStats
	Glitches       glitch.Stats
	Lifecycle      lifecycle.Stats
	WarningsTotal  uint64
	PendingEdits   int
	Iterations     uint64
	Samples        uint64
	RingOverflows  uint64
	BatchesApplied uint64
	ApplyFailures  uint64
	BuffersPruned  uint64
	ActiveVoices   uint
	LiveEdges      int
}

// Stats returns a summary of every component.
func (g *Governor) Stats() Stats {
	total, _ := g.warnings.Stats()
	return Stats{
		CPUAverage:     g.cpu.GetAverageUsage(),
		CPUPeak:        g.cpu.GetPeakUsage(),
		CPULatest:      g.cpu.GetLatestUsage(),
		Degradation:    g.degradation.State(),
		Pool:           g.pool.GetStats(),
		Compiler:       g.compiler.GetCacheStats(),
		Glitches:       g.glitches.Stats(),
		Lifecycle:      g.guard.Stats(),
		WarningsTotal:  total,
		PendingEdits:   g.updater.Pending(),
		Iterations:     g.iterations.Load(),
		Samples:        g.samples.Load(),
		RingOverflows:  g.ring.Overflowed(),
		BatchesApplied: g.batchesApplied.Load(),
		ApplyFailures:  g.applyFailures.Load(),
		BuffersPruned:  g.pruned.Load(),
		ActiveVoices:   g.ActiveVoices(),
		LiveEdges:      g.live.EdgeCount(),
	}
}

// IsClosed reports whether Cleanup has run.
func (g *Governor) IsClosed() bool {
	return g.closed.Load()
}

// Cleanup flushes pending graph edits, detaches every subscription,
// stops every timer and ends any Run loop. It is safe to call more than
// once.
func (g *Governor) Cleanup() {
	if !g.closed.CompareAndSwap(false, true) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Governor.Cleanup",
		"pending":  g.updater.Pending(),
	}).Info("Shutting down performance governor")

	close(g.done)
	g.updater.Flush()

	for _, fn := range g.unsubscribe {
		fn()
	}
	g.unsubscribe = nil

	g.updater.Close()
	g.pruneTimer.Remove()
	g.sched.StopAll()
	g.guard.Close()
	g.cpu.Close()
	g.glitches.Close()
	g.degradation.Close()
	g.warnings.Close()
}
