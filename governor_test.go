package audiogovernor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opd-ai/audiogovernor/clock"
	"github.com/opd-ai/audiogovernor/config"
	"github.com/opd-ai/audiogovernor/degradation"
	"github.com/opd-ai/audiogovernor/graph"
	"github.com/opd-ai/audiogovernor/interfaces"
	"github.com/opd-ai/audiogovernor/rtqueue"
	testsim "github.com/opd-ai/audiogovernor/testing"
	"github.com/opd-ai/audiogovernor/warning"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

// budgetMs is the real-time budget of a 512-frame block at 48 kHz.
const budgetMs = 512.0 / 48000.0 * 1000.0

func newTestGovernor(t *testing.T, cfg *config.Config, applier interfaces.IGraphApplier, opts ...Option) (*Governor, *clock.MockTimeProvider) {
	t.Helper()
	mock := clock.NewMockTimeProvider(epoch)
	g, err := New(cfg, applier, append([]Option{WithTimeProvider(mock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(g.Cleanup)
	return g, mock
}

func countSeverity(ws []warning.Warning, sev warning.Severity) int {
	n := 0
	for _, w := range ws {
		if w.Severity == sev {
			n++
		}
	}
	return n
}

func TestSustainedOverloadReachesSevere(t *testing.T) {
	g, _ := newTestGovernor(t, nil, nil)
	g.SetActiveVoices(16)

	for i := 0; i < 50; i++ {
		g.RecordSample(budgetMs*0.97, 512, 48000)
	}

	state := g.DegradationState()
	assert.Equal(t, degradation.LevelSevere, state.Level)
	assert.GreaterOrEqual(t, len(state.DisabledEffects), 2)
	assert.True(t, state.ReducedQuality)
	assert.Equal(t, uint(12), state.ReducedVoices)

	warnings := g.Warnings().GetRecentWarnings(100)
	assert.GreaterOrEqual(t, countSeverity(warnings, warning.SeverityCritical), 1)

	// Threshold crossings are reported once, not per sample.
	assert.Len(t, g.Warnings().GetWarningsByType(warning.TypeCPU), 1)
	assert.Len(t, g.Warnings().GetWarningsByType(warning.TypeDegradation), 1)
}

func TestRisingLoadWalksLevelsWithWarnings(t *testing.T) {
	cfg := config.Default()
	cfg.CPU.WindowSize = 1
	g, _ := newTestGovernor(t, cfg, nil)
	g.SetActiveVoices(8)

	var levels []degradation.Level
	g.OnDegradationChange(func(s degradation.State) { levels = append(levels, s.Level) })

	for _, u := range []float64{0.5, 0.72, 0.74, 0.88, 0.96, 0.99} {
		g.RecordSample(budgetMs*u, 512, 48000)
	}
	assert.Equal(t, []degradation.Level{degradation.LevelMinor, degradation.LevelModerate, degradation.LevelSevere}, levels)

	byLevel := g.Warnings().GetWarningsByType(warning.TypeDegradation)
	require.Len(t, byLevel, 3)
	assert.Equal(t, warning.SeverityInfo, byLevel[0].Severity)
	assert.Equal(t, warning.SeverityWarning, byLevel[1].Severity)
	assert.Equal(t, warning.SeverityCritical, byLevel[2].Severity)
}

func TestInvalidSampleDoesNotResetLevel(t *testing.T) {
	g, _ := newTestGovernor(t, nil, nil)
	g.RecordSample(budgetMs*0.99, 512, 48000)
	require.Equal(t, degradation.LevelSevere, g.DegradationState().Level)

	assert.Zero(t, g.RecordSample(1, 0, 48000))
	assert.Zero(t, g.RecordSample(math.NaN(), 512, 48000))
	assert.Equal(t, degradation.LevelSevere, g.DegradationState().Level)
	assert.InDelta(t, 0.99, g.Stats().CPUAverage, 1e-9)
}

func TestReportedCallbacksAreDrainedByIterate(t *testing.T) {
	g, _ := newTestGovernor(t, nil, nil)

	expected := 10.0
	samples := []rtqueue.Sample{
		{CPUTimeMs: 5, ActualMs: 5, ExpectedMs: expected, Frames: 480, SampleRate: 48000, At: epoch},
		{CPUTimeMs: 5, ActualMs: 5, ExpectedMs: expected, Frames: 480, SampleRate: 48000, At: epoch.Add(10 * time.Millisecond)},
		{CPUTimeMs: 5, ActualMs: 5, ExpectedMs: expected, Frames: 480, SampleRate: 48000, At: epoch.Add(50 * time.Millisecond)},
		{CPUTimeMs: 5, ActualMs: 20, ExpectedMs: expected, Frames: 480, SampleRate: 48000, At: epoch.Add(60 * time.Millisecond)},
	}
	for _, s := range samples {
		require.True(t, g.ReportCallback(s))
	}
	assert.Zero(t, g.Stats().Samples, "nothing is processed before Iterate")

	g.Iterate()

	stats := g.Stats()
	assert.Equal(t, uint64(4), stats.Samples)
	assert.Equal(t, uint64(1), stats.Glitches.Dropouts)
	assert.Equal(t, uint64(1), stats.Glitches.Underruns)
	assert.InDelta(t, 0.5, stats.CPUAverage, 1e-9)

	glitches := g.Warnings().GetWarningsByType(warning.TypeGlitch)
	require.Len(t, glitches, 2)
	assert.Equal(t, warning.SeverityCritical, glitches[0].Severity, "dropout")
	assert.Equal(t, warning.SeverityWarning, glitches[1].Severity, "underrun")
}

func TestCheckCallbackDirect(t *testing.T) {
	g, _ := newTestGovernor(t, nil, nil)
	assert.False(t, g.CheckCallback(budgetMs, budgetMs).Detected)
	assert.True(t, g.CheckCallback(budgetMs*4, budgetMs).Detected)
	assert.Len(t, g.Warnings().GetWarningsByType(warning.TypeGlitch), 1)
}

func TestRingOverflowBecomesWarning(t *testing.T) {
	cfg := config.Default()
	cfg.Governor.RingCapacity = 2
	g, _ := newTestGovernor(t, cfg, nil)

	accepted := 0
	for i := 0; i < 5; i++ {
		if g.ReportCallback(rtqueue.Sample{CPUTimeMs: 1, Frames: 512, SampleRate: 48000}) {
			accepted++
		}
	}
	assert.Equal(t, 2, accepted)

	g.Iterate()
	cpu := g.Warnings().GetWarningsByType(warning.TypeCPU)
	require.Len(t, cpu, 1)
	assert.Contains(t, cpu[0].Message, "3 callback samples dropped")

	g.Iterate()
	assert.Len(t, g.Warnings().GetWarningsByType(warning.TypeCPU), 1, "no new overflow, no new warning")
}

func TestGraphEditsAreDebouncedCompiledAndApplied(t *testing.T) {
	applier := testsim.NewRecordingApplier()
	g, mock := newTestGovernor(t, nil, applier)

	g.AddNode("out")
	g.AddNode("filter", "out")
	g.AddNode("osc", "filter")
	assert.Equal(t, 3, g.Stats().PendingEdits)

	g.Iterate()
	assert.Empty(t, applier.GetApplyLog(), "debounce window not yet elapsed")

	mock.Advance(10 * time.Millisecond)
	g.Iterate()

	log := applier.GetApplyLog()
	require.Len(t, log, 1)
	assert.Equal(t, []graph.CompiledOperation{
		{Type: graph.OpConnect, NodeID: "filter", TargetID: "out"},
		{Type: graph.OpConnect, NodeID: "osc", TargetID: "filter"},
	}, log[0].Operations)
	assert.True(t, g.Topology().HasEdge("osc", "filter"))

	g.RemoveNode("filter")
	g.Flush()

	log = applier.GetApplyLog()
	require.Len(t, log, 2)
	assert.Len(t, log[1].Operations, 2)
	for _, op := range log[1].Operations {
		assert.Equal(t, graph.OpDisconnect, op.Type)
	}
	topo := g.Topology()
	assert.Zero(t, g.Stats().LiveEdges)
	_, declared := topo.Declared["filter"]
	assert.False(t, declared, "removed node is forgotten")
	assert.Equal(t, uint64(2), g.Stats().BatchesApplied)
}

func TestReAddingNodeReplacesItsOutputs(t *testing.T) {
	applier := testsim.NewRecordingApplier()
	g, _ := newTestGovernor(t, nil, applier)

	g.AddNode("out")
	g.AddNode("filter", "out")
	g.AddNode("osc", "filter")
	g.Flush()
	require.True(t, g.Topology().HasEdge("osc", "filter"))

	g.AddNode("osc", "out")
	g.Flush()

	topo := g.Topology()
	assert.False(t, topo.HasEdge("osc", "filter"), "stale output is disconnected")
	assert.True(t, topo.HasEdge("osc", "out"))
	assert.True(t, topo.HasEdge("filter", "out"))
	assert.Equal(t, 2, g.Stats().LiveEdges)

	log := applier.GetApplyLog()
	require.Len(t, log, 2)
	assert.Equal(t, []graph.CompiledOperation{
		{Type: graph.OpDisconnect, NodeID: "osc", TargetID: "filter"},
		{Type: graph.OpConnect, NodeID: "osc", TargetID: "out"},
	}, log[1].Operations)
}

func TestConnectAndDisconnect(t *testing.T) {
	g, _ := newTestGovernor(t, nil, nil)

	g.AddNode("osc")
	g.AddNode("out")
	g.Flush()
	assert.Zero(t, g.Stats().LiveEdges)

	g.Connect("osc", "out")
	g.Flush()
	assert.True(t, g.Topology().HasEdge("osc", "out"))

	g.ModifyConnection(graph.ConnectionID{Source: "osc", Target: "out"})
	g.Flush()
	assert.True(t, g.Topology().HasEdge("osc", "out"), "re-patch keeps the edge")

	g.Disconnect("osc", "out")
	g.Flush()
	assert.False(t, g.Topology().HasEdge("osc", "out"))
}

func TestApplyFailureBecomesCriticalWarning(t *testing.T) {
	applier := testsim.NewRecordingApplier()
	g, _ := newTestGovernor(t, nil, applier)
	applier.FailNext(1, errors.New("engine busy"))

	g.AddNode("out")
	g.AddNode("osc", "out")
	g.Flush()

	graphWarnings := g.Warnings().GetWarningsByType(warning.TypeGraph)
	require.Len(t, graphWarnings, 1)
	assert.Equal(t, warning.SeverityCritical, graphWarnings[0].Severity)
	assert.Zero(t, g.Stats().LiveEdges, "failed batch leaves the graph untouched")
	assert.Equal(t, uint64(1), g.Stats().ApplyFailures)

	// The declaration survives, so re-evaluating the edge retries it.
	g.ModifyConnection(graph.ConnectionID{Source: "osc", Target: "out"})
	g.Flush()
	assert.Equal(t, 1, g.Stats().LiveEdges)
}

func TestPanickingApplierIsRecovered(t *testing.T) {
	applier := interfaces.GraphApplierFunc(func(context.Context, []graph.CompiledOperation) error {
		panic("engine exploded")
	})
	g, _ := newTestGovernor(t, nil, applier)

	g.AddNode("out")
	g.AddNode("osc", "out")
	assert.NotPanics(t, func() { g.Flush() })

	graphWarnings := g.Warnings().GetWarningsByType(warning.TypeGraph)
	require.Len(t, graphWarnings, 1)
	assert.Contains(t, graphWarnings[0].Message, "engine exploded")
}

func TestPoolIsPrunedOnSchedule(t *testing.T) {
	g, mock := newTestGovernor(t, nil, nil)

	buf := g.AcquireBuffer(512)
	require.Len(t, buf.Data, 512)
	g.ReleaseBuffer(buf)
	assert.Same(t, buf, g.AcquireBuffer(512))
	g.ReleaseBuffer(buf)

	mock.Advance(150 * time.Millisecond)
	g.Iterate()

	stats := g.Stats()
	assert.Zero(t, stats.Pool.TotalBuffers)
	assert.Equal(t, uint64(1), stats.BuffersPruned)
}

func TestLifecycleFailuresBecomeWarnings(t *testing.T) {
	g, _ := newTestGovernor(t, nil, nil)
	ac := testsim.NewSimulatedAudioContext("main", interfaces.StateSuspended)
	ac.FailResumes(errors.New("autoplay blocked"))

	require.NoError(t, g.RegisterAudioContext(ac))
	require.Len(t, g.Warnings().GetWarningsByType(warning.TypeLifecycle), 1)

	ac.FailResumes(nil)
	g.Signals().EmitInteraction()
	assert.Equal(t, interfaces.StateRunning, ac.State())
	assert.True(t, g.UnregisterAudioContext(ac))
}

func TestMetricsAreExported(t *testing.T) {
	reg := prometheus.NewRegistry()
	g, _ := newTestGovernor(t, nil, nil, WithMetrics(reg))

	g.RecordSample(budgetMs*0.99, 512, 48000)
	g.CheckCallback(budgetMs*3, budgetMs)
	g.Iterate()

	for _, name := range []string{
		"audiogov_warnings_total",
		"audiogov_glitches_total",
		"audiogov_degradation_level",
		"audiogov_cpu_utilization_average",
		"audiogov_iteration_duration_seconds",
	} {
		n, err := testutil.GatherAndCount(reg, name)
		require.NoError(t, err)
		assert.Positive(t, n, name)
	}
}

func TestCleanupFlushesAndDetaches(t *testing.T) {
	applier := testsim.NewRecordingApplier()
	g, _ := newTestGovernor(t, nil, applier)

	received := 0
	g.OnWarning(func(warning.Warning) { received++ })
	g.AddNode("out")
	g.AddNode("osc", "out")

	g.Cleanup()
	assert.True(t, g.IsClosed())
	require.Len(t, applier.GetApplyLog(), 1, "pending batch is flushed on cleanup")

	before := received
	g.CheckCallback(100, 1)
	assert.Equal(t, before, received, "subscriptions are detached")

	assert.False(t, g.ReportCallback(rtqueue.Sample{}))
	assert.ErrorIs(t, g.Run(context.Background()), ErrClosed)
	assert.ErrorIs(t, g.RegisterAudioContext(testsim.NewSimulatedAudioContext("x", interfaces.StateRunning)), ErrClosed)
	assert.NotPanics(t, g.Cleanup)
}

func TestRunStopsOnCancelAndCleanup(t *testing.T) {
	g, err := New(nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- g.Run(ctx) }()

	require.Eventually(t, g.IsRunning, time.Second, time.Millisecond)
	assert.ErrorIs(t, g.Run(ctx), ErrAlreadyRunning)
	require.Eventually(t, func() bool { return g.Stats().Iterations > 0 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	go func() { errc <- g.Run(context.Background()) }()
	require.Eventually(t, g.IsRunning, time.Second, time.Millisecond)
	g.Cleanup()
	assert.NoError(t, <-errc)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Compiler.CacheSize = 0
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
