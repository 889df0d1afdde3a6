package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	audiogovernor "github.com/opd-ai/audiogovernor"
	"github.com/opd-ai/audiogovernor/clock"
	"github.com/opd-ai/audiogovernor/config"
	"github.com/opd-ai/audiogovernor/degradation"
	"github.com/opd-ai/audiogovernor/graph"
	"github.com/opd-ai/audiogovernor/interfaces"
	"github.com/opd-ai/audiogovernor/meter"
	testsim "github.com/opd-ai/audiogovernor/testing"
	"github.com/opd-ai/audiogovernor/warning"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	voicesNode graph.NodeID = "voices"
	outputNode graph.NodeID = "out"
)

func effectNode(e degradation.EffectID) graph.NodeID {
	return graph.NodeID("fx/" + string(e))
}

// levelChange is one degradation transition seen during a run.
type levelChange struct {
	At       time.Duration
	Level    degradation.Level
	Disabled []degradation.EffectID
}

// result summarizes a finished run.
type result struct {
	Mode         string
	Steps        int
	Elapsed      time.Duration
	Stats        audiogovernor.Stats
	Changes      []levelChange
	Warnings     []warning.Warning
	ChainNodes   []graph.NodeID
	ContextState interfaces.ContextState
	Resumes      int
	ControlCPU   time.Duration
	ControlCPUOK bool
}

// simulation owns a governor plus the fake host around it.
type simulation struct {
	cli     *CLIConfig
	gov     *audiogovernor.Governor
	mock    *clock.MockTimeProvider
	ctx     *testsim.SimulatedAudioContext
	ramp    testsim.LoadRamp
	effects []degradation.EffectID

	mu      sync.Mutex
	active  map[degradation.EffectID]bool
	changes []levelChange
	origin  time.Time
	now     func() time.Time
}

func newSimulation(cfg *config.Config, cli *CLIConfig, reg prometheus.Registerer) (*simulation, error) {
	s := &simulation{
		cli:     cli,
		effects: cfg.Degradation.SheddableEffects,
		active:  make(map[degradation.EffectID]bool),
		now:     time.Now,
	}

	opts := []audiogovernor.Option{audiogovernor.WithMetrics(reg)}
	if !cli.live {
		s.mock = clock.NewMockTimeProvider(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		s.now = s.mock.Now
		opts = append(opts, audiogovernor.WithTimeProvider(s.mock))
	}

	gov, err := audiogovernor.New(cfg, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("create governor: %w", err)
	}
	s.gov = gov
	s.origin = s.now()

	s.ramp = testsim.LoadRamp{
		Start:      cli.start,
		End:        cli.end,
		Steps:      cli.steps,
		Frames:     cli.frames,
		SampleRate: cli.sampleRate,
		Origin:     s.origin,
		SkipEvery:  cli.dropoutEach,
	}

	gov.OnDegradationChange(func(st degradation.State) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.changes = append(s.changes, levelChange{
			At:       s.now().Sub(s.origin),
			Level:    st.Level,
			Disabled: st.DisabledList(),
		})
	})

	s.buildChain()

	s.ctx = testsim.NewSimulatedAudioContext("sim", interfaces.StateSuspended)
	if err := gov.RegisterAudioContext(s.ctx); err != nil {
		gov.Cleanup()
		return nil, fmt.Errorf("register audio context: %w", err)
	}
	return s, nil
}

// buildChain patches voices through every sheddable effect to the output.
func (s *simulation) buildChain() {
	s.gov.AddNode(outputNode)
	next := outputNode
	for i := len(s.effects) - 1; i >= 0; i-- {
		n := effectNode(s.effects[i])
		s.gov.AddNode(n, next)
		s.active[s.effects[i]] = true
		next = n
	}
	s.gov.AddNode(voicesNode, next)
	s.gov.Flush()
}

func (s *simulation) neighbours(e degradation.EffectID) (prev, next graph.NodeID) {
	prev, next = voicesNode, outputNode
	seen := false
	for _, other := range s.effects {
		if other == e {
			seen = true
			continue
		}
		if !s.active[other] {
			continue
		}
		if !seen {
			prev = effectNode(other)
		} else {
			next = effectNode(other)
			break
		}
	}
	return prev, next
}

// react removes disabled effects from the chain and restores re-enabled
// ones, bridging their neighbours.
func (s *simulation) react(st degradation.State) {
	for _, e := range s.effects {
		want := !st.IsDisabled(e)
		if want == s.active[e] {
			continue
		}
		prev, next := s.neighbours(e)
		n := effectNode(e)
		if want {
			s.gov.AddNode(n, next)
			s.gov.Connect(prev, n)
			s.gov.Disconnect(prev, next)
		} else {
			s.gov.RemoveNode(n)
			s.gov.Connect(prev, next)
		}
		s.active[e] = want

		logrus.WithFields(logrus.Fields{
			"function": "simulation.react",
			"effect":   string(e),
			"enabled":  want,
		}).Debug("Re-patched effect chain")
	}
}

// hostInterruption suspends the audio context and lets the host signals
// bring it back.
func (s *simulation) hostInterruption() {
	s.ctx.Suspend()
	signals := s.gov.Signals()
	signals.EmitVisibility(false)
	signals.EmitVisibility(true)
}

// RunVirtual feeds the ramp on a mock clock, iterating the governor on its
// configured interval.
func (s *simulation) RunVirtual(ctx context.Context) (*result, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	cpuStart, cpuOK := meter.ThreadCPUTime()
	wallStart := time.Now()

	interval := s.gov.IterationInterval()
	nextIter := s.origin
	for i := 0; i < s.cli.steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sample := s.ramp.Sample(i)
		s.mock.Set(sample.At)
		s.gov.ReportCallback(sample)

		if !sample.At.Before(nextIter) {
			s.gov.Iterate()
			s.react(s.gov.DegradationState())
			nextIter = sample.At.Add(interval)
		}
		if i == s.cli.steps/2 {
			s.hostInterruption()
		}
	}
	s.gov.Iterate()
	s.react(s.gov.DegradationState())
	s.gov.Flush()

	res := s.result("virtual", time.Since(wallStart))
	if cpuEnd, ok := meter.ThreadCPUTime(); ok && cpuOK {
		res.ControlCPU = cpuEnd - cpuStart
		res.ControlCPUOK = true
	}
	return res, nil
}

// RunLive runs callbacks in real time on a locked OS thread while the
// governor's Run loop processes them.
func (s *simulation) RunLive(ctx context.Context) (*result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- s.gov.Run(runCtx) }()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(4 * s.gov.IterationInterval())
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.react(s.gov.DegradationState())
			}
		}
	}()

	wallStart := time.Now()
	s.callbacks(runCtx)
	cancel()
	wg.Wait()

	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.gov.Iterate()
	s.react(s.gov.DegradationState())
	s.gov.Flush()
	return s.result("live", time.Since(wallStart)), nil
}

func (s *simulation) callbacks(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var sw meter.Stopwatch
	period := time.Duration(s.ramp.ExpectedMs() * float64(time.Millisecond))
	next := time.Now()

	for i := 0; i < s.cli.steps && ctx.Err() == nil; i++ {
		if s.cli.dropoutEach > 0 && i > 0 && i%s.cli.dropoutEach == 0 {
			next = next.Add(2 * period)
			time.Sleep(time.Until(next))
		}

		m := sw.Start()
		spin(time.Duration(s.ramp.Utilization(i) * float64(period)))
		s.gov.ReportCallback(sw.Stop(m, s.cli.frames, s.cli.sampleRate))

		if i == s.cli.steps/2 {
			s.hostInterruption()
		}
		next = next.Add(period)
		time.Sleep(time.Until(next))
	}
}

// spin burns CPU on the calling thread for d.
func spin(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}

func (s *simulation) result(mode string, elapsed time.Duration) *result {
	s.mu.Lock()
	changes := append([]levelChange(nil), s.changes...)
	s.mu.Unlock()

	chain := []graph.NodeID{voicesNode}
	for _, e := range s.effects {
		if s.active[e] {
			chain = append(chain, effectNode(e))
		}
	}
	chain = append(chain, outputNode)

	return &result{
		Mode:         mode,
		Steps:        s.cli.steps,
		Elapsed:      elapsed,
		Stats:        s.gov.Stats(),
		Changes:      changes,
		Warnings:     s.gov.Warnings().GetRecentWarnings(10),
		ChainNodes:   chain,
		ContextState: s.ctx.State(),
		Resumes:      s.ctx.ResumeCalls(),
	}
}

// Topology exposes the governor's graph for checks.
func (s *simulation) Topology() graph.Topology {
	return s.gov.Topology()
}

// Close shuts the governor down.
func (s *simulation) Close() {
	s.gov.UnregisterAudioContext(s.ctx)
	s.gov.Cleanup()
}
