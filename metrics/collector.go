// Package metrics exports governor telemetry as Prometheus collectors.
//
// A [Collector] registers on a caller-supplied prometheus.Registerer so
// several governors, or tests, never collide on the default registry. All
// methods are safe on a nil *Collector, which turns metrics off.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "audiogov"

// Collector holds every governor metric.
type Collector struct {
	cpuAverage        prometheus.Gauge
	cpuPeak           prometheus.Gauge
	degradationLevel  prometheus.Gauge
	reducedVoices     prometheus.Gauge
	glitches          *prometheus.CounterVec
	warnings          *prometheus.CounterVec
	compiledOps       *prometheus.CounterVec
	compilerCache     *prometheus.GaugeVec
	poolBuffers       *prometheus.GaugeVec
	ringOverflows     prometheus.Counter
	samplesDrained    prometheus.Counter
	iterationDuration prometheus.Histogram
}

// NewCollector creates the collectors and registers them on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		cpuAverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_utilization_average",
			Help:      "Average callback CPU utilization over the rolling window",
		}),
		cpuPeak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_utilization_peak",
			Help:      "Peak callback CPU utilization over the rolling window",
		}),
		degradationLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "degradation_level",
			Help:      "Current degradation level (0=none, 1=minor, 2=moderate, 3=severe)",
		}),
		reducedVoices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "degradation_reduced_voices",
			Help:      "Voices the current degradation state asks the engine to shed",
		}),
		glitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "glitches_total",
			Help:      "Detected audio glitches by type",
		}, []string{"type"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Performance warnings by type and severity",
		}, []string{"type", "severity"}),
		compiledOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_operations_total",
			Help:      "Compiled graph operations applied, by operation type",
		}, []string{"op"}),
		compilerCache: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_compiler_cache",
			Help:      "Graph compiler memoization counters",
		}, []string{"stat"}),
		poolBuffers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_buffers",
			Help:      "Pooled audio buffers by state",
		}, []string{"state"}),
		ringOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timing_ring_overflows_total",
			Help:      "Callback timing samples dropped because the ring was full",
		}),
		samplesDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timing_samples_total",
			Help:      "Callback timing samples drained from the ring",
		}),
		iterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_duration_seconds",
			Help:      "Duration of one governor control iteration",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
	}

	for _, col := range []prometheus.Collector{
		c.cpuAverage, c.cpuPeak, c.degradationLevel, c.reducedVoices,
		c.glitches, c.warnings, c.compiledOps, c.compilerCache,
		c.poolBuffers, c.ringOverflows, c.samplesDrained, c.iterationDuration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register governor metrics: %w", err)
		}
	}
	return c, nil
}

// ObserveCPU records the rolling average and peak utilization.
func (c *Collector) ObserveCPU(average, peak float64) {
	if c == nil {
		return
	}
	c.cpuAverage.Set(average)
	c.cpuPeak.Set(peak)
}

// SetDegradation records the current level and voice reduction.
func (c *Collector) SetDegradation(level int, reducedVoices uint) {
	if c == nil {
		return
	}
	c.degradationLevel.Set(float64(level))
	c.reducedVoices.Set(float64(reducedVoices))
}

// IncGlitch counts one detected glitch.
func (c *Collector) IncGlitch(glitchType string) {
	if c == nil {
		return
	}
	c.glitches.WithLabelValues(glitchType).Inc()
}

// IncWarning counts one published warning.
func (c *Collector) IncWarning(warningType, severity string) {
	if c == nil {
		return
	}
	c.warnings.WithLabelValues(warningType, severity).Inc()
}

// AddOperations counts applied graph operations of one type.
func (c *Collector) AddOperations(op string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.compiledOps.WithLabelValues(op).Add(float64(n))
}

// SetCompilerCache records compiler cache counters.
func (c *Collector) SetCompilerCache(hits, misses uint64, size int) {
	if c == nil {
		return
	}
	c.compilerCache.WithLabelValues("hits").Set(float64(hits))
	c.compilerCache.WithLabelValues("misses").Set(float64(misses))
	c.compilerCache.WithLabelValues("size").Set(float64(size))
}

// SetPool records pooled buffer counts.
func (c *Collector) SetPool(total, inUse int) {
	if c == nil {
		return
	}
	c.poolBuffers.WithLabelValues("total").Set(float64(total))
	c.poolBuffers.WithLabelValues("in_use").Set(float64(inUse))
}

// AddRingOverflows counts dropped timing samples.
func (c *Collector) AddRingOverflows(n uint64) {
	if c == nil || n == 0 {
		return
	}
	c.ringOverflows.Add(float64(n))
}

// AddSamplesDrained counts timing samples consumed by an iteration.
func (c *Collector) AddSamplesDrained(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.samplesDrained.Add(float64(n))
}

// ObserveIteration records how long one control iteration took.
func (c *Collector) ObserveIteration(d time.Duration) {
	if c == nil {
		return
	}
	c.iterationDuration.Observe(d.Seconds())
}
