package bufpool

import (
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/audiogovernor/clock"
	"github.com/opd-ai/audiogovernor/limits"
	"github.com/sirupsen/logrus"
)

// Config holds buffer pool settings.
type Config struct {
	// RetentionWindow is how long a released buffer may stay idle before
	// Prune discards it.
	RetentionWindow time.Duration `yaml:"retention_window"`
	// PruneInterval is how often the governor schedules Prune.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		RetentionWindow: 100 * time.Millisecond,
		PruneInterval:   100 * time.Millisecond,
	}
}

// Validate checks the configuration against package limits.
func (c Config) Validate() error {
	if err := limits.ValidateDuration("retention window", c.RetentionWindow, limits.MaxRetentionWindow); err != nil {
		return err
	}
	return limits.ValidateDuration("prune interval", c.PruneInterval, limits.MaxRetentionWindow)
}

// PooledBuffer is a fixed-length sample buffer owned by whoever acquired it.
type PooledBuffer struct {
	// Data holds the samples. Its contents are unspecified after Acquire.
	Data []float32

	size           int
	lastReleasedAt time.Time
	inUse          bool
	owner          *Pool
}

// Size returns the buffer length in samples.
func (b *PooledBuffer) Size() int {
	return b.size
}

// LastReleasedAt returns when the buffer was last released.
func (b *PooledBuffer) LastReleasedAt() time.Time {
	return b.lastReleasedAt
}

// bucket holds every buffer of one size. free is a LIFO stack.
type bucket struct {
	free  []*PooledBuffer
	total int
}

// Stats reports pool occupancy.
type Stats struct {
	TotalBuffers int   // Buffers owned by the pool, free or in use
	InUse        int   // Buffers currently held by callers
	Sizes        []int // Distinct buffer sizes tracked, ascending
	Hits         uint64
	Misses       uint64
	Pruned       uint64
}

// Pool is a thread-safe collection of size-bucketed sample buffers.
type Pool struct {
	mu      sync.Mutex
	config  Config
	buckets map[int]*bucket
	inUse   int
	hits    uint64
	misses  uint64
	pruned  uint64

	timeProvider clock.TimeProvider
}

// New creates an empty pool. Buckets are created lazily.
func New(config Config) *Pool {
	logrus.WithFields(logrus.Fields{
		"function":         "bufpool.New",
		"retention_window": config.RetentionWindow,
	}).Info("Creating buffer pool")

	return &Pool{
		config:  config,
		buckets: make(map[int]*bucket),
	}
}

// SetTimeProvider sets the time provider for deterministic testing.
func (p *Pool) SetTimeProvider(tp clock.TimeProvider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeProvider = tp
}

func (p *Pool) now() time.Time {
	return clock.OrDefault(p.timeProvider).Now()
}

// Acquire returns a free buffer of exactly size samples, allocating one when
// the bucket is empty. Sizes below 1 are clamped to 1.
func (p *Pool) Acquire(size int) *PooledBuffer {
	if size < 1 {
		logrus.WithFields(logrus.Fields{
			"function":       "Pool.Acquire",
			"requested_size": size,
		}).Warn("Invalid buffer size, clamping to 1")
		size = 1
	}

	p.mu.Lock()
	b, ok := p.buckets[size]
	if !ok {
		b = &bucket{}
		p.buckets[size] = b
	}

	if n := len(b.free); n > 0 {
		buf := b.free[n-1]
		b.free[n-1] = nil
		b.free = b.free[:n-1]
		buf.inUse = true
		p.inUse++
		p.hits++
		p.mu.Unlock()
		return buf
	}

	b.total++
	p.inUse++
	p.misses++
	p.mu.Unlock()

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.WithFields(logrus.Fields{
			"function": "Pool.Acquire",
			"size":     size,
		}).Debug("Pool miss, allocating buffer")
	}

	return &PooledBuffer{
		Data:  make([]float32, size),
		size:  size,
		inUse: true,
		owner: p,
	}
}

// Release returns buf to its bucket. Releasing nil, a buffer from another
// pool, or a buffer that is not in use is ignored.
func (p *Pool) Release(buf *PooledBuffer) {
	if buf == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if buf.owner != p || !buf.inUse {
		logrus.WithFields(logrus.Fields{
			"function": "Pool.Release",
			"size":     buf.size,
			"in_use":   buf.inUse,
			"foreign":  buf.owner != p,
		}).Warn("Ignoring release of buffer not held from this pool")
		return
	}

	// total counts in-use buffers, so Prune never forgets this bucket.
	b := p.buckets[buf.size]

	buf.inUse = false
	buf.lastReleasedAt = clock.OrDefault(p.timeProvider).Now()
	b.free = append(b.free, buf)
	p.inUse--
}

// Prune discards free buffers idle longer than the retention window and
// returns how many were removed. In-use buffers are never touched.
func (p *Pool) Prune() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	removed := 0

	for size, b := range p.buckets {
		kept := b.free[:0]
		for _, buf := range b.free {
			if now.Sub(buf.lastReleasedAt) > p.config.RetentionWindow {
				buf.owner = nil
				removed++
				b.total--
				continue
			}
			kept = append(kept, buf)
		}
		for i := len(kept); i < len(b.free); i++ {
			b.free[i] = nil
		}
		b.free = kept

		if b.total == 0 {
			delete(p.buckets, size)
		}
	}

	p.pruned += uint64(removed)

	if removed > 0 {
		logrus.WithFields(logrus.Fields{
			"function":  "Pool.Prune",
			"removed":   removed,
			"remaining": p.totalLocked(),
		}).Debug("Pruned idle buffers")
	}

	return removed
}

func (p *Pool) totalLocked() int {
	total := 0
	for _, b := range p.buckets {
		total += b.total
	}
	return total
}

// GetStats returns a snapshot of pool occupancy.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	sizes := make([]int, 0, len(p.buckets))
	for size := range p.buckets {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)

	return Stats{
		TotalBuffers: p.totalLocked(),
		InUse:        p.inUse,
		Sizes:        sizes,
		Hits:         p.hits,
		Misses:       p.misses,
		Pruned:       p.pruned,
	}
}
