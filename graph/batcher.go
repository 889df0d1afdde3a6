package graph

import (
	"sync"
	"time"

	"github.com/opd-ai/audiogovernor/clock"
	"github.com/opd-ai/audiogovernor/limits"
	"github.com/opd-ai/audiogovernor/listener"
	"github.com/sirupsen/logrus"
)

// BatcherConfig holds LazyGraphUpdater settings.
type BatcherConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window"` // Quiet period before an automatic flush (default: 10ms)
}

// DefaultBatcherConfig returns the default batcher configuration.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{DebounceWindow: 10 * time.Millisecond}
}

// Validate checks the configuration against package limits.
func (c BatcherConfig) Validate() error {
	return limits.ValidateDuration("debounce window", c.DebounceWindow, time.Second)
}

// BatchHandler receives completed batches.
type BatchHandler func(Batch)

// LazyGraphUpdater folds topology edits into debounced batches. All
// producers share one mutex, so edits from several goroutines always land
// in a single batch.
type LazyGraphUpdater struct {
	mu      sync.Mutex
	config  BatcherConfig
	batch   Batch
	pending int
	closed  bool

	sched     *clock.Scheduler
	timer     *clock.Timer
	listeners *listener.Registry[BatchHandler]
	flushed   uint64
}

// NewLazyGraphUpdater creates an updater whose debounce timer is driven by
// sched. A nil sched gets a private scheduler on the system clock, which
// still needs Tick to fire.
func NewLazyGraphUpdater(config BatcherConfig, sched *clock.Scheduler) *LazyGraphUpdater {
	logrus.WithFields(logrus.Fields{
		"function":        "graph.NewLazyGraphUpdater",
		"debounce_window": config.DebounceWindow,
	}).Info("Creating lazy graph updater")

	if sched == nil {
		sched = clock.NewScheduler(nil)
	}
	u := &LazyGraphUpdater{
		config:    config,
		batch:     newBatch(),
		sched:     sched,
		listeners: listener.New[BatchHandler](),
	}
	u.timer = sched.NewTimer("graph-batch-debounce", u.onDebounce)
	return u
}

// AddNode queues the addition of a node.
func (u *LazyGraphUpdater) AddNode(id NodeID) {
	u.mutate(func(b *Batch) { b.AddedNodes[id] = struct{}{} })
}

// RemoveNode queues the removal of a node.
func (u *LazyGraphUpdater) RemoveNode(id NodeID) {
	u.mutate(func(b *Batch) { b.RemovedNodes[id] = struct{}{} })
}

// ModifyConnection queues a re-evaluation of one edge.
func (u *LazyGraphUpdater) ModifyConnection(id ConnectionID) {
	u.mutate(func(b *Batch) { b.ModifiedConnections[id] = struct{}{} })
}

func (u *LazyGraphUpdater) mutate(apply func(*Batch)) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		logrus.WithFields(logrus.Fields{
			"function": "LazyGraphUpdater.mutate",
		}).Warn("Edit after Close ignored")
		return
	}
	if u.batch.Timestamp.IsZero() {
		u.batch.Timestamp = u.sched.Now()
	}
	apply(&u.batch)
	u.pending++
	u.timer.Reset(u.config.DebounceWindow)
}

func (u *LazyGraphUpdater) onDebounce() {
	u.mu.Lock()
	empty := u.pending == 0
	u.mu.Unlock()
	if empty {
		return
	}
	u.Flush()
}

// Flush delivers the current batch to every listener synchronously, starts
// a new batch, and returns the delivered batch. It always delivers exactly
// one batch, which may be empty.
func (u *LazyGraphUpdater) Flush() Batch {
	u.mu.Lock()
	b := u.batch
	if b.Timestamp.IsZero() {
		b.Timestamp = u.sched.Now()
	}
	count := u.pending
	u.batch = newBatch()
	u.pending = 0
	u.flushed++
	u.timer.Stop()
	u.mu.Unlock()

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.WithFields(logrus.Fields{
			"function": "LazyGraphUpdater.Flush",
			"edits":    count,
			"added":    len(b.AddedNodes),
			"removed":  len(b.RemovedNodes),
			"modified": len(b.ModifiedConnections),
		}).Debug("Delivering graph batch")
	}

	for _, fn := range u.listeners.Snapshot() {
		deliver(fn, b)
	}
	return b
}

func deliver(fn BatchHandler, b Batch) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "LazyGraphUpdater.deliver",
				"panic":    r,
			}).Error("Batch listener panicked")
		}
	}()
	fn(b)
}

// OnBatchReady registers fn to receive every flushed batch.
func (u *LazyGraphUpdater) OnBatchReady(fn BatchHandler) listener.Handle {
	return u.listeners.Add(fn)
}

// Unsubscribe stops delivery to one listener.
func (u *LazyGraphUpdater) Unsubscribe(h listener.Handle) bool {
	return u.listeners.Remove(h)
}

// Pending returns the number of edits queued since the last flush.
func (u *LazyGraphUpdater) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pending
}

// Flushed returns how many batches have been delivered.
func (u *LazyGraphUpdater) Flushed() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.flushed
}

// Close cancels the debounce timer and drops every listener. Queued edits
// are discarded; callers wanting them delivered Flush first.
func (u *LazyGraphUpdater) Close() {
	u.mu.Lock()
	u.closed = true
	u.batch = newBatch()
	u.pending = 0
	u.mu.Unlock()

	u.timer.Remove()
	u.listeners.Clear()
}
