package graph

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opd-ai/audiogovernor/limits"
	"github.com/sirupsen/logrus"
)

// CompilerConfig holds Compiler settings.
type CompilerConfig struct {
	CacheSize int `yaml:"cache_size"` // Memoized compilations kept (default: 256)
}

// DefaultCompilerConfig returns the default compiler configuration.
func DefaultCompilerConfig() CompilerConfig {
	return CompilerConfig{CacheSize: 256}
}

// Validate checks the configuration against package limits.
func (c CompilerConfig) Validate() error {
	return limits.ValidateCapacity("compiler cache size", c.CacheSize, limits.MaxCompilerCache)
}

// CacheStats reports memoization effectiveness.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Compiler turns batches into ordered edge operations.
type Compiler struct {
	mu     sync.Mutex
	cache  *lru.Cache[uint64, []CompiledOperation]
	hits   uint64
	misses uint64
}

// NewCompiler creates a compiler with a bounded result cache.
func NewCompiler(config CompilerConfig) (*Compiler, error) {
	logrus.WithFields(logrus.Fields{
		"function":   "graph.NewCompiler",
		"cache_size": config.CacheSize,
	}).Info("Creating incremental graph compiler")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	cache, err := lru.New[uint64, []CompiledOperation](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create compiler cache: %w", err)
	}
	return &Compiler{cache: cache}, nil
}

// Compile returns the operations that bring topology in line with batch.
// Disconnects always precede connects; each group is sorted by node then
// target. Results for an identical (topology version, batch) pair are
// served from the cache.
func (c *Compiler) Compile(topology Topology, batch Batch) []CompiledOperation {
	key := cacheKey(topology.Version, batch)

	c.mu.Lock()
	if ops, ok := c.cache.Get(key); ok {
		c.hits++
		c.mu.Unlock()
		return copyOps(ops)
	}
	c.misses++
	c.mu.Unlock()

	ops := compile(topology, batch)

	c.mu.Lock()
	c.cache.Add(key, ops)
	c.mu.Unlock()

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.WithFields(logrus.Fields{
			"function":   "Compiler.Compile",
			"version":    topology.Version,
			"edits":      batch.Len(),
			"operations": len(ops),
		}).Debug("Compiled graph batch")
	}
	return copyOps(ops)
}

// GetCacheStats returns hit, miss and size counters.
func (c *Compiler) GetCacheStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Size: c.cache.Len()}
}

// ClearCache drops every memoized result and zeroes the counters.
func (c *Compiler) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
	c.hits = 0
	c.misses = 0
}

func copyOps(ops []CompiledOperation) []CompiledOperation {
	out := make([]CompiledOperation, len(ops))
	copy(out, ops)
	return out
}

// cacheKey hashes the topology version and the batch contents in a fixed
// order, so two batches with the same edits hash equal whatever order the
// edits arrived in.
func cacheKey(version uint64, b Batch) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], version)
	_, _ = d.Write(buf[:])

	writeSection := func(tag byte, n int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		_, _ = d.Write([]byte{tag})
		_, _ = d.Write(buf[:])
	}
	writeID := func(id NodeID) {
		_, _ = d.WriteString(string(id))
		_, _ = d.Write([]byte{0})
	}

	added := b.Added()
	writeSection('a', len(added))
	for _, id := range added {
		writeID(id)
	}
	removed := b.Removed()
	writeSection('r', len(removed))
	for _, id := range removed {
		writeID(id)
	}
	modified := b.Modified()
	writeSection('m', len(modified))
	for _, conn := range modified {
		writeID(conn.Source)
		writeID(conn.Target)
	}
	return d.Sum64()
}

func compile(t Topology, b Batch) []CompiledOperation {
	ops := make(map[CompiledOperation]struct{})
	emit := func(typ OpType, from, to NodeID) {
		ops[CompiledOperation{Type: typ, NodeID: from, TargetID: to}] = struct{}{}
	}

	// A node added and removed in one batch cancels out.
	removed := make(map[NodeID]struct{}, len(b.RemovedNodes))
	for id := range b.RemovedNodes {
		if _, alsoAdded := b.AddedNodes[id]; !alsoAdded {
			removed[id] = struct{}{}
		}
	}
	isRemoved := func(id NodeID) bool {
		_, ok := removed[id]
		return ok
	}

	for id := range b.AddedNodes {
		if _, alsoRemoved := b.RemovedNodes[id]; alsoRemoved {
			continue
		}
		for target := range t.Declared[id] {
			if isRemoved(target) || t.HasEdge(id, target) {
				continue
			}
			emit(OpConnect, id, target)
		}
		// Re-adding a node replaces its outputs with the new declaration.
		for target := range t.Edges[id] {
			if !t.IsDeclared(id, target) {
				emit(OpDisconnect, id, target)
			}
		}
	}

	for id := range removed {
		for target := range t.Edges[id] {
			emit(OpDisconnect, id, target)
		}
		for source, targets := range t.Edges {
			if _, ok := targets[id]; ok {
				emit(OpDisconnect, source, id)
			}
		}
	}

	for conn := range b.ModifiedConnections {
		if isRemoved(conn.Source) || isRemoved(conn.Target) {
			continue
		}
		live := t.HasEdge(conn.Source, conn.Target)
		declared := t.IsDeclared(conn.Source, conn.Target)
		switch {
		case live && declared:
			emit(OpDisconnect, conn.Source, conn.Target)
			emit(OpConnect, conn.Source, conn.Target)
		case live:
			emit(OpDisconnect, conn.Source, conn.Target)
		case declared:
			emit(OpConnect, conn.Source, conn.Target)
		}
	}

	out := make([]CompiledOperation, 0, len(ops))
	for op := range ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.NodeID != b.NodeID {
			return a.NodeID < b.NodeID
		}
		return a.TargetID < b.TargetID
	})
	return out
}
