package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	c, err := NewCompiler(DefaultCompilerConfig())
	require.NoError(t, err)
	return c
}

func batchOf(added, removed []NodeID, modified []ConnectionID) Batch {
	b := newBatch()
	for _, id := range added {
		b.AddedNodes[id] = struct{}{}
	}
	for _, id := range removed {
		b.RemovedNodes[id] = struct{}{}
	}
	for _, c := range modified {
		b.ModifiedConnections[c] = struct{}{}
	}
	return b
}

func connect(from, to NodeID) CompiledOperation {
	return CompiledOperation{Type: OpConnect, NodeID: from, TargetID: to}
}

func disconnect(from, to NodeID) CompiledOperation {
	return CompiledOperation{Type: OpDisconnect, NodeID: from, TargetID: to}
}

// chain builds osc -> filter -> out with all edges live.
func chain() Topology {
	g := NewLiveGraph()
	g.Declare("osc", "filter")
	g.Declare("filter", "out")
	g.Declare("out")
	_ = g.Apply([]CompiledOperation{connect("osc", "filter"), connect("filter", "out")})
	return g.Snapshot()
}

func TestCompileAddedNodeConnectsDeclaredTargets(t *testing.T) {
	c := newTestCompiler(t)
	topo := chain()
	topo.Declared["lfo"] = map[NodeID]struct{}{"filter": {}, "osc": {}}

	ops := c.Compile(topo, batchOf([]NodeID{"lfo"}, nil, nil))
	assert.Equal(t, []CompiledOperation{connect("lfo", "filter"), connect("lfo", "osc")}, ops)
}

func TestCompileReAddedNodeDropsUndeclaredOutputs(t *testing.T) {
	c := newTestCompiler(t)
	topo := chain()
	topo.Declared["osc"] = map[NodeID]struct{}{"out": {}}

	ops := c.Compile(topo, batchOf([]NodeID{"osc"}, nil, nil))
	assert.Equal(t, []CompiledOperation{disconnect("osc", "filter"), connect("osc", "out")}, ops)

	live := NewLiveGraph()
	live.Declare("osc", "filter")
	live.Declare("filter", "out")
	require.NoError(t, live.Apply([]CompiledOperation{connect("osc", "filter"), connect("filter", "out")}))
	live.Declare("osc", "out")
	require.NoError(t, live.Apply(newTestCompiler(t).Compile(live.Snapshot(), batchOf([]NodeID{"osc"}, nil, nil))))

	after := live.Snapshot()
	assert.False(t, after.HasEdge("osc", "filter"))
	assert.True(t, after.HasEdge("osc", "out"))
	assert.True(t, after.HasEdge("filter", "out"), "other nodes' edges are untouched")
}

func TestCompileRemovedNodeDisconnectsBothDirections(t *testing.T) {
	c := newTestCompiler(t)

	ops := c.Compile(chain(), batchOf(nil, []NodeID{"filter"}, nil))
	assert.Equal(t, []CompiledOperation{disconnect("filter", "out"), disconnect("osc", "filter")}, ops)
}

func TestCompileAddedAndRemovedIsNoOp(t *testing.T) {
	c := newTestCompiler(t)
	topo := chain()
	topo.Declared["tmp"] = map[NodeID]struct{}{"out": {}}

	ops := c.Compile(topo, batchOf([]NodeID{"tmp"}, []NodeID{"tmp"}, nil))
	assert.Empty(t, ops)
}

func TestCompileModifiedConnections(t *testing.T) {
	c := newTestCompiler(t)
	topo := chain()
	// filter->out stays declared and live: re-patch.
	// osc->filter is live but no longer declared: disconnect.
	// osc->out is declared but not live: connect.
	topo.Declared["osc"] = map[NodeID]struct{}{"out": {}}

	ops := c.Compile(topo, batchOf(nil, nil, []ConnectionID{
		{Source: "filter", Target: "out"},
		{Source: "osc", Target: "filter"},
		{Source: "osc", Target: "out"},
	}))
	assert.Equal(t, []CompiledOperation{
		disconnect("filter", "out"),
		disconnect("osc", "filter"),
		connect("filter", "out"),
		connect("osc", "out"),
	}, ops)
}

func TestCompileSkipsTargetsBeingRemoved(t *testing.T) {
	c := newTestCompiler(t)
	topo := chain()
	topo.Declared["lfo"] = map[NodeID]struct{}{"filter": {}, "out": {}}

	ops := c.Compile(topo, batchOf([]NodeID{"lfo"}, []NodeID{"filter"}, nil))
	for _, op := range ops {
		if op.Type == OpConnect {
			assert.NotEqual(t, NodeID("filter"), op.TargetID, "connect to a removed node: %s", op)
		}
	}
	assert.Contains(t, ops, connect("lfo", "out"))
}

func TestCompileDisconnectsPrecedeConnects(t *testing.T) {
	c := newTestCompiler(t)
	topo := chain()
	topo.Declared["a"] = map[NodeID]struct{}{"out": {}}

	ops := c.Compile(topo, batchOf([]NodeID{"a"}, []NodeID{"osc"}, nil))
	seenConnect := false
	for _, op := range ops {
		if op.Type == OpConnect {
			seenConnect = true
		} else {
			assert.False(t, seenConnect, "disconnect after connect in %v", ops)
		}
	}
}

func TestCompileIsMemoized(t *testing.T) {
	c := newTestCompiler(t)
	topo := chain()
	b := batchOf(nil, []NodeID{"filter"}, nil)

	first := c.Compile(topo, b)
	second := c.Compile(topo, batchOf(nil, []NodeID{"filter"}, nil))
	assert.Equal(t, first, second)

	stats := c.GetCacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)

	// Cached results are copies.
	second[0].TargetID = "mutated"
	third := c.Compile(topo, b)
	assert.Equal(t, first, third)

	c.ClearCache()
	assert.Equal(t, CacheStats{}, c.GetCacheStats())
}

func TestCacheKeyDependsOnVersionAndContents(t *testing.T) {
	b := batchOf([]NodeID{"a", "b"}, nil, nil)
	assert.Equal(t, cacheKey(1, b), cacheKey(1, batchOf([]NodeID{"b", "a"}, nil, nil)))
	assert.NotEqual(t, cacheKey(1, b), cacheKey(2, b))
	assert.NotEqual(t, cacheKey(1, b), cacheKey(1, batchOf(nil, []NodeID{"a", "b"}, nil)))
	// Separators keep "ab" distinct from "a","b".
	assert.NotEqual(t, cacheKey(1, b), cacheKey(1, batchOf([]NodeID{"ab"}, nil, nil)))
}

func TestCompilerCacheIsBounded(t *testing.T) {
	c, err := NewCompiler(CompilerConfig{CacheSize: 2})
	require.NoError(t, err)

	topo := chain()
	for _, id := range []NodeID{"a", "b", "c", "d"} {
		c.Compile(topo, batchOf([]NodeID{id}, nil, nil))
	}
	assert.Equal(t, 2, c.GetCacheStats().Size)
}

func TestNewCompilerRejectsBadConfig(t *testing.T) {
	_, err := NewCompiler(CompilerConfig{CacheSize: 0})
	assert.Error(t, err)
}
