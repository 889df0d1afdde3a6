package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveGraphApplyAndSnapshot(t *testing.T) {
	g := NewLiveGraph()
	g.Declare("osc", "out")
	g.Declare("out")
	before := g.Snapshot().Version

	require.NoError(t, g.Apply([]CompiledOperation{connect("osc", "out")}))
	snap := g.Snapshot()
	assert.True(t, snap.HasEdge("osc", "out"))
	assert.Greater(t, snap.Version, before)
	assert.Equal(t, 1, g.EdgeCount())

	// Snapshots are independent of later edits.
	require.NoError(t, g.Apply([]CompiledOperation{disconnect("osc", "out")}))
	assert.True(t, snap.HasEdge("osc", "out"))
	assert.Zero(t, g.EdgeCount())
}

func TestLiveGraphApplyIsAtomic(t *testing.T) {
	g := NewLiveGraph()
	g.Declare("osc", "out")

	err := g.Apply([]CompiledOperation{connect("osc", "out"), disconnect("osc", "missing")})
	require.ErrorIs(t, err, ErrEdgeMissing)
	assert.Zero(t, g.EdgeCount(), "failed batch must not partially apply")
}

func TestLiveGraphErrors(t *testing.T) {
	g := NewLiveGraph()
	assert.ErrorIs(t, g.Apply([]CompiledOperation{connect("ghost", "out")}), ErrUnknownNode)

	g.Declare("osc", "out")
	require.NoError(t, g.ApplyOperations(context.Background(), []CompiledOperation{connect("osc", "out")}))
	assert.ErrorIs(t, g.Apply([]CompiledOperation{connect("osc", "out")}), ErrEdgeExists)
}

func TestLiveGraphSetDeclaredAndForget(t *testing.T) {
	g := NewLiveGraph()
	g.Declare("osc")
	g.SetDeclared(ConnectionID{Source: "osc", Target: "out"}, true)
	assert.True(t, g.Snapshot().IsDeclared("osc", "out"))

	require.NoError(t, g.Apply([]CompiledOperation{connect("osc", "out")}))
	g.Forget("osc")
	assert.True(t, g.Known("osc"), "node with live edges is kept")

	require.NoError(t, g.Apply([]CompiledOperation{disconnect("osc", "out")}))
	g.Forget("osc")
	assert.False(t, g.Known("osc"))

	g.SetDeclared(ConnectionID{Source: "lfo", Target: "osc"}, false)
	assert.True(t, g.Known("lfo"))
}

func TestCompiledBatchRoundTrip(t *testing.T) {
	g := NewLiveGraph()
	c := newTestCompiler(t)

	g.Declare("osc", "filter")
	g.Declare("filter", "out")
	g.Declare("out")
	ops := c.Compile(g.Snapshot(), batchOf([]NodeID{"osc", "filter", "out"}, nil, nil))
	require.NoError(t, g.Apply(ops))
	assert.Equal(t, 2, g.EdgeCount())

	ops = c.Compile(g.Snapshot(), batchOf(nil, []NodeID{"filter"}, nil))
	require.NoError(t, g.Apply(ops))
	assert.Zero(t, g.EdgeCount())
}
