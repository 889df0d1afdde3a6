package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// LiveGraph is the in-process model of the audio graph: which nodes exist,
// which targets each node should feed, and which edges are connected now.
type LiveGraph struct {
	mu   sync.RWMutex
	topo Topology
}

// NewLiveGraph returns an empty graph.
func NewLiveGraph() *LiveGraph {
	return &LiveGraph{topo: NewTopology()}
}

// Declare registers node and replaces the set of targets it should feed.
// The edges themselves change only when a compiled batch is applied.
func (g *LiveGraph) Declare(node NodeID, targets ...NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	set := make(map[NodeID]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}
	g.topo.Declared[node] = set
	g.topo.Version++
}

// SetDeclared adds or removes a single declared target of source.
func (g *LiveGraph) SetDeclared(conn ConnectionID, connected bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	targets, ok := g.topo.Declared[conn.Source]
	if !ok {
		targets = make(map[NodeID]struct{})
		g.topo.Declared[conn.Source] = targets
	}
	if connected {
		targets[conn.Target] = struct{}{}
	} else {
		delete(targets, conn.Target)
	}
	g.topo.Version++
}

// Forget drops a node's declaration. Nodes that still have live edges are
// kept, since disconnecting them is the compiler's job.
func (g *LiveGraph) Forget(nodes ...NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	changed := false
	for _, n := range nodes {
		if len(g.topo.Edges[n]) > 0 || g.hasIncomingLocked(n) {
			continue
		}
		if _, ok := g.topo.Declared[n]; ok {
			delete(g.topo.Declared, n)
			changed = true
		}
		for _, targets := range g.topo.Declared {
			if _, ok := targets[n]; ok {
				delete(targets, n)
				changed = true
			}
		}
	}
	if changed {
		g.topo.Version++
	}
}

func (g *LiveGraph) hasIncomingLocked(n NodeID) bool {
	for _, targets := range g.topo.Edges {
		if _, ok := targets[n]; ok {
			return true
		}
	}
	return false
}

// Known reports whether node has been declared.
func (g *LiveGraph) Known(node NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.topo.Declared[node]
	return ok
}

// Snapshot returns a deep copy of the current topology.
func (g *LiveGraph) Snapshot() Topology {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.topo.Clone()
}

// EdgeCount returns the number of live edges.
func (g *LiveGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, targets := range g.topo.Edges {
		n += len(targets)
	}
	return n
}

// Apply executes ops in order. It is all or nothing: if any operation is
// invalid the graph is left untouched and the error names the offending
// operation.
func (g *LiveGraph) Apply(ops []CompiledOperation) error {
	if len(ops) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	edges := cloneAdjacency(g.topo.Edges)
	for i, op := range ops {
		if err := g.applyOne(edges, op); err != nil {
			return fmt.Errorf("operation %d (%s): %w", i, op, err)
		}
	}
	g.topo.Edges = edges
	g.topo.Version++

	logrus.WithFields(logrus.Fields{
		"function":   "LiveGraph.Apply",
		"operations": len(ops),
		"version":    g.topo.Version,
	}).Debug("Applied graph operations")
	return nil
}

func (g *LiveGraph) applyOne(edges map[NodeID]map[NodeID]struct{}, op CompiledOperation) error {
	switch op.Type {
	case OpConnect:
		if _, ok := g.topo.Declared[op.NodeID]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, op.NodeID)
		}
		targets, ok := edges[op.NodeID]
		if !ok {
			targets = make(map[NodeID]struct{})
			edges[op.NodeID] = targets
		}
		if _, exists := targets[op.TargetID]; exists {
			return ErrEdgeExists
		}
		targets[op.TargetID] = struct{}{}
	case OpDisconnect:
		targets := edges[op.NodeID]
		if _, exists := targets[op.TargetID]; !exists {
			return ErrEdgeMissing
		}
		delete(targets, op.TargetID)
		if len(targets) == 0 {
			delete(edges, op.NodeID)
		}
	default:
		return fmt.Errorf("unsupported operation type %d", int(op.Type))
	}
	return nil
}

// ApplyOperations adapts Apply to the graph applier contract used by the
// governor. The context is unused because application is in-memory.
func (g *LiveGraph) ApplyOperations(_ context.Context, ops []CompiledOperation) error {
	return g.Apply(ops)
}
