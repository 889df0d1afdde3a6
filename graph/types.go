package graph

import (
	"fmt"
	"sort"
	"time"
)

// NodeID identifies an audio node.
type NodeID string

// ConnectionID identifies a directed edge between two nodes.
type ConnectionID struct {
	Source NodeID
	Target NodeID
}

// String returns "source->target".
func (c ConnectionID) String() string {
	return fmt.Sprintf("%s->%s", c.Source, c.Target)
}

// Batch accumulates topology edits between flush points.
type Batch struct {
	AddedNodes          map[NodeID]struct{}
	RemovedNodes        map[NodeID]struct{}
	ModifiedConnections map[ConnectionID]struct{}
	// Timestamp is when the first edit of the batch arrived, or the flush
	// time for a batch flushed empty.
	Timestamp time.Time
}

func newBatch() Batch {
	return Batch{
		AddedNodes:          make(map[NodeID]struct{}),
		RemovedNodes:        make(map[NodeID]struct{}),
		ModifiedConnections: make(map[ConnectionID]struct{}),
	}
}

// Len returns the number of distinct edits in the batch.
func (b Batch) Len() int {
	return len(b.AddedNodes) + len(b.RemovedNodes) + len(b.ModifiedConnections)
}

// Empty reports whether the batch carries no edits.
func (b Batch) Empty() bool {
	return b.Len() == 0
}

// Added returns the added nodes in sorted order.
func (b Batch) Added() []NodeID {
	return sortedNodes(b.AddedNodes)
}

// Removed returns the removed nodes in sorted order.
func (b Batch) Removed() []NodeID {
	return sortedNodes(b.RemovedNodes)
}

// Modified returns the modified connections sorted by source then target.
func (b Batch) Modified() []ConnectionID {
	out := make([]ConnectionID, 0, len(b.ModifiedConnections))
	for c := range b.ModifiedConnections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

func sortedNodes(set map[NodeID]struct{}) []NodeID {
	out := make([]NodeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OpType is the kind of a compiled operation.
type OpType int

const (
	OpDisconnect OpType = iota
	OpConnect
)

// String returns the operation name.
func (o OpType) String() string {
	switch o {
	case OpConnect:
		return "connect"
	case OpDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// CompiledOperation is one edge edit against the live graph.
type CompiledOperation struct {
	Type     OpType
	NodeID   NodeID
	TargetID NodeID
}

// String returns a readable form such as "connect osc1->filter".
func (op CompiledOperation) String() string {
	return fmt.Sprintf("%s %s->%s", op.Type, op.NodeID, op.TargetID)
}

// Topology is a snapshot of the graph a batch is compiled against.
type Topology struct {
	// Version changes whenever the live edges or declarations change.
	Version uint64
	// Edges are the connections currently live, keyed by source.
	Edges map[NodeID]map[NodeID]struct{}
	// Declared are the targets each node should be connected to.
	Declared map[NodeID]map[NodeID]struct{}
}

// NewTopology returns an empty topology at version 0.
func NewTopology() Topology {
	return Topology{
		Edges:    make(map[NodeID]map[NodeID]struct{}),
		Declared: make(map[NodeID]map[NodeID]struct{}),
	}
}

// HasEdge reports whether source->target is live.
func (t Topology) HasEdge(source, target NodeID) bool {
	_, ok := t.Edges[source][target]
	return ok
}

// IsDeclared reports whether source should be connected to target.
func (t Topology) IsDeclared(source, target NodeID) bool {
	_, ok := t.Declared[source][target]
	return ok
}

// Clone returns a deep copy.
func (t Topology) Clone() Topology {
	return Topology{
		Version:  t.Version,
		Edges:    cloneAdjacency(t.Edges),
		Declared: cloneAdjacency(t.Declared),
	}
}

func cloneAdjacency(src map[NodeID]map[NodeID]struct{}) map[NodeID]map[NodeID]struct{} {
	dst := make(map[NodeID]map[NodeID]struct{}, len(src))
	for from, targets := range src {
		set := make(map[NodeID]struct{}, len(targets))
		for to := range targets {
			set[to] = struct{}{}
		}
		dst[from] = set
	}
	return dst
}
