package graph

import "errors"

var (
	// ErrUnknownNode indicates an operation referencing a node the graph has never declared
	ErrUnknownNode = errors.New("unknown node")
	// ErrEdgeExists indicates a connect for an edge that is already live
	ErrEdgeExists = errors.New("edge already connected")
	// ErrEdgeMissing indicates a disconnect for an edge that is not live
	ErrEdgeMissing = errors.New("edge not connected")
)
