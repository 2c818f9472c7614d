// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph defines the node/edge model shared by the rewrite engine
// and the transaction log.
//
// A Graph is an ordered collection of nodes plus a collection of directed
// edges. Graphs are treated as value snapshots: the rewrite engine clones
// a graph before every session and applies each iteration's changes to a
// fresh snapshot, so callers can hold on to a graph they passed in.
//
// Node order is insertion order and is significant: it determines the
// node iteration order inside a rewrite iteration, which is part of the
// engine's determinism contract.
package graph

import (
	"fmt"
	"maps"
)

// Node is a vertex in the design graph.
type Node struct {
	// ID uniquely identifies the node within a graph.
	ID string `json:"id"`

	// Type is a free-form type tag (e.g. "component", "token").
	Type string `json:"type"`

	// Attrs holds arbitrary node attributes.
	Attrs map[string]any `json:"attributes,omitempty"`

	// Root marks the node as a graph root, exempting it from
	// orphan-removal style rules.
	Root bool `json:"isRoot,omitempty"`
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		ID:   n.ID,
		Type: n.Type,
		Root: n.Root,
	}
	if n.Attrs != nil {
		c.Attrs = maps.Clone(n.Attrs)
	}
	return c
}

// Edge is a directed relationship between two nodes.
//
// Endpoints need not reference nodes currently present in the graph:
// dangling edges are tolerated mid-transformation and are expected to be
// resolved by the same or a later rewrite rule.
type Edge struct {
	// ID uniquely identifies the edge. Derived from the endpoints and
	// type when the caller leaves it empty (see DeriveEdgeID).
	ID string `json:"id,omitempty"`

	// From is the source node id.
	From string `json:"from"`

	// To is the target node id.
	To string `json:"to"`

	// Type is a free-form relationship tag (e.g. "renders", "uses-token").
	Type string `json:"type"`

	// Attrs holds arbitrary edge attributes, such as a numeric weight.
	Attrs map[string]any `json:"attributes,omitempty"`
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	c := &Edge{
		ID:   e.ID,
		From: e.From,
		To:   e.To,
		Type: e.Type,
	}
	if e.Attrs != nil {
		c.Attrs = maps.Clone(e.Attrs)
	}
	return c
}

// DeriveEdgeID builds a deterministic edge id from the endpoints and type.
func DeriveEdgeID(from, to, edgeType string) string {
	return fmt.Sprintf("%s->%s:%s", from, to, edgeType)
}

// Graph is an ordered node collection plus an edge collection.
//
// # Thread Safety
//
// NOT safe for concurrent mutation; the rewrite engine and transaction
// log assume single-writer access per instance. Concurrent reads of a
// graph that is not being mutated are safe.
type Graph struct {
	nodes   []*Node
	edges   []*Edge
	nodeIdx map[string]int
	edgeIdx map[string]int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodeIdx: make(map[string]int),
		edgeIdx: make(map[string]int),
	}
}

// AddNode inserts or replaces a node by id, preserving the original
// position when replacing.
func (g *Graph) AddNode(n *Node) {
	if n == nil || n.ID == "" {
		return
	}
	if i, ok := g.nodeIdx[n.ID]; ok {
		g.nodes[i] = n
		return
	}
	g.nodeIdx[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

// AddEdge inserts or replaces an edge by id. An empty id is derived from
// the endpoints and type.
func (g *Graph) AddEdge(e *Edge) {
	if e == nil {
		return
	}
	if e.ID == "" {
		e.ID = DeriveEdgeID(e.From, e.To, e.Type)
	}
	if i, ok := g.edgeIdx[e.ID]; ok {
		g.edges[i] = e
		return
	}
	g.edgeIdx[e.ID] = len(g.edges)
	g.edges = append(g.edges, e)
}

// RemoveNode deletes a node by id. Incident edges are left in place;
// resolving them is the responsibility of rewrite rules.
//
// # Outputs
//
//   - bool: False if the node was not present.
func (g *Graph) RemoveNode(id string) bool {
	i, ok := g.nodeIdx[id]
	if !ok {
		return false
	}
	g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
	delete(g.nodeIdx, id)
	for j := i; j < len(g.nodes); j++ {
		g.nodeIdx[g.nodes[j].ID] = j
	}
	return true
}

// RemoveEdge deletes an edge by id.
//
// # Outputs
//
//   - bool: False if the edge was not present.
func (g *Graph) RemoveEdge(id string) bool {
	i, ok := g.edgeIdx[id]
	if !ok {
		return false
	}
	g.edges = append(g.edges[:i], g.edges[i+1:]...)
	delete(g.edgeIdx, id)
	for j := i; j < len(g.edges); j++ {
		g.edgeIdx[g.edges[j].ID] = j
	}
	return true
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	if i, ok := g.nodeIdx[id]; ok {
		return g.nodes[i]
	}
	return nil
}

// Edge returns the edge with the given id, or nil.
func (g *Graph) Edge(id string) *Edge {
	if i, ok := g.edgeIdx[id]; ok {
		return g.edges[i]
	}
	return nil
}

// HasNode reports whether a node with the given id is present.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodeIdx[id]
	return ok
}

// Nodes returns the nodes in insertion order. The returned slice is a
// copy; the nodes themselves are shared.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the edges in insertion order. The returned slice is a
// copy; the edges themselves are shared.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// OutEdges returns the edges whose source is the given node, in edge
// insertion order.
func (g *Graph) OutEdges(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// InEdges returns the edges whose target is the given node, in edge
// insertion order.
func (g *Graph) InEdges(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.To == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncidentEdges returns all edges touching the given node.
func (g *Graph) IncidentEdges(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.From == nodeID || e.To == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// DanglingEdges returns edges referencing at least one absent node.
//
// # Description
//
// Dangling edges are legal mid-transformation. Hosts that want to assert
// the committed-graph invariant (no edges to deleted nodes unless
// deliberately retained) can check this after a rewrite session.
func (g *Graph) DanglingEdges() []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if !g.HasNode(e.From) || !g.HasNode(e.To) {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy of the graph, including attribute maps.
//
// # Description
//
// The rewrite engine clones the input graph once per session and builds
// each subsequent snapshot from the previous one, so rules never observe
// in-place mutation.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:   make([]*Node, len(g.nodes)),
		edges:   make([]*Edge, len(g.edges)),
		nodeIdx: make(map[string]int, len(g.nodeIdx)),
		edgeIdx: make(map[string]int, len(g.edgeIdx)),
	}
	for i, n := range g.nodes {
		c.nodes[i] = n.Clone()
		c.nodeIdx[n.ID] = i
	}
	for i, e := range g.edges {
		c.edges[i] = e.Clone()
		c.edgeIdx[e.ID] = i
	}
	return c
}
