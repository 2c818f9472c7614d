// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"log/slog"

	"github.com/harmony-design/graphcore/graph"
)

// replacement pairs a matched node id with the node replacing it.
type replacement struct {
	matchedID string
	node      *graph.Node
}

// changeset accumulates the changes accepted during one iteration, in
// acceptance order, for atomic application at iteration end.
//
// Resolution rules: removals apply before insertions, so a deletion and
// an insertion targeting the same id resolve to the insert. An added
// edge whose endpoint was deleted in the same pass (and not re-added)
// is dropped; the deletion takes precedence over the stale reference.
type changeset struct {
	replacements []replacement
	addNodes     []*graph.Node
	removeNodes  []string
	addEdges     []*graph.Edge
	removeEdges  []string

	removedNodeSet map[string]bool
}

func newChangeset() *changeset {
	return &changeset{removedNodeSet: make(map[string]bool)}
}

// add records one transform result against the node it matched.
func (cs *changeset) add(matchedID string, result *TransformResult) {
	if result.Replacement != nil {
		cs.replacements = append(cs.replacements, replacement{
			matchedID: matchedID,
			node:      result.Replacement,
		})
		if result.Replacement.ID != matchedID {
			cs.removedNodeSet[matchedID] = true
		}
	}
	cs.addNodes = append(cs.addNodes, result.AddNodes...)
	for _, id := range result.RemoveNodes {
		cs.removeNodes = append(cs.removeNodes, id)
		cs.removedNodeSet[id] = true
	}
	cs.addEdges = append(cs.addEdges, result.AddEdges...)
	cs.removeEdges = append(cs.removeEdges, result.RemoveEdges...)
}

// empty reports whether the iteration accepted no changes.
func (cs *changeset) empty() bool {
	return len(cs.replacements) == 0 &&
		len(cs.addNodes) == 0 &&
		len(cs.removeNodes) == 0 &&
		len(cs.addEdges) == 0 &&
		len(cs.removeEdges) == 0
}

// apply produces the next snapshot from current and updates stats.
// Current is never mutated.
func (cs *changeset) apply(current *graph.Graph, stats *Stats, logger *slog.Logger) *graph.Graph {
	next := current.Clone()

	// Removals first, so a same-id insert later in the pass wins.
	for _, id := range cs.removeNodes {
		if next.RemoveNode(id) {
			stats.NodesRemoved++
		}
	}
	for _, id := range cs.removeEdges {
		if next.RemoveEdge(id) {
			stats.EdgesRemoved++
		}
	}

	for _, r := range cs.replacements {
		if r.node.ID != r.matchedID {
			next.RemoveNode(r.matchedID)
		}
		next.AddNode(r.node)
		stats.NodesReplaced++
	}

	for _, n := range cs.addNodes {
		if !next.HasNode(n.ID) {
			stats.NodesAdded++
		}
		next.AddNode(n)
	}

	for _, e := range cs.addEdges {
		if cs.stale(next, e.From) || cs.stale(next, e.To) {
			logger.Debug("dropping edge to node deleted in the same pass",
				slog.String("from", e.From),
				slog.String("to", e.To),
				slog.String("type", e.Type))
			continue
		}
		if e.ID == "" || next.Edge(e.ID) == nil {
			stats.EdgesAdded++
		}
		next.AddEdge(e)
	}

	return next
}

// stale reports whether an edge endpoint was deleted in this pass and
// not re-inserted.
func (cs *changeset) stale(next *graph.Graph, nodeID string) bool {
	return cs.removedNodeSet[nodeID] && !next.HasNode(nodeID)
}
