// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stdrules provides the standard rewrite rule library: graph
// cleanup rules usable as-is and as reference implementations of the
// matcher/transformer contract.
package stdrules

import (
	"fmt"

	"github.com/harmony-design/graphcore/graph"
	"github.com/harmony-design/graphcore/rewrite"
)

// RemoveOrphans returns a rule deleting non-root nodes with no incident
// edges.
func RemoveOrphans() *rewrite.Rule {
	return &rewrite.Rule{
		ID:       "remove-orphans",
		Name:     "Remove orphan nodes",
		Priority: 10,
		Enabled:  true,
		Match: func(n *graph.Node, rc *rewrite.Context) (bool, error) {
			if n.Root {
				return false, nil
			}
			return len(rc.Graph.IncidentEdges(n.ID)) == 0, nil
		},
		Transform: func(n *graph.Node, rc *rewrite.Context) (*rewrite.TransformResult, error) {
			return &rewrite.TransformResult{
				Applied:     true,
				RemoveNodes: []string{n.ID},
				Reason:      fmt.Sprintf("node %q has no incident edges", n.ID),
			}, nil
		},
	}
}

// CollapsePassthrough returns a rule that removes non-root nodes with
// exactly one inbound and one outbound edge, wiring the predecessor
// directly to the successor. The new edge keeps the inbound edge's type
// and attributes.
func CollapsePassthrough() *rewrite.Rule {
	return &rewrite.Rule{
		ID:       "collapse-passthrough",
		Name:     "Collapse passthrough nodes",
		Priority: 20,
		Enabled:  true,
		Match: func(n *graph.Node, rc *rewrite.Context) (bool, error) {
			if n.Root {
				return false, nil
			}
			in := rc.Graph.InEdges(n.ID)
			out := rc.Graph.OutEdges(n.ID)
			if len(in) != 1 || len(out) != 1 {
				return false, nil
			}
			// Self loops are not passthroughs.
			return in[0].From != n.ID && out[0].To != n.ID, nil
		},
		Transform: func(n *graph.Node, rc *rewrite.Context) (*rewrite.TransformResult, error) {
			in := rc.Graph.InEdges(n.ID)[0]
			out := rc.Graph.OutEdges(n.ID)[0]

			bridge := in.Clone()
			bridge.ID = ""
			bridge.To = out.To

			return &rewrite.TransformResult{
				Applied:     true,
				RemoveNodes: []string{n.ID},
				RemoveEdges: []string{in.ID, out.ID},
				AddEdges:    []*graph.Edge{bridge},
				Reason:      fmt.Sprintf("collapsed passthrough %q: %s -> %s", n.ID, in.From, out.To),
			}, nil
		},
	}
}

// MergeParallelEdges returns a rule that collapses duplicate parallel
// edges (same source, target, and type) into one, summing numeric
// "weight" attributes.
func MergeParallelEdges() *rewrite.Rule {
	return &rewrite.Rule{
		ID:       "merge-parallel-edges",
		Name:     "Merge parallel edges",
		Priority: 30,
		Enabled:  true,
		Match: func(n *graph.Node, rc *rewrite.Context) (bool, error) {
			return len(parallelGroups(rc.Graph, n.ID)) > 0, nil
		},
		Transform: func(n *graph.Node, rc *rewrite.Context) (*rewrite.TransformResult, error) {
			result := &rewrite.TransformResult{Applied: true}
			merged := 0

			for _, group := range parallelGroups(rc.Graph, n.ID) {
				kept := group[0].Clone()
				total, weighted := edgeWeight(group[0])
				for _, dup := range group[1:] {
					if w, ok := edgeWeight(dup); ok {
						total += w
						weighted = true
					}
					result.RemoveEdges = append(result.RemoveEdges, dup.ID)
					merged++
				}
				if weighted {
					if kept.Attrs == nil {
						kept.Attrs = make(map[string]any)
					}
					kept.Attrs["weight"] = total
					// Same id replaces the kept edge in place.
					result.AddEdges = append(result.AddEdges, kept)
				}
			}

			result.Reason = fmt.Sprintf("merged %d parallel edge(s) out of %q", merged, n.ID)
			return result, nil
		},
	}
}

// parallelGroups returns groups of 2+ outbound edges of a node sharing
// target and type, in edge order.
func parallelGroups(g *graph.Graph, nodeID string) [][]*graph.Edge {
	edges := g.OutEdges(nodeID)
	byKey := make(map[string][]*graph.Edge)
	var keys []string

	for _, e := range edges {
		key := e.To + "\x00" + e.Type
		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], e)
	}

	var out [][]*graph.Edge
	for _, key := range keys {
		if group := byKey[key]; len(group) > 1 {
			out = append(out, group)
		}
	}
	return out
}

// edgeWeight reads a numeric "weight" attribute.
func edgeWeight(e *graph.Edge) (float64, bool) {
	if e.Attrs == nil {
		return 0, false
	}
	switch w := e.Attrs["weight"].(type) {
	case float64:
		return w, true
	case float32:
		return float64(w), true
	case int:
		return float64(w), true
	case int64:
		return float64(w), true
	default:
		return 0, false
	}
}
