// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stdrules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmony-design/graphcore/graph"
	"github.com/harmony-design/graphcore/rewrite"
)

func runRule(t *testing.T, rule *rewrite.Rule, g *graph.Graph) *rewrite.Result {
	t.Helper()
	reg := rewrite.NewRegistry()
	require.NoError(t, reg.Register(rule))

	result, err := rewrite.New(reg).Rewrite(context.Background(), g, rewrite.Options{})
	require.NoError(t, err)
	require.True(t, result.Converged)
	return result
}

func TestRemoveOrphans(t *testing.T) {
	g := graph.New()
	g.AddNode(&graph.Node{ID: "root", Type: "component", Root: true})
	g.AddNode(&graph.Node{ID: "linked", Type: "component"})
	g.AddNode(&graph.Node{ID: "orphan", Type: "component"})
	g.AddNode(&graph.Node{ID: "root-orphan", Type: "component", Root: true})
	g.AddEdge(&graph.Edge{From: "root", To: "linked", Type: "renders"})

	result := runRule(t, RemoveOrphans(), g)

	assert.False(t, result.Graph.HasNode("orphan"))
	assert.True(t, result.Graph.HasNode("linked"))
	// Root nodes are exempt even with no edges.
	assert.True(t, result.Graph.HasNode("root-orphan"))
	assert.Equal(t, 1, result.Session.Stats.NodesRemoved)
}

func TestCollapsePassthrough(t *testing.T) {
	g := graph.New()
	g.AddNode(&graph.Node{ID: "a", Type: "component", Root: true})
	g.AddNode(&graph.Node{ID: "mid", Type: "component"})
	g.AddNode(&graph.Node{ID: "b", Type: "component", Root: true})
	g.AddEdge(&graph.Edge{From: "a", To: "mid", Type: "renders", Attrs: map[string]any{"weight": 2.0}})
	g.AddEdge(&graph.Edge{From: "mid", To: "b", Type: "renders"})

	result := runRule(t, CollapsePassthrough(), g)

	assert.False(t, result.Graph.HasNode("mid"))
	out := result.Graph.OutEdges("a")
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].To)
	assert.Equal(t, "renders", out[0].Type)
	// The bridge keeps the inbound edge's attributes.
	assert.Equal(t, 2.0, out[0].Attrs["weight"])
	assert.Empty(t, result.Graph.DanglingEdges())
}

func TestCollapsePassthroughSkipsRootsAndFanouts(t *testing.T) {
	g := graph.New()
	g.AddNode(&graph.Node{ID: "a", Type: "component", Root: true})
	g.AddNode(&graph.Node{ID: "rootMid", Type: "component", Root: true})
	g.AddNode(&graph.Node{ID: "fanout", Type: "component"})
	g.AddNode(&graph.Node{ID: "b", Type: "component", Root: true})
	g.AddNode(&graph.Node{ID: "c", Type: "component", Root: true})
	g.AddEdge(&graph.Edge{From: "a", To: "rootMid", Type: "renders"})
	g.AddEdge(&graph.Edge{From: "rootMid", To: "b", Type: "renders"})
	g.AddEdge(&graph.Edge{From: "a", To: "fanout", Type: "renders"})
	g.AddEdge(&graph.Edge{From: "fanout", To: "b", Type: "renders"})
	g.AddEdge(&graph.Edge{From: "fanout", To: "c", Type: "renders"})

	result := runRule(t, CollapsePassthrough(), g)

	assert.True(t, result.Graph.HasNode("rootMid"))
	assert.True(t, result.Graph.HasNode("fanout"))
}

func TestCollapsePassthroughSkipsSelfLoops(t *testing.T) {
	g := graph.New()
	g.AddNode(&graph.Node{ID: "loop", Type: "component"})
	g.AddEdge(&graph.Edge{From: "loop", To: "loop", Type: "renders"})

	result := runRule(t, CollapsePassthrough(), g)
	assert.True(t, result.Graph.HasNode("loop"))
}

func TestMergeParallelEdges(t *testing.T) {
	g := graph.New()
	g.AddNode(&graph.Node{ID: "a", Type: "component", Root: true})
	g.AddNode(&graph.Node{ID: "b", Type: "component", Root: true})
	g.AddEdge(&graph.Edge{ID: "e1", From: "a", To: "b", Type: "renders", Attrs: map[string]any{"weight": 1.5}})
	g.AddEdge(&graph.Edge{ID: "e2", From: "a", To: "b", Type: "renders", Attrs: map[string]any{"weight": 2.5}})
	g.AddEdge(&graph.Edge{ID: "e3", From: "a", To: "b", Type: "uses-token"})

	result := runRule(t, MergeParallelEdges(), g)

	out := result.Graph.OutEdges("a")
	require.Len(t, out, 2)

	kept := result.Graph.Edge("e1")
	require.NotNil(t, kept)
	assert.Equal(t, 4.0, kept.Attrs["weight"])
	assert.Nil(t, result.Graph.Edge("e2"))
	// Different type is not parallel.
	assert.NotNil(t, result.Graph.Edge("e3"))
}

func TestMergeParallelEdgesWithoutWeights(t *testing.T) {
	g := graph.New()
	g.AddNode(&graph.Node{ID: "a", Type: "component", Root: true})
	g.AddNode(&graph.Node{ID: "b", Type: "component", Root: true})
	g.AddEdge(&graph.Edge{ID: "e1", From: "a", To: "b", Type: "renders"})
	g.AddEdge(&graph.Edge{ID: "e2", From: "a", To: "b", Type: "renders"})

	result := runRule(t, MergeParallelEdges(), g)

	assert.NotNil(t, result.Graph.Edge("e1"))
	assert.Nil(t, result.Graph.Edge("e2"))
	assert.Len(t, result.Graph.OutEdges("a"), 1)
}
