// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmony-design/graphcore/events"
	"github.com/harmony-design/graphcore/graph"
	"github.com/harmony-design/graphcore/txlog"
)

// removeOrphansRule is a local copy of the standard orphan rule, kept
// here so engine tests do not depend on the stdrules package.
func removeOrphansRule() *Rule {
	return &Rule{
		ID:       "remove-orphans",
		Name:     "Remove orphan nodes",
		Priority: 10,
		Enabled:  true,
		Match: func(n *graph.Node, rc *Context) (bool, error) {
			return !n.Root && len(rc.Graph.IncidentEdges(n.ID)) == 0, nil
		},
		Transform: func(n *graph.Node, rc *Context) (*TransformResult, error) {
			return &TransformResult{Applied: true, RemoveNodes: []string{n.ID}}, nil
		},
	}
}

func orphanGraph() *graph.Graph {
	g := graph.New()
	g.AddNode(&graph.Node{ID: "A", Type: "component", Root: true})
	g.AddNode(&graph.Node{ID: "B", Type: "component"})
	g.AddNode(&graph.Node{ID: "C", Type: "component"})
	g.AddEdge(&graph.Edge{From: "A", To: "B", Type: "renders"})
	return g
}

func TestRewriteOrphanScenario(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(removeOrphansRule()))
	engine := New(reg)

	result, err := engine.Rewrite(context.Background(), orphanGraph(), Options{})
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 1, result.Session.Stats.NodesRemoved)
	assert.False(t, result.Graph.HasNode("C"))
	assert.True(t, result.Graph.HasNode("A"))
	assert.True(t, result.Graph.HasNode("B"))

	require.Len(t, result.Session.Transformations, 1)
	assert.Equal(t, "remove-orphans", result.Session.Transformations[0].RuleID)
	assert.Equal(t, "C", result.Session.Transformations[0].NodeID)
	assert.Equal(t, 1, result.Session.Transformations[0].Iteration)
}

func TestRewriteDoesNotMutateInput(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(removeOrphansRule()))
	engine := New(reg)

	g := orphanGraph()
	_, err := engine.Rewrite(context.Background(), g, Options{})
	require.NoError(t, err)

	assert.True(t, g.HasNode("C"))
	assert.Equal(t, 3, g.NodeCount())
}

func TestIdempotenceAtFixedPoint(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(removeOrphansRule()))
	engine := New(reg)
	ctx := context.Background()

	first, err := engine.Rewrite(ctx, orphanGraph(), Options{})
	require.NoError(t, err)
	require.True(t, first.Converged)

	second, err := engine.Rewrite(ctx, first.Graph, Options{})
	require.NoError(t, err)
	assert.True(t, second.Converged)
	assert.Equal(t, 1, second.Iterations)
	assert.Zero(t, second.Session.Stats.RulesApplied)
}

func TestDeterminism(t *testing.T) {
	build := func() (*Engine, *graph.Graph) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(removeOrphansRule()))
		require.NoError(t, reg.Register(&Rule{
			ID:       "tag-components",
			Name:     "Tag components",
			Priority: 20,
			Enabled:  true,
			Match: func(n *graph.Node, rc *Context) (bool, error) {
				return n.Type == "component" && n.Attrs["tagged"] != true, nil
			},
			Transform: func(n *graph.Node, rc *Context) (*TransformResult, error) {
				replacement := n.Clone()
				if replacement.Attrs == nil {
					replacement.Attrs = map[string]any{}
				}
				replacement.Attrs["tagged"] = true
				return &TransformResult{Applied: true, Replacement: replacement}, nil
			},
		}))

		g := graph.New()
		g.AddNode(&graph.Node{ID: "root", Type: "component", Root: true})
		g.AddNode(&graph.Node{ID: "x", Type: "component"})
		g.AddNode(&graph.Node{ID: "y", Type: "token"})
		g.AddNode(&graph.Node{ID: "z", Type: "component"})
		g.AddEdge(&graph.Edge{From: "root", To: "x", Type: "renders"})
		g.AddEdge(&graph.Edge{From: "x", To: "y", Type: "uses-token"})
		return New(reg), g
	}

	run := func() ([]byte, []string, int) {
		engine, g := build()
		result, err := engine.Rewrite(context.Background(), g, Options{})
		require.NoError(t, err)

		data, err := json.Marshal(result.Graph)
		require.NoError(t, err)

		var applied []string
		for _, tf := range result.Session.Transformations {
			applied = append(applied, tf.RuleID+":"+tf.NodeID)
		}
		return data, applied, result.Iterations
	}

	g1, a1, i1 := run()
	g2, a2, i2 := run()
	assert.Equal(t, string(g1), string(g2))
	assert.Equal(t, a1, a2)
	assert.Equal(t, i1, i2)
}

func TestFirstMatchWins(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Rule{
		ID:       "high",
		Priority: 100,
		Enabled:  true,
		Match: func(n *graph.Node, rc *Context) (bool, error) {
			return n.Attrs["touched"] != true, nil
		},
		Transform: func(n *graph.Node, rc *Context) (*TransformResult, error) {
			replacement := n.Clone()
			if replacement.Attrs == nil {
				replacement.Attrs = map[string]any{}
			}
			replacement.Attrs["touched"] = true
			return &TransformResult{Applied: true, Replacement: replacement}, nil
		},
	}))
	require.NoError(t, reg.Register(&Rule{
		ID:       "low",
		Priority: 1,
		Enabled:  true,
		Match: func(n *graph.Node, rc *Context) (bool, error) {
			return true, nil
		},
		Transform: func(n *graph.Node, rc *Context) (*TransformResult, error) {
			return &TransformResult{Applied: true, RemoveNodes: []string{n.ID}}, nil
		},
	}))

	g := graph.New()
	g.AddNode(&graph.Node{ID: "n", Type: "component"})

	engine := New(reg)
	result, err := engine.Rewrite(context.Background(), g, Options{})
	require.NoError(t, err)

	// Iteration 1 must be claimed entirely by the high-priority rule;
	// the low-priority delete only runs once "high" stops matching.
	require.GreaterOrEqual(t, len(result.Session.Transformations), 2)
	first := result.Session.Transformations[0]
	assert.Equal(t, "high", first.RuleID)
	assert.Equal(t, 1, first.Iteration)

	second := result.Session.Transformations[1]
	assert.Equal(t, "low", second.RuleID)
	assert.Equal(t, 2, second.Iteration)

	assert.False(t, result.Graph.HasNode("n"))
}

func TestMaxApplicationsIsGlobalPerRule(t *testing.T) {
	reg := NewRegistry()
	rule := removeOrphansRule()
	rule.Constraints = &Constraints{MaxApplications: 2}
	require.NoError(t, reg.Register(rule))

	g := graph.New()
	g.AddNode(&graph.Node{ID: "a", Type: "component"})
	g.AddNode(&graph.Node{ID: "b", Type: "component"})
	g.AddNode(&graph.Node{ID: "c", Type: "component"})

	engine := New(reg)
	result, err := engine.Rewrite(context.Background(), g, Options{})
	require.NoError(t, err)

	// The cap counts applications across the whole session, not per
	// node: two orphans removed, the third survives.
	assert.Equal(t, 2, result.Session.Stats.NodesRemoved)
	assert.Equal(t, 1, result.Graph.NodeCount())
	assert.True(t, result.Converged)
}

func TestNodeTypeConstraint(t *testing.T) {
	reg := NewRegistry()
	rule := removeOrphansRule()
	rule.Constraints = &Constraints{NodeTypes: []string{"token"}}
	require.NoError(t, reg.Register(rule))

	g := graph.New()
	g.AddNode(&graph.Node{ID: "a", Type: "component"})
	g.AddNode(&graph.Node{ID: "b", Type: "token"})

	engine := New(reg)
	result, err := engine.Rewrite(context.Background(), g, Options{})
	require.NoError(t, err)

	assert.True(t, result.Graph.HasNode("a"))
	assert.False(t, result.Graph.HasNode("b"))
}

func TestRuleErrorsAreAbsorbed(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Rule{
		ID:       "panics",
		Priority: 100,
		Enabled:  true,
		Match: func(n *graph.Node, rc *Context) (bool, error) {
			panic("matcher bug")
		},
		Transform: func(n *graph.Node, rc *Context) (*TransformResult, error) {
			return &TransformResult{}, nil
		},
	}))
	require.NoError(t, reg.Register(removeOrphansRule()))

	engine := New(reg)
	result, err := engine.Rewrite(context.Background(), orphanGraph(), Options{})
	require.NoError(t, err)

	// The panicking rule is treated as no-match; the orphan rule still
	// converges the graph.
	assert.True(t, result.Converged)
	assert.False(t, result.Graph.HasNode("C"))
}

func TestIncludeExcludeFilters(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(removeOrphansRule()))
	engine := New(reg)
	ctx := context.Background()

	excluded, err := engine.Rewrite(ctx, orphanGraph(), Options{Exclude: []string{"remove-orphans"}})
	require.NoError(t, err)
	assert.True(t, excluded.Graph.HasNode("C"))
	assert.Equal(t, 1, excluded.Iterations)

	notIncluded, err := engine.Rewrite(ctx, orphanGraph(), Options{Include: []string{"other"}})
	require.NoError(t, err)
	assert.True(t, notIncluded.Graph.HasNode("C"))

	included, err := engine.Rewrite(ctx, orphanGraph(), Options{Include: []string{"remove-orphans"}})
	require.NoError(t, err)
	assert.False(t, included.Graph.HasNode("C"))
}

func TestDisabledRulesAreSkipped(t *testing.T) {
	reg := NewRegistry()
	rule := removeOrphansRule()
	rule.Enabled = false
	require.NoError(t, reg.Register(rule))

	engine := New(reg)
	result, err := engine.Rewrite(context.Background(), orphanGraph(), Options{})
	require.NoError(t, err)
	assert.True(t, result.Graph.HasNode("C"))
}

func TestIterationCapReported(t *testing.T) {
	reg := NewRegistry()
	flip := 0
	require.NoError(t, reg.Register(&Rule{
		ID:       "never-settles",
		Priority: 1,
		Enabled:  true,
		Match: func(n *graph.Node, rc *Context) (bool, error) {
			return true, nil
		},
		Transform: func(n *graph.Node, rc *Context) (*TransformResult, error) {
			flip++
			replacement := n.Clone()
			replacement.Attrs = map[string]any{"flip": flip}
			return &TransformResult{Applied: true, Replacement: replacement}, nil
		},
	}))

	g := graph.New()
	g.AddNode(&graph.Node{ID: "n", Type: "component"})

	engine := New(reg)
	result, err := engine.Rewrite(context.Background(), g, Options{MaxIterations: 3})
	require.NoError(t, err)

	assert.False(t, result.Converged)
	assert.Equal(t, 3, result.Iterations)
}

func TestInsertWinsOverSameIterationDelete(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Rule{
		ID:       "deleter",
		Priority: 20,
		Enabled:  true,
		Match: func(n *graph.Node, rc *Context) (bool, error) {
			bNode := rc.Graph.Node("b")
			return n.ID == "a" && bNode != nil && bNode.Attrs["v"] == 1, nil
		},
		Transform: func(n *graph.Node, rc *Context) (*TransformResult, error) {
			return &TransformResult{Applied: true, RemoveNodes: []string{"b"}}, nil
		},
	}))
	require.NoError(t, reg.Register(&Rule{
		ID:       "inserter",
		Priority: 10,
		Enabled:  true,
		Match: func(n *graph.Node, rc *Context) (bool, error) {
			bNode := rc.Graph.Node("b")
			return n.ID == "c" && bNode != nil && bNode.Attrs["v"] != 2, nil
		},
		Transform: func(n *graph.Node, rc *Context) (*TransformResult, error) {
			return &TransformResult{
				Applied:  true,
				AddNodes: []*graph.Node{{ID: "b", Type: "component", Attrs: map[string]any{"v": 2}}},
			}, nil
		},
	}))

	g := graph.New()
	g.AddNode(&graph.Node{ID: "a", Type: "component", Root: true})
	g.AddNode(&graph.Node{ID: "b", Type: "component", Attrs: map[string]any{"v": 1}})
	g.AddNode(&graph.Node{ID: "c", Type: "component", Root: true})

	engine := New(reg)
	result, err := engine.Rewrite(context.Background(), g, Options{})
	require.NoError(t, err)

	// Delete and insert of "b" in the same pass: the insert wins.
	bNode := result.Graph.Node("b")
	require.NotNil(t, bNode)
	assert.Equal(t, 2, bNode.Attrs["v"])
}

func TestStaleEdgesToDeletedNodesAreDropped(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Rule{
		ID:       "deleter",
		Priority: 20,
		Enabled:  true,
		Match: func(n *graph.Node, rc *Context) (bool, error) {
			return n.ID == "a" && rc.Graph.HasNode("b"), nil
		},
		Transform: func(n *graph.Node, rc *Context) (*TransformResult, error) {
			return &TransformResult{Applied: true, RemoveNodes: []string{"b"}}, nil
		},
	}))
	require.NoError(t, reg.Register(&Rule{
		ID:       "linker",
		Priority: 10,
		Enabled:  true,
		Match: func(n *graph.Node, rc *Context) (bool, error) {
			return n.ID == "c" && rc.Graph.HasNode("b") && len(rc.Graph.OutEdges("c")) == 0, nil
		},
		Transform: func(n *graph.Node, rc *Context) (*TransformResult, error) {
			return &TransformResult{
				Applied:  true,
				AddEdges: []*graph.Edge{{From: "c", To: "b", Type: "renders"}},
			}, nil
		},
	}))

	g := graph.New()
	g.AddNode(&graph.Node{ID: "a", Type: "component", Root: true})
	g.AddNode(&graph.Node{ID: "b", Type: "component", Root: true})
	g.AddNode(&graph.Node{ID: "c", Type: "component", Root: true})

	engine := New(reg)
	result, err := engine.Rewrite(context.Background(), g, Options{})
	require.NoError(t, err)

	// "b" was deleted in the pass that also created c->b: deletion takes
	// precedence and the stale edge is dropped.
	assert.False(t, result.Graph.HasNode("b"))
	assert.Empty(t, result.Graph.OutEdges("c"))
	assert.Empty(t, result.Graph.DanglingEdges())
}

func TestReplacementWithNewID(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Rule{
		ID:       "renamer",
		Priority: 1,
		Enabled:  true,
		Match: func(n *graph.Node, rc *Context) (bool, error) {
			return n.ID == "old", nil
		},
		Transform: func(n *graph.Node, rc *Context) (*TransformResult, error) {
			return &TransformResult{
				Applied:     true,
				Replacement: &graph.Node{ID: "new", Type: n.Type, Root: true},
			}, nil
		},
	}))

	g := graph.New()
	g.AddNode(&graph.Node{ID: "old", Type: "component", Root: true})

	engine := New(reg)
	result, err := engine.Rewrite(context.Background(), g, Options{})
	require.NoError(t, err)

	assert.False(t, result.Graph.HasNode("old"))
	assert.True(t, result.Graph.HasNode("new"))
	assert.Equal(t, 1, result.Session.Stats.NodesReplaced)
}

func TestEngineEventsAndAuditLog(t *testing.T) {
	emitter := events.NewEmitter()

	logCfg := txlog.DefaultConfig()
	logCfg.InMemory = true
	auditLog, err := txlog.New(logCfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, auditLog.Initialize(ctx))
	defer auditLog.Close()

	reg := NewRegistry()
	require.NoError(t, reg.Register(removeOrphansRule()))
	engine := New(reg, WithEmitter(emitter), WithAuditLog(auditLog))

	result, err := engine.Rewrite(ctx, orphanGraph(), Options{})
	require.NoError(t, err)
	require.True(t, result.Converged)

	applied := emitter.BufferByType(events.TypeRuleApplied)
	require.Len(t, applied, 1)
	data := applied[0].Data.(events.RuleAppliedData)
	assert.Equal(t, "remove-orphans", data.RuleID)
	assert.Equal(t, "C", data.NodeID)

	completed := emitter.BufferByType(events.TypeSessionCompleted)
	require.Len(t, completed, 1)

	entries, err := auditLog.Query(ctx, txlog.QueryOptions{Type: AuditEntryType})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "C", entries[0].EntityID)

	var tf Transformation
	require.NoError(t, json.Unmarshal(entries[0].Payload, &tf))
	assert.Equal(t, "remove-orphans", tf.RuleID)
	assert.Equal(t, result.Session.ID, entries[0].Metadata["session_id"])
}

func TestSessionRetention(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(removeOrphansRule()))

	retaining := New(reg, WithSessionRetention(true))
	result, err := retaining.Rewrite(context.Background(), orphanGraph(), Options{})
	require.NoError(t, err)
	assert.Equal(t, result.Session, retaining.Session(result.Session.ID))

	forgetting := New(reg)
	result, err = forgetting.Rewrite(context.Background(), orphanGraph(), Options{})
	require.NoError(t, err)
	assert.Nil(t, forgetting.Session(result.Session.ID))
}

func TestHistoryTrackingOff(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(removeOrphansRule()))
	engine := New(reg, WithHistoryTracking(false))

	result, err := engine.Rewrite(context.Background(), orphanGraph(), Options{})
	require.NoError(t, err)

	assert.Empty(t, result.Session.Transformations)
	assert.Equal(t, 1, result.Session.Stats.RulesApplied)
}
