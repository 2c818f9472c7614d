// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stdrules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmony-design/graphcore/graph"
	"github.com/harmony-design/graphcore/rewrite"
)

func matchContext() (*rewrite.Context, *graph.Node) {
	g := graph.New()
	n := &graph.Node{
		ID:    "btn",
		Type:  "component",
		Attrs: map[string]any{"variant": "primary", "deprecated": false},
	}
	g.AddNode(n)
	g.AddNode(&graph.Node{ID: "tok", Type: "token"})
	g.AddEdge(&graph.Edge{From: "btn", To: "tok", Type: "uses-token"})
	return &rewrite.Context{Graph: g}, n
}

func TestMatchPattern(t *testing.T) {
	rc, n := matchContext()

	tests := []struct {
		name    string
		pattern map[string]any
		want    bool
	}{
		{"type field", map[string]any{"type": "component"}, true},
		{"id field", map[string]any{"id": "btn"}, true},
		{"isRoot field", map[string]any{"isRoot": false}, true},
		{"attribute", map[string]any{"variant": "primary"}, true},
		{"field and attribute", map[string]any{"type": "component", "variant": "primary"}, true},
		{"wrong type", map[string]any{"type": "token"}, false},
		{"wrong attribute", map[string]any{"variant": "secondary"}, false},
		{"missing attribute", map[string]any{"size": "lg"}, false},
		{"empty pattern", map[string]any{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchPattern(tt.pattern)(n, rc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchQuery(t *testing.T) {
	rc, n := matchContext()

	hasTokenEdge := MatchQuery(func(g *graph.Graph, n *graph.Node) bool {
		for _, e := range g.OutEdges(n.ID) {
			if e.Type == "uses-token" {
				return true
			}
		}
		return false
	})

	got, err := hasTokenEdge(n, rc)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = hasTokenEdge(rc.Graph.Node("tok"), rc)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestAllShortCircuits(t *testing.T) {
	rc, n := matchContext()

	calls := 0
	counting := func(result bool) rewrite.Matcher {
		return func(n *graph.Node, rc *rewrite.Context) (bool, error) {
			calls++
			return result, nil
		}
	}

	got, err := All(counting(true), counting(false), counting(true))(n, rc)
	require.NoError(t, err)
	assert.False(t, got)
	assert.Equal(t, 2, calls)

	calls = 0
	got, err = All(counting(true), counting(true))(n, rc)
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, 2, calls)
}

func TestAnyShortCircuits(t *testing.T) {
	rc, n := matchContext()

	calls := 0
	counting := func(result bool) rewrite.Matcher {
		return func(n *graph.Node, rc *rewrite.Context) (bool, error) {
			calls++
			return result, nil
		}
	}

	got, err := Any(counting(false), counting(true), counting(false))(n, rc)
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, 2, calls)

	calls = 0
	got, err = Any(counting(false), counting(false))(n, rc)
	require.NoError(t, err)
	assert.False(t, got)
	assert.Equal(t, 2, calls)
}

func TestCombinatorsPropagateErrors(t *testing.T) {
	rc, n := matchContext()
	boom := errors.New("boom")
	failing := func(n *graph.Node, rc *rewrite.Context) (bool, error) {
		return false, boom
	}
	passing := MatchPattern(map[string]any{})

	_, err := All(passing, failing)(n, rc)
	assert.ErrorIs(t, err, boom)

	_, err = Any(failing, passing)(n, rc)
	assert.ErrorIs(t, err, boom)
}
