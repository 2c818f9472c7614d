// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stdrules

import (
	"reflect"

	"github.com/harmony-design/graphcore/graph"
	"github.com/harmony-design/graphcore/rewrite"
)

// MatchPattern builds a matcher from a pattern object. The keys "id",
// "type" and "isRoot" match node fields; every other key matches a node
// attribute by deep equality. All pattern entries must match.
func MatchPattern(pattern map[string]any) rewrite.Matcher {
	return func(n *graph.Node, rc *rewrite.Context) (bool, error) {
		for key, want := range pattern {
			var got any
			switch key {
			case "id":
				got = n.ID
			case "type":
				got = n.Type
			case "isRoot":
				got = n.Root
			default:
				if n.Attrs == nil {
					return false, nil
				}
				var ok bool
				got, ok = n.Attrs[key]
				if !ok {
					return false, nil
				}
			}
			if !reflect.DeepEqual(got, want) {
				return false, nil
			}
		}
		return true, nil
	}
}

// MatchQuery builds a matcher from a graph query predicate, for matches
// that need to inspect the node's surroundings.
func MatchQuery(query func(g *graph.Graph, n *graph.Node) bool) rewrite.Matcher {
	return func(n *graph.Node, rc *rewrite.Context) (bool, error) {
		return query(rc.Graph, n), nil
	}
}

// All composes matchers with AND semantics: short-circuiting, evaluated
// left to right. An error from any matcher stops evaluation.
func All(matchers ...rewrite.Matcher) rewrite.Matcher {
	return func(n *graph.Node, rc *rewrite.Context) (bool, error) {
		for _, m := range matchers {
			ok, err := m(n, rc)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

// Any composes matchers with OR semantics: short-circuiting, evaluated
// left to right. An error from any matcher stops evaluation.
func Any(matchers ...rewrite.Matcher) rewrite.Matcher {
	return func(n *graph.Node, rc *rewrite.Context) (bool, error) {
		for _, m := range matchers {
			ok, err := m(n, rc)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}
