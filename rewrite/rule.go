// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rewrite drives a design graph toward a fixed point under a
// prioritized, constrained rule set.
//
// A rewrite session clones the input graph and repeatedly scans it: for
// each node (in graph order), rules are tried in priority order and the
// first rule whose transformer reports an applied change wins that node
// for the iteration. All changes accepted in an iteration are applied
// atomically to produce the next snapshot. The session converges when an
// iteration accepts zero changes, or stops unconverged at the iteration
// cap.
package rewrite

import (
	"fmt"
	"slices"

	"github.com/harmony-design/graphcore/graph"
)

// Matcher decides whether a rule applies to a node in the current
// context. An error is treated as "no match" for that node and logged;
// it never aborts the session.
type Matcher func(n *graph.Node, rc *Context) (bool, error)

// Transformer produces the change a rule makes for a matched node. A
// result with Applied=false means the rule matched but declined to
// transform (useful for diagnostic dry runs). An error is treated as
// "not applied" and logged.
type Transformer func(n *graph.Node, rc *Context) (*TransformResult, error)

// TransformResult describes the change a transformer wants committed.
//
// Within one iteration, a deletion and an insertion targeting the same
// id resolve insertion-after-deletion: the insert wins. Edges added in
// the same pass that reference a node deleted in that pass are dropped.
type TransformResult struct {
	// Applied marks the result as an accepted change. False means the
	// rule matched but made no change.
	Applied bool

	// Replacement, when set, replaces the matched node. A replacement
	// with a different id removes the matched node and inserts the
	// replacement.
	Replacement *graph.Node

	// AddNodes are new nodes to insert.
	AddNodes []*graph.Node

	// RemoveNodes are ids of nodes to delete.
	RemoveNodes []string

	// AddEdges are new edges to insert (ids derived when empty).
	AddEdges []*graph.Edge

	// RemoveEdges are ids of edges to delete.
	RemoveEdges []string

	// Reason is a human-readable explanation kept in the session history
	// and audit trail.
	Reason string
}

// Constraints are rule-scoped preconditions checked after a successful
// match and before the transformer runs. A constraint miss skips the
// rule for that node silently; it is not an error.
type Constraints struct {
	// MaxApplications caps how many times the rule may be applied across
	// the whole session (0 = unlimited). The count is global per rule,
	// not per node.
	MaxApplications int

	// NodeTypes restricts the rule to nodes whose type is in the list
	// (empty = any type).
	NodeTypes []string

	// Predicate is an arbitrary extra precondition.
	Predicate func(n *graph.Node, rc *Context) bool
}

// permits reports whether the constraints allow applying the rule to the
// node in the current context.
func (c *Constraints) permits(ruleID string, n *graph.Node, rc *Context) bool {
	if c == nil {
		return true
	}
	if len(c.NodeTypes) > 0 && !slices.Contains(c.NodeTypes, n.Type) {
		return false
	}
	if c.MaxApplications > 0 && rc.Applications(ruleID) >= c.MaxApplications {
		return false
	}
	if c.Predicate != nil && !c.Predicate(n, rc) {
		return false
	}
	return true
}

// Rule is a single rewrite rule. Rules are registered into a Registry
// keyed by ID; higher Priority runs earlier within an iteration.
type Rule struct {
	// ID uniquely identifies the rule within a registry.
	ID string

	// Name is the display name used in logs and session history.
	Name string

	// Priority orders rules within an iteration, descending. Ties are
	// broken by registration order.
	Priority int

	// Match decides applicability. Required.
	Match Matcher

	// Transform produces the change. Required.
	Transform Transformer

	// Constraints are optional preconditions beyond matching.
	Constraints *Constraints

	// Enabled rules participate in sessions; disabled rules stay
	// registered but are skipped.
	Enabled bool
}

// Validate checks that the rule is well-formed.
func (r *Rule) Validate() error {
	if r == nil {
		return &ValidationError{Field: "rule", Reason: "must not be nil"}
	}
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if r.Match == nil {
		return &ValidationError{Field: "match", Reason: "matcher is required"}
	}
	if r.Transform == nil {
		return &ValidationError{Field: "transform", Reason: "transformer is required"}
	}
	return nil
}

// ValidationError reports a malformed rule. It is returned synchronously
// by Register; a malformed rule is never partially registered.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule: %s %s", e.Field, e.Reason)
}
