// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"time"

	"github.com/harmony-design/graphcore/graph"
)

// Context is the read view matchers and transformers receive.
//
// Graph is the snapshot the current iteration is scanning; rules must
// not mutate it (all change goes through TransformResult). Metadata is
// the caller-supplied map, treated as read-only by convention.
type Context struct {
	// Graph is the current iteration's snapshot.
	Graph *graph.Graph

	// Metadata is the caller-supplied session metadata.
	Metadata map[string]any

	// Iteration is the 1-based index of the current iteration.
	Iteration int

	// Applied lists the ids of rules applied so far in the session, in
	// application order. Used for max-application constraint checks.
	Applied []string
}

// Applications returns how many times the given rule has been applied
// in this session.
func (rc *Context) Applications(ruleID string) int {
	count := 0
	for _, id := range rc.Applied {
		if id == ruleID {
			count++
		}
	}
	return count
}

// Transformation is one committed rule application.
type Transformation struct {
	// RuleID identifies the applied rule.
	RuleID string `json:"rule_id"`

	// RuleName is the rule's display name.
	RuleName string `json:"rule_name"`

	// NodeID is the node the rule matched.
	NodeID string `json:"node_id"`

	// Iteration is the 1-based iteration the change was accepted in.
	Iteration int `json:"iteration"`

	// Reason is the transformer's explanation, if any.
	Reason string `json:"reason,omitempty"`

	// Timestamp is when the change was accepted.
	Timestamp time.Time `json:"timestamp"`
}

// Stats aggregates what a session changed.
type Stats struct {
	NodesAdded    int `json:"nodes_added"`
	NodesRemoved  int `json:"nodes_removed"`
	NodesReplaced int `json:"nodes_replaced"`
	EdgesAdded    int `json:"edges_added"`
	EdgesRemoved  int `json:"edges_removed"`
	RulesApplied  int `json:"rules_applied"`
}

// Session is the immutable report of one Rewrite call.
//
// Iterations counts every executed iteration, including the final empty
// one that establishes convergence.
type Session struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	// StartedAt and EndedAt bound the session wall-clock time.
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// Iterations is the number of iterations executed.
	Iterations int `json:"iterations"`

	// Converged reports whether a fixed point was reached before the
	// iteration cap.
	Converged bool `json:"converged"`

	// Transformations is the full applied-change history, populated only
	// when history tracking is enabled.
	Transformations []Transformation `json:"transformations,omitempty"`

	// Stats aggregates the session's changes.
	Stats Stats `json:"stats"`
}
