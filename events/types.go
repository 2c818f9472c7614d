// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package events provides the in-process notification bus the rewrite
// engine and transaction log publish to.
//
// Delivery is fire-and-forget from the producer's perspective: handlers
// run synchronously but panics are recovered and logged, so a failing
// subscriber can never abort a rewrite session or an append.
package events

import "time"

// Type identifies a kind of event.
type Type string

const (
	// TypeRuleApplied fires once per committed rule transformation.
	TypeRuleApplied Type = "rewrite.rule_applied"

	// TypeSessionCompleted fires when a rewrite session finishes.
	TypeSessionCompleted Type = "rewrite.session_completed"

	// TypeEntryAppended fires after a transaction log entry is durably
	// committed.
	TypeEntryAppended Type = "txlog.entry_appended"

	// TypeWindowEvicted fires when an entry leaves the log's in-memory
	// window (the durable copy is unaffected).
	TypeWindowEvicted Type = "txlog.window_evicted"
)

// Event is a single notification.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type is the event kind.
	Type Type `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Data is the event-specific payload (one of the *Data structs below).
	Data any `json:"data,omitempty"`
}

// RuleAppliedData is the payload for TypeRuleApplied.
type RuleAppliedData struct {
	SessionID string `json:"session_id"`
	RuleID    string `json:"rule_id"`
	NodeID    string `json:"node_id"`
	Iteration int    `json:"iteration"`
	Reason    string `json:"reason,omitempty"`
}

// SessionCompletedData is the payload for TypeSessionCompleted.
type SessionCompletedData struct {
	SessionID  string `json:"session_id"`
	Iterations int    `json:"iterations"`
	Converged  bool   `json:"converged"`
	Applied    int    `json:"applied"`
}

// EntryAppendedData is the payload for TypeEntryAppended.
type EntryAppendedData struct {
	EntryID   uint64 `json:"entry_id"`
	EntryType string `json:"entry_type"`
	EntityID  string `json:"entity_id,omitempty"`
}

// WindowEvictedData is the payload for TypeWindowEvicted.
type WindowEvictedData struct {
	EntryID uint64 `json:"entry_id"`
}
