// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package txlog implements the append-only transaction log: a durable,
// queryable, strictly ordered record of graph mutations.
//
// Entries are immutable once appended. Ids start at 1 and increase by
// exactly one per committed append; a failed append rolls back fully, so
// the sequence has no gaps and Count() always equals LatestID(). A
// bounded window of recent entries is kept in memory with entity/type
// indexes; everything older is served from the durable BadgerDB tier.
package txlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry is one committed transaction log record.
type Entry struct {
	// ID is the monotonically increasing sequence number, starting at 1.
	// Never reused.
	ID uint64 `json:"id"`

	// Timestamp is the wall-clock time assigned at append.
	Timestamp time.Time `json:"timestamp"`

	// Type is a free-form type tag (e.g. "graph.rewrite", "node.update").
	Type string `json:"type"`

	// EntityID optionally names the entity this entry concerns, for
	// entity-scoped queries.
	EntityID string `json:"entityId,omitempty"`

	// Payload is the opaque mutation record, stored as JSON.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata is an opaque caller-supplied map.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Record is the caller-facing input to Append. The payload is marshalled
// to JSON and stored opaquely; the log never inspects it.
type Record struct {
	Type     string
	EntityID string
	Payload  any
	Metadata map[string]string
}

// Sentinel errors.
var (
	// ErrNotFound is returned when an entry id does not exist.
	ErrNotFound = errors.New("txlog: entry not found")

	// ErrNotInitialized is returned when an operation requires a prior
	// successful Initialize.
	ErrNotInitialized = errors.New("txlog: log not initialized")

	// ErrClosed is returned when operations are called on a closed log.
	ErrClosed = errors.New("txlog: log is closed")

	// ErrCorruptedEntry is returned when a stored entry fails its CRC
	// integrity check.
	ErrCorruptedEntry = errors.New("txlog: entry corrupted (CRC mismatch)")
)

// ValidationError reports a malformed record, rejected synchronously
// before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("txlog: invalid %s: %s", e.Field, e.Reason)
}

// InitializationError reports that the durable backing store could not
// be opened or read. Fatal for any operation requiring durability.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("txlog: initialization failed: %v", e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// PersistenceError reports that a durable write failed. The triggering
// append is rolled back in full; the entry was never committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("txlog: persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
