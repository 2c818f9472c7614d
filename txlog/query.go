// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package txlog

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// QueryOptions filters a log query. Zero values mean "unbounded".
type QueryOptions struct {
	// FromID is the inclusive lower id bound (0 or 1 = from the start).
	FromID uint64

	// ToID is the inclusive upper id bound (0 = up to the latest).
	ToID uint64

	// Since is the inclusive lower timestamp bound.
	Since time.Time

	// Until is the inclusive upper timestamp bound.
	Until time.Time

	// Type filters by entry type tag.
	Type string

	// EntityID filters by entity id.
	EntityID string

	// Limit caps the number of results (0 = no limit). Applied after
	// ordering, so Reverse+Limit returns the newest matches.
	Limit int

	// Reverse returns results newest-first.
	Reverse bool
}

// matches reports whether an entry passes every filter in opts.
func (opts *QueryOptions) matches(entry *Entry) bool {
	if opts.Type != "" && entry.Type != opts.Type {
		return false
	}
	if opts.EntityID != "" && entry.EntityID != opts.EntityID {
		return false
	}
	if !opts.Since.IsZero() && entry.Timestamp.Before(opts.Since) {
		return false
	}
	if !opts.Until.IsZero() && entry.Timestamp.After(opts.Until) {
		return false
	}
	return true
}

// Query returns the filtered, ordered, optionally limited entries.
//
// # Description
//
// If the requested id range lies entirely inside the in-memory window,
// the query is served from memory using the entity/type indexes where
// applicable. Otherwise it falls back to an ascending durable-store
// range scan with the same filters. Results are identical either way;
// only latency differs.
func (l *Log) Query(ctx context.Context, opts QueryOptions) ([]*Entry, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if !l.initialized {
		return nil, ErrNotInitialized
	}

	ctx, span := otel.Tracer("txlog").Start(ctx, "txlog.Query",
		trace.WithAttributes(
			attribute.Int64("from_id", int64(opts.FromID)),
			attribute.Int64("to_id", int64(opts.ToID)),
		))
	defer span.End()

	fromID := opts.FromID
	if fromID < 1 {
		fromID = 1
	}
	toID := opts.ToID
	if toID == 0 || toID > l.latestID {
		toID = l.latestID
	}
	if l.latestID == 0 || toID < fromID {
		return nil, nil
	}

	var (
		out  []*Entry
		err  error
		path string
	)
	if min := l.windowMinID(); min > 0 && fromID >= min {
		path = "memory"
		out = l.queryWindow(fromID, toID, &opts)
	} else {
		path = "store"
		out, err = l.queryStore(ctx, fromID, toID, &opts)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	if opts.Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	span.SetAttributes(
		attribute.String("path", path),
		attribute.Int("results", len(out)),
	)
	if l.metrics != nil {
		l.metrics.LogQueriesTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("path", path)))
	}

	return out, nil
}

// queryWindow serves a query from the in-memory window. Caller must
// hold mu and have verified the range is window-resident.
func (l *Log) queryWindow(fromID, toID uint64, opts *QueryOptions) []*Entry {
	// Entity/type indexes hold ascending id lists for window-resident
	// entries; use the most selective one available.
	var candidates []uint64
	switch {
	case opts.EntityID != "":
		candidates = l.byEntity[opts.EntityID]
	case opts.Type != "":
		candidates = l.byType[opts.Type]
	}

	var out []*Entry
	if candidates != nil {
		for _, id := range candidates {
			if id < fromID {
				continue
			}
			if id > toID {
				break
			}
			entry := l.byID[id]
			if entry != nil && opts.matches(entry) {
				out = append(out, entry)
			}
		}
		return out
	}

	l.window.ForEach(func(entry *Entry) bool {
		if entry.ID < fromID {
			return true
		}
		if entry.ID > toID {
			return false
		}
		if opts.matches(entry) {
			out = append(out, entry)
		}
		return true
	})
	return out
}

// queryStore serves a query from the durable tier.
func (l *Log) queryStore(ctx context.Context, fromID, toID uint64, opts *QueryOptions) ([]*Entry, error) {
	var out []*Entry
	err := l.store.Scan(ctx, fromID, func(entry *Entry) (bool, error) {
		if entry.ID > toID {
			return false, nil
		}
		if opts.matches(entry) {
			out = append(out, entry)
			// Ascending queries can stop at the limit; reverse queries
			// need the full range so the newest entries win.
			if !opts.Reverse && opts.Limit > 0 && len(out) == opts.Limit {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
