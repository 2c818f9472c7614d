// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history provides a bounded in-memory window primitive.
package history

// Ring is a fixed-capacity circular buffer.
//
// # Description
//
// Provides O(1) push with bounded memory. When full, pushing a new item
// evicts the oldest one and reports it to the caller, so owners of
// derived indexes can unindex evicted items incrementally instead of
// rebuilding from scratch.
//
// # Thread Safety
//
// NOT safe for concurrent use; the owner must synchronize.
type Ring[T any] struct {
	data  []T
	head  int // next write position
	tail  int // oldest element position
	count int
	cap   int
}

// NewRing creates a ring with the given capacity (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		data: make([]T, capacity),
		cap:  capacity,
	}
}

// Push appends an item, evicting the oldest when at capacity.
//
// # Outputs
//
//   - T: The evicted item (zero value when nothing was evicted).
//   - bool: True if an item was evicted.
func (r *Ring[T]) Push(item T) (T, bool) {
	var evicted T
	var wasFull bool
	if r.count == r.cap {
		evicted = r.data[r.tail]
		r.tail = (r.tail + 1) % r.cap
		r.count--
		wasFull = true
	}
	r.data[r.head] = item
	r.head = (r.head + 1) % r.cap
	r.count++
	return evicted, wasFull
}

// PopNewest removes and returns the most recently pushed item. Used to
// roll back a push whose downstream effect failed; note that an item
// evicted by that push is not restored.
func (r *Ring[T]) PopNewest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	r.head--
	if r.head < 0 {
		r.head = r.cap - 1
	}
	item := r.data[r.head]
	r.data[r.head] = zero
	r.count--
	return item, true
}

// Oldest returns the oldest item without removing it.
func (r *Ring[T]) Oldest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.data[r.tail], true
}

// Newest returns the most recently pushed item without removing it.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	idx := r.head - 1
	if idx < 0 {
		idx = r.cap - 1
	}
	return r.data[idx], true
}

// Slice returns all items from oldest to newest as a fresh slice.
func (r *Ring[T]) Slice() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	if r.tail+r.count <= r.cap {
		copy(out, r.data[r.tail:r.tail+r.count])
	} else {
		n := copy(out, r.data[r.tail:])
		copy(out[n:], r.data[:r.head])
	}
	return out
}

// ForEach calls fn for each item from oldest to newest; returning false
// stops iteration early.
func (r *Ring[T]) ForEach(fn func(item T) bool) {
	for i := 0; i < r.count; i++ {
		if !fn(r.data[(r.tail+i)%r.cap]) {
			return
		}
	}
}

// Len returns the current number of items.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the maximum capacity.
func (r *Ring[T]) Cap() int { return r.cap }

// Clear removes all items and releases references.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.head = 0
	r.tail = 0
	r.count = 0
}
