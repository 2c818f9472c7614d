// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushWithinCapacity(t *testing.T) {
	r := NewRing[int](3)

	for i := 1; i <= 3; i++ {
		_, evicted := r.Push(i)
		assert.False(t, evicted)
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{1, 2, 3}, r.Slice())
}

func TestPushEvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	r.Push(2)
	r.Push(3)

	old, evicted := r.Push(4)
	require.True(t, evicted)
	assert.Equal(t, 1, old)
	assert.Equal(t, []int{2, 3, 4}, r.Slice())

	old, evicted = r.Push(5)
	require.True(t, evicted)
	assert.Equal(t, 2, old)
	assert.Equal(t, []int{3, 4, 5}, r.Slice())
}

func TestOldestNewest(t *testing.T) {
	r := NewRing[string](2)

	_, ok := r.Oldest()
	assert.False(t, ok)

	r.Push("a")
	r.Push("b")
	r.Push("c")

	oldest, ok := r.Oldest()
	require.True(t, ok)
	assert.Equal(t, "b", oldest)

	newest, ok := r.Newest()
	require.True(t, ok)
	assert.Equal(t, "c", newest)
}

func TestForEachEarlyStop(t *testing.T) {
	r := NewRing[int](4)
	for i := 1; i <= 4; i++ {
		r.Push(i)
	}

	var seen []int
	r.ForEach(func(v int) bool {
		seen = append(seen, v)
		return v < 2
	})
	assert.Equal(t, []int{1, 2}, seen)
}

func TestPopNewest(t *testing.T) {
	r := NewRing[int](3)

	_, ok := r.PopNewest()
	assert.False(t, ok)

	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Push(4) // evicts 1

	v, ok := r.PopNewest()
	require.True(t, ok)
	assert.Equal(t, 4, v)
	assert.Equal(t, []int{2, 3}, r.Slice())

	// Pushing again after a pop behaves normally.
	r.Push(5)
	assert.Equal(t, []int{2, 3, 5}, r.Slice())
}

func TestClear(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	r.Push(2)
	r.Clear()

	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Slice())

	// Reusable after clear.
	r.Push(9)
	assert.Equal(t, []int{9}, r.Slice())
}

func TestMinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	assert.Equal(t, 1, r.Cap())

	r.Push(1)
	old, evicted := r.Push(2)
	require.True(t, evicted)
	assert.Equal(t, 1, old)
}
