// Copyright (C) 2025 Harmony Design Systems (engineering@harmony.design)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesMatchingTypes(t *testing.T) {
	e := NewEmitter()

	var got []Type
	e.Subscribe(func(ev *Event) {
		got = append(got, ev.Type)
	}, TypeRuleApplied)

	e.Emit(TypeRuleApplied, RuleAppliedData{RuleID: "r1"})
	e.Emit(TypeEntryAppended, EntryAppendedData{EntryID: 1})
	e.Emit(TypeRuleApplied, RuleAppliedData{RuleID: "r2"})

	assert.Equal(t, []Type{TypeRuleApplied, TypeRuleApplied}, got)
}

func TestSubscribeAllTypes(t *testing.T) {
	e := NewEmitter()

	count := 0
	e.Subscribe(func(ev *Event) { count++ })

	e.Emit(TypeRuleApplied, nil)
	e.Emit(TypeWindowEvicted, nil)
	assert.Equal(t, 2, count)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	e := NewEmitter()

	count := 0
	id := e.Subscribe(func(ev *Event) { count++ })

	e.Emit(TypeRuleApplied, nil)
	require.True(t, e.Unsubscribe(id))
	e.Emit(TypeRuleApplied, nil)

	assert.Equal(t, 1, count)
	assert.False(t, e.Unsubscribe(id))
	assert.Equal(t, 0, e.SubscriptionCount())
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	e := NewEmitter()

	e.Subscribe(func(ev *Event) { panic("handler bug") })

	delivered := false
	e.Subscribe(func(ev *Event) { delivered = true })

	// Must not panic, and the second handler must still run.
	require.NotPanics(t, func() {
		e.Emit(TypeEntryAppended, nil)
	})
	assert.True(t, delivered)
}

func TestFilterSubscription(t *testing.T) {
	e := NewEmitter()

	var got []uint64
	e.SubscribeWithFilter(func(ev *Event) {
		got = append(got, ev.Data.(EntryAppendedData).EntryID)
	}, func(ev *Event) bool {
		d, ok := ev.Data.(EntryAppendedData)
		return ok && d.EntryID%2 == 0
	}, TypeEntryAppended)

	for i := uint64(1); i <= 4; i++ {
		e.Emit(TypeEntryAppended, EntryAppendedData{EntryID: i})
	}
	assert.Equal(t, []uint64{2, 4}, got)
}

func TestBufferIsBounded(t *testing.T) {
	e := NewEmitter(WithBufferSize(3))

	for i := 0; i < 5; i++ {
		e.Emit(TypeRuleApplied, i)
	}

	buf := e.Buffer()
	require.Len(t, buf, 3)
	assert.Equal(t, 2, buf[0].Data)
	assert.Equal(t, 4, buf[2].Data)

	e.ClearBuffer()
	assert.Empty(t, e.Buffer())
}

func TestBufferByType(t *testing.T) {
	e := NewEmitter()
	e.Emit(TypeRuleApplied, nil)
	e.Emit(TypeEntryAppended, nil)
	e.Emit(TypeRuleApplied, nil)

	assert.Len(t, e.BufferByType(TypeRuleApplied), 2)
	assert.Len(t, e.BufferByType(TypeWindowEvicted), 0)
}
