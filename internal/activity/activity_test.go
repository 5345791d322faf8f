// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package activity

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCompletePairing(t *testing.T) {
	ch := InstallQueue()
	defer InstallQueue()

	ctx, a := NewOperation().Start(context.Background(), "top")
	require.NotZero(t, a.ID())
	_ = ctx

	start := <-ch
	assert.Equal(t, EventStart, start.Event)
	assert.Equal(t, a.ID(), start.ID)

	a.Close()
	complete := <-ch
	assert.Equal(t, EventComplete, complete.Event)
	assert.Equal(t, a.ID(), complete.ID)
	assert.Equal(t, OutcomeSuccess, complete.Outcome)

	// Closing twice must not emit a second Complete.
	a.Close()
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event after double Close: %+v", e)
	default:
	}
}

func TestImplicitParentFromContextStack(t *testing.T) {
	ch := InstallQueue()
	defer InstallQueue()

	ctx, parentAct := NewOperation().Start(context.Background(), "parent")
	defer parentAct.Close()
	<-ch // parent start

	childCtx, childAct := NewTask().Start(ctx, "child")
	defer childAct.Close()
	childStart := <-ch

	require.NotNil(t, childStart.Parent)
	assert.Equal(t, parentAct.ID(), *childStart.Parent)

	grandParentID, ok := CurrentActivityID(childCtx)
	require.True(t, ok)
	assert.Equal(t, childAct.ID(), grandParentID)
}

func TestEventRoundTrip(t *testing.T) {
	parent := uint64(42)
	e := Event{
		ActivityKind:   KindBuild,
		Event:          EventStart,
		ID:             nextID(),
		Timestamp:      Now(),
		Name:           "hello-1.0",
		Parent:         &parent,
		DerivationPath: "/nix/store/x-hello-1.0.drv",
	}

	b, err := json.Marshal(e)
	require.NoError(t, err)

	var round Event
	require.NoError(t, json.Unmarshal(b, &round))

	assert.Equal(t, e.ActivityKind, round.ActivityKind)
	assert.Equal(t, e.ID, round.ID)
	assert.Equal(t, e.Name, round.Name)
	require.NotNil(t, round.Parent)
	assert.Equal(t, *e.Parent, *round.Parent)
	assert.Equal(t, e.DerivationPath, round.DerivationPath)
}

func TestActivityIDAliasAccepted(t *testing.T) {
	raw := []byte(`{"activity_kind":"task","event":"complete","activity_id":7,"outcome":"failed","timestamp":"2024-01-02T03:04:05Z"}`)

	var e Event
	require.NoError(t, json.Unmarshal(raw, &e))
	assert.EqualValues(t, 7, e.ID)
	assert.Equal(t, OutcomeFailed, e.Outcome)

	// Re-encoding must emit "id", never "activity_id".
	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"id":7`)
	assert.NotContains(t, string(out), "activity_id")
}

func TestQueueDropsOnFull(t *testing.T) {
	queueMu.Lock()
	queueCh = make(chan Event, 1)
	ch := queueCh
	queueMu.Unlock()
	defer InstallQueue()

	_, a := NewOperation().Start(context.Background(), "one")
	<-ch // drain the start event so the buffer has room for exactly one more

	// Fill to capacity, then emit one more: it must not block or panic.
	dispatch(Event{ActivityKind: KindMessage})
	dispatch(Event{ActivityKind: KindMessage}) // dropped; queue capacity is 1

	require.Len(t, ch, 1)
	a.Close()
}
