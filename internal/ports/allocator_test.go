// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package ports_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeactual/devenv/internal/ports"
)

// TestSnapshotClearReplay verifies snapshot-then-clear-then-replay on an idle allocator
// yields the same set of allocated ports. TestReplayUnavailable covers an externally-held
// port failing replay.
func TestSnapshotClearReplay(t *testing.T) {
	a := ports.New(true)

	port, err := a.Allocate("web", "http", 18080)
	require.NoError(t, err)
	require.GreaterOrEqual(t, port, 18080)

	spec := a.Snapshot()
	require.Len(t, spec.Reservations, 1)
	require.Equal(t, port, spec.Reservations[0].Allocated)

	a.Clear()

	require.NoError(t, a.Replay(spec))
	replayed := a.Snapshot()
	require.Equal(t, spec, replayed)

	a.Clear()
}

func TestReplayUnavailable(t *testing.T) {
	a := ports.New(true)

	port, err := a.Allocate("web", "http", 18090)
	require.NoError(t, err)

	spec := a.Snapshot()
	a.Clear()

	// Hold the port externally so replay cannot rebind it.
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
	require.NoError(t, err)
	defer ln.Close()

	err = a.Replay(spec)
	require.Error(t, err)

	empty := a.Snapshot()
	require.Empty(t, empty.Reservations, "allocator must be empty after a failed replay")
}

func TestDisabledAllocatorIsPassThrough(t *testing.T) {
	a := ports.New(false)
	port, err := a.Allocate("web", "http", 9999)
	require.NoError(t, err)
	require.Equal(t, 9999, port)
	require.Empty(t, a.Snapshot().Reservations)
}
