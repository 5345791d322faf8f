// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package supervisor implements the per-process state machine, the
// systemd-style notification socket and socket-activation handoff, and the
// supervisor I/O that wires a declared process's lifecycle to both. The state machine in
// state.go is a pure function of (event, now) with no I/O and no clock reads, so its tests
// pass plain time.Time values; Supervisor reads the time through internal/cage/time.Clock.
package supervisor
