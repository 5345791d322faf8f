// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package activity

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	cage_zap "github.com/codeactual/devenv/internal/cage/log/zap"
)

// queueCap bounds the TUI-facing event queue. Emission never blocks on a full queue; the
// oldest-pending behavior is "drop the new event", matching the spec's "the queue drops on
// full" rule (favoring forward progress of the emitting task over completeness of the feed).
const queueCap = 4096

var (
	queueMu sync.RWMutex
	queueCh chan Event

	logSink atomic.Value // stores *zap.Logger
)

// InstallQueue installs the process-wide bounded queue drained by the TUI and returns it.
// Calling it again replaces the previous queue (closing it is the old caller's
// responsibility).
func InstallQueue() <-chan Event {
	queueMu.Lock()
	defer queueMu.Unlock()
	queueCh = make(chan Event, queueCap)
	return queueCh
}

// InstallLogSink installs the structured JSON log target every event is also mirrored to.
// Passing nil degrades emission to a no-op for that sink, which is required behavior in
// tests that never call InstallLogSink.
func InstallLogSink(l *zap.Logger) {
	logSink.Store(l)
}

// dispatch fans e out to both sinks described by spec §4.1: a non-blocking bounded queue for
// the TUI, and a best-effort structured JSON log target. Neither sink may back-pressure the
// emitting task.
func dispatch(e Event) {
	queueMu.RLock()
	ch := queueCh
	queueMu.RUnlock()

	if ch != nil {
		select {
		case ch <- e:
		default: // queue full: drop, per spec
		}
	}

	if l, _ := logSink.Load().(*zap.Logger); l != nil {
		l.Debug("activity_event", cage_zap.Tag("activity"), zap.Any("event", e))
	}
}
