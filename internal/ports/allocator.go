// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package ports

import (
	"fmt"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// scanWindow bounds the base..base+100 scan used to find a free port.
const scanWindow = 100

// ErrUnavailable is returned by Allocate (strict mode) and Replay when a requested port
// cannot be (re-)acquired.
type ErrUnavailable struct {
	Port   int
	Holder string
}

func (e *ErrUnavailable) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("port %d unavailable (held by %s)", e.Port, e.Holder)
	}
	return fmt.Sprintf("port %d unavailable", e.Port)
}

type entry struct {
	reservation Reservation
	listener    *net.TCPListener // nil once taken by TakeReservations/TakeReservationsFor
}

// Allocator is the replayable port resource (Snapshot/Clear/Replay). It guards a
// (process, port_name) -> entry map behind a single mutex; TCP listeners are held in the
// allocator until taken.
type Allocator struct {
	mu sync.Mutex

	enabled bool
	strict  bool

	// allowInUseOnReplay permits Replay to accept a port already bound by the current
	// session's own running processes instead of failing.
	allowInUseOnReplay bool
	ownedDuringReplay  func(port int) bool

	entries map[string]*entry

	holderLookup func(port int) string
}

// Option configures an Allocator at construction.
type Option func(*Allocator)

// WithStrict enables strict mode: Allocate only ever tries the requested base port.
func WithStrict() Option { return func(a *Allocator) { a.strict = true } }

// WithAllowInUseOnReplay enables the "allow ports already bound by this session's running
// processes" relaxation during Replay. owned reports whether the given port is currently
// bound by a process this session itself started.
func WithAllowInUseOnReplay(owned func(port int) bool) Option {
	return func(a *Allocator) {
		a.allowInUseOnReplay = true
		a.ownedDuringReplay = owned
	}
}

// WithHolderLookup supplies a best-effort "who holds this port" probe, used only to enrich
// strict-mode error messages by querying the OS socket table; see holder_linux.go for the
// real implementation.
func WithHolderLookup(f func(port int) string) Option {
	return func(a *Allocator) { a.holderLookup = f }
}

// New constructs an Allocator. enabled=false makes Allocate a pass-through that never binds
// or caches a port.
func New(enabled bool, opts ...Option) *Allocator {
	a := &Allocator{enabled: enabled, entries: make(map[string]*entry)}
	for _, o := range opts {
		o(a)
	}
	return a
}

func key(process, portName string) string { return process + "\x00" + portName }

// Allocate returns the port bound for (process, portName), binding a fresh listener if one
// is not already cached. When the allocator is disabled it returns base unreserved.
func (a *Allocator) Allocate(process, portName string, base int) (int, error) {
	if !a.enabled {
		return base, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	k := key(process, portName)
	if e, ok := a.entries[k]; ok {
		return e.reservation.Allocated, nil
	}

	if a.strict {
		ln, err := bind(base)
		if err != nil {
			holder := ""
			if a.holderLookup != nil {
				holder = a.holderLookup(base)
			}
			return 0, &ErrUnavailable{Port: base, Holder: holder}
		}
		a.entries[k] = &entry{reservation: Reservation{Process: process, PortName: portName, Base: base, Allocated: base}, listener: ln}
		return base, nil
	}

	taken := make(map[int]bool, len(a.entries))
	for _, e := range a.entries {
		taken[e.reservation.Allocated] = true
	}

	for p := base; p <= base+scanWindow; p++ {
		if taken[p] {
			continue
		}
		ln, err := bind(p)
		if err != nil {
			continue
		}
		a.entries[k] = &entry{reservation: Reservation{Process: process, PortName: portName, Base: base, Allocated: p}, listener: ln}
		return p, nil
	}

	return 0, errors.Errorf("no free port found in range [%d, %d] for %s/%s", base, base+scanWindow, process, portName)
}

func bind(port int) (*net.TCPListener, error) {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
	if err != nil {
		return nil, err
	}
	return ln, nil
}

// Snapshot returns a pure (no I/O beyond the mutex) copy of the currently-held reservations.
func (a *Allocator) Snapshot() Spec {
	a.mu.Lock()
	defer a.mu.Unlock()

	spec := Spec{Reservations: make([]Reservation, 0, len(a.entries))}
	for _, e := range a.entries {
		spec.Reservations = append(spec.Reservations, e.reservation)
	}
	return spec
}

// Replay re-acquires every reservation in spec, idempotent with Snapshot's own state (a
// port already held under the same key is a no-op). On the first unavailable port it stops,
// leaving the allocator exactly as it was before the call (all newly-bound listeners from
// this Replay call are released).
func (a *Allocator) Replay(spec Spec) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	acquired := make([]string, 0, len(spec.Reservations))

	for _, r := range spec.Reservations {
		k := key(r.Process, r.PortName)
		if existing, ok := a.entries[k]; ok && existing.reservation.Allocated == r.Allocated {
			continue
		}

		ln, err := bind(r.Allocated)
		if err != nil {
			if a.allowInUseOnReplay && a.ownedDuringReplay != nil && a.ownedDuringReplay(r.Allocated) {
				a.entries[k] = &entry{reservation: r, listener: nil}
				acquired = append(acquired, k)
				continue
			}

			for _, ak := range acquired {
				if e := a.entries[ak]; e != nil && e.listener != nil {
					e.listener.Close()
				}
				delete(a.entries, ak)
			}
			return &ErrUnavailable{Port: r.Allocated}
		}

		a.entries[k] = &entry{reservation: r, listener: ln}
		acquired = append(acquired, k)
	}

	return nil
}

// Clear releases every held listener and forgets every reservation.
func (a *Allocator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k, e := range a.entries {
		if e.listener != nil {
			e.listener.Close()
		}
		delete(a.entries, k)
	}
}

// TakeReservations transfers ownership of every still-held listener to the caller, who is
// expected to close them immediately before spawning the process that will bind the port.
// Listeners already taken (nil) or replayed without a local bind are omitted.
func (a *Allocator) TakeReservations() []*net.TCPListener {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.take(func(*entry) bool { return true })
}

// TakeReservationsFor is TakeReservations scoped to a single process, leaving every other
// process's reservations untouched. The supervisor spawn path calls this (not
// TakeReservations) immediately before exec so that starting one process never steals the
// still-reserved listeners of another process queued behind it.
func (a *Allocator) TakeReservationsFor(process string) []*net.TCPListener {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.take(func(e *entry) bool { return e.reservation.Process == process })
}

// take transfers ownership of every still-held listener whose entry matches pred, clearing
// it from the entry so a second call returns nothing for it. Callers hold a.mu.
func (a *Allocator) take(pred func(*entry) bool) []*net.TCPListener {
	var out []*net.TCPListener
	for _, e := range a.entries {
		if e.listener == nil || !pred(e) {
			continue
		}
		out = append(out, e.listener)
		e.listener = nil
	}
	return out
}
