// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package activity

import (
	"context"
	"sync"
)

// Activity is the owning guard returned by a Start call. Exactly one Complete event is
// emitted when it is released via Close; Go has no destructors, so Close takes the place of
// an RAII Drop, and callers are expected to `defer a.Close()` immediately after Start.
type Activity struct {
	mu sync.Mutex

	id     uint64
	kind   Kind
	name   string
	parent *uint64

	outcome Outcome
	closed  bool

	// Build/Task progress (items)
	done, expected uint64
	hasProgress    bool

	// Fetch progress (bytes)
	current, total uint64
	hasTotal       bool
}

// ID returns the activity's unique identifier.
func (a *Activity) ID() uint64 { return a.id }

// Scope returns a child context with this activity's ID pushed onto the implicit-parent
// stack, for the duration of a nested async computation.
func (a *Activity) Scope(ctx context.Context) context.Context {
	return WithActivity(ctx, a.id)
}

// ScopeSync runs fn synchronously with this activity's ID on top of the implicit-parent
// stack, restoring the caller's context view afterward (the stack itself is immutable per
// context.Context value, so "restoring" simply means fn's nested calls see the pushed ctx
// while the caller's own ctx is untouched).
func (a *Activity) ScopeSync(ctx context.Context, fn func(context.Context)) {
	fn(a.Scope(ctx))
}

// Progress records items-based progress (done/expected).
func (a *Activity) Progress(done, expected uint64) {
	a.mu.Lock()
	a.done, a.expected, a.hasProgress = done, expected, true
	a.mu.Unlock()

	dispatch(Event{
		ActivityKind: a.kind,
		Event:        EventProgress,
		ID:           a.id,
		Timestamp:    Now(),
		Done:         u64ptr(done),
		Expected:     u64ptr(expected),
	})
}

// ProgressBytes records bytes-based progress (current/total); total is omitted when unknown.
func (a *Activity) ProgressBytes(current uint64, total *uint64) {
	a.mu.Lock()
	a.current = current
	if total != nil {
		a.total, a.hasTotal = *total, true
	}
	a.mu.Unlock()

	e := Event{
		ActivityKind: a.kind,
		Event:        EventProgress,
		ID:           a.id,
		Timestamp:    Now(),
		Current:      u64ptr(current),
	}
	if total != nil {
		e.Total = total
	}
	dispatch(e)
}

// ProgressIndeterminate records byte progress with a known current and no known total.
func (a *Activity) ProgressIndeterminate() {
	a.ProgressBytes(a.current, nil)
}

// Phase records a build phase change.
func (a *Activity) Phase(phase string) {
	dispatch(Event{
		ActivityKind: a.kind,
		Event:        EventPhase,
		ID:           a.id,
		Timestamp:    Now(),
		Phase:        phase,
	})
}

// Log records one interleaved stdout/stderr (or task/command output) line.
func (a *Activity) Log(stream, line string) {
	dispatch(Event{
		ActivityKind: a.kind,
		Event:        EventLog,
		ID:           a.id,
		Timestamp:    Now(),
		Stream:       stream,
		Line:         line,
	})
}

// Error emits a standalone Message at Error level parented to this activity, without
// altering the activity's own outcome. Use Fail to mark the activity itself as failed.
func (a *Activity) Error(err error) {
	if err == nil {
		return
	}
	id := a.id
	Message(LevelError, err.Error(), MessageOpt{Parent: &id})
}

// Fail marks the activity's terminal outcome as Failed. It takes effect at Close.
func (a *Activity) Fail(reason string) {
	a.mu.Lock()
	a.outcome = OutcomeFailed
	a.mu.Unlock()
	if reason != "" {
		a.Error(errorString(reason))
	}
}

// Cancel marks the activity's terminal outcome as Cancelled. It takes effect at Close.
func (a *Activity) Cancel(reason string) {
	a.mu.Lock()
	a.outcome = OutcomeCancelled
	a.mu.Unlock()
	if reason != "" {
		id := a.id
		Message(LevelWarn, reason, MessageOpt{Parent: &id})
	}
}

// Close emits exactly one Complete event carrying the activity's final outcome. It is safe
// to call more than once; only the first call emits an event.
func (a *Activity) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	outcome := a.outcome
	a.mu.Unlock()

	if outcome == "" {
		outcome = OutcomeSuccess
	}

	dispatch(Event{
		ActivityKind: a.kind,
		Event:        EventComplete,
		ID:           a.id,
		Timestamp:    Now(),
		Outcome:      outcome,
	})
}

type errorString string

func (e errorString) Error() string { return string(e) }

func resolveParent(ctx context.Context, explicit *uint64) *uint64 {
	if explicit != nil {
		return explicit
	}
	if id, ok := CurrentActivityID(ctx); ok {
		return &id
	}
	return nil
}

func startActivity(ctx context.Context, kind Kind, id *uint64, parent *uint64, name string, extra func(*Event)) (context.Context, *Activity) {
	realID := nextID()
	if id != nil {
		realID = *id
	}

	a := &Activity{id: realID, kind: kind, name: name, parent: resolveParent(ctx, parent)}

	e := Event{
		ActivityKind: kind,
		Event:        EventStart,
		ID:           realID,
		Timestamp:    Now(),
		Name:         name,
		Parent:       a.parent,
	}
	if extra != nil {
		extra(&e)
	}
	dispatch(e)

	return WithActivity(ctx, realID), a
}

// BuildBuilder constructs a Build activity.
type BuildBuilder struct {
	id, parent     *uint64
	derivationPath string
}

func NewBuild() *BuildBuilder { return &BuildBuilder{} }

func (b *BuildBuilder) ID(id uint64) *BuildBuilder         { b.id = &id; return b }
func (b *BuildBuilder) Parent(id uint64) *BuildBuilder     { b.parent = &id; return b }
func (b *BuildBuilder) DerivationPath(p string) *BuildBuilder {
	b.derivationPath = p
	return b
}

// Start begins the Build activity and returns the scoped context and owning guard.
func (b *BuildBuilder) Start(ctx context.Context, name string) (context.Context, *Activity) {
	return startActivity(ctx, KindBuild, b.id, b.parent, name, func(e *Event) {
		e.DerivationPath = b.derivationPath
	})
}

// FetchBuilder constructs a Fetch activity.
type FetchBuilder struct {
	id, parent *uint64
	subkind    FetchKind
	url        string
}

func NewFetch(subkind FetchKind) *FetchBuilder { return &FetchBuilder{subkind: subkind} }

func (b *FetchBuilder) ID(id uint64) *FetchBuilder     { b.id = &id; return b }
func (b *FetchBuilder) Parent(id uint64) *FetchBuilder { b.parent = &id; return b }
func (b *FetchBuilder) URL(url string) *FetchBuilder   { b.url = url; return b }

func (b *FetchBuilder) Start(ctx context.Context, name string) (context.Context, *Activity) {
	return startActivity(ctx, KindFetch, b.id, b.parent, name, func(e *Event) {
		e.FetchKind = b.subkind
		e.URL = b.url
	})
}

// EvaluateBuilder constructs an Evaluate activity.
type EvaluateBuilder struct{ id, parent *uint64 }

func NewEvaluate() *EvaluateBuilder { return &EvaluateBuilder{} }

func (b *EvaluateBuilder) ID(id uint64) *EvaluateBuilder     { b.id = &id; return b }
func (b *EvaluateBuilder) Parent(id uint64) *EvaluateBuilder { b.parent = &id; return b }

func (b *EvaluateBuilder) Start(ctx context.Context, name string) (context.Context, *Activity) {
	return startActivity(ctx, KindEvaluate, b.id, b.parent, name, nil)
}

// TaskBuilder constructs a Task activity.
type TaskBuilder struct {
	id, parent *uint64
	detail     string
}

func NewTask() *TaskBuilder { return &TaskBuilder{} }

func (b *TaskBuilder) ID(id uint64) *TaskBuilder         { b.id = &id; return b }
func (b *TaskBuilder) Parent(id uint64) *TaskBuilder     { b.parent = &id; return b }
func (b *TaskBuilder) Detail(detail string) *TaskBuilder { b.detail = detail; return b }

func (b *TaskBuilder) Start(ctx context.Context, name string) (context.Context, *Activity) {
	return startActivity(ctx, KindTask, b.id, b.parent, name, func(e *Event) {
		e.Detail = b.detail
	})
}

// CommandBuilder constructs a Command activity.
type CommandBuilder struct {
	id, parent *uint64
	cmd        string
}

func NewCommand() *CommandBuilder { return &CommandBuilder{} }

func (b *CommandBuilder) ID(id uint64) *CommandBuilder     { b.id = &id; return b }
func (b *CommandBuilder) Parent(id uint64) *CommandBuilder { b.parent = &id; return b }
func (b *CommandBuilder) Cmd(cmd string) *CommandBuilder   { b.cmd = cmd; return b }

func (b *CommandBuilder) Start(ctx context.Context, name string) (context.Context, *Activity) {
	return startActivity(ctx, KindCommand, b.id, b.parent, name, func(e *Event) {
		e.Cmd = b.cmd
	})
}

// OperationBuilder constructs an Operation activity, the TUI's stable root label.
type OperationBuilder struct {
	id, parent *uint64
	detail     string
}

func NewOperation() *OperationBuilder { return &OperationBuilder{} }

func (b *OperationBuilder) ID(id uint64) *OperationBuilder         { b.id = &id; return b }
func (b *OperationBuilder) Parent(id uint64) *OperationBuilder     { b.parent = &id; return b }
func (b *OperationBuilder) Detail(detail string) *OperationBuilder { b.detail = detail; return b }

func (b *OperationBuilder) Start(ctx context.Context, name string) (context.Context, *Activity) {
	return startActivity(ctx, KindOperation, b.id, b.parent, name, func(e *Event) {
		e.Detail = b.detail
	})
}
