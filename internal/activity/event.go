// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package activity is the typed event stream described by this module's activity pipeline:
// every build, fetch, evaluation, task, command, and operation emits events through a small
// set of builders, and those events carry an implicit parent derived from a per-task context
// stack (see stack.go) rather than requiring every caller to thread a parent ID by hand.
package activity

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Kind is the closed set of activity kinds, plus the standalone "message" pseudo-kind used
// on the wire (a Message is not an Activity but shares the same envelope).
type Kind string

const (
	KindBuild     Kind = "build"
	KindFetch     Kind = "fetch"
	KindEvaluate  Kind = "evaluate"
	KindTask      Kind = "task"
	KindCommand   Kind = "command"
	KindOperation Kind = "operation"
	KindMessage   Kind = "message"
)

// EventType is the lifecycle/payload tag of one ActivityEvent.
type EventType string

const (
	EventStart    EventType = "start"
	EventComplete EventType = "complete"
	EventProgress EventType = "progress"
	EventPhase    EventType = "phase"
	EventLog      EventType = "log"
)

// Outcome is an Activity's terminal disposition, set at Complete.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// FetchKind distinguishes the four Fetch sub-kinds.
type FetchKind string

const (
	FetchDownload FetchKind = "download"
	FetchQuery    FetchKind = "query"
	FetchCopy     FetchKind = "copy"
	FetchTree     FetchKind = "tree"
)

// Level is a standalone Message's severity.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
	LevelTrace Level = "trace"
)

// Event is the single wire envelope for both Activity lifecycle events and standalone
// Messages. Fields are tagged omitempty so that optional fields are genuinely absent on the
// wire rather than emitted as null, per the spec's JSON schema rules; a Kind+EventType pair
// determines which of the variant-specific fields are populated by the emitting code.
type Event struct {
	ActivityKind Kind      `json:"activity_kind"`
	Event        EventType `json:"event,omitempty"`
	ID           uint64    `json:"id,omitempty"`
	Timestamp    Timestamp `json:"timestamp"`

	Name   string  `json:"name,omitempty"`
	Parent *uint64 `json:"parent,omitempty"`

	Outcome Outcome `json:"outcome,omitempty"`

	// Build
	DerivationPath string `json:"derivation_path,omitempty"`

	// Fetch
	FetchKind FetchKind `json:"kind,omitempty"`
	URL       string    `json:"url,omitempty"`

	// Progress (items)
	Done     *uint64 `json:"done,omitempty"`
	Expected *uint64 `json:"expected,omitempty"`

	// Progress (bytes)
	Current *uint64 `json:"current,omitempty"`
	Total   *uint64 `json:"total,omitempty"`

	// Build phase
	Phase string `json:"phase,omitempty"`

	// Log line (build/task/command)
	Stream string `json:"stream,omitempty"`
	Line   string `json:"line,omitempty"`

	// Task/Operation detail
	Detail string `json:"detail,omitempty"`

	// Command
	Cmd string `json:"cmd,omitempty"`

	// Message
	Level   Level  `json:"level,omitempty"`
	Text    string `json:"text,omitempty"`
	Details string `json:"details,omitempty"`
}

// UnmarshalJSON accepts either the current "id" field or the legacy "activity_id" alias,
// always preferring "id" when both are present.
func (e *Event) UnmarshalJSON(b []byte) error {
	type alias Event // avoid recursion into this method
	var a struct {
		alias
		ActivityIDAlias *uint64 `json:"activity_id,omitempty"`
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return errors.WithStack(err)
	}
	*e = Event(a.alias)
	if e.ID == 0 && a.ActivityIDAlias != nil {
		e.ID = *a.ActivityIDAlias
	}
	return nil
}

func u64ptr(v uint64) *uint64 { return &v }
