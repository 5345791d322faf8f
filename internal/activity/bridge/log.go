// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bridge converts the evaluator's own log records (either JSON lines from a
// subprocess, or in-process callbacks) into this module's Activity events, per spec §4.2.
package bridge

// ActivityType is the evaluator's own activity classification, carried on Start/Stop
// records.
type ActivityType int

const (
	ActivityUnknown ActivityType = iota
	ActivityCopyPath
	ActivityFileTransfer
	ActivityRealise
	ActivityCopyPaths
	ActivityBuilds
	ActivityBuild
	ActivityOptimiseStore
	ActivityVerifyPaths
	ActivitySubstitute
	ActivityQueryPathInfo
	ActivityPostBuildHook
	ActivityBuildWaiting
	ActivityFetchTree
)

// ActivityTypeFromString converts the evaluator's string activity-type spelling.
func ActivityTypeFromString(s string) ActivityType {
	switch s {
	case "copy-path":
		return ActivityCopyPath
	case "file-transfer":
		return ActivityFileTransfer
	case "realise":
		return ActivityRealise
	case "copy-paths":
		return ActivityCopyPaths
	case "builds":
		return ActivityBuilds
	case "build":
		return ActivityBuild
	case "optimise-store":
		return ActivityOptimiseStore
	case "verify-paths":
		return ActivityVerifyPaths
	case "substitute":
		return ActivitySubstitute
	case "query-path-info":
		return ActivityQueryPathInfo
	case "post-build-hook":
		return ActivityPostBuildHook
	case "build-waiting":
		return ActivityBuildWaiting
	case "fetch-tree":
		return ActivityFetchTree
	default:
		return ActivityUnknown
	}
}

// ResultType is the evaluator's own classification of an activity-result record.
type ResultType int

const (
	ResultUnknown ResultType = iota
	ResultFileLinked
	ResultBuildLogLine
	ResultUntrustedPath
	ResultCorruptedPath
	ResultSetPhase
	ResultProgress
	ResultSetExpected
	ResultPostBuildLogLine
	ResultFetchStatus
)

// ResultTypeFromString converts the evaluator's string result-type spelling, accepting both
// the camelCase and kebab-case forms observed in the wild.
func ResultTypeFromString(s string) (ResultType, bool) {
	switch s {
	case "fileLinked", "file-linked":
		return ResultFileLinked, true
	case "buildLogLine", "build-log-line":
		return ResultBuildLogLine, true
	case "untrustedPath", "untrusted-path":
		return ResultUntrustedPath, true
	case "corruptedPath", "corrupted-path":
		return ResultCorruptedPath, true
	case "setPhase", "set-phase":
		return ResultSetPhase, true
	case "progress":
		return ResultProgress, true
	case "setExpected", "set-expected":
		return ResultSetExpected, true
	case "postBuildLogLine", "post-build-log-line":
		return ResultPostBuildLogLine, true
	case "fetchStatus", "fetch-status":
		return ResultFetchStatus, true
	default:
		return ResultUnknown, false
	}
}

// Verbosity is the evaluator's own message severity.
type Verbosity int

const (
	VerbosityError Verbosity = iota
	VerbosityWarn
	VerbosityNotice
	VerbosityInfo
	VerbosityTalkative
	VerbosityChatty
	VerbosityDebug
	VerbosityVomit
)

// Field is one positional value attached to a Start/Result record; the evaluator's own
// records carry a loosely-typed field vector (strings or integers).
type Field struct {
	Str   string
	Int   int64
	IsInt bool
}

func FieldString(s string) Field { return Field{Str: s} }
func FieldInt(i int64) Field     { return Field{Int: i, IsInt: true} }

// InternalLog is one parsed evaluator log record.
type InternalLog struct {
	// Kind selects which of the fields below are meaningful.
	Kind InternalLogKind

	// Start / Stop / Result
	ID     uint64
	Type   ActivityType
	Text   string
	Fields []Field

	// Result
	ResultKind ResultType

	// SetPhase
	Phase string

	// Msg
	Level Verbosity
	Msg   string
}

type InternalLogKind int

const (
	LogStart InternalLogKind = iota
	LogStop
	LogResult
	LogSetPhase
	LogMsg
)

// StringField returns fields[i] as a string, if present and a string.
func StringField(fields []Field, i int) (string, bool) {
	if i < 0 || i >= len(fields) {
		return "", false
	}
	if fields[i].IsInt {
		return "", false
	}
	return fields[i].Str, true
}

// IntField returns fields[i] as an int64, if present and an integer.
func IntField(fields []Field, i int) (int64, bool) {
	if i < 0 || i >= len(fields) {
		return 0, false
	}
	if !fields[i].IsInt {
		return 0, false
	}
	return fields[i].Int, true
}
