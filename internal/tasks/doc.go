// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package tasks implements the task DAG runner: validation of a declared task graph,
// topological scheduling bounded by a concurrency policy, per-task status-check
// short-circuiting, and an independent file-modification guard. Its dispatch/debounce shape
// is generalised from "re-run a target on file write" to "run a DAG of named tasks to
// completion, each emitting Task activities."
package tasks
