// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package tui implements the Activity/TUI model and its tview-based renderer, presenting the
// Build/Fetch/Evaluate/Task/Command/Operation activity tree produced by internal/activity.
package tui
