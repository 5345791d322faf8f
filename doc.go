// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package devenv contains sub-packages providing the devenv CLI commands (cmd/devenv/*), the
// domain packages they wire together (internal/activity, internal/cache, internal/tasks,
// internal/supervisor, internal/shell, internal/tui, internal/ports, internal/watch,
// internal/config), and the internal "standard library" (all other internal/*) which is
// automatically extracted from a private monorepo.
package devenv

// expand godoc content for the base import path
import (
	_ "github.com/codeactual/devenv/cmd/devenv/eval"
	_ "github.com/codeactual/devenv/cmd/devenv/internal/envdiff"
	_ "github.com/codeactual/devenv/cmd/devenv/root"
	_ "github.com/codeactual/devenv/cmd/devenv/shell"
	_ "github.com/codeactual/devenv/cmd/devenv/tasks"
	_ "github.com/codeactual/devenv/cmd/devenv/up"
)
