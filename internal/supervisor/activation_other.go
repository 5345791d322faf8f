// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !linux

package supervisor

import "os/exec"

// SetAmbientCaps is a no-op on non-Linux platforms: unsupported platforms ignore the
// capability request silently.
func SetAmbientCaps(cmd *exec.Cmd, caps []AmbientCapability) {}
