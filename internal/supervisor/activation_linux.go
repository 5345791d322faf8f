// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build linux

package supervisor

import (
	"os/exec"
	"syscall"
)

// ambientCapNumbers maps the names devenv's config file accepts to their Linux capability
// numbers (see capabilities(7)); unrecognised names are dropped rather than rejected, matching
// the spec's "optionally raises" wording.
var ambientCapNumbers = map[AmbientCapability]uintptr{
	CapNetBindService: 10,
	CapNetRaw:         13,
	CapNetAdmin:       12,
}

// SetAmbientCaps raises the given ambient capabilities on the child via the same pre-exec
// SysProcAttr mechanism Go exposes for process-group assignment. Ambient capabilities are the
// only class that survives the pre-exec hook's own self-exec (see reexec.go), which is why
// this is wired into StartWithListenPID rather than the plain exec.CommandContext path.
func SetAmbientCaps(cmd *exec.Cmd, caps []AmbientCapability) {
	var nums []uintptr
	for _, c := range caps {
		if n, ok := ambientCapNumbers[c]; ok {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.AmbientCaps = nums
}
