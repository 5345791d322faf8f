// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !windows

package supervisor

import (
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

// ReexecMarker is the hidden first argument that tells this same binary, when it observes
// os.Args[1] == ReexecMarker, to behave as a "pre-exec hook" child rather than running the
// normal CLI. Go's os/exec offers no hook between fork and
// exec, so the hook is implemented the way daemontools-style supervisors do it without cgo:
// fork a copy of this same binary, let it see its own (now-correct) PID, set LISTEN_PID to
// that PID, then syscall.Exec the real target in place -- the target inherits the same PID
// and file descriptors, with LISTEN_PID now naming the process that is about to become it.
const ReexecMarker = "__devenv-listen-pid-reexec__"

// MaybeReexec must be called at the very top of main(), before flag parsing. If this process
// was launched as the pre-exec hook, it never returns: it execs the real target and replaces
// itself, or os.Exit(1)s on failure.
func MaybeReexec() {
	if len(os.Args) < 3 || os.Args[1] != ReexecMarker {
		return
	}

	target := os.Args[2]
	args := append([]string{target}, os.Args[3:]...)

	env := os.Environ()
	pid := os.Getpid()
	replaced := false
	for i, e := range env {
		if strings.HasPrefix(e, "LISTEN_PID=") {
			env[i] = "LISTEN_PID=" + itoa(pid)
			replaced = true
			break
		}
	}
	if !replaced {
		env = append(env, "LISTEN_PID="+itoa(pid))
	}

	if err := syscall.Exec(target, args, env); err != nil {
		os.Stderr.WriteString("devenv: pre-exec hook failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// StartWithListenPID spawns execPath via this same binary's pre-exec hook so that LISTEN_PID
// names the actual target process. env/extraFiles/dir are applied to the
// intermediate hook process and are inherited across its self-exec. caps, if non-empty, are
// raised as ambient capabilities on the hook process at fork time so they survive its own
// self-exec into execPath (see SetAmbientCaps).
func StartWithListenPID(execPath string, args, env []string, extraFiles []*os.File, dir string, caps []AmbientCapability) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve own executable path for pre-exec hook")
	}

	hookArgs := append([]string{ReexecMarker, execPath}, args...)
	cmd := exec.Command(self, hookArgs...)
	cmd.Env = env
	cmd.Dir = dir
	cmd.ExtraFiles = extraFiles
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	SetAmbientCaps(cmd, caps)

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start pre-exec hook for [%s]", execPath)
	}

	return cmd, nil
}
