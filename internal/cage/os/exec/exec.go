// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package exec wraps os/exec so that command pipelines ("a | b | c") can be built from
// parsed argument slices and run with buffered, per-stage results, and so that tests can
// substitute a mock Executor instead of spawning real processes.
package exec

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// SigKillDelay is how long callers should wait after requesting a graceful shutdown
// (e.g. SIGTERM to a process group) before assuming it needs a SIGKILL follow-up.
const SigKillDelay = 2 * time.Second

// CmdResult holds the outcome of a single pipeline stage.
type CmdResult struct {
	// Pid is the process ID, if the command started successfully.
	Pid int

	// Pgid is the process group ID, if the command started successfully and the caller
	// requested a new group (see ArgToCmd).
	Pgid int

	// Code is the process exit code. It is -1 if the command never started or was killed
	// by a signal.
	Code int

	// Err holds the error returned by Cmd.Run/Wait, if any.
	Err error
}

// Result is the outcome of an Executor.Buffered call, keyed by the *exec.Cmd instances
// the caller passed in (one per pipeline stage).
type Result struct {
	Cmd map[*exec.Cmd]CmdResult
}

// Executor runs one or more *exec.Cmd as a pipeline and buffers their combined output.
//
// It exists so that tests can substitute a mock implementation instead of spawning real
// processes.
type Executor interface {
	// Buffered connects cmds in a pipeline (cmds[n]'s stdout feeds cmds[n+1]'s stdin),
	// runs them to completion, and returns the final stage's stdout/stderr along with a
	// per-command Result. A single cmd is simply run directly (no pipe).
	Buffered(ctx context.Context, cmds ...*exec.Cmd) (stdout *bytes.Buffer, stderr *bytes.Buffer, res Result, err error)
}

// CommonExecutor is the concrete Executor used outside of tests.
type CommonExecutor struct{}

// Buffered implements Executor.
func (CommonExecutor) Buffered(ctx context.Context, cmds ...*exec.Cmd) (*bytes.Buffer, *bytes.Buffer, Result, error) {
	res := Result{Cmd: make(map[*exec.Cmd]CmdResult, len(cmds))}

	var stdout, stderr bytes.Buffer

	if len(cmds) == 0 {
		return &stdout, &stderr, res, nil
	}

	last := cmds[len(cmds)-1]
	last.Stdout = &stdout
	last.Stderr = &stderr

	for n := 0; n < len(cmds)-1; n++ {
		pipe, err := cmds[n].StdoutPipe()
		if err != nil {
			return &stdout, &stderr, res, errors.Wrapf(err, "failed to pipe stdout of [%s] to [%s]", CmdToString(cmds[n]), CmdToString(cmds[n+1]))
		}
		cmds[n].Stderr = &stderr
		cmds[n+1].Stdin = pipe
	}

	for _, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			res.Cmd[cmd] = CmdResult{Code: -1, Err: errors.Wrapf(err, "failed to start [%s]", CmdToString(cmd))}
			return &stdout, &stderr, res, res.Cmd[cmd].Err
		}
	}

	var firstErr error
	for _, cmd := range cmds {
		waitErr := cmd.Wait()

		cr := CmdResult{Pid: cmd.Process.Pid, Code: -1}
		if cmd.ProcessState != nil {
			cr.Code = cmd.ProcessState.ExitCode()
		}
		if cmd.SysProcAttr != nil && cmd.SysProcAttr.Setpgid && cmd.Process != nil {
			if pgid, pgErr := syscall.Getpgid(cmd.Process.Pid); pgErr == nil {
				cr.Pgid = pgid
			}
		}
		if waitErr != nil {
			cr.Err = errors.Wrapf(waitErr, "command [%s] failed", CmdToString(cmd))
			if firstErr == nil {
				firstErr = cr.Err
			}
		}

		res.Cmd[cmd] = cr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &stdout, &stderr, res, ctxErr
	}

	return &stdout, &stderr, res, firstErr
}

// ArgToCmd builds one *exec.Cmd per argument set, each bound to ctx so that cancelling ctx
// kills that stage. Each set's first element is the binary name, the rest its arguments.
//
// Every returned Cmd has Setpgid set so a caller can signal the whole process group (e.g.
// to stop children the command itself spawned) instead of only the direct child.
func ArgToCmd(ctx context.Context, argSets ...[]string) []*exec.Cmd {
	cmds := make([]*exec.Cmd, 0, len(argSets))

	for _, args := range argSets {
		if len(args) == 0 {
			continue
		}

		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		cmds = append(cmds, cmd)
	}

	return cmds
}

// CmdToString renders cmd's binary and arguments as a single space-joined string, for logging.
func CmdToString(cmd *exec.Cmd) string {
	if cmd == nil {
		return ""
	}
	return strings.Join(cmd.Args, " ")
}
