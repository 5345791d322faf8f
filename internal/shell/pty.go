// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package shell

import (
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"unsafe"

	"github.com/kr/pty"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Host spawns and owns a single PTY-hosted interactive shell: the shell
// referenced by $SHELL, started with a generated rcfile so its startup sequence sources the
// devenv environment before handing control to the user.
type Host struct {
	Shell   string // defaults to $SHELL, falling back to /bin/bash
	Dir     string
	Env     []string
	RCFile  string // path to the generated rcfile, passed via --rcfile/-i
	Log     *zap.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	ptmx *os.File
}

// NewHost constructs a Host. shell falls back to $SHELL then /bin/bash when empty.
func NewHost(shellPath, dir, rcfile string, env []string, log *zap.Logger) *Host {
	if shellPath == "" {
		shellPath = os.Getenv("SHELL")
	}
	if shellPath == "" {
		shellPath = "/bin/bash"
	}
	return &Host{Shell: shellPath, Dir: dir, Env: env, RCFile: rcfile, Log: log}
}

// Start launches the shell attached to a new PTY and mirrors the controlling terminal's size
// into it, using a read-only proxy pattern for the subprocess I/O plumbing (stdout/stderr are
// captured line by line elsewhere in this module; here the PTY
// itself carries both directions because the child is interactive).
func (h *Host) Start() (*os.File, error) {
	cmd := exec.Command(h.Shell, "--rcfile", h.RCFile, "-i")
	cmd.Dir = h.Dir
	cmd.Env = h.Env

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start pty-hosted shell [%s]", h.Shell)
	}

	h.mu.Lock()
	h.cmd = cmd
	h.ptmx = ptmx
	h.mu.Unlock()

	return ptmx, nil
}

// WatchResize copies SIGWINCH-driven size changes on from (typically os.Stdin) into the PTY
// until stop is closed. Call it after Start once the caller has its own terminal in raw mode.
func (h *Host) WatchResize(from *os.File, stop <-chan struct{}) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)

	resize := func() {
		h.mu.Lock()
		ptmx := h.ptmx
		h.mu.Unlock()
		if ptmx == nil {
			return
		}
		if err := inheritSize(from, ptmx); err != nil && h.Log != nil {
			h.Log.Debug("pty resize failed", zap.Error(err))
		}
	}

	resize()
	for {
		select {
		case <-ch:
			resize()
		case <-stop:
			signal.Stop(ch)
			return
		}
	}
}

// Wait blocks until the shell process exits.
func (h *Host) Wait() error {
	h.mu.Lock()
	cmd := h.cmd
	h.mu.Unlock()
	if cmd == nil {
		return errors.New("pty host not started")
	}
	return cmd.Wait()
}

// Close releases the PTY master end.
func (h *Host) Close() error {
	h.mu.Lock()
	ptmx := h.ptmx
	h.mu.Unlock()
	if ptmx == nil {
		return nil
	}
	return ptmx.Close()
}

type winsize struct {
	rows, cols, x, y uint16
}

func inheritSize(from, to *os.File) error {
	ws := &winsize{}
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, from.Fd(), syscall.TIOCGWINSZ, uintptr(unsafe.Pointer(ws)))
	if errno != 0 {
		return errno
	}
	_, _, errno = syscall.Syscall(syscall.SYS_IOCTL, to.Fd(), syscall.TIOCSWINSZ, uintptr(unsafe.Pointer(ws)))
	if errno != 0 {
		return errno
	}
	return nil
}

// Pipe copies bytes bidirectionally between the PTY and the given reader/writer pair until
// either side reaches EOF, matching the pattern in banksean-sand's container Exec (io.Copy in
// both directions over a pty.Start result).
func Pipe(ptmx *os.File, in io.Reader, out io.Writer) {
	done := make(chan struct{}, 2)
	go func() {
		io.Copy(ptmx, in)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(out, ptmx)
		done <- struct{}{}
	}()
	<-done
}
