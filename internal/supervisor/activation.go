// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package supervisor

import (
	"fmt"
	"net"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// listenFDsStart is the systemd socket-activation convention: inherited descriptors begin
// at fd 3.
const listenFDsStart = 3

// ActivationSockets holds pre-bound listeners to hand to a child process via socket
// activation.
type ActivationSockets struct {
	listeners []net.Listener
	files     []*os.File
}

// Bind listens on each addr ("tcp", host:port strings) and retains the listeners for
// ApplyTo. Errors close any sockets already bound in this call.
func Bind(addrs []string) (*ActivationSockets, error) {
	as := &ActivationSockets{}
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			as.Close()
			return nil, errors.Wrapf(err, "failed to bind activation socket [%s]", addr)
		}
		as.listeners = append(as.listeners, ln)
	}
	return as, nil
}

// ApplyTo wires the bound listeners into cmd: each listener's underlying file descriptor is
// cleared of FD_CLOEXEC and appended to cmd.ExtraFiles (which os/exec remaps to consecutive
// descriptors starting at 3, matching listenFDsStart), and LISTEN_FDS is set in cmd.Env.
// LISTEN_PID is deliberately NOT set here -- it must name the child's actual PID, which is
// only known once the child is forked, so it is injected by a pre-exec hook
// (see reexec.go) rather than here.
func (as *ActivationSockets) ApplyTo(cmd *exec.Cmd) error {
	if len(as.listeners) == 0 {
		return nil
	}

	for _, ln := range as.listeners {
		f, err := fileFromListener(ln)
		if err != nil {
			return errors.Wrap(err, "failed to extract file descriptor from activation listener")
		}
		as.files = append(as.files, f)
		cmd.ExtraFiles = append(cmd.ExtraFiles, f)
	}

	cmd.Env = append(cmd.Env, fmt.Sprintf("LISTEN_FDS=%d", len(as.listeners)))
	return nil
}

// Close releases every bound listener and duplicated file.
func (as *ActivationSockets) Close() {
	for _, f := range as.files {
		f.Close()
	}
	for _, ln := range as.listeners {
		ln.Close()
	}
}

func fileFromListener(ln net.Listener) (*os.File, error) {
	type fileListener interface {
		File() (*os.File, error)
	}
	fl, ok := ln.(fileListener)
	if !ok {
		return nil, errors.Errorf("listener type %T does not support File()", ln)
	}
	return fl.File()
}
