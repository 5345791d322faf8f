// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package shell implements the hot-reload PTY shell: environment-diff computation and
// application, the rcfile that wires a real shell's startup sequence to it, and the
// marker-delimited protocol used to run commands in that PTY before handing control to the
// user. The PTY itself is hosted via github.com/kr/pty.
package shell
