// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package io

import (
	"fmt"
	"io"
	"os"
)

// CloseOrStderr closes c and, on error, writes a message to stderr instead of panicking.
//
// It is intended for use in defer statements where the caller has already committed to
// returning a more specific error and cannot also propagate a close failure.
func CloseOrStderr(c io.Closer, name string) {
	if err := c.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close [%s]: %+v\n", name, err)
	}
}
