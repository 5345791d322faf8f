// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
)

// NotifySocketPath returns the deterministic per-process socket path, rooted under runDir
// (typically an XDG runtime directory).
func NotifySocketPath(runDir, processName string) string {
	return filepath.Join(runDir, fmt.Sprintf("%s.notify.sock", processName))
}

func removeStaleSocket(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
