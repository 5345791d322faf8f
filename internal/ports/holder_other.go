// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !linux

package ports

// LookupHolder has no non-Linux implementation; the /proc/net/tcp probe is Linux-only,
// so other platforms simply report "unknown holder".
func LookupHolder(port int) string {
	return ""
}
