// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"regexp"
	"strings"
)

// storeHashLen is the fixed length of a store path's content-addressed hash component, used
// to locate the human-readable name that follows it (format: <32-char-hash>-<name>).
const storeHashLen = 32

func extractNixName(path string, stripDrv bool) string {
	if stripDrv {
		path = strings.TrimSuffix(path, ".drv")
	}

	filename := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		filename = path[idx+1:]
	}

	if len(filename) > storeHashLen+1 && filename[storeHashLen] == '-' {
		return filename[storeHashLen+1:]
	}

	return filename
}

// ExtractDerivationName returns a human-readable name for a .drv path.
func ExtractDerivationName(derivationPath string) string {
	return extractNixName(derivationPath, true)
}

// ExtractPackageName returns a human-readable name for a store path.
func ExtractPackageName(storePath string) string {
	return extractNixName(storePath, false)
}

var ansiRegexp = regexp.MustCompile("\x1b\\[[0-9;]*m")

// StripANSI removes ANSI SGR escape sequences from s.
func StripANSI(s string) string {
	return ansiRegexp.ReplaceAllString(s, "")
}

// ParseNixError extracts (summary, details) from an evaluator error message. Nix-style
// errors stack a trace above the final "error: <msg>" line; summary is that final line,
// details is the full original message (ANSI intact) when there was anything above it.
func ParseNixError(msg string) (summary string, details string, hasDetails bool) {
	stripped := StripANSI(msg)

	idx := strings.LastIndex(stripped, "error:")
	if idx < 0 {
		return msg, "", false
	}

	summary = strings.TrimSpace(stripped[idx:])
	before := strings.TrimSpace(stripped[:idx])

	if before == "" || before == "error:" {
		return summary, "", false
	}
	return summary, msg, true
}
