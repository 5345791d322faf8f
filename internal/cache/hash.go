// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sort"
	"strings"
)

// hashBytes returns the lowercase hex SHA-256 digest of b.
func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// hashString is a convenience wrapper over hashBytes for string inputs, used for env values:
// the hash of its value, or of the empty string when the variable is unset.
func hashString(s string) string {
	return hashBytes([]byte(s))
}

// HashString exposes the package's content-hash function so collectors (the eval log
// bridge's observation stream, §4.2) can build Input values with the exact same digest the
// store itself will recompute during lookup.
func HashString(s string) string {
	return hashString(s)
}

// hashFile returns the content hash of path: the SHA-256 of the file's bytes if it is a
// regular file, or the SHA-256 of its sorted child names (one per line) if it is a
// directory. An empty string is returned, never an
// error, when the path cannot be read -- callers treat that as "content_hash is empty iff
// the input was unreadable at capture" per the cache-row invariant.
func hashFile(path string, isDir bool) string {
	if isDir {
		entries, err := os.ReadDir(path)
		if err != nil {
			return ""
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		return hashString(strings.Join(names, "\n"))
	}

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashFile exposes the package's file/directory content-hash function for the same reason
// as HashString: callers outside this package (e.g. cmd/devenv/eval) need to build Input
// values the store will recognize as unchanged on the next lookup.
func HashFile(path string, isDir bool) string {
	return hashFile(path, isDir)
}

// hashInputs combines the per-input content hashes (already sorted by (kind, key) per the
// §3.2 invariant) into the single input-hash stored alongside a command row.
func hashInputs(inputs []Input) string {
	h := sha256.New()
	for _, in := range inputs {
		io.WriteString(h, string(in.Kind))
		io.WriteString(h, "\x00")
		io.WriteString(h, in.Key)
		io.WriteString(h, "\x00")
		io.WriteString(h, in.ContentHash)
		io.WriteString(h, "\x00")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// fingerprint hashes an argv (including flags) into the command's cache key.
func fingerprint(argv []string) string {
	return hashString(strings.Join(argv, "\x00"))
}
