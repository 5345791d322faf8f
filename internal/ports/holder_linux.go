// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build linux

package ports

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LookupHolder does a best-effort scan of /proc/net/{tcp,tcp6} to identify which inode (and
// therefore, loosely, "something") holds the given listening port. It never returns an
// error; an empty string just means "unknown".
func LookupHolder(port int) string {
	for _, path := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		if inode, ok := scanProcNetTCP(path, port); ok {
			return fmt.Sprintf("inode %s", inode)
		}
	}
	return ""
}

// scanProcNetTCP looks for a line in local_address matching the port in LISTEN state (0A)
// and returns its inode column.
func scanProcNetTCP(path string, port int) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	wantHex := strings.ToUpper(strconv.FormatInt(int64(port), 16))
	if len(wantHex) < 4 {
		wantHex = strings.Repeat("0", 4-len(wantHex)) + wantHex
	}

	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue // header line
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}
		localAddr := fields[1] // "ADDR:PORT" in hex
		state := fields[3]
		parts := strings.Split(localAddr, ":")
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(parts[1], wantHex) && state == "0A" { // TCP_LISTEN
			return fields[9], true
		}
	}
	return "", false
}
