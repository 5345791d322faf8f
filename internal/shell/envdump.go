// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package shell

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ParseEnvDump reads a NAME=VALUE-per-line file, the format `env` and cmd.Env both use, into a
// map. It's how the rcfile's reload keybinding hands before/after environment snapshots to the
// devenv binary's "internal envdiff" subcommand without reimplementing env parsing in bash.
func ParseEnvDump(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open env dump [%s]", path)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		out[line[:eq]] = line[eq+1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to scan env dump [%s]", path)
	}
	return out, nil
}

// InverseScript renders the bash snippet that reverses encoded back to the environment it was
// computed from: `export` for every Prev binding, `unset` for every New one. It is what
// `devenv internal envdiff inverse-script` prints for the rcfile's `eval "$(...)"` call.
func InverseScript(encoded string) (string, error) {
	d, err := DecodeDiffVar(encoded)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for name, val := range d.Prev {
		b.WriteString("export ")
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(shellQuote(val))
		b.WriteString("\n")
	}
	for _, name := range d.New {
		b.WriteString("unset ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	return b.String(), nil
}
