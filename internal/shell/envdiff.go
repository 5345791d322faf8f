// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package shell

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// IgnoredVars is the exhaustive set of shell-internal variables that must never leak into a
// diff.
var IgnoredVars = map[string]bool{
	"PWD":              true,
	"OLDPWD":           true,
	"SHLVL":            true,
	"HISTCMD":          true,
	"PS1":              true,
	"PS2":              true,
	"PS3":              true,
	"PS4":              true,
	"_":                true,
	"BASH":             true,
	"BASH_VERSION":     true,
	"BASHOPTS":         true,
	"BASHPID":          true,
	"RANDOM":           true,
	"SECONDS":          true,
	"LINENO":           true,
	"PPID":             true,
	"COMP_WORDBREAKS":  true,
	"_DEVENV_DIFF":     true,
}

// Diff is the parsed form of an environment transition: bindings that must be restored
// (Prev) on reload, and variables that must be unset because they did not exist before
// (New) -- the "P:" and "N:" encoding.
type Diff struct {
	Prev map[string]string // variables present before, to restore via `declare -x NAME=VALUE`
	New  []string          // variables absent before but present after, to `unset`
}

// Compute derives the diff from before -> after, skipping every name in IgnoredVars.
func Compute(before, after map[string]string) Diff {
	d := Diff{Prev: make(map[string]string)}

	for name, val := range before {
		if IgnoredVars[name] {
			continue
		}
		if afterVal, ok := after[name]; !ok || afterVal != val {
			d.Prev[name] = val
		}
	}

	for name := range after {
		if IgnoredVars[name] {
			continue
		}
		if _, ok := before[name]; !ok {
			d.New = append(d.New, name)
		}
	}
	sort.Strings(d.New)

	return d
}

// Apply reproduces `after` from `before` by applying d the way the reload keybinding's
// generated shell code does: restore every Prev binding, then apply every other key in
// after (the "appends the source of the fresh script" step is represented here simply as
// the caller supplying the already-sourced `after` map). This is primarily used by tests to
// verify the forward/reverse round-trip property.
func Apply(before map[string]string, d Diff, after map[string]string) map[string]string {
	out := make(map[string]string, len(before))
	for k, v := range before {
		out[k] = v
	}
	for k, v := range after {
		if IgnoredVars[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// Inverse applies d in reverse against a state produced by the forward direction: restores
// every Prev binding and unsets every New variable, recovering (a view equivalent to)
// `before` even when applied to any other state of the base environment.
func Inverse(state map[string]string, d Diff) map[string]string {
	out := make(map[string]string, len(state))
	for k, v := range state {
		out[k] = v
	}
	for k, v := range d.Prev {
		out[k] = v
	}
	for _, k := range d.New {
		delete(out, k)
	}
	return out
}

// EncodeScript renders d as newline-separated "P:"/"N:" lines,
// one "P:declare -x NAME=VALUE" restoration line per Prev binding and one "N:NAME" line
// per New variable.
func EncodeScript(d Diff) string {
	var b strings.Builder
	names := make([]string, 0, len(d.Prev))
	for name := range d.Prev {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b.WriteString("P:declare -x ")
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(shellQuote(d.Prev[name]))
		b.WriteString("\n")
	}
	for _, name := range d.New {
		b.WriteString("N:")
		b.WriteString(name)
		b.WriteString("\n")
	}

	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// EncodeDiffVar gzip-compresses and base64-encodes d's script form for storage in the single
// exported `_DEVENV_DIFF` variable.
func EncodeDiffVar(d Diff) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := io.WriteString(gz, EncodeScript(d)); err != nil {
		return "", errors.Wrap(err, "failed to gzip env diff")
	}
	if err := gz.Close(); err != nil {
		return "", errors.Wrap(err, "failed to finalize gzipped env diff")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDiffVar reverses EncodeDiffVar, parsing the "P:"/"N:" lines back into a Diff.
func DecodeDiffVar(encoded string) (Diff, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Diff{}, errors.Wrap(err, "failed to base64-decode env diff")
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return Diff{}, errors.Wrap(err, "failed to open gzip reader for env diff")
	}
	defer gz.Close()

	decompressed, err := io.ReadAll(gz)
	if err != nil {
		return Diff{}, errors.Wrap(err, "failed to decompress env diff")
	}

	d := Diff{Prev: make(map[string]string)}
	for _, line := range strings.Split(string(decompressed), "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "P:"):
			assign := strings.TrimPrefix(line, "P:declare -x ")
			eq := strings.IndexByte(assign, '=')
			if eq < 0 {
				continue
			}
			d.Prev[assign[:eq]] = unshellQuote(assign[eq+1:])
		case strings.HasPrefix(line, "N:"):
			d.New = append(d.New, strings.TrimPrefix(line, "N:"))
		}
	}

	return d, nil
}

func unshellQuote(s string) string {
	s = strings.TrimPrefix(s, "'")
	s = strings.TrimSuffix(s, "'")
	return strings.ReplaceAll(s, `'\''`, "'")
}
