// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// RCFileConfig carries what WriteRCFile needs to render a self-contained rcfile: the env
// script to source (written separately by the coordinator on file-change detection), the
// devenv binary the reload keybinding shells out to for diff computation
// (Go owns the gzip+base64 encoding; bash only orchestrates when it runs), and where the
// reload keybinding should bind.
type RCFileConfig struct {
	DevenvBin     string // path to the running devenv binary, for the "internal envdiff" subcommand
	EnvScriptPath string // generated devenv environment script, sourced on (re)load
	ReloadKey     string // bind -x sequence, e.g. `\C-r`; empty defaults to Ctrl+R
}

const defaultReloadKey = `"\C-r"`

// WriteRCFile renders the bash rcfile and writes it to path.
//
// The generated script:
//  1. captures the base (pre-devenv) environment via `env`,
//  2. sources cfg.EnvScriptPath,
//  3. appends filtered PATH/XDG_DATA_DIRS (nix store entries stripped from the pre-existing
//     values so re-sourcing never accumulates duplicates),
//  4. computes the diff against the base snapshot via `devenv internal envdiff encode` and
//     stores it, gzip+base64 encoded, in _DEVENV_DIFF,
//  5. installs a bind -x reload keybinding that replays steps 1-4 in place after first
//     applying the inverse of the previous diff, and
//  6. installs a PROMPT_COMMAND hook restoring $_DEVENV_PATH.
//
// The diff itself is computed entirely by the devenv binary (internal/shell's Compute/Inverse/
// EncodeDiffVar/DecodeDiffVar) so the rcfile only needs to shuttle environment snapshots
// through temp files; it never reimplements the gzip+base64 encoding in bash.
func WriteRCFile(path string, cfg RCFileConfig) error {
	reloadKey := cfg.ReloadKey
	if reloadKey == "" {
		reloadKey = defaultReloadKey
	}

	var b strings.Builder

	fmt.Fprintln(&b, "# Generated by devenv; do not edit by hand.")
	fmt.Fprintln(&b, "[ -f ~/.bashrc ] && source ~/.bashrc")
	fmt.Fprintln(&b, "")
	fmt.Fprint(&b, DisableHistoryScript)
	fmt.Fprintf(&b, "_DEVENV_BIN=%q\n", cfg.DevenvBin)
	fmt.Fprintln(&b, "")
	fmt.Fprintln(&b, "__devenv_reload() {")
	fmt.Fprintln(&b, "  set +o history")
	fmt.Fprintln(&b, "  if [ -n \"$_DEVENV_DIFF\" ]; then")
	fmt.Fprintln(&b, "    eval \"$(\"$_DEVENV_BIN\" internal envdiff inverse-script \"$_DEVENV_DIFF\")\"")
	fmt.Fprintln(&b, "  fi")
	fmt.Fprintln(&b, "  __devenv_before=\"$(mktemp)\"")
	fmt.Fprintln(&b, "  __devenv_after=\"$(mktemp)\"")
	fmt.Fprintln(&b, "  env > \"$__devenv_before\"")
	fmt.Fprintln(&b, "  __devenv_base_path=\"$PATH\"")
	fmt.Fprintln(&b, "  __devenv_base_xdg=\"$XDG_DATA_DIRS\"")
	fmt.Fprintf(&b, "  source %q\n", cfg.EnvScriptPath)
	fmt.Fprintln(&b, "  export PATH=\"$PATH:$(echo \"$__devenv_base_path\" | tr ':' '\\n' | grep -v '/nix/store/' | paste -sd: -)\"")
	fmt.Fprintln(&b, "  export XDG_DATA_DIRS=\"$XDG_DATA_DIRS:$(echo \"$__devenv_base_xdg\" | tr ':' '\\n' | grep -v '/nix/store/' | paste -sd: -)\"")
	fmt.Fprintln(&b, "  export _DEVENV_PATH=\"$PATH\"")
	fmt.Fprintln(&b, "  env > \"$__devenv_after\"")
	fmt.Fprintln(&b, "  export _DEVENV_DIFF=\"$(\"$_DEVENV_BIN\" internal envdiff encode \"$__devenv_before\" \"$__devenv_after\")\"")
	fmt.Fprintln(&b, "  rm -f \"$__devenv_before\" \"$__devenv_after\"")
	fmt.Fprintln(&b, "  set -o history")
	fmt.Fprintln(&b, "}")
	fmt.Fprintln(&b, "")
	fmt.Fprintln(&b, "__devenv_reload")
	fmt.Fprintf(&b, "bind -x '%s: __devenv_reload'\n", reloadKey)
	fmt.Fprintln(&b, "")
	fmt.Fprintln(&b, "__devenv_prompt_command() {")
	fmt.Fprintln(&b, "  if [ -n \"$_DEVENV_PATH\" ] && [ \"$PATH\" != \"$_DEVENV_PATH\" ]; then")
	fmt.Fprintln(&b, "    export PATH=\"$_DEVENV_PATH\"")
	fmt.Fprintln(&b, "  fi")
	fmt.Fprintln(&b, "}")
	fmt.Fprintln(&b, `PROMPT_COMMAND="__devenv_prompt_command${PROMPT_COMMAND:+; $PROMPT_COMMAND}"`)
	fmt.Fprintln(&b, "")
	fmt.Fprint(&b, DrainSequenceScript())

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return errors.Wrapf(err, "failed to write rcfile [%s]", path)
	}
	return nil
}

// EnvScriptPath returns the canonical path the coordinator writes the sourced environment
// script to, inside runDir, so WriteRCFile's caller and the file-watcher that regenerates it
// on change agree without passing the path through a side channel.
func EnvScriptPath(runDir string) string {
	return filepath.Join(runDir, "devenv-env.sh")
}

// WriteEnvScript renders the sourced environment script itself: a sequence of `export
// NAME=VALUE` lines for the evaluated devenv environment. The coordinator rewrites this file
// whenever a watched input changes; the rcfile's reload keybinding re-sources it in place.
func WriteEnvScript(path string, env map[string]string) error {
	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}
	sortStrings(names)

	var b strings.Builder
	fmt.Fprintln(&b, "# Generated by devenv; sourced by the hot-reload shell rcfile.")
	for _, name := range names {
		fmt.Fprintf(&b, "export %s=%s\n", name, shellQuote(env[name]))
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return errors.Wrapf(err, "failed to write env script [%s]", path)
	}
	return nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
