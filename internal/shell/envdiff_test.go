// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package shell_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeactual/devenv/internal/shell"
)

// TestReloadPathReplacesPath verifies that reloading with an environment prepending a new
// PATH entry replaces the prior prepended entry rather than accumulating both.
func TestReloadPathReplacesPath(t *testing.T) {
	base := map[string]string{"PATH": "/usr/bin"}
	afterFirstSource := map[string]string{"PATH": "/nix/store/aaa/bin:/usr/bin"}

	forward := shell.Compute(base, afterFirstSource)
	reloaded := map[string]string{"PATH": "/nix/store/bbb/bin:/usr/bin"}

	// Simulate the reload keybinding: apply the inverse of the first diff to recover base,
	// then apply the newly-sourced env.
	restored := shell.Inverse(afterFirstSource, forward)
	require.Equal(t, base["PATH"], restored["PATH"])

	final := shell.Apply(restored, shell.Compute(restored, reloaded), reloaded)
	require.Equal(t, "/nix/store/bbb/bin:/usr/bin", final["PATH"])
	require.NotContains(t, final["PATH"], "/nix/store/aaa/bin")
}

// TestEnvDiffRoundTrip verifies that applying the forward diff to the base environment
// reproduces the target environment, and that applying the reverse diff to that result
// restores base's bindings and removes the variable the forward diff added.
func TestEnvDiffRoundTrip(t *testing.T) {
	base := map[string]string{
		"HOME": "/home/dev",
		"PATH": "/usr/bin",
		"PWD":  "/tmp/ignored",
	}
	devenvEnv := map[string]string{
		"HOME":         "/home/dev",
		"PATH":         "/nix/store/xyz/bin:/usr/bin",
		"DEVENV_ROOT":  "/proj",
		"PWD":          "/tmp/still-ignored",
	}

	d := shell.Compute(base, devenvEnv)
	forwardApplied := shell.Apply(base, d, devenvEnv)

	require.Equal(t, devenvEnv["PATH"], forwardApplied["PATH"])
	require.Equal(t, devenvEnv["DEVENV_ROOT"], forwardApplied["DEVENV_ROOT"])

	back := shell.Inverse(forwardApplied, d)
	require.Equal(t, base["HOME"], back["HOME"])
	require.Equal(t, base["PATH"], back["PATH"])
	require.NotContains(t, back, "DEVENV_ROOT")
}

func TestIgnoredVarsNeverAppearInDiff(t *testing.T) {
	before := map[string]string{"PWD": "/a", "SHLVL": "1"}
	after := map[string]string{"PWD": "/b", "SHLVL": "2", "PS1": "$ "}

	d := shell.Compute(before, after)
	require.Empty(t, d.Prev)
	require.Empty(t, d.New)
}

func TestEncodeDecodeDiffVarRoundTrip(t *testing.T) {
	d := shell.Diff{
		Prev: map[string]string{"PATH": "/usr/bin", "EMPTY": ""},
		New:  []string{"DEVENV_ROOT"},
	}

	encoded, err := shell.EncodeDiffVar(d)
	require.NoError(t, err)

	decoded, err := shell.DecodeDiffVar(encoded)
	require.NoError(t, err)
	require.Equal(t, d.Prev, decoded.Prev)
	require.Equal(t, d.New, decoded.New)
}
