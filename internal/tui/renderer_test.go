// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tui

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/codeactual/devenv/internal/activity"
)

func TestActionWordReflectsOutcome(t *testing.T) {
	require.Equal(t, "Building", actionWord(activity.KindBuild, false, ""))
	require.Equal(t, "Done", actionWord(activity.KindBuild, true, activity.OutcomeSuccess))
	require.Equal(t, "Failed", actionWord(activity.KindBuild, true, activity.OutcomeFailed))
	require.Equal(t, "Cancelled", actionWord(activity.KindBuild, true, activity.OutcomeCancelled))
	require.Equal(t, "Downloading", actionWord(activity.KindFetch, false, ""))
}

func TestShortenNameKeepsShortNamesAsIs(t *testing.T) {
	require.Equal(t, "hello", shortenName("hello", 80))
}

func TestShortenNameShortensNixStorePaths(t *testing.T) {
	name := "/nix/store/abcdefghijklmnop-hello-1.0/bin/hello"
	got := shortenName(name, 60)
	require.Contains(t, got, "/nix/store/…")
	require.LessOrEqual(t, len(got), 41)
}

func TestShortenNameFallsBackToLeadingEllipsis(t *testing.T) {
	name := "a-very-long-plain-name-with-no-store-path-segment-at-all-whatsoever"
	got := shortenName(name, 20)
	require.True(t, len(got) <= 20 || got[0] == '…')
}

func TestProgressBarLineClampsWidth(t *testing.T) {
	r := &Renderer{model: NewModel()}
	current := uint64(50)
	total := uint64(100)
	n := Node{Current: &current, Total: &total}

	line := r.progressBarLine(n, 1000)
	// width is clamped to 100, plus brackets/stats text
	require.LessOrEqual(t, utf8.RuneCountInString(line), 130)
	require.Contains(t, line, "50/100")
}

func TestProgressBarLineHandlesUnknownTotal(t *testing.T) {
	r := &Renderer{model: NewModel()}
	line := r.progressBarLine(Node{}, 80)
	require.Contains(t, line, "?")
}

func TestStripANSIRemovesEscapeCodes(t *testing.T) {
	require.Equal(t, "hello", stripANSI("\x1b[31mhello\x1b[0m"))
}
