// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package supervisor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeactual/devenv/internal/supervisor"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// TestGiveUpAfterBurst verifies that a process which keeps crashing gives up once its
// restart rate limit is exhausted within the configured interval.
func TestGiveUpAfterBurst(t *testing.T) {
	cfg := supervisor.Config{
		Restart:              supervisor.RestartAlways,
		RestartLimitBurst:    5,
		RestartLimitInterval: 10 * time.Second,
	}
	m := supervisor.NewMachine(cfg, epoch)

	offsets := []time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond}
	for _, off := range offsets {
		now := epoch.Add(off)
		action := m.OnEvent(supervisor.Event{Kind: supervisor.EventProcessExit}, now)
		require.Equal(t, supervisor.ActionRestart, action.Kind)
		m.OnRestartComplete(now)
	}

	sixth := epoch.Add(100 * time.Millisecond)
	action := m.OnEvent(supervisor.Event{Kind: supervisor.EventProcessExit}, sixth)
	require.Equal(t, supervisor.ActionGiveUp, action.Kind)
	require.Equal(t, supervisor.GaveUp, m.Phase())
}

func TestFileChangeBypassesRateLimit(t *testing.T) {
	cfg := supervisor.Config{
		Restart:              supervisor.RestartAlways,
		RestartLimitBurst:    1,
		RestartLimitInterval: time.Minute,
	}
	m := supervisor.NewMachine(cfg, epoch)

	// Exhaust the burst via process exits.
	action := m.OnEvent(supervisor.Event{Kind: supervisor.EventProcessExit}, epoch)
	require.Equal(t, supervisor.ActionRestart, action.Kind)
	m.OnRestartComplete(epoch)

	action = m.OnEvent(supervisor.Event{Kind: supervisor.EventProcessExit}, epoch.Add(time.Second))
	require.Equal(t, supervisor.ActionGiveUp, action.Kind)

	// FileChange still restarts even from GaveUp, uncounted.
	for i := 0; i < 10; i++ {
		action = m.OnEvent(supervisor.Event{Kind: supervisor.EventFileChange}, epoch.Add(time.Duration(i)*time.Second))
		require.Equal(t, supervisor.ActionRestart, action.Kind)
	}
}

func TestReadyArmsWatchdogAndClearsStartupDeadline(t *testing.T) {
	cfg := supervisor.Config{
		Watchdog:       &supervisor.Watchdog{Timeout: 5 * time.Second, RequireReady: true},
		StartupTimeout: 2 * time.Second,
	}
	m := supervisor.NewMachine(cfg, epoch)

	_, ok := m.NextDeadline()
	require.True(t, ok, "startup deadline should be armed before Ready")

	action := m.OnEvent(supervisor.Event{Kind: supervisor.EventReady}, epoch.Add(time.Second))
	require.Equal(t, supervisor.ActionNone, action.Kind)
	require.Equal(t, supervisor.Ready, m.Phase())

	deadline, ok := m.NextDeadline()
	require.True(t, ok)
	require.Equal(t, epoch.Add(time.Second).Add(5*time.Second), deadline)
}

func TestRestartNeverIgnoresProcessExit(t *testing.T) {
	m := supervisor.NewMachine(supervisor.Config{Restart: supervisor.RestartNever}, epoch)
	action := m.OnEvent(supervisor.Event{Kind: supervisor.EventProcessExit}, epoch)
	require.Equal(t, supervisor.ActionNone, action.Kind)
}

func TestOnFailureIgnoresSuccessfulExit(t *testing.T) {
	m := supervisor.NewMachine(supervisor.Config{Restart: supervisor.RestartOnFailure}, epoch)
	action := m.OnEvent(supervisor.Event{Kind: supervisor.EventProcessExit, ExitSuccess: true}, epoch)
	require.Equal(t, supervisor.ActionNone, action.Kind)
}

// TestRateLimitNeverExceedsBurstInAnyWindow verifies that, across any
// sequence of events, restarts within any RestartLimitInterval window never exceed
// RestartLimitBurst (FileChange excluded).
func TestRateLimitNeverExceedsBurstInAnyWindow(t *testing.T) {
	cfg := supervisor.Config{
		Restart:              supervisor.RestartAlways,
		RestartLimitBurst:    3,
		RestartLimitInterval: 5 * time.Second,
	}
	m := supervisor.NewMachine(cfg, epoch)

	var restarts []time.Time
	for i := 0; i < 50; i++ {
		now := epoch.Add(time.Duration(i) * 500 * time.Millisecond)
		action := m.OnEvent(supervisor.Event{Kind: supervisor.EventProcessExit}, now)
		if action.Kind == supervisor.ActionRestart {
			restarts = append(restarts, now)
			m.OnRestartComplete(now)
		} else {
			break // GaveUp is terminal until external intervention
		}
	}

	for i := range restarts {
		count := 0
		for j := i; j < len(restarts) && restarts[j].Sub(restarts[i]) < cfg.RestartLimitInterval; j++ {
			count++
		}
		require.LessOrEqual(t, count, cfg.RestartLimitBurst)
	}
}
