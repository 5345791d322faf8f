// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeactual/devenv/internal/config"
)

func TestFinalizeAppliesDefaults(t *testing.T) {
	c := config.Config{
		Process: []config.Process{{Name: "web", Exec: "/bin/true"}},
	}
	require.NoError(t, config.Finalize(&c))
	require.Equal(t, config.DefaultCacheDir, c.Data.CacheDir)
	require.Equal(t, config.DefaultRunDir, c.Data.RunDir)
	require.Equal(t, config.DefaultShell, c.Shell.Path)
	require.Equal(t, "on_failure", c.Process[0].Restart)
	require.Equal(t, config.DefaultRestartLimitBurst, c.Process[0].RestartLimitBurst)
}

func TestFinalizeRejectsDuplicateProcessName(t *testing.T) {
	c := config.Config{
		Process: []config.Process{
			{Name: "web", Exec: "/bin/true"},
			{Name: "web", Exec: "/bin/true"},
		},
	}
	require.Error(t, config.Finalize(&c))
}

func TestFinalizeRejectsMissingExec(t *testing.T) {
	c := config.Config{Process: []config.Process{{Name: "web"}}}
	require.Error(t, config.Finalize(&c))
}

func TestFinalizeRejectsInvalidRestartValue(t *testing.T) {
	c := config.Config{Process: []config.Process{{Name: "web", Exec: "/bin/true", Restart: "sometimes"}}}
	require.Error(t, config.Finalize(&c))
}

func TestFinalizeRejectsWatchdogWithoutTimeout(t *testing.T) {
	c := config.Config{
		Process: []config.Process{{Name: "web", Exec: "/bin/true", Watchdog: &config.WatchdogConfig{}}},
	}
	require.Error(t, config.Finalize(&c))
}

func TestFinalizeParsesWatchdogTimeout(t *testing.T) {
	c := config.Config{
		Process: []config.Process{{
			Name: "web", Exec: "/bin/true",
			Watchdog: &config.WatchdogConfig{Timeout: "5s"},
		}},
	}
	require.NoError(t, config.Finalize(&c))
	require.Equal(t, int64(5e9), int64(c.Process[0].Watchdog.GetTimeout()))
}

func TestFinalizeRejectsUnknownAutoStartProcess(t *testing.T) {
	c := config.Config{
		Process:          []config.Process{{Name: "web", Exec: "/bin/true"}},
		AutoStartProcess: []string{"missing"},
	}
	require.Error(t, config.Finalize(&c))
}

func TestFinalizeRejectsDuplicateTaskName(t *testing.T) {
	c := config.Config{
		Task: []config.Task{{Name: "app:build"}, {Name: "app:build"}},
	}
	require.Error(t, config.Finalize(&c))
}

func TestFinalizeDefaultsWatchDebounce(t *testing.T) {
	c := config.Config{}
	require.NoError(t, config.Finalize(&c))
	require.Equal(t, config.DefaultWatchDebounce, c.Watch.Debounce)
	require.Equal(t, int64(100e6), int64(c.Watch.GetDebounce()))
}
