// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cage_time "github.com/codeactual/devenv/internal/cage/time"
	"github.com/codeactual/devenv/internal/cache"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := cache.Open(filepath.Join(dir, "eval-cache.sqlite"), cage_time.RealClock{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestColdBuildWarmReplay exercises a cold write followed by a warm cache hit, a
// metadata-only mtime touch that still hits, and a content change that misses.
func TestColdBuildWarmReplay(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.txt")

	require.NoError(t, os.WriteFile(aPath, []byte("hello\n"), 0o644))
	fi, err := os.Stat(aPath)
	require.NoError(t, err)

	s := newStore(t)
	argv := []string{"nix", "build", ".#shell"}
	env := map[string]string{"USER": "alice"}

	inputs := []cache.Input{
		{Kind: cache.InputFile, Key: aPath, ContentHash: cache.HashString("hello\n"), MTimeUnix: fi.ModTime().Unix()},
		{Kind: cache.InputEnv, Key: "USER", ContentHash: cache.HashString("alice")},
	}

	require.NoError(t, s.Write(argv, []byte("O"), nil, inputs))

	res, err := s.CachedOutput(argv, envLookup(env))
	require.NoError(t, err)
	require.True(t, res.Hit)
	require.Equal(t, []byte("O"), res.Output)

	// S2: touch mtime only, same content -> still a hit, stored mtime advances.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(aPath, future, future))

	res, err = s.CachedOutput(argv, envLookup(env))
	require.NoError(t, err)
	require.True(t, res.Hit, "mtime-only change must not invalidate the cache")

	// S3: change file content -> miss.
	require.NoError(t, os.WriteFile(aPath, []byte("goodbye\n"), 0o644))

	res, err = s.CachedOutput(argv, envLookup(env))
	require.NoError(t, err)
	require.False(t, res.Hit, "content change must invalidate the cache")
}

func TestEnvInputRemovedIsMiss(t *testing.T) {
	s := newStore(t)
	argv := []string{"echo", "hi"}

	require.NoError(t, s.Write(argv, []byte("out"), nil, []cache.Input{
		{Kind: cache.InputEnv, Key: "TOKEN", ContentHash: cache.HashString("secret")},
	}))

	res, err := s.CachedOutput(argv, envLookup(map[string]string{}))
	require.NoError(t, err)
	require.False(t, res.Hit)
}
