// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package watch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeactual/devenv/internal/cage/os/file/watcher"
	"github.com/codeactual/devenv/internal/watch"
)

func TestDebouncedBurstYieldsOneEvent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.nix")
	require.NoError(t, os.WriteFile(target, []byte("1"), 0o644))

	w := &watcher.Fsnotify{}
	set, err := watch.New(w, watch.Config{
		Paths:      []string{dir},
		Extensions: []string{".nix"},
		Debounce:   20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer set.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte("burst"), 0o644))
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case e := <-set.Events():
		resolved, _ := filepath.EvalSymlinks(target)
		require.Equal(t, resolved, e.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced event")
	}

	select {
	case e := <-set.Events():
		t.Fatalf("burst produced a second event: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIgnoredExtensionIsFiltered(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("1"), 0o644))

	w := &watcher.Fsnotify{}
	set, err := watch.New(w, watch.Config{
		Paths:      []string{dir},
		Extensions: []string{".nix"},
		Debounce:   10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer set.Close()

	require.NoError(t, os.WriteFile(target, []byte("2"), 0o644))

	select {
	case e := <-set.Events():
		t.Fatalf("unexpected event for filtered extension: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}
