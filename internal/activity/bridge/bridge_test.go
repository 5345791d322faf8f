// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cage_activity "github.com/codeactual/devenv/internal/activity"
)

func TestExtractDerivationName(t *testing.T) {
	name := ExtractDerivationName("/nix/store/abcdefghijklmnopqrstuvwxyz012345-hello-1.0.drv")
	assert.Equal(t, "hello-1.0", name)
}

func TestExtractPackageName(t *testing.T) {
	name := ExtractPackageName("/nix/store/abcdefghijklmnopqrstuvwxyz012345-hello-1.0")
	assert.Equal(t, "hello-1.0", name)
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "hello", StripANSI("\x1b[31mhello\x1b[0m"))
}

func TestParseNixErrorSimple(t *testing.T) {
	summary, details, hasDetails := ParseNixError("error: something broke")
	assert.Equal(t, "error: something broke", summary)
	assert.False(t, hasDetails)
	assert.Empty(t, details)
}

func TestParseNixErrorWithTrace(t *testing.T) {
	msg := "… while evaluating\n       error: something broke"
	summary, details, hasDetails := ParseNixError(msg)
	assert.Equal(t, "error: something broke", summary)
	assert.True(t, hasDetails)
	assert.Equal(t, msg, details)
}

type fakeObserver struct {
	active bool
	ops    []Op
}

func (f *fakeObserver) IsActive() bool { return f.active }
func (f *fakeObserver) OnOp(op Op)     { f.ops = append(f.ops, op) }

func TestBridgeNotifiesObserversForFileEvaluation(t *testing.T) {
	b := New()
	obs := &fakeObserver{active: true}
	b.AddObserver(obs)

	ch := cage_activity.InstallQueue()
	defer cage_activity.InstallQueue()

	b.Process(context.Background(), InternalLog{Kind: LogMsg, Level: VerbosityInfo, Msg: "evaluating file '/a/b.nix'"})

	require.Len(t, obs.ops, 1)
	assert.Equal(t, OpFileEvaluated, obs.ops[0].Kind)
	assert.Equal(t, "/a/b.nix", obs.ops[0].Path)

	select {
	case e := <-ch:
		t.Fatalf("unexpected activity event for an eval observation with no active eval scope: %+v", e)
	default:
	}
}

func TestBridgeDemotesKnownBenignError(t *testing.T) {
	b := New()
	ch := cage_activity.InstallQueue()
	defer cage_activity.InstallQueue()

	b.Process(context.Background(), InternalLog{Kind: LogMsg, Level: VerbosityError, Msg: "setting up chroot environment"})

	e := <-ch
	assert.Equal(t, cage_activity.LevelDebug, e.Level)
}

func TestBridgeBuildLifecycle(t *testing.T) {
	b := New()
	ch := cage_activity.InstallQueue()
	defer cage_activity.InstallQueue()

	b.Process(context.Background(), InternalLog{
		Kind:   LogStart,
		ID:     101,
		Type:   ActivityBuild,
		Fields: []Field{FieldString("/nix/store/abcdefghijklmnopqrstuvwxyz012345-hello-1.0.drv")},
	})
	start := <-ch
	assert.Equal(t, cage_activity.EventStart, start.Event)
	assert.Equal(t, "hello-1.0", start.Name)

	b.Process(context.Background(), InternalLog{Kind: LogStop, ID: 101})
	complete := <-ch
	assert.Equal(t, cage_activity.EventComplete, complete.Event)
	assert.EqualValues(t, 101, complete.ID)
	assert.Equal(t, cage_activity.OutcomeSuccess, complete.Outcome)
}
