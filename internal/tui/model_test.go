// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tui_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeactual/devenv/internal/activity"
	"github.com/codeactual/devenv/internal/tui"
)

func startEvent(id uint64, parent *uint64, kind activity.Kind, name string, at time.Time) activity.Event {
	return activity.Event{
		ActivityKind: kind,
		Event:        activity.EventStart,
		ID:           id,
		Parent:       parent,
		Name:         name,
		Timestamp:    activity.Timestamp{Time: at},
	}
}

func completeEvent(id uint64, outcome activity.Outcome, at time.Time) activity.Event {
	return activity.Event{
		Event:     activity.EventComplete,
		ID:        id,
		Outcome:   outcome,
		Timestamp: activity.Timestamp{Time: at},
	}
}

func TestApplyBuildsParentChildTree(t *testing.T) {
	m := tui.NewModel()
	now := time.Now()

	m.Apply(startEvent(1, nil, activity.KindEvaluate, "flake eval", now))
	m.Apply(startEvent(2, u64ptr(1), activity.KindBuild, "hello-1.0", now))

	roots := m.Roots()
	require.Equal(t, []uint64{1}, roots)

	children := m.GetVisibleChildren(1, tui.VisibleLimit{MaxLines: 10}, now)
	require.Equal(t, []uint64{2}, children)
}

func TestGetVisibleChildrenPrioritizesActiveThenLingeringThenOld(t *testing.T) {
	m := tui.NewModel()
	base := time.Now()

	m.Apply(startEvent(1, nil, activity.KindOperation, "root", base))
	m.Apply(startEvent(2, u64ptr(1), activity.KindBuild, "old", base.Add(-time.Hour)))
	m.Apply(completeEvent(2, activity.OutcomeSuccess, base.Add(-time.Hour).Add(time.Second)))

	m.Apply(startEvent(3, u64ptr(1), activity.KindBuild, "lingering", base.Add(-time.Second)))
	m.Apply(completeEvent(3, activity.OutcomeSuccess, base.Add(-time.Second)))

	m.Apply(startEvent(4, u64ptr(1), activity.KindBuild, "active", base))

	children := m.GetVisibleChildren(1, tui.VisibleLimit{MaxLines: 10}, base)
	require.Equal(t, []uint64{4, 3, 2}, children)
}

func TestGetVisibleChildrenRespectsMaxLines(t *testing.T) {
	m := tui.NewModel()
	now := time.Now()
	m.Apply(startEvent(1, nil, activity.KindOperation, "root", now))
	for i := uint64(2); i < 7; i++ {
		m.Apply(startEvent(i, u64ptr(1), activity.KindBuild, "b", now))
	}

	children := m.GetVisibleChildren(1, tui.VisibleLimit{MaxLines: 2}, now)
	require.Len(t, children, 2)
}

func TestGetSelectableActivityIDsOnlyActiveBuildOrEvaluate(t *testing.T) {
	m := tui.NewModel()
	now := time.Now()

	m.Apply(startEvent(1, nil, activity.KindBuild, "building", now))
	m.Apply(startEvent(2, nil, activity.KindEvaluate, "evaluating", now))
	m.Apply(startEvent(3, nil, activity.KindFetch, "fetching", now))
	m.Apply(startEvent(4, nil, activity.KindBuild, "done-building", now))
	m.Apply(completeEvent(4, activity.OutcomeSuccess, now))

	ids := m.GetSelectableActivityIDs()
	require.Equal(t, []uint64{1, 2}, ids)
}

func TestCalculateSummaryCountsBuildsByOutcome(t *testing.T) {
	m := tui.NewModel()
	now := time.Now()

	m.Apply(startEvent(1, nil, activity.KindBuild, "a", now))
	m.Apply(startEvent(2, nil, activity.KindBuild, "b", now))
	m.Apply(completeEvent(2, activity.OutcomeSuccess, now))
	m.Apply(startEvent(3, nil, activity.KindBuild, "c", now))
	m.Apply(completeEvent(3, activity.OutcomeFailed, now))

	s := m.CalculateSummary()
	require.Equal(t, 1, s.ActiveBuilds)
	require.Equal(t, 1, s.CompletedBuilds)
	require.Equal(t, 1, s.FailedBuilds)
}

func TestScrollByIsBoundsChecked(t *testing.T) {
	m := tui.NewModel()
	m.ScrollBy(1, -5, 10)
	require.Equal(t, 0, m.ScrollOffset(1))
	m.ScrollBy(1, 100, 10)
	require.Equal(t, 10, m.ScrollOffset(1))
}

func TestSelectDeselectIdempotent(t *testing.T) {
	m := tui.NewModel()
	m.Select(7)
	id, ok := m.Selected()
	require.True(t, ok)
	require.Equal(t, uint64(7), id)

	m.Deselect()
	_, ok = m.Selected()
	require.False(t, ok)

	m.Deselect() // idempotent
	_, ok = m.Selected()
	require.False(t, ok)
}

func u64ptr(v uint64) *uint64 { return &v }
