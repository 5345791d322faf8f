// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tasks_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeactual/devenv/internal/tasks"
)

func TestValidateRejectsInvalidName(t *testing.T) {
	_, err := tasks.Validate([]tasks.Task{{Name: "build"}}, []string{"build"})
	require.Error(t, err)
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	_, err := tasks.Validate([]tasks.Task{
		{Name: "app:build", DependsOn: []string{"app:missing"}},
	}, []string{"app:build"})
	require.Error(t, err)
}

func TestValidateRejectsStatusWithoutCommand(t *testing.T) {
	_, err := tasks.Validate([]tasks.Task{
		{Name: "app:build", Status: []string{"true"}},
	}, []string{"app:build"})
	require.Error(t, err)
}

func TestValidateRejectsCycle(t *testing.T) {
	_, err := tasks.Validate([]tasks.Task{
		{Name: "app:a", DependsOn: []string{"app:b"}},
		{Name: "app:b", DependsOn: []string{"app:a"}},
	}, []string{"app:a"})
	require.Error(t, err)
}

func TestValidateOrdersDependenciesFirst(t *testing.T) {
	g, err := tasks.Validate([]tasks.Task{
		{Name: "app:build", DependsOn: []string{"app:fetch"}},
		{Name: "app:fetch"},
		{Name: "app:unrelated"},
	}, []string{"app:build"})
	require.NoError(t, err)

	order := g.Order()
	require.Equal(t, []string{"app:fetch", "app:build"}, order)
}
