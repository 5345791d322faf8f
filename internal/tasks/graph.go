// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tasks

import (
	"sort"

	"github.com/pkg/errors"
)

// Graph is a validated, reachable-from-roots task DAG.
type Graph struct {
	tasks map[string]Task
	order []string // topological order, roots' reachable subgraph only
}

// Validate builds a Graph from the declared tasks and roots, returning a configuration error
// on the first problem found: invalid name, status-without-command,
// unknown dependency, or a cycle (naming one member of the cycle).
func Validate(declared []Task, roots []string) (*Graph, error) {
	byName := make(map[string]Task, len(declared))
	for _, t := range declared {
		if !NamePattern.MatchString(t.Name) {
			return nil, errors.Errorf("invalid task name %q: must match %s", t.Name, NamePattern.String())
		}
		if len(t.Status) > 0 && len(t.Command) == 0 {
			return nil, errors.Errorf("task %q declares a status check without a command", t.Name)
		}
		if _, dup := byName[t.Name]; dup {
			return nil, errors.Errorf("duplicate task name %q", t.Name)
		}
		byName[t.Name] = t
	}

	for _, t := range declared {
		for _, dep := range t.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, errors.Errorf("task %q depends on unknown task %q", t.Name, dep)
			}
		}
	}

	for _, r := range roots {
		if _, ok := byName[r]; !ok {
			return nil, errors.Errorf("unknown root task %q", r)
		}
	}

	reachable := make(map[string]bool)
	var visit func(string)
	visit = func(name string) {
		if reachable[name] {
			return
		}
		reachable[name] = true
		for _, dep := range byName[name].DependsOn {
			visit(dep)
		}
	}
	for _, r := range roots {
		visit(r)
	}

	subset := make(map[string]Task, len(reachable))
	for name := range reachable {
		subset[name] = byName[name]
	}

	order, err := topoSort(subset)
	if err != nil {
		return nil, err
	}

	return &Graph{tasks: subset, order: order}, nil
}

// topoSort returns tasks in dependency order (a task after all of its DependsOn), erroring
// with the name of one task on a cycle if the graph is not a DAG.
func topoSort(tasks map[string]Task) ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(tasks))
	var order []string

	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic order for tie-breaking and test stability

	var visit func(string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return errors.Errorf("dependency cycle detected at task %q", name)
		}
		color[name] = gray
		deps := append([]string{}, tasks[name].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// Order returns the topological run order of the reachable subgraph.
func (g *Graph) Order() []string { return append([]string{}, g.order...) }

// Task returns the declared Task for name.
func (g *Graph) Task(name string) Task { return g.tasks[name] }

// Dependents returns every task in the graph that directly depends on name.
func (g *Graph) Dependents(name string) []string {
	var out []string
	for _, n := range g.order {
		for _, dep := range g.tasks[n].DependsOn {
			if dep == name {
				out = append(out, n)
				break
			}
		}
	}
	return out
}
