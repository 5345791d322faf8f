// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Sub-command tasks runs the declared task DAG headlessly, without starting the TUI or any
// supervised process, printing a pass/fail summary line per task.
//
// Usage:
//
//	devenv tasks [name...]
package tasks

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/codeactual/devenv/cmd/devenv/root"
	handler_cage "github.com/codeactual/devenv/internal/cage/cli/handler"
	handler_cobra "github.com/codeactual/devenv/internal/cage/cli/handler/cobra"
	log_zap "github.com/codeactual/devenv/internal/cage/cli/handler/mixin/log/zap"
	"github.com/codeactual/devenv/internal/config"
	"github.com/codeactual/devenv/internal/tasks"
)

// Handler defines the sub-command flags and logic.
type Handler struct {
	handler_cage.Session

	Log *log_zap.Mixin
}

// Init defines the command, its environment variable prefix, etc.
//
// It implements cli/handler/cobra.Handler.
func (h *Handler) Init() handler_cobra.Init {
	h.Log = &log_zap.Mixin{}
	return handler_cobra.Init{
		Cmd: &cobra.Command{
			Use:   "tasks [name...]",
			Short: "Run the declared task DAG without the TUI or supervised processes",
			Example: strings.Join([]string{
				"devenv tasks",
				"devenv tasks build:go test:go",
			}, "\n"),
		},
		EnvPrefix: "DEVENV",
		Mixins: []handler_cage.Mixin{
			h.Log,
		},
	}
}

// BindFlags binds the flags to Handler fields.
//
// It implements cli/handler/cobra.Handler.
func (h *Handler) BindFlags(cmd *cobra.Command) []string {
	return nil
}

// Run performs the sub-command logic.
//
// It implements cli/handler/cobra.Handler.
func (h *Handler) Run(ctx context.Context, input handler_cage.Input) {
	if err := h.run(ctx, input.Args); err != nil {
		panic(err)
	}
}

func (h *Handler) run(ctx context.Context, names []string) error {
	cfg, err := config.ReadConfigFile(root.Global.ConfigPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file [%s]", root.Global.ConfigPath)
	}

	fileCache, err := tasks.OpenFileCache(cfg.Data.CacheDir + ".tasks")
	if err != nil {
		return errors.Wrap(err, "failed to open task file-modification cache")
	}
	defer fileCache.Close()

	declared := make([]tasks.Task, len(cfg.Task))
	for i, t := range cfg.Task {
		declared[i] = toTask(t)
	}

	roots := names
	if len(roots) == 0 {
		for _, t := range declared {
			roots = append(roots, t.Name)
		}
	}

	graph, err := tasks.Validate(declared, roots)
	if err != nil {
		return errors.Wrap(err, "failed to validate task graph")
	}

	runner := tasks.NewRunner(graph, root.Global.MaxJobs, fileCache, h.Log.Logger)
	results := runner.Run(ctx)

	failed := false
	for _, name := range graph.Order() {
		res := results[name]
		fmt.Printf("%-40s %s\n", name, res.Status)
		if res.Status.Failed() {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
	return nil
}

func toTask(t config.Task) tasks.Task {
	var guard *tasks.FileGuard
	if t.FileModified != nil {
		guard = &tasks.FileGuard{Globs: t.FileModified.Globs}
	}
	return tasks.Task{
		Name:         t.Name,
		DependsOn:    t.DependsOn,
		Command:      t.Command,
		Shell:        t.Shell,
		Status:       t.Status,
		Dir:          t.Dir,
		Env:          t.Env,
		FileModified: guard,
	}
}

// NewCommand returns a cobra command instance based on Handler.
func NewCommand() *cobra.Command {
	return handler_cobra.NewHandler(&Handler{
		Session: &handler_cage.DefaultSession{},
	})
}

var _ handler_cobra.Handler = (*Handler)(nil)
