// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package cobra adapts a cli/handler.Handler implementation into a runnable *cobra.Command:
// it wires required-flag enforcement, viper-backed environment variable binding, and Mixin
// initialization ahead of the handler's own Run.
package cobra

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	std_cobra "github.com/spf13/cobra"
	std_pflag "github.com/spf13/pflag"
	std_viper "github.com/spf13/viper"

	"github.com/codeactual/devenv/internal/cage/cli/handler"
)

// Init is returned by a Handler's Init method to describe the sub-command's cobra.Command
// shell, its environment variable prefix, and the Mixins it composes.
type Init struct {
	// Cmd holds the sub-command's Use/Short/Example, etc. Run/Args are set by NewHandler.
	Cmd *std_cobra.Command

	// EnvPrefix is prepended (with an underscore) to every flag name when viper resolves
	// its environment variable equivalent, e.g. flag "config" becomes env var
	// "DEVENV_CONFIG" for EnvPrefix "DEVENV".
	EnvPrefix string

	// Mixins are initialized, in order, after flags are bound and before Run is called.
	Mixins []handler.Mixin
}

// Handler is implemented by every sub-command.
type Handler interface {
	// Init returns the sub-command's cobra.Command shell and supporting configuration.
	Init() Init

	// BindFlags binds the sub-command's flags to Handler fields and returns the names of
	// those which are required.
	BindFlags(cmd *std_cobra.Command) (requiredFlags []string)

	// Run performs the sub-command's logic. Errors are expected to be reported via panic,
	// matching the rest of this module's sub-commands, so that cobra's own recovery/usage
	// output does not mask the original error.
	Run(ctx context.Context, input handler.Input)
}

// NewHandler builds the *cobra.Command for h: flags are bound and marked required, every
// environment variable matching EnvPrefix is bound via viper, Mixins are initialized, and
// h.Run is invoked with the resolved positional arguments.
func NewHandler(h Handler) *std_cobra.Command {
	init := h.Init()
	cmd := init.Cmd

	required := h.BindFlags(cmd)
	for _, name := range required {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(errors.Wrapf(err, "failed to mark flag [%s] required", name))
		}
	}

	v := std_viper.New()
	if init.EnvPrefix != "" {
		v.SetEnvPrefix(init.EnvPrefix)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	cmd.RunE = func(cmd *std_cobra.Command, args []string) error {
		cmd.Flags().VisitAll(func(f *std_pflag.Flag) {
			if !f.Changed && v.IsSet(f.Name) {
				_ = cmd.Flags().Set(f.Name, v.GetString(f.Name))
			}
		})

		for _, m := range init.Mixins {
			if err := m.Init(init.EnvPrefix); err != nil {
				return errors.Wrapf(err, "failed to init mixin")
			}
		}

		h.Run(context.Background(), handler.Input{Args: args})
		return nil
	}

	return cmd
}
