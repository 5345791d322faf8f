// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package root holds the devenv command's persistent flags and the parent
// *cobra.Command every sub-command attaches to. This module's root
// command only prints its help when run: "up", "tasks", "shell" and "eval" are all separate
// leaf commands, so root otherwise only carries the flags every one of them reads.
package root

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Flags holds the persistent, core-relevant CLI surface. Flags that neither this command
// nor the invoked sub-command declares are rejected by cobra's flag parsing; no flag is
// forwarded to an evaluator.
type Flags struct {
	ConfigPath string

	MaxJobs          int
	Verbose          bool
	Quiet            bool
	Offline          bool
	Impure           bool
	RefreshEvalCache bool

	// NixOption holds "key=value" pairs from repeated --nix-option flags.
	NixOption []string

	// OverrideInput holds "name=url" pairs from repeated --override-input flags.
	OverrideInput []string
}

// Global is populated by NewCommand's persistent flag bindings before any sub-command's Run
// executes; sub-commands read it directly rather than re-declaring the same flags.
var Global = &Flags{}

// NewCommand returns the devenv parent command with every persistent flag bound to Global.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devenv",
		Short: "Assemble, evaluate, and supervise a declared development environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&Global.ConfigPath, "config", "c", "devenv.yaml", "viper-readable config file")
	flags.IntVar(&Global.MaxJobs, "max-jobs", 0, "maximum concurrent build/task jobs (0 means a component-specific default)")
	flags.BoolVarP(&Global.Verbose, "verbose", "v", false, "increase log verbosity")
	flags.BoolVarP(&Global.Quiet, "quiet", "q", false, "decrease log verbosity")
	flags.BoolVar(&Global.Offline, "offline", false, "disallow network access during evaluation")
	flags.BoolVar(&Global.Impure, "impure", false, "allow impure evaluation inputs")
	flags.BoolVar(&Global.RefreshEvalCache, "refresh-eval-cache", false, "ignore cached evaluator output and recompute")
	flags.StringArrayVar(&Global.NixOption, "nix-option", nil, "KEY=VALUE option forwarded to the evaluator (repeatable)")
	flags.StringArrayVar(&Global.OverrideInput, "override-input", nil, "NAME=URL input override forwarded to the evaluator (repeatable)")

	return cmd
}

// LogLevelEnv reports the DEVENV_LOG_LEVEL-equivalent override Global's verbosity flags imply,
// or "" to leave the mixin's own default in place.
func (f *Flags) LogLevelEnv() string {
	switch {
	case f.Quiet:
		return "warn"
	case f.Verbose:
		return "debug"
	default:
		return ""
	}
}

// String renders Global for diagnostic logging.
func (f *Flags) String() string {
	return fmt.Sprintf(
		"config=%s max-jobs=%d verbose=%t quiet=%t offline=%t impure=%t refresh-eval-cache=%t",
		f.ConfigPath, f.MaxJobs, f.Verbose, f.Quiet, f.Offline, f.Impure, f.RefreshEvalCache,
	)
}
