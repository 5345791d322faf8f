// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package envdiff implements the "devenv internal envdiff" sub-commands the generated rcfile
// (internal/shell/rcfile.go) shells out to: the rcfile never reimplements the gzip+base64
// diff encoding in bash, it only shuttles environment snapshots through temp files and calls
// back into this binary.
//
// Usage:
//
//	devenv internal envdiff encode <before-env-dump> <after-env-dump>
//	devenv internal envdiff inverse-script <encoded-diff>
package envdiff

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/codeactual/devenv/internal/shell"
)

// NewCommand returns the "envdiff" parent command holding the "encode" and "inverse-script"
// leaves. Both are plumbing invoked by the generated rcfile, not meant for direct interactive
// use, so they skip the cli/handler/cobra.Handler ceremony the user-facing sub-commands use.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "envdiff",
		Hidden: true,
	}
	cmd.AddCommand(newEncodeCommand())
	cmd.AddCommand(newInverseScriptCommand())
	return cmd
}

func newEncodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "encode <before-env-dump> <after-env-dump>",
		Hidden: true,
		Args:   cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := shell.ParseEnvDump(args[0])
			if err != nil {
				return errors.WithStack(err)
			}

			after, err := shell.ParseEnvDump(args[1])
			if err != nil {
				return errors.WithStack(err)
			}

			diff := shell.Compute(before, after)

			encoded, err := shell.EncodeDiffVar(diff)
			if err != nil {
				return errors.WithStack(err)
			}

			fmt.Print(encoded)
			return nil
		},
	}
}

func newInverseScriptCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "inverse-script <encoded-diff>",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := shell.InverseScript(args[0])
			if err != nil {
				return errors.WithStack(err)
			}
			fmt.Print(script)
			return nil
		},
	}
}

