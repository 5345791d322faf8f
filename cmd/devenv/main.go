// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/codeactual/devenv/cmd/devenv/eval"
	"github.com/codeactual/devenv/cmd/devenv/internal/envdiff"
	"github.com/codeactual/devenv/cmd/devenv/root"
	"github.com/codeactual/devenv/cmd/devenv/shell"
	"github.com/codeactual/devenv/cmd/devenv/tasks"
	"github.com/codeactual/devenv/cmd/devenv/up"
	"github.com/codeactual/devenv/internal/supervisor"
)

func main() {
	// Must run before any flag parsing or goroutine startup: a socket-activated process is
	// re-exec'd through this same binary so the final exec happens with LISTEN_PID naming the
	// right process (see internal/supervisor/reexec.go).
	supervisor.MaybeReexec()

	rootCmd := root.NewCommand()
	rootCmd.AddCommand(up.NewCommand())
	rootCmd.AddCommand(tasks.NewCommand())
	rootCmd.AddCommand(shell.NewCommand())
	rootCmd.AddCommand(eval.NewCommand())
	rootCmd.AddCommand(internalCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatDiagnostic(err))
		os.Exit(1)
	}
}

func internalCommand() *cobra.Command {
	internal := &cobra.Command{
		Use:    "internal",
		Hidden: true,
	}
	internal.AddCommand(envdiff.NewCommand())
	return internal
}

// formatDiagnostic unwraps a github.com/pkg/errors stack and prints the cause followed by
// the frames that led to it, a terse miette-style diagnostic rendering.
func formatDiagnostic(err error) string {
	type causer interface {
		Cause() error
	}

	msg := err.Error()
	cause := err
	for {
		c, ok := cause.(causer)
		if !ok {
			break
		}
		cause = c.Cause()
	}
	if cause != err {
		msg = fmt.Sprintf("%s\ncaused by: %s", msg, cause)
	}

	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	if st, ok := err.(stackTracer); ok {
		msg = fmt.Sprintf("%s\n%+v", msg, st.StackTrace())
	}

	return msg
}
