// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package handler defines the common shape every sub-command implementation composes:
// a Session for signal/lifecycle plumbing shared across sub-commands, Mixins that let a
// sub-command opt into cross-cutting behavior (e.g. logging) without every sub-command
// re-implementing it, and the Input a framework (currently cli/handler/cobra) passes to
// a sub-command's Run method.
package handler

import (
	"os"
	"os/signal"
)

// Input is passed to a Handler's Run method by the framework driving it (e.g.
// cli/handler/cobra.NewHandler).
type Input struct {
	// Args holds the sub-command's positional (non-flag) arguments.
	Args []string
}

// Mixin lets a sub-command Handler opt into shared cross-cutting setup (e.g. a configured
// logger) which must run once the final flag/environment values are known.
type Mixin interface {
	// Init receives the sub-command's env var prefix so the mixin can read its own
	// environment-derived configuration (e.g. log level).
	Init(envPrefix string) error
}

// Session provides the signal handling and lifecycle plumbing shared by every sub-command.
type Session interface {
	// OnSignal registers fn to run when the process receives sig.
	OnSignal(sig os.Signal, fn func(os.Signal))
}

// DefaultSession is the Session implementation used outside of tests.
type DefaultSession struct{}

// OnSignal implements Session.
func (DefaultSession) OnSignal(sig os.Signal, fn func(os.Signal)) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sig)
	go func() {
		for s := range sigCh {
			fn(s)
		}
	}()
}
