// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Sub-command shell starts the reload-capable PTY-hosted interactive shell:
// it writes the environment script and rcfile, puts the controlling terminal into raw mode,
// and proxies bytes until the child shell exits.
//
// Usage:
//
//	devenv shell
package shell

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/codeactual/devenv/cmd/devenv/root"
	handler_cage "github.com/codeactual/devenv/internal/cage/cli/handler"
	handler_cobra "github.com/codeactual/devenv/internal/cage/cli/handler/cobra"
	log_zap "github.com/codeactual/devenv/internal/cage/cli/handler/mixin/log/zap"
	"github.com/codeactual/devenv/internal/config"
	"github.com/codeactual/devenv/internal/shell"
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
			Use:   "shell",
			Short: "Start the hot-reload interactive shell",
			Example: strings.Join([]string{
				"devenv shell",
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
	if err := h.run(ctx); err != nil {
		panic(err)
	}
}

func (h *Handler) run(ctx context.Context) error {
	cfg, err := config.ReadConfigFile(root.Global.ConfigPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file [%s]", root.Global.ConfigPath)
	}

	if err := os.MkdirAll(cfg.Data.RunDir, 0o700); err != nil {
		return errors.Wrapf(err, "failed to create run dir [%s]", cfg.Data.RunDir)
	}

	envScriptPath := shell.EnvScriptPath(cfg.Data.RunDir)
	if err := shell.WriteEnvScript(envScriptPath, envFromConfig(cfg)); err != nil {
		return errors.Wrap(err, "failed to write env script")
	}

	devenvBin, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "failed to resolve devenv binary path")
	}

	rcfilePath := envScriptPath + ".rc"
	if err := shell.WriteRCFile(rcfilePath, shell.RCFileConfig{
		DevenvBin:     devenvBin,
		EnvScriptPath: envScriptPath,
		ReloadKey:     cfg.Shell.ReloadKey,
	}); err != nil {
		return errors.Wrap(err, "failed to write rcfile")
	}

	host := shell.NewHost(cfg.Shell.Path, cfg.Root, rcfilePath, os.Environ(), h.Log.Logger)

	ptmx, err := host.Start()
	if err != nil {
		return errors.Wrap(err, "failed to start pty-hosted shell")
	}
	defer host.Close()

	stdinFd := int(os.Stdin.Fd())
	prevState, err := term.MakeRaw(stdinFd)
	if err == nil {
		defer term.Restore(stdinFd, prevState)
	} else {
		h.Log.Debug("stdin is not a terminal; skipping raw mode", zap.Error(err))
	}

	stop := make(chan struct{})
	go host.WatchResize(os.Stdin, stop)

	h.OnSignal(os.Interrupt, func(os.Signal) {})

	shell.Pipe(ptmx, os.Stdin, os.Stdout)
	close(stop)

	return host.Wait()
}

func envFromConfig(cfg config.Config) map[string]string {
	env := map[string]string{}
	for _, p := range cfg.Process {
		for k, v := range p.Env {
			env[k] = v
		}
	}
	return env
}

// NewCommand returns a cobra command instance based on Handler.
func NewCommand() *cobra.Command {
	return handler_cobra.NewHandler(&Handler{
		Session: &handler_cage.DefaultSession{},
	})
}

var _ handler_cobra.Handler = (*Handler)(nil)
