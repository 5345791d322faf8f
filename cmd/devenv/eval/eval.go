// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Sub-command eval exercises the eval-cache lookup protocol and the
// port-allocator replay contract end to end around an arbitrary command,
// standing in for the real (out-of-scope) evaluator: on a cache hit it replays
// the command's recorded port reservations and prints the cached output; on a miss it runs
// the command, allocates any requested ports, and stores both for next time.
//
// Usage:
//
//	devenv eval --port web=3000 --input go.mod -- go list ./...
package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codeactual/devenv/cmd/devenv/root"
	"github.com/codeactual/devenv/internal/cache"
	handler_cage "github.com/codeactual/devenv/internal/cage/cli/handler"
	handler_cobra "github.com/codeactual/devenv/internal/cage/cli/handler/cobra"
	log_zap "github.com/codeactual/devenv/internal/cage/cli/handler/mixin/log/zap"
	cage_time "github.com/codeactual/devenv/internal/cage/time"
	"github.com/codeactual/devenv/internal/config"
	"github.com/codeactual/devenv/internal/ports"
)

// Handler defines the sub-command flags and logic.
type Handler struct {
	handler_cage.Session

	Log *log_zap.Mixin

	Inputs  []string // file paths observed as cache inputs
	PortReq []string // "name=base" port requests
}

// Init defines the command, its environment variable prefix, etc.
//
// It implements cli/handler/cobra.Handler.
func (h *Handler) Init() handler_cobra.Init {
	h.Log = &log_zap.Mixin{}
	return handler_cobra.Init{
		Cmd: &cobra.Command{
			Use:   "eval -- <command> [args...]",
			Short: "Run a command through the eval cache and port-allocator replay contract",
			Example: strings.Join([]string{
				"devenv eval --input go.mod -- go list ./...",
				"devenv eval --port web=3000 -- my-codegen",
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
	cmd.Flags().StringArrayVar(&h.Inputs, "input", nil, "file path observed as a cache input (repeatable)")
	cmd.Flags().StringArrayVar(&h.PortReq, "port", nil, "NAME=BASE port request allocated for this command (repeatable)")
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

func (h *Handler) run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("eval requires a command after --")
	}

	cfg, err := config.ReadConfigFile(root.Global.ConfigPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file [%s]", root.Global.ConfigPath)
	}

	clock := cage_time.RealClock{}
	store, err := cache.Open(cfg.Data.CacheDir, clock, h.Log.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open eval cache")
	}
	defer store.Close()

	alloc := ports.New(cfg.Ports.Enabled, ports.WithHolderLookup(ports.LookupHolder))

	if !root.Global.RefreshEvalCache {
		result, err := store.CachedOutput(argv, envLookup)
		if err != nil {
			return errors.Wrap(err, "failed to query eval cache")
		}
		if result.Hit {
			if len(result.ReplaySpec) > 0 {
				var spec ports.Spec
				if err := json.Unmarshal(result.ReplaySpec, &spec); err != nil {
					return errors.Wrap(err, "failed to decode replay spec")
				}
				if err := alloc.Replay(spec); err != nil {
					return errors.Wrap(err, "failed to replay port reservations")
				}
			}
			os.Stdout.Write(result.Output)
			return nil
		}
	}

	reqs, err := parsePortRequests(h.PortReq)
	if err != nil {
		return err
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	for _, r := range reqs {
		port, err := alloc.Allocate("eval", r.name, r.base)
		if err != nil {
			return errors.Wrapf(err, "failed to allocate port [%s]", r.name)
		}
		cmd.Env = append(cmd.Env, "DEVENV_PORT_"+strings.ToUpper(r.name)+"="+strconv.Itoa(port))
	}

	runErr := cmd.Run()

	inputs := make([]cache.Input, 0, len(h.Inputs)+len(reqs))
	for _, path := range h.Inputs {
		fi, statErr := os.Stat(path)
		isDir := statErr == nil && fi.IsDir()
		var mtime int64
		if statErr == nil {
			mtime = fi.ModTime().Unix()
		}
		inputs = append(inputs, cache.Input{
			Kind:        cache.InputFile,
			Key:         path,
			IsDir:       isDir,
			ContentHash: cache.HashFile(path, isDir),
			MTimeUnix:   mtime,
		})
	}

	specBytes, err := json.Marshal(alloc.Snapshot())
	if err != nil {
		return errors.Wrap(err, "failed to encode replay spec")
	}

	if writeErr := store.Write(argv, stdout.Bytes(), specBytes, inputs); writeErr != nil {
		h.Log.Error("failed to write eval cache row", zap.Error(writeErr))
	}

	os.Stdout.Write(stdout.Bytes())
	if runErr != nil {
		return errors.Wrap(runErr, "command failed")
	}
	return nil
}

type portRequest struct {
	name string
	base int
}

func parsePortRequests(raw []string) ([]portRequest, error) {
	reqs := make([]portRequest, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid --port value [%s], expected NAME=BASE", entry)
		}
		base, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid --port base [%s]", entry)
		}
		reqs = append(reqs, portRequest{name: parts[0], base: base})
	}
	return reqs, nil
}

func envLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// NewCommand returns a cobra command instance based on Handler.
func NewCommand() *cobra.Command {
	return handler_cobra.NewHandler(&Handler{
		Session: &handler_cage.DefaultSession{},
	})
}

var _ handler_cobra.Handler = (*Handler)(nil)
