// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Sub-command up assembles the config, opens the eval cache and port allocator, runs the
// declared task DAG, starts a supervisor per selected process, and drives the TUI until
// shutdown: on `processes up`, a supervisor is started for each declared process.
//
// Usage:
//
//	devenv up [process...]
package up

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codeactual/devenv/cmd/devenv/root"
	"github.com/codeactual/devenv/internal/activity"
	"github.com/codeactual/devenv/internal/cache"
	"github.com/codeactual/devenv/internal/cage/cli/handler"
	handler_cobra "github.com/codeactual/devenv/internal/cage/cli/handler/cobra"
	log_zap "github.com/codeactual/devenv/internal/cage/cli/handler/mixin/log/zap"
	cage_gob "github.com/codeactual/devenv/internal/cage/encoding/gob"
	cage_exec "github.com/codeactual/devenv/internal/cage/os/exec"
	cage_file "github.com/codeactual/devenv/internal/cage/os/file"
	cage_time "github.com/codeactual/devenv/internal/cage/time"
	"github.com/codeactual/devenv/internal/config"
	"github.com/codeactual/devenv/internal/ports"
	"github.com/codeactual/devenv/internal/supervisor"
	"github.com/codeactual/devenv/internal/tasks"
	"github.com/codeactual/devenv/internal/tui"
	"github.com/codeactual/devenv/internal/watch"

	"github.com/codeactual/devenv/internal/cage/os/file/watcher"
)

// sessionFile is the name, inside Data.RunDir, of the gob-encoded record of which processes
// were supervised when this command last exited, so an unqualified `devenv up` can resume
// the prior session.
const sessionFile = "session.gob"

// Session is the persisted record of one `devenv up` invocation's selected processes.
type Session struct {
	Process []string
}

// Handler defines the sub-command flags and logic.
type Handler struct {
	handler.Session

	Log *log_zap.Mixin
}

// Init defines the command, its environment variable prefix, etc.
//
// It implements cli/handler/cobra.Handler.
func (h *Handler) Init() handler_cobra.Init {
	h.Log = &log_zap.Mixin{}
	return handler_cobra.Init{
		Cmd: &cobra.Command{
			Use:   "up [process...]",
			Short: "Evaluate, cache, and supervise the declared environment",
			Example: strings.Join([]string{
				"devenv up",
				"devenv up web worker",
			}, "\n"),
		},
		EnvPrefix: "DEVENV",
		Mixins: []handler.Mixin{
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
func (h *Handler) Run(ctx context.Context, input handler.Input) {
	if err := h.run(ctx, input.Args); err != nil {
		panic(err)
	}
}

func (h *Handler) run(ctx context.Context, selected []string) error {
	cfg, err := config.ReadConfigFile(root.Global.ConfigPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file [%s]", root.Global.ConfigPath)
	}

	activity.InstallLogSink(h.Log.Logger)
	queue := activity.InstallQueue()

	model := tui.NewModel()
	renderer := tui.NewRenderer(model, h.Log.Logger)

	go func() {
		for e := range queue {
			model.Apply(e)
			renderer.Dirty()
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	clock := cage_time.RealClock{}

	cacheStore, err := cache.Open(cfg.Data.CacheDir, clock, h.Log.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open eval cache")
	}
	defer cacheStore.Close()

	fileCache, err := tasks.OpenFileCache(cfg.Data.CacheDir + ".tasks")
	if err != nil {
		return errors.Wrap(err, "failed to open task file-modification cache")
	}
	defer fileCache.Close()

	var portAllocOpts []ports.Option
	if cfg.Ports.Strict {
		portAllocOpts = append(portAllocOpts, ports.WithStrict())
	}
	portAllocOpts = append(portAllocOpts, ports.WithHolderLookup(ports.LookupHolder))
	portAlloc := ports.New(cfg.Ports.Enabled, portAllocOpts...)

	var watchSet *watch.Set
	if len(cfg.Watch.Paths) > 0 {
		watchSet, err = watch.New(&watcher.Fsnotify{}, watch.Config{
			Paths:      cfg.Watch.Paths,
			Extensions: cfg.Watch.Extensions,
			Ignore:     cfg.Watch.Ignore,
			Recursive:  cfg.Watch.Recursive,
			Debounce:   cfg.Watch.GetDebounce(),
		})
		if err != nil {
			return errors.Wrap(err, "failed to start file watcher")
		}
		defer watchSet.Close()
	}

	names := selected
	if len(names) == 0 {
		names = cfg.AutoStartProcess
	}

	sessionPath := filepath.Join(cfg.Data.RunDir, sessionFile)
	if len(selected) == 0 {
		if resumed, ok := loadSession(sessionPath, h.Log.Logger); ok {
			names = resumed
		}
	}

	var watchBroadcast *watchBroadcaster
	if watchSet != nil {
		watchBroadcast = newWatchBroadcaster(watchSet.Events())
	}

	var wg sync.WaitGroup
	for _, name := range names {
		name := name // capture per iteration; sup.SetPreSpawn's closure below escapes the loop
		proc, ok := findProcess(cfg.Process, name)
		if !ok {
			return errors.Errorf("process [%s] is not declared", name)
		}

		svcCfg, err := toSupervisorConfig(proc, portAlloc)
		if err != nil {
			return errors.Wrapf(err, "process [%s]: failed to allocate ports", name)
		}

		var changeSrc supervisor.FileChangeSource
		if watchBroadcast != nil && len(proc.WatchPaths) > 0 {
			changeSrc = watchBroadcast.subscribe(proc.WatchPaths)
		}

		sup := supervisor.New(svcCfg, cfg.Data.RunDir, clock, h.Log.Logger)
		sup.SetWatcher(changeSrc)

		// Ports allocated for this process are still held open by the allocator (see
		// toSupervisorConfig/ports.Allocate); they must be transferred and closed
		// immediately before this process's own exec, every time it (re)spawns, or the
		// child hits EADDRINUSE trying to bind the same port (spec §4.4).
		sup.SetPreSpawn(func() {
			for _, ln := range portAlloc.TakeReservationsFor(name) {
				ln.Close()
			}
		})

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if runErr := sup.Run(runCtx); runErr != nil {
				h.Log.Error("supervisor exited", zap.String("process", name), zap.Error(runErr))
			}
		}(name)
	}

	if len(cfg.Task) > 0 {
		declared := make([]tasks.Task, len(cfg.Task))
		roots := make([]string, len(cfg.Task))
		for i, t := range cfg.Task {
			declared[i] = toTask(t)
			roots[i] = t.Name
		}

		graph, err := tasks.Validate(declared, roots)
		if err != nil {
			return errors.Wrap(err, "failed to validate task graph")
		}

		concurrency := root.Global.MaxJobs
		runner := tasks.NewRunner(graph, concurrency, fileCache, h.Log.Logger)

		go func() {
			results := runner.Run(runCtx)
			for name, res := range results {
				if res.Status.Failed() {
					h.Log.Error("task failed", zap.String("task", name), zap.Int("exitCode", res.ExitCode))
				}
			}
		}()
	}

	shutdown := func() {
		if saveErr := saveSession(sessionPath, Session{Process: names}); saveErr != nil {
			h.Log.Error("failed to save session", zap.Error(saveErr))
		}
		cancel()
		renderer.Stop()
	}
	h.OnSignal(syscall.SIGTERM, func(os.Signal) { shutdown() })
	h.OnSignal(syscall.SIGINT, func(os.Signal) { shutdown() })

	go func() {
		<-renderer.ShutdownCh()
		shutdown()
	}()

	err = renderer.Run()

	cancel()

	// Give each supervised process's own shutdown signal handling time to run before this
	// process tree's children are reaped.
	time.Sleep(cage_exec.SigKillDelay)

	wg.Wait()

	if err != nil {
		return errors.Wrap(err, "renderer exited with an error")
	}
	return nil
}

// loadSession restores the process names supervised by the prior `devenv up` invocation, so an
// unqualified `devenv up` resumes where the last one left off. Reports ok=false if no
// usable session file exists.
func loadSession(path string, log *zap.Logger) ([]string, bool) {
	exists, fi, err := cage_file.Exists(path)
	if err != nil || !exists || fi.Size() == 0 {
		return nil, false
	}

	dec, err := cage_gob.DecodeFromFile(path)
	if err != nil {
		log.Error("failed to create session file decoder", zap.Error(err))
		return nil, false
	}

	var session Session
	if err := dec.Decode(&session); err != nil {
		log.Error("failed to decode session file", zap.Error(err))
		return nil, false
	}

	if len(session.Process) == 0 {
		return nil, false
	}
	return session.Process, true
}

func saveSession(path string, session Session) error {
	if path == "" {
		return nil
	}
	return cage_gob.EncodeToFile(path, session)
}

func findProcess(declared []config.Process, name string) (config.Process, bool) {
	for _, p := range declared {
		if p.Name == name {
			return p, true
		}
	}
	return config.Process{}, false
}

// toSupervisorConfig allocates the process's requested ports, publishing each as
// DEVENV_PORT_<NAME> in the child's environment, and converts the remaining config.Process
// fields into a supervisor.Config.
func toSupervisorConfig(p config.Process, alloc *ports.Allocator) (supervisor.Config, error) {
	env := make(map[string]string, len(p.Env)+len(p.Ports))
	for k, v := range p.Env {
		env[k] = v
	}

	for _, req := range p.Ports {
		port, err := alloc.Allocate(p.Name, req.Name, req.Base)
		if err != nil {
			return supervisor.Config{}, err
		}
		env["DEVENV_PORT_"+strings.ToUpper(req.Name)] = strconv.Itoa(port)
	}

	var watchdog *supervisor.Watchdog
	if p.Watchdog != nil {
		watchdog = &supervisor.Watchdog{
			Timeout:      p.Watchdog.GetTimeout(),
			RequireReady: p.Watchdog.RequireReady,
		}
	}

	caps := make([]supervisor.AmbientCapability, len(p.AmbientCaps))
	for i, c := range p.AmbientCaps {
		caps[i] = supervisor.AmbientCapability(c)
	}

	return supervisor.Config{
		Name:                 p.Name,
		Exec:                 p.Exec,
		Args:                 p.Args,
		Dir:                  p.Dir,
		Env:                  env,
		Restart:              supervisor.RestartPolicy(p.Restart),
		Watchdog:             watchdog,
		StartupTimeout:       p.GetStartupTimeout(),
		RestartLimitBurst:    p.RestartLimitBurst,
		RestartLimitInterval: p.GetRestartLimitInterval(),
		Activation:           p.Activation,
		AmbientCaps:          caps,
	}, nil
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

// watchBroadcaster fans a single watch.Set event stream out to every subscribed per-process
// pathFilter. A channel has exactly one effective reader: multiple processes declaring
// overlapping (or identical) WatchPaths previously raced to drain the same
// watchSet.Events() channel directly, so a given file change reached at most one of them
// instead of every process it matched.
type watchBroadcaster struct {
	mu      sync.Mutex
	filters []*pathFilter
}

func newWatchBroadcaster(in <-chan watch.FileChangeEvent) *watchBroadcaster {
	b := &watchBroadcaster{}
	go func() {
		for e := range in {
			b.mu.Lock()
			filters := append([]*pathFilter(nil), b.filters...)
			b.mu.Unlock()
			for _, f := range filters {
				f.deliver(e)
			}
		}
		b.mu.Lock()
		filters := append([]*pathFilter(nil), b.filters...)
		b.mu.Unlock()
		for _, f := range filters {
			close(f.out)
		}
	}()
	return b
}

// subscribe registers a new pathFilter scoped to prefixes; safe to call concurrently with
// the broadcaster's own dispatch goroutine.
func (b *watchBroadcaster) subscribe(prefixes []string) *pathFilter {
	f := &pathFilter{out: make(chan struct{}, 1), prefixes: prefixes}
	b.mu.Lock()
	b.filters = append(b.filters, f)
	b.mu.Unlock()
	return f
}

// pathFilter adapts the broadcaster's fanned-out events into a supervisor.FileChangeSource
// scoped to one process's configured WatchPaths: any matching change always produces a
// restart.
type pathFilter struct {
	out      chan struct{}
	prefixes []string
}

func (f *pathFilter) deliver(e watch.FileChangeEvent) {
	for _, prefix := range f.prefixes {
		if strings.HasPrefix(e.Path, prefix) {
			select {
			case f.out <- struct{}{}:
			default:
			}
			return
		}
	}
}

func (f *pathFilter) Changed() <-chan struct{} { return f.out }

// NewCommand returns a cobra command instance based on Handler.
func NewCommand() *cobra.Command {
	return handler_cobra.NewHandler(&Handler{
		Session: &handler.DefaultSession{},
	})
}

var _ handler_cobra.Handler = (*Handler)(nil)
