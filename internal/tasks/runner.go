// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tasks

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codeactual/devenv/internal/activity"
	cage_exec "github.com/codeactual/devenv/internal/cage/os/exec"
	cage_shell "github.com/codeactual/devenv/internal/cage/shell"
	tp_sync "github.com/codeactual/devenv/internal/third_party/github.com/sync"
)

// Runner executes a Graph to completion, scheduling Runnable tasks concurrently subject to
// Concurrency.
type Runner struct {
	Graph       *Graph
	Concurrency int
	FileCache   *FileCache
	Log         *zap.Logger

	mu      sync.Mutex
	status  map[string]Status
	results map[string]Result
}

// NewRunner constructs a Runner for graph. concurrency <= 0 means unbounded.
func NewRunner(graph *Graph, concurrency int, fileCache *FileCache, log *zap.Logger) *Runner {
	return &Runner{
		Graph:       graph,
		Concurrency: concurrency,
		FileCache:   fileCache,
		Log:         log,
		status:      make(map[string]Status),
		results:     make(map[string]Result),
	}
}

// Status returns the current status of task name.
func (r *Runner) Status(name string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status[name]
}

// Run executes every task in the graph's reachable subgraph, returning once all have reached
// a terminal status. Scheduling does not check ctx: commands run through
// exec.CommandContext, so after cancellation in-flight commands are killed and commands
// started later fail to start.
func (r *Runner) Run(ctx context.Context) map[string]Result {
	pending := tp_sync.NewSlice()
	for _, name := range r.Graph.Order() {
		pending.Append(name)
		r.mu.Lock()
		r.status[name] = StatusPending
		r.mu.Unlock()
	}

	sem := make(chan struct{}, r.concurrencyLimit())
	var wg sync.WaitGroup
	var schedMu sync.Mutex

	var scheduleReady func()
	scheduleReady = func() {
		schedMu.Lock()
		defer schedMu.Unlock()

		for _, name := range r.Graph.Order() {
			r.mu.Lock()
			st := r.status[name]
			r.mu.Unlock()
			if st != StatusPending {
				continue
			}
			if !r.dependenciesSettled(name) {
				continue
			}

			if r.anyDependencyFailed(name) {
				r.setStatus(name, StatusDependencyFailed)
				continue
			}

			r.setStatus(name, StatusRunnable)
			wg.Add(1)
			sem <- struct{}{}
			go func(taskName string) {
				defer wg.Done()
				r.runOne(ctx, taskName)
				<-sem // release before rescheduling: scheduleReady may be blocked on sem under schedMu
				scheduleReady()
			}(name)
		}
	}

	scheduleReady()
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Result, len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out
}

func (r *Runner) concurrencyLimit() int {
	if r.Concurrency <= 0 {
		return len(r.Graph.order) + 1
	}
	return r.Concurrency
}

func (r *Runner) dependenciesSettled(name string) bool {
	for _, dep := range r.Graph.Task(name).DependsOn {
		r.mu.Lock()
		st := r.status[dep]
		r.mu.Unlock()
		if !st.Completed() {
			return false
		}
	}
	return true
}

func (r *Runner) anyDependencyFailed(name string) bool {
	for _, dep := range r.Graph.Task(name).DependsOn {
		r.mu.Lock()
		st := r.status[dep]
		r.mu.Unlock()
		if st.Failed() {
			return true
		}
	}
	return false
}

func (r *Runner) setStatus(name string, st Status) {
	r.mu.Lock()
	r.status[name] = st
	r.mu.Unlock()
}

// runOne executes a single Runnable task and records its terminal Result.
func (r *Runner) runOne(ctx context.Context, name string) {
	r.setStatus(name, StatusRunning)
	t := r.Graph.Task(name)

	taskCtx, guard := activity.NewTask().Detail(t.Name).Start(ctx, t.Name)
	defer guard.Close()

	if t.FileModified != nil && r.FileCache != nil {
		changed, hash, err := r.FileCache.Modified(name, *t.FileModified)
		if err == nil && !changed {
			r.setStatus(name, StatusSkippedNotModified)
			guard.Phase("skipped: no file modified")
			r.recordResult(name, Result{Status: StatusSkippedNotModified})
			return
		}
		defer func() {
			if err == nil {
				r.FileCache.RecordHash(name, hash)
			}
		}()
	}

	if len(t.Status) > 0 {
		if err := runSilent(taskCtx, t, t.Status); err == nil {
			r.setStatus(name, StatusSkippedCached)
			r.recordResult(name, Result{Status: StatusSkippedCached})
			return
		}
	}

	if len(t.Command) == 0 && t.Shell == "" {
		r.setStatus(name, StatusSkippedNotImplemented)
		r.recordResult(name, Result{Status: StatusSkippedNotImplemented})
		return
	}

	var lines []Line
	var code int
	var err error
	if len(t.Command) > 0 {
		lines, code, err = runCaptured(taskCtx, t, guard)
	} else {
		lines, code, err = runPipeline(taskCtx, t, guard)
	}

	res := Result{ExitCode: code, Lines: lines, Err: err}
	if err == nil && code == 0 {
		res.Status = StatusSuccess
	} else {
		res.Status = StatusFailed
		guard.Fail("task command failed")
	}

	r.setStatus(name, res.Status)
	r.recordResult(name, res)
}

func (r *Runner) recordResult(name string, res Result) {
	r.mu.Lock()
	r.results[name] = res
	r.mu.Unlock()
}

func runSilent(ctx context.Context, t Task, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = t.Dir
	cmd.Env = mergedEnv(t.Env)
	return cmd.Run()
}

// runCaptured runs argv, streaming stdout/stderr line by line with timestamps into both
// the returned Line slice and the task's activity Log stream.
func runCaptured(ctx context.Context, t Task, guard *activity.Activity) ([]Line, int, error) {
	cmd := exec.CommandContext(ctx, t.Command[0], t.Command[1:]...)
	cmd.Dir = t.Dir
	cmd.Env = mergedEnv(t.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, -1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, -1, err
	}

	if err := cmd.Start(); err != nil {
		return nil, -1, err
	}

	var mu sync.Mutex
	var lines []Line
	var wg sync.WaitGroup

	capture := func(stream string, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			text := scanner.Text()
			guard.Log(stream, text)
			mu.Lock()
			lines = append(lines, Line{Stream: stream, Text: text, Unix: time.Now().Unix()})
			mu.Unlock()
		}
	}

	wg.Add(2)
	go capture("stdout", stdout)
	go capture("stderr", stderr)
	wg.Wait()

	err = cmd.Wait()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
		err = nil
	} else if err != nil {
		code = -1
	}

	return lines, code, err
}

// runPipeline executes t.Shell as one or more piped stages ("a | b | c"), the form used for
// task commands declared as a single shell line instead of a pre-split argv. cage_shell.Parse
// does the line splitting (including the "|" stage breaks);
// cage_exec builds and runs the resulting *exec.Cmd pipeline.
func runPipeline(ctx context.Context, t Task, guard *activity.Activity) ([]Line, int, error) {
	stages, err := cage_shell.Parse(t.Shell)
	if err != nil {
		return nil, -1, err
	}
	if len(stages) == 0 {
		return nil, 0, nil
	}

	cmds := cage_exec.ArgToCmd(ctx, stages...)
	for _, cmd := range cmds {
		cmd.Dir = t.Dir
		cmd.Env = mergedEnv(t.Env)
	}

	stdout, stderr, res, runErr := (cage_exec.CommonExecutor{}).Buffered(ctx, cmds...)

	var lines []Line
	appendLines := func(stream string, buf *bytes.Buffer) {
		for _, text := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
			if text == "" {
				continue
			}
			guard.Log(stream, text)
			lines = append(lines, Line{Stream: stream, Text: text, Unix: time.Now().Unix()})
		}
	}
	appendLines("stdout", stdout)
	appendLines("stderr", stderr)

	code := 0
	if last := cmds[len(cmds)-1]; last != nil {
		code = res.Cmd[last].Code
	}

	return lines, code, runErr
}

func mergedEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil // nil means "inherit os.Environ()" per os/exec.Cmd.Env
	}
	env := append([]string{}, os.Environ()...)
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
