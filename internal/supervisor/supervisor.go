// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/codeactual/devenv/internal/activity"
	cage_time "github.com/codeactual/devenv/internal/cage/time"
)

// Supervisor drives Config's lifecycle: it owns the Machine, the process's notify socket (if
// readiness/watchdog is configured), and the child exec.Cmd, translating between them.
// Each Supervisor is meant to run in its own goroutine, with its own task holding its state.
type Supervisor struct {
	cfg     Config
	runDir  string
	clock   cage_time.Clock
	log     *zap.Logger
	watcher FileChangeSource

	preSpawn func()

	mu      sync.Mutex
	machine *Machine
	cmd     *exec.Cmd
	sock    *NotifySocket
	activ   *ActivationSockets
}

// FileChangeSource is the minimal interface a file watcher must satisfy to drive
// EventFileChange restarts; internal/watch.Set implements it via a thin
// adapter in the coordinator.
type FileChangeSource interface {
	Changed() <-chan struct{}
}

// New constructs a Supervisor for cfg. runDir is where its notify socket is created.
func New(cfg Config, runDir string, clock cage_time.Clock, log *zap.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, runDir: runDir, clock: clock, log: log}
}

// SetWatcher wires the source of EventFileChange signals; nil leaves
// file-change restarts disabled, which is also this type's zero-value behavior.
func (s *Supervisor) SetWatcher(w FileChangeSource) {
	s.watcher = w
}

// SetPreSpawn wires a hook invoked at the start of every spawn attempt (initial start and
// every restart), immediately before this process's own exec. Per spec §4.4, a caller that
// holds replayable resources (e.g. port-allocator listeners) reserved for this process name
// uses this to hand them off and close them right before the child binds the same ports.
// fn must be safe to call repeatedly; nil disables the hook, which is also the zero value.
func (s *Supervisor) SetPreSpawn(fn func()) {
	s.preSpawn = fn
}

// Run starts the process and supervises it until ctx is cancelled or it gives up.
// It emits Operation/Message activity events for lifecycle transitions.
func (s *Supervisor) Run(ctx context.Context) error {
	_, guard := activity.NewOperation().Detail("supervise " + s.cfg.Name).Start(ctx, s.cfg.Name)
	defer guard.Close()

	s.mu.Lock()
	s.machine = NewMachine(s.cfg, s.clock.Now())
	s.mu.Unlock()

	if err := s.spawn(ctx); err != nil {
		guard.Fail(err.Error())
		return err
	}

	exitCh := make(chan int, 1)
	go s.waitForExit(exitCh)

	var watchdogCh <-chan NotifyMessage
	if s.cfg.Watchdog != nil {
		watchdogCh = s.notifyMessages(ctx)
	}

	var fileChanges <-chan struct{}
	if s.watcher != nil {
		fileChanges = s.watcher.Changed()
	}

	for {
		timer := s.deadlineTimer()

		select {
		case <-ctx.Done():
			s.stop()
			if s.activ != nil {
				s.activ.Close()
				s.activ = nil
			}
			return nil

		case code := <-exitCh:
			action := s.dispatch(Event{Kind: EventProcessExit, ExitSuccess: code == 0})
			if action.Kind == ActionGiveUp {
				guard.Fail(action.Reason)
				return errors.Errorf("process %q gave up: %s", s.cfg.Name, action.Reason)
			}
			if action.Kind == ActionRestart {
				if err := s.restart(ctx); err != nil {
					guard.Fail(err.Error())
					return err
				}
				go s.waitForExit(exitCh)
				if s.cfg.Watchdog != nil {
					watchdogCh = s.notifyMessages(ctx)
				}
			}

		case msg, ok := <-watchdogCh:
			if !ok {
				watchdogCh = nil
				continue
			}
			restarted, err := s.handleNotify(ctx, msg, guard)
			if err != nil {
				return err
			}
			if restarted {
				go s.waitForExit(exitCh)
				if s.cfg.Watchdog != nil {
					watchdogCh = s.notifyMessages(ctx)
				}
			}

		case <-fileChanges:
			action := s.dispatch(Event{Kind: EventFileChange})
			if action.Kind == ActionRestart {
				if err := s.restart(ctx); err != nil {
					guard.Fail(err.Error())
					return err
				}
				go s.waitForExit(exitCh)
				if s.cfg.Watchdog != nil {
					watchdogCh = s.notifyMessages(ctx)
				}
			}

		case <-timerC(timer):
			action := s.timeoutAction()
			if action.Kind == ActionGiveUp {
				guard.Fail(action.Reason)
				return errors.Errorf("process %q gave up: %s", s.cfg.Name, action.Reason)
			}
			if action.Kind == ActionRestart {
				if err := s.restart(ctx); err != nil {
					guard.Fail(err.Error())
					return err
				}
				go s.waitForExit(exitCh)
				if s.cfg.Watchdog != nil {
					watchdogCh = s.notifyMessages(ctx)
				}
			}
		}

		stopTimer(timer)
	}
}

// handleNotify applies a single notify-socket message to the machine and, when it calls for a
// restart, performs it. The bool return reports whether a restart happened, so Run can re-wire
// exitCh/watchdogCh to the new process.
func (s *Supervisor) handleNotify(ctx context.Context, msg NotifyMessage, guard *activity.Activity) (bool, error) {
	if msg.Ready {
		s.dispatch(Event{Kind: EventReady})
	}
	if msg.WatchdogTrigger {
		action := s.dispatch(Event{Kind: EventWatchdogTrigger})
		if action.Kind == ActionGiveUp {
			guard.Fail(action.Reason)
			return false, errors.Errorf("process %q gave up: %s", s.cfg.Name, action.Reason)
		}
		if action.Kind == ActionRestart {
			if err := s.restart(ctx); err != nil {
				guard.Fail(err.Error())
				return false, err
			}
			return true, nil
		}
	} else if msg.WatchdogPing {
		s.dispatch(Event{Kind: EventWatchdogPing})
	}
	if msg.HasExtendTimeout {
		s.dispatch(Event{Kind: EventExtendTimeout, ExtendTimeoutUsec: msg.ExtendTimeoutUsec})
	}
	if msg.Status != "" {
		guard.Phase(msg.Status)
	}
	return false, nil
}

func (s *Supervisor) dispatch(e Event) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.OnEvent(e, s.clock.Now())
}

func (s *Supervisor) timeoutAction() Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	deadline, ok := s.machine.NextDeadline()
	if !ok || now.Before(deadline) {
		return Action{Kind: ActionNone}
	}

	// Indistinguishable from outside which deadline fired without re-deriving it from the
	// machine's own armed state; both map to the same tryRestart path.
	if s.machine.phase == Starting {
		return s.machine.OnEvent(Event{Kind: EventStartupTimeout}, now)
	}
	return s.machine.OnEvent(Event{Kind: EventWatchdogTimeout}, now)
}

func (s *Supervisor) deadlineTimer() cage_time.Timer {
	s.mu.Lock()
	deadline, ok := s.machine.NextDeadline()
	s.mu.Unlock()
	if !ok {
		return nil
	}

	d := deadline.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	return s.clock.NewTimer(d)
}

func timerC(t cage_time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

func stopTimer(t cage_time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (s *Supervisor) spawn(ctx context.Context) error {
	if s.preSpawn != nil {
		s.preSpawn()
	}

	args := append([]string{}, s.cfg.Args...)
	env := os.Environ()
	for k, v := range s.cfg.Env {
		env = append(env, k+"="+v)
	}

	if s.cfg.Watchdog != nil {
		sock, err := ListenNotify(NotifySocketPath(s.runDir, s.cfg.Name))
		if err != nil {
			return err
		}
		s.sock = sock
		env = append(env, "NOTIFY_SOCKET="+sock.Path)
		env = append(env, fmt.Sprintf("WATCHDOG_USEC=%d", s.cfg.Watchdog.Timeout.Microseconds()))
	}

	// Socket-activated processes are started via the pre-exec hook so LISTEN_PID names the
	// actual child; the hook process itself inherits the bound descriptors.
	if len(s.cfg.Activation) > 0 {
		if s.activ == nil {
			activ, err := Bind(s.cfg.Activation)
			if err != nil {
				return err
			}
			s.activ = activ
		}

		cmd := &exec.Cmd{Dir: s.cfg.Dir}
		if err := s.activ.ApplyTo(cmd); err != nil {
			return errors.Wrapf(err, "failed to wire activation sockets for [%s]", s.cfg.Name)
		}

		hookCmd, err := StartWithListenPID(s.cfg.Exec, args, append(env, cmd.Env...), cmd.ExtraFiles, s.cfg.Dir, s.cfg.AmbientCaps)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.cmd = hookCmd
		s.mu.Unlock()

		return nil
	}

	cmd := exec.CommandContext(ctx, s.cfg.Exec, args...)
	cmd.Dir = s.cfg.Dir
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start process [%s]", s.cfg.Name)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	return nil
}

func (s *Supervisor) restart(ctx context.Context) error {
	s.stop()
	if err := s.spawn(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.machine.OnRestartComplete(s.clock.Now())
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) waitForExit(out chan<- int) {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return
	}

	err := cmd.Wait()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if err != nil {
		code = -1
	}
	out <- code
}

func (s *Supervisor) stop() {
	s.mu.Lock()
	cmd := s.cmd
	sock := s.sock
	s.sock = nil
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
	if sock != nil {
		sock.Close()
	}
}

// notifyMessages drains the process's notify socket into a channel, closing it when the
// socket is closed (normal shutdown/restart) or ctx is cancelled.
func (s *Supervisor) notifyMessages(ctx context.Context) <-chan NotifyMessage {
	out := make(chan NotifyMessage)

	go func() {
		defer close(out)
		for {
			s.mu.Lock()
			sock := s.sock
			s.mu.Unlock()
			if sock == nil {
				return
			}

			msg, err := sock.Recv()
			if err != nil {
				return
			}

			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
