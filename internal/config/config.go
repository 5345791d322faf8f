// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config defines the devenv config file schema: declared processes, tasks, watch
// paths, cache location, and port-allocator settings.
package config

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	std_viper "github.com/spf13/viper"

	cage_viper "github.com/codeactual/devenv/internal/cage/config/viper"
	cage_file "github.com/codeactual/devenv/internal/cage/os/file"
)

const (
	// DefaultCacheDir is used when Data.CacheDir is unset.
	DefaultCacheDir = ".devenv/cache.db"

	// DefaultRunDir is used when Data.RunDir is unset; it holds notify sockets, the generated
	// rcfile, and the environment scripts written on file-change.
	DefaultRunDir = ".devenv/run"

	// DefaultShell is used when Shell.Path is unset.
	DefaultShell = "/bin/bash"

	// DefaultWatchDebounce mirrors internal/watch's own default.
	DefaultWatchDebounce = "100ms"

	// DefaultRestartLimitInterval and DefaultRestartLimitBurst are applied to a Process that
	// omits them, matching the supervisor's rate-limit knobs.
	DefaultRestartLimitInterval = "10s"
	DefaultRestartLimitBurst    = 3
)

// DataConfig defines where devenv stores its own state.
type DataConfig struct {
	CacheDir string
	RunDir   string
}

// WatchdogConfig mirrors supervisor.Watchdog as a config-file-friendly (string duration) shape.
type WatchdogConfig struct {
	Timeout      string
	RequireReady bool

	timeout time.Duration
}

// GetTimeout returns the parsed Timeout; callers must call Finalize first.
func (w WatchdogConfig) GetTimeout() time.Duration { return w.timeout }

// Process declares one supervised process.
type Process struct {
	Name    string
	Exec    string
	Args    []string
	Dir     string
	Env     map[string]string
	Restart string // "never" | "on_failure" | "always"

	Watchdog *WatchdogConfig

	StartupTimeout string

	RestartLimitBurst    int
	RestartLimitInterval string

	// Ports are named TCP port reservations the process expects to find in its environment
	// as `DEVENV_PORT_<NAME>`.
	Ports []PortRequest

	// Activation lists "host:port" addresses the supervisor pre-binds and hands to the
	// process via the socket-activation protocol rather than letting
	// the process bind them itself.
	Activation []string

	// AmbientCaps names Linux ambient capabilities (e.g. "CAP_NET_BIND_SERVICE") to raise on
	// the process; only takes effect alongside Activation, since that is the only spawn path
	// carrying the pre-exec hook the capability survives through. Unknown names and
	// non-Linux platforms both ignore this silently.
	AmbientCaps []string

	// WatchPaths lists the paths (resolved against Root) whose changes trigger an
	// unconditional restart of this process.
	WatchPaths []string

	startupTimeout       time.Duration
	restartLimitInterval time.Duration
	watchdogTimeout      time.Duration
}

// PortRequest is one named port a process needs allocated.
type PortRequest struct {
	Name string
	Base int
}

// Task declares one DAG node.
type Task struct {
	Name      string
	DependsOn []string
	Command   []string

	// Shell is an alternative to Command: a single shell line ("a | b | c") split into
	// pipeline stages at run time instead of a pre-split argv. Ignored
	// when Command is non-empty.
	Shell string

	Status       []string
	Dir          string
	Env          map[string]string
	FileModified *FileGuard
}

// FileGuard is the optional file-modification guard on a Task.
type FileGuard struct {
	Globs []string
}

// WatchConfig configures the file watcher feeding both task file-guards and process
// FileChange restarts.
type WatchConfig struct {
	Paths      []string
	Extensions []string
	Ignore     []string
	Recursive  bool
	Debounce   string

	debounce time.Duration
}

// PortsConfig configures the port allocator (internal/ports).
type PortsConfig struct {
	Enabled bool
	Strict  bool
}

// ShellConfig configures the hot-reload shell.
type ShellConfig struct {
	Path       string
	ReloadKey  string
	EnvScript  string
}

// Config defines the structure of a devenv config file.
type Config struct {
	Data    DataConfig
	Shell   ShellConfig
	Watch   WatchConfig
	Ports   PortsConfig
	Process []Process
	Task    []Task

	// AutoStartProcess names Process entries that `devenv processes up` supervises by
	// default when no explicit process names are given on the command line.
	AutoStartProcess []string

	// Root is the directory the config file was read from; relative Dir/paths resolve
	// against it. Populated by ReadConfigFile, not by the file itself.
	Root string
}

// ReadConfigFile converts a file to a Config value, applying a viper-based load and
// finalize-then-validate shape.
func ReadConfigFile(name string) (Config, error) {
	file := std_viper.New()
	if err := cage_viper.ReadInConfig(file, name); err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config file [%s]", name)
	}

	var c Config
	if err := file.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrapf(err, "failed to unmarshal config from file [%s]", name)
	}

	c.Root = filepath.Dir(name)

	if err := Finalize(&c); err != nil {
		return Config{}, errors.WithStack(err)
	}

	return c, nil
}

// Finalize applies defaults, resolves relative paths against c.Root, and validates the
// loaded Config. It is exported so tests can build a Config in-memory and finalize it
// without a file on disk.
func Finalize(c *Config) error {
	if c.Data.CacheDir == "" {
		c.Data.CacheDir = DefaultCacheDir
	}
	if c.Data.RunDir == "" {
		c.Data.RunDir = DefaultRunDir
	}
	c.Data.CacheDir = resolve(c.Root, c.Data.CacheDir)
	c.Data.RunDir = resolve(c.Root, c.Data.RunDir)

	if c.Shell.Path == "" {
		c.Shell.Path = DefaultShell
	}

	if c.Watch.Debounce == "" {
		c.Watch.Debounce = DefaultWatchDebounce
	}
	var err error
	c.Watch.debounce, err = time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return errors.Wrapf(err, "failed to parse Watch.Debounce [%s]", c.Watch.Debounce)
	}
	for i, p := range c.Watch.Paths {
		c.Watch.Paths[i] = resolve(c.Root, p)
	}

	uniqueProcess := map[string]bool{}
	for i := range c.Process {
		p := &c.Process[i]

		if p.Name == "" {
			return errors.New("process is missing a Name field")
		}
		if uniqueProcess[p.Name] {
			return errors.Errorf("process name [%s] was used more than once", p.Name)
		}
		uniqueProcess[p.Name] = true

		if p.Exec == "" {
			return errors.Errorf("process [%s] is missing an Exec field", p.Name)
		}
		if p.Dir == "" {
			p.Dir = c.Root
		} else {
			p.Dir = resolve(c.Root, p.Dir)
			exists, fi, existsErr := cage_file.Exists(p.Dir)
			if existsErr != nil {
				return errors.Wrapf(existsErr, "process [%s]: failed to check Dir [%s]", p.Name, p.Dir)
			}
			if !exists || !fi.IsDir() {
				return errors.Errorf("process [%s]: Dir [%s] does not exist or is not a directory", p.Name, p.Dir)
			}
		}

		for wi, wp := range p.WatchPaths {
			p.WatchPaths[wi] = resolve(c.Root, wp)
		}

		switch p.Restart {
		case "":
			p.Restart = "on_failure"
		case "never", "on_failure", "always":
		default:
			return errors.Errorf("process [%s] has an invalid Restart value [%s]", p.Name, p.Restart)
		}

		if p.StartupTimeout != "" {
			p.startupTimeout, err = time.ParseDuration(p.StartupTimeout)
			if err != nil {
				return errors.Wrapf(err, "process [%s]: failed to parse StartupTimeout [%s]", p.Name, p.StartupTimeout)
			}
		}

		if p.RestartLimitInterval == "" {
			p.RestartLimitInterval = DefaultRestartLimitInterval
		}
		p.restartLimitInterval, err = time.ParseDuration(p.RestartLimitInterval)
		if err != nil {
			return errors.Wrapf(err, "process [%s]: failed to parse RestartLimitInterval [%s]", p.Name, p.RestartLimitInterval)
		}
		if p.RestartLimitBurst == 0 {
			p.RestartLimitBurst = DefaultRestartLimitBurst
		}

		if p.Watchdog != nil {
			if p.Watchdog.Timeout == "" {
				return errors.Errorf("process [%s] declares a Watchdog without a Timeout", p.Name)
			}
			p.watchdogTimeout, err = time.ParseDuration(p.Watchdog.Timeout)
			if err != nil {
				return errors.Wrapf(err, "process [%s]: failed to parse Watchdog.Timeout [%s]", p.Name, p.Watchdog.Timeout)
			}
			p.Watchdog.timeout = p.watchdogTimeout
		}
	}

	for _, name := range c.AutoStartProcess {
		if !uniqueProcess[name] {
			return errors.Errorf("cannot auto-start process [%s]: not declared", name)
		}
	}

	uniqueTask := map[string]bool{}
	for i := range c.Task {
		t := &c.Task[i]
		if t.Name == "" {
			return errors.New("task is missing a Name field")
		}
		if uniqueTask[t.Name] {
			return errors.Errorf("task name [%s] was used more than once", t.Name)
		}
		uniqueTask[t.Name] = true

		if t.Dir == "" {
			t.Dir = c.Root
		} else {
			t.Dir = resolve(c.Root, t.Dir)
			exists, fi, existsErr := cage_file.Exists(t.Dir)
			if existsErr != nil {
				return errors.Wrapf(existsErr, "task [%s]: failed to check Dir [%s]", t.Name, t.Dir)
			}
			if !exists || !fi.IsDir() {
				return errors.Errorf("task [%s]: Dir [%s] does not exist or is not a directory", t.Name, t.Dir)
			}
		}
	}

	return nil
}

// GetStartupTimeout returns Process's parsed StartupTimeout; zero means disabled.
func (p Process) GetStartupTimeout() time.Duration { return p.startupTimeout }

// GetRestartLimitInterval returns Process's parsed RestartLimitInterval.
func (p Process) GetRestartLimitInterval() time.Duration { return p.restartLimitInterval }

// GetDebounce returns WatchConfig's parsed Debounce.
func (w WatchConfig) GetDebounce() time.Duration { return w.debounce }

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
