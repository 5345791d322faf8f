// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package watch

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar"
	"github.com/pkg/errors"

	"github.com/codeactual/devenv/internal/cage/os/file/watcher"
)

// DefaultDebounce is the default debounce window.
const DefaultDebounce = 100 * time.Millisecond

// FileChangeEvent is the unit delivered to callers: a canonicalised path that changed.
type FileChangeEvent struct {
	Path string
}

// Config configures a Set.
type Config struct {
	Paths      []string
	Extensions []string // e.g. []string{".nix", ".go"}; empty means "no extension filter"
	Ignore     []string // doublestar glob patterns, matched against the canonical path
	Recursive  bool
	Debounce   time.Duration
}

// Set is a debounced, ignore-filtered file change stream with runtime path additions.
// Its zero value is not usable; construct with New.
type Set struct {
	cfg Config

	w watcher.Watcher

	mu      sync.Mutex
	watched map[string]bool

	events chan FileChangeEvent
	done   chan struct{}
	closed bool
}

// New constructs a Set and starts monitoring cfg.Paths. Paths are canonicalised
// (filepath.EvalSymlinks where possible, else filepath.Abs) before being added, to resolve
// symlinks consistently across platforms.
func New(w watcher.Watcher, cfg Config) (*Set, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	s := &Set{
		cfg:     cfg,
		w:       w,
		watched: make(map[string]bool),
		events:  make(chan FileChangeEvent, 64),
		done:    make(chan struct{}),
	}

	w.Debounce(cfg.Debounce)
	if err := w.AddSubscriber(&subscriber{set: s}); err != nil {
		return nil, errors.Wrap(err, "failed to attach watch subscriber")
	}

	for _, p := range cfg.Paths {
		if err := s.AddPath(p); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// AddPath registers a new path at runtime.
func (s *Set) AddPath(path string) error {
	canon, err := canonicalize(path)
	if err != nil {
		return errors.Wrapf(err, "failed to canonicalize watch path [%s]", path)
	}

	s.mu.Lock()
	if s.watched[canon] {
		s.mu.Unlock()
		return nil
	}
	s.watched[canon] = true
	s.mu.Unlock()

	return errors.Wrapf(s.w.AddPath(canon), "failed to watch path [%s]", canon)
}

// Events returns the channel of debounced, filtered changes. When the Set has no configured
// paths at all, the channel is never written to, so a caller's select blocks on it forever
// rather than erroring, so that callers can uniformly select on it.
func (s *Set) Events() <-chan FileChangeEvent { return s.events }

// Close stops monitoring and releases the underlying watcher.
func (s *Set) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	return errors.Wrap(s.w.Close(), "failed to close watch set")
}

func (s *Set) accepts(path string) bool {
	if len(s.cfg.Extensions) > 0 {
		ok := false
		for _, ext := range s.cfg.Extensions {
			if strings.EqualFold(filepath.Ext(path), ext) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	for _, pattern := range s.cfg.Ignore {
		if matched, _ := doublestar.Match(pattern, path); matched {
			return false
		}
	}

	return true
}

func (s *Set) deliver(e FileChangeEvent) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.events <- e:
	case <-s.done:
	}
}

func canonicalize(path string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved, nil
	}
	return filepath.Abs(path)
}

// subscriber adapts cage's watcher.Subscriber callback style onto a Set.
type subscriber struct {
	set *Set
}

func (sub *subscriber) Event(e watcher.Event) {
	canon, err := canonicalize(e.Path)
	if err != nil {
		canon = e.Path
	}
	if !sub.set.accepts(canon) {
		return
	}
	sub.set.deliver(FileChangeEvent{Path: canon})
}

func (sub *subscriber) Error(err error) {
	// Errors are dropped: the Set has no channel for them, and filesystem noise never stops
	// the watch loop.
}

var _ watcher.Subscriber = (*subscriber)(nil)
