// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package filepath provides glob matching against a Root-relative pattern, built on
// doublestar so that "**" segments are supported. No other package in this module imports
// it; the task file-modification guard (internal/tasks) calls doublestar directly.
package filepath

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/pkg/errors"
)

// Glob pairs a doublestar pattern with the root directory it is relative to.
type Glob struct {
	Pattern string
	Root    string
}

// MatchAnyInput is the input to PathMatchAny.
type MatchAnyInput struct {
	Name    string
	Include []string
	Exclude []string
}

// MatchAnyOutput is the result of PathMatchAny.
type MatchAnyOutput struct {
	Match bool

	// Exclude holds the exclusion pattern responsible for rejecting an otherwise-matched path.
	Exclude string
}

// PathMatchAny reports whether Name matches at least one Include pattern and no Exclude pattern.
//
// Patterns are matched against Name directly (callers are expected to have already combined
// a Glob.Root with its Pattern into an absolute path-shaped string).
func PathMatchAny(in MatchAnyInput) (MatchAnyOutput, error) {
	for _, e := range in.Exclude {
		matched, err := doublestar.Match(e, in.Name)
		if err != nil {
			return MatchAnyOutput{}, errors.Wrapf(err, "failed to match exclude pattern [%s] against [%s]", e, in.Name)
		}
		if matched {
			return MatchAnyOutput{Match: false, Exclude: e}, nil
		}
	}

	for _, i := range in.Include {
		matched, err := doublestar.Match(i, in.Name)
		if err != nil {
			return MatchAnyOutput{}, errors.Wrapf(err, "failed to match include pattern [%s] against [%s]", i, in.Name)
		}
		if matched {
			return MatchAnyOutput{Match: true}, nil
		}
	}

	return MatchAnyOutput{Match: false}, nil
}

// GlobAnyInput is the input to GlobAny.
type GlobAnyInput struct {
	Include []Glob
	Exclude []Glob
}

// GlobAnyOutput is the result of GlobAny: concrete filesystem paths found under each
// Include's Root, partitioned by whether an Exclude pattern also matched.
type GlobAnyOutput struct {
	Include map[string]Glob
	Exclude map[string]Glob
}

// GlobAny expands every Include glob (rooted at Glob.Root) into concrete paths found on disk,
// then removes/reclassifies any path that also matches an Exclude glob.
func GlobAny(in GlobAnyInput) (GlobAnyOutput, error) {
	out := GlobAnyOutput{
		Include: make(map[string]Glob),
		Exclude: make(map[string]Glob),
	}

	var excludePatterns []string
	for _, e := range in.Exclude {
		excludePatterns = append(excludePatterns, joinRootPattern(e.Root, e.Pattern))
	}

	for _, i := range in.Include {
		full := joinRootPattern(i.Root, i.Pattern)

		matches, err := doublestar.Glob(full)
		if err != nil {
			return GlobAnyOutput{}, errors.Wrapf(err, "failed to glob pattern [%s]", full)
		}

		for _, m := range matches {
			res, err := PathMatchAny(MatchAnyInput{Name: m, Include: []string{full}, Exclude: excludePatterns})
			if err != nil {
				return GlobAnyOutput{}, errors.WithStack(err)
			}
			if res.Match {
				out.Include[m] = i
			} else if res.Exclude != "" {
				out.Exclude[m] = i
			}
		}
	}

	return out, nil
}

func joinRootPattern(root, pattern string) string {
	if pattern == "" {
		return root
	}
	if strings.HasPrefix(pattern, string(os.PathSeparator)) {
		return pattern
	}
	return filepath.Join(root, pattern)
}

// Append joins rel onto base, same as filepath.Join, but fails if the computed path does not
// remain inside base (guards against a pattern like ".." escaping the intended root).
func Append(base, rel string) (string, error) {
	joined := filepath.Join(base, rel)
	cleanBase := filepath.Clean(base)
	if joined != cleanBase && !strings.HasPrefix(joined, cleanBase+string(os.PathSeparator)) {
		return "", errors.Errorf("path [%s] escapes base [%s]", rel, base)
	}
	return joined, nil
}

// FileAncestor returns every directory between filepath.Dir(name) and root, inclusive of root,
// so that callers can also watch the ancestors of an already-matched path: a descendant may
// match a glob before its intermediate ancestor directories exist, so those directories need
// their own watch registration to notice the eventual creation.
func FileAncestor(name string, root string) (ancestors []string, err error) {
	root = filepath.Clean(root)
	dir := filepath.Clean(filepath.Dir(name))

	for {
		rel, relErr := filepath.Rel(root, dir)
		if relErr != nil {
			return nil, errors.Wrapf(relErr, "failed to compute relative path of [%s] to [%s]", dir, root)
		}
		if rel == "." || strings.HasPrefix(rel, "..") {
			break
		}

		ancestors = append(ancestors, dir)

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if dir == root {
		ancestors = append(ancestors, root)
	}

	return ancestors, nil
}
