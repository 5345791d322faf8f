// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cache

import (
	"database/sql"
	"os"

	"github.com/pkg/errors"
)

// inputState classifies a single input's freshness.
type inputState int

const (
	stateUnchanged inputState = iota
	stateMetadataModified
	stateModified
	stateRemoved
)

// Result is the outcome of CachedOutput.
type Result struct {
	Hit        bool
	Output     []byte
	ReplaySpec []byte
}

// CachedOutput implements the four-step lookup protocol: load the row, recompute and
// compare the input hash, check every input's current state, then return the stored output
// only if every input is Unchanged.
func (s *Store) CachedOutput(argv []string, envLookup func(string) (string, bool)) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmdHash := fingerprint(argv)

	var storedInputHash string
	var output, replaySpec []byte
	err := s.db.QueryRow(
		`SELECT input_hash, output, replay_spec FROM commands WHERE cmd_hash = ?`, cmdHash,
	).Scan(&storedInputHash, &output, &replaySpec)
	if err == sql.ErrNoRows {
		return Result{}, nil // step 1: absent row
	}
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to load cached command row")
	}

	inputs, err := s.loadInputs(cmdHash)
	if err != nil {
		return Result{}, err
	}

	if hashInputs(inputs) != storedInputHash {
		return Result{}, nil // step 2: input set itself has drifted (added/removed observations)
	}

	anyModified := false
	metadataOnly := make([]Input, 0)

	for _, in := range inputs {
		st, fresh, probeErr := s.checkInput(in, envLookup)
		if probeErr != nil {
			// §7 "Input probe errors": treated as unchanged, never an invalidation.
			continue
		}
		switch st {
		case stateRemoved, stateModified:
			anyModified = true
		case stateMetadataModified:
			metadataOnly = append(metadataOnly, fresh)
		}
	}

	if anyModified {
		return Result{}, nil
	}

	for _, in := range metadataOnly {
		if err := s.updateFileModifiedAt(in.Key, in.MTimeUnix); err != nil {
			return Result{}, err
		}
	}

	if err := s.updateCommandUpdatedAt(cmdHash); err != nil {
		return Result{}, err
	}

	return Result{Hit: true, Output: output, ReplaySpec: replaySpec}, nil
}

// checkInput probes a single input against current filesystem/environment state and returns
// its classification plus (for MetadataModified) the Input carrying the fresh mtime to store.
func (s *Store) checkInput(in Input, envLookup func(string) (string, bool)) (inputState, Input, error) {
	switch in.Kind {
	case InputEnv:
		val, present := envLookup(in.Key)
		if !present {
			if in.ContentHash != hashString("") {
				return stateRemoved, in, nil
			}
			return stateUnchanged, in, nil
		}
		if hashString(val) != in.ContentHash {
			return stateModified, in, nil
		}
		return stateUnchanged, in, nil

	case InputFile:
		fi, err := os.Stat(in.Key)
		if err != nil {
			if os.IsNotExist(err) {
				if in.ContentHash != "" {
					return stateRemoved, in, nil
				}
				return stateUnchanged, in, nil
			}
			return stateUnchanged, in, err // probe error: treated as unchanged by caller
		}

		mtime := fi.ModTime().Unix()
		if mtime == in.MTimeUnix {
			return stateUnchanged, in, nil
		}

		freshHash := hashFile(in.Key, fi.IsDir())
		if freshHash == in.ContentHash {
			fresh := in
			fresh.MTimeUnix = mtime
			return stateMetadataModified, fresh, nil
		}
		return stateModified, in, nil
	}

	return stateUnchanged, in, nil
}

func (s *Store) loadInputs(cmdHash string) ([]Input, error) {
	inputs := make([]Input, 0)

	fileRows, err := s.db.Query(`
		SELECT f.path, f.is_dir, f.content_hash, f.mtime
		FROM command_file_inputs cfi
		JOIN file_inputs f ON f.path = cfi.path
		WHERE cfi.cmd_hash = ?
	`, cmdHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load file inputs")
	}
	defer fileRows.Close()

	for fileRows.Next() {
		var in Input
		var isDir int
		if err := fileRows.Scan(&in.Key, &isDir, &in.ContentHash, &in.MTimeUnix); err != nil {
			return nil, errors.Wrap(err, "failed to scan file input row")
		}
		in.Kind = InputFile
		in.IsDir = isDir != 0
		inputs = append(inputs, in)
	}

	envRows, err := s.db.Query(`SELECT name, content_hash FROM env_inputs WHERE cmd_hash = ?`, cmdHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load env inputs")
	}
	defer envRows.Close()

	for envRows.Next() {
		var in Input
		if err := envRows.Scan(&in.Key, &in.ContentHash); err != nil {
			return nil, errors.Wrap(err, "failed to scan env input row")
		}
		in.Kind = InputEnv
		inputs = append(inputs, in)
	}

	return sortInputs(inputs), nil
}

// updateCommandUpdatedAt is the low-contention fast path taken on every cache hit.
func (s *Store) updateCommandUpdatedAt(cmdHash string) error {
	_, err := s.db.Exec(`UPDATE commands SET updated_at = ? WHERE cmd_hash = ?`, s.clock.Now().Unix(), cmdHash)
	return errors.Wrap(err, "failed to bump command updated_at")
}

// updateFileModifiedAt is the low-contention fast path for the MetadataModified case.
func (s *Store) updateFileModifiedAt(path string, mtime int64) error {
	_, err := s.db.Exec(`UPDATE file_inputs SET mtime = ? WHERE path = ?`, mtime, path)
	return errors.Wrap(err, "failed to update file input mtime")
}
