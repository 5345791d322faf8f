// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cache

import (
	"database/sql"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	cage_time "github.com/codeactual/devenv/internal/cage/time"
)

// Store is the persistent evaluation cache. It serializes
// writes through a single *sql.DB connection pool; writes are transactional.
type Store struct {
	path  string
	db    *sql.DB
	clock cage_time.Clock
	log   *zap.Logger

	mu sync.Mutex
}

// Open opens (creating if absent) the SQLite-backed cache at path and applies its schema. On
// migration failure the file is dropped and recreated once; if that retry also fails, the
// error is returned as fatal.
func Open(path string, clock cage_time.Clock, log *zap.Logger) (*Store, error) {
	s := &Store{path: path, clock: clock, log: log}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open eval cache database [%s]", path)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if err := migrate(db); err != nil {
		log.Warn("eval cache schema migration failed, recreating database", zap.Error(err))
		db.Close()
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, errors.Wrapf(rmErr, "failed to remove corrupt eval cache [%s]", path)
		}

		db, err = sql.Open("sqlite", path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to reopen eval cache database [%s]", path)
		}
		db.SetMaxOpenConns(1)
		if err := migrate(db); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "eval cache schema migration failed after recreation")
		}
	}

	s.db = db
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "failed to close eval cache database")
}

// Row is a command's stored evaluation: its argv (debug only), input hash, output bytes, an
// optional replay spec for replayable resources, and the inputs observed while
// producing it.
type Row struct {
	Argv       []string
	InputHash  string
	Output     []byte
	ReplaySpec []byte
	UpdatedAt  time.Time
	Inputs     []Input
}

// Write persists a fresh evaluation of argv, replacing any prior row for the same fingerprint
// in a single transaction: delete the prior row, insert the fresh row, upsert file inputs,
// reinsert the join table, and upsert env inputs.
func (s *Store) Write(argv []string, output []byte, replaySpec []byte, inputs []Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmdHash := fingerprint(argv)
	inputs = sortInputs(inputs)
	inputHash := hashInputs(inputs)
	now := s.clock.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin eval cache write transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM commands WHERE cmd_hash = ?`, cmdHash); err != nil {
		return errors.Wrap(err, "failed to delete prior command row")
	}
	if _, err := tx.Exec(`DELETE FROM command_file_inputs WHERE cmd_hash = ?`, cmdHash); err != nil {
		return errors.Wrap(err, "failed to delete prior file-input associations")
	}
	if _, err := tx.Exec(`DELETE FROM env_inputs WHERE cmd_hash = ?`, cmdHash); err != nil {
		return errors.Wrap(err, "failed to delete prior env inputs")
	}

	_, err = tx.Exec(
		`INSERT INTO commands (cmd_hash, argv, input_hash, output, replay_spec, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		cmdHash, strings.Join(argv, "\x00"), inputHash, output, replaySpec, now.Unix(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert command row")
	}

	for _, in := range inputs {
		switch in.Kind {
		case InputFile:
			_, err = tx.Exec(`
				INSERT INTO file_inputs (path, is_dir, content_hash, mtime) VALUES (?, ?, ?, ?)
				ON CONFLICT(path) DO UPDATE SET is_dir = excluded.is_dir, content_hash = excluded.content_hash, mtime = excluded.mtime
			`, in.Key, boolToInt(in.IsDir), in.ContentHash, in.MTimeUnix)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert file input [%s]", in.Key)
			}
			_, err = tx.Exec(`INSERT INTO command_file_inputs (cmd_hash, path) VALUES (?, ?)`, cmdHash, in.Key)
			if err != nil {
				return errors.Wrapf(err, "failed to associate file input [%s]", in.Key)
			}
		case InputEnv:
			_, err = tx.Exec(`INSERT INTO env_inputs (cmd_hash, name, content_hash) VALUES (?, ?, ?)`, cmdHash, in.Key, in.ContentHash)
			if err != nil {
				return errors.Wrapf(err, "failed to insert env input [%s]", in.Key)
			}
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit eval cache write")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
