// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tasks

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// FileCache is the task file-modification guard's own hash database, kept separate from the
// evaluation cache (internal/cache).
type FileCache struct {
	db *sql.DB
}

// OpenFileCache opens (creating if absent) the guard database at path.
func OpenFileCache(path string) (*FileCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open task file cache [%s]", path)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS task_file_hashes (task TEXT PRIMARY KEY, hash TEXT NOT NULL)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create task file cache schema")
	}

	return &FileCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *FileCache) Close() error {
	return errors.Wrap(c.db.Close(), "failed to close task file cache")
}

// Modified reports whether any file matched by guard.Globs has changed since the last
// RecordHash for this task name. A glob match that does not exist on disk is treated as
// unchanged; directories
// are hashed as the sorted list of child names, matching internal/cache's own convention.
func (c *FileCache) Modified(task string, guard FileGuard) (bool, string, error) {
	hash, err := hashGlobs(guard.Globs)
	if err != nil {
		return true, "", err
	}

	var stored string
	err = c.db.QueryRow(`SELECT hash FROM task_file_hashes WHERE task = ?`, task).Scan(&stored)
	if err == sql.ErrNoRows {
		return true, hash, nil
	}
	if err != nil {
		return true, hash, errors.Wrap(err, "failed to load stored task file hash")
	}

	return stored != hash, hash, nil
}

// RecordHash persists hash (as returned by Modified) for task.
func (c *FileCache) RecordHash(task, hash string) error {
	_, err := c.db.Exec(`
		INSERT INTO task_file_hashes (task, hash) VALUES (?, ?)
		ON CONFLICT(task) DO UPDATE SET hash = excluded.hash
	`, task, hash)
	return errors.Wrap(err, "failed to record task file hash")
}

// hashGlobs expands every glob (strict: case-sensitive, literal separators, literal leading
// dot) and hashes the sorted result set, hashing directories by their
// sorted child names rather than recursing.
func hashGlobs(globs []string) (string, error) {
	var paths []string
	for _, g := range globs {
		matches, err := doublestar.Glob(g)
		if err != nil {
			return "", errors.Wrapf(err, "failed to expand file guard glob [%s]", g)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			continue // does not exist: treated as unchanged
		}
		h.Write([]byte(p))
		h.Write([]byte{0})
		if fi.IsDir() {
			entries, err := os.ReadDir(p)
			if err != nil {
				continue
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			sort.Strings(names)
			h.Write([]byte(strings.Join(names, "\n")))
		} else {
			h.Write([]byte(fi.ModTime().String()))
			h.Write([]byte(strconv.FormatInt(fi.Size(), 10)))
		}
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
