// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cache

import "github.com/pkg/errors"

// DeleteUnreferencedFiles removes rows from file_inputs no longer joined to any command,
// a maintenance operation akin to a delete_unreferenced_files sweep; it is not part of the
// lookup protocol and
// only reclaims rows left behind when a command's inputs change across writes. It returns
// the number of rows removed.
func (s *Store) DeleteUnreferencedFiles() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM file_inputs
		WHERE path NOT IN (SELECT path FROM command_file_inputs)
	`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete unreferenced file inputs")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "failed to read rows affected")
}
