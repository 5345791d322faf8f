// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cache

import (
	"database/sql"
	_ "embed"

	"github.com/pkg/errors"
)

//go:embed schema.sql
var schema string

// migrate applies the embedded schema: the migration set is embedded into the binary so
// it is self-bootstrapping.
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return errors.Wrap(err, "failed to apply eval cache schema")
}
