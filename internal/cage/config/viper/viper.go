// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package viper wraps spf13/viper config-file loading with the error context every
// caller in this module needs (the file path, in particular).
package viper

import (
	"path/filepath"

	"github.com/pkg/errors"
	std_viper "github.com/spf13/viper"
)

// ReadInConfig points file at name (inferring the format from its extension) and reads it.
func ReadInConfig(file *std_viper.Viper, name string) error {
	if name == "" {
		return errors.New("config file path is empty")
	}

	ext := filepath.Ext(name)
	if len(ext) > 1 {
		file.SetConfigType(ext[1:])
	}
	file.SetConfigFile(name)

	if err := file.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file [%s]", name)
	}

	return nil
}
