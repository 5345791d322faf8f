// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package zap provides a cli/handler.Mixin that configures a *zap.Logger from the
// sub-command's environment variable prefix (e.g. "DEVENV_LOG_LEVEL") and embeds it so a
// Handler can log directly via the mixin field (h.Log.Info(...), h.Log.Debug(...), etc.).
package zap

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Mixin embeds *zap.Logger so a Handler can call its methods directly.
//
// It implements cli/handler.Mixin.
type Mixin struct {
	*zap.Logger
}

// Init builds the logger. The level defaults to "info" but can be overridden by the
// "<envPrefix>_LOG_LEVEL" environment variable (e.g. "debug").
func (m *Mixin) Init(envPrefix string) error {
	level := zapcore.InfoLevel

	if envPrefix != "" {
		if raw := os.Getenv(envPrefix + "_LOG_LEVEL"); raw != "" {
			if err := level.Set(strings.ToLower(raw)); err != nil {
				return errors.Wrapf(err, "failed to parse log level [%s]", raw)
			}
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return errors.Wrap(err, "failed to build logger")
	}

	m.Logger = logger
	return nil
}
