// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package template expands Go text/template placeholders ("{{.some_key}}") found in
// configuration string fields and command lines, using flat string-keyed maps assembled
// from config-file values and/or struct field values.
package template

import (
	"bytes"
	"text/template"

	"github.com/pkg/errors"

	cage_structs "github.com/codeactual/devenv/internal/cage/structs"
)

// StringMapBuilder accumulates a flat string map from multiple sources, optionally
// pre-declaring keys so every template execution sees a defined (if empty) value instead
// of triggering "<no value>" output for keys that happen to be unset on a given input.
type StringMapBuilder struct {
	m map[string]string
}

// NewStringMapBuilder returns an empty builder.
func NewStringMapBuilder() *StringMapBuilder {
	return &StringMapBuilder{m: make(map[string]string)}
}

// SetExpectedKey pre-declares each key with an empty string value.
func (b *StringMapBuilder) SetExpectedKey(keys ...string) *StringMapBuilder {
	for _, k := range keys {
		if _, ok := b.m[k]; !ok {
			b.m[k] = ""
		}
	}
	return b
}

// Merge flattens each source (struct or map) into the builder per mode.
func (b *StringMapBuilder) Merge(mode cage_structs.MergeMode, sources ...interface{}) *StringMapBuilder {
	for _, src := range sources {
		for k, v := range cage_structs.ToStringMap(src) {
			_, exists := b.m[k]
			switch {
			case !exists:
				b.m[k] = v
			case mode == cage_structs.MergeModeOverride:
				b.m[k] = v
			}
		}
	}
	return b
}

// Map returns the accumulated string map.
func (b *StringMapBuilder) Map() map[string]string {
	return b.m
}

// ExpandFromStringMap executes each *target as a text/template against data, replacing its
// content in place. A template parse/exec error is annotated with the offending string.
func ExpandFromStringMap(data map[string]string, targets ...*string) error {
	for _, t := range targets {
		if t == nil || *t == "" {
			continue
		}
		expanded, err := ExecuteBuffered(*t, data)
		if err != nil {
			return errors.Wrapf(err, "failed to expand template [%s]", *t)
		}
		*t = expanded.String()
	}
	return nil
}

// ExecuteBuffered parses and executes a single template string against data, returning the
// rendered result in a buffer (callers that need the command line as a single string call
// String() on it; some call sites stream it further so the buffer is returned as-is).
func ExecuteBuffered(tmpl string, data interface{}) (*bytes.Buffer, error) {
	parsed, err := template.New("cage_template").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse template [%s]", tmpl)
	}

	var buf bytes.Buffer
	if err := parsed.Execute(&buf, data); err != nil {
		return nil, errors.Wrapf(err, "failed to execute template [%s]", tmpl)
	}

	return &buf, nil
}
