// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package structs provides reflection helpers, built on fatih/structs, for turning
// arbitrary structs/maps into the string-keyed maps the text/template helpers consume.
package structs

import (
	"fmt"

	"github.com/fatih/structs"
)

// MergeMode selects how StringMap combines multiple sources that define the same key.
type MergeMode int

const (
	// MergeModeCombine keeps the first value seen for a given key across all sources.
	MergeModeCombine MergeMode = iota

	// MergeModeOverride keeps the last value seen for a given key across all sources.
	MergeModeOverride
)

// ToStringMap flattens a value into a map[string]string.
//
// Structs are converted field-by-field via fatih/structs (field name as key, fmt.Sprint of
// the field value); maps with string keys have their values stringified the same way.
func ToStringMap(v interface{}) map[string]string {
	out := make(map[string]string)

	switch t := v.(type) {
	case map[string]string:
		for k, val := range t {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range t {
			out[k] = fmt.Sprint(val)
		}
	default:
		if !structs.IsStruct(v) {
			return out
		}
		for k, val := range structs.Map(v) {
			out[k] = fmt.Sprint(val)
		}
	}

	return out
}
