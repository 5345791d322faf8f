// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package watch implements a debounced change stream, layered
// over internal/cage/os/file/watcher's fsnotify wrapper. It adds the pieces that wrapper
// does not itself provide: path canonicalisation, an extension filter, doublestar glob
// ignores, and a channel contract that blocks forever (rather than closing) when no paths
// are configured, so callers can uniformly select on it alongside shutdown. Each path is
// watched as given (for a directory, its direct children only); Config.Recursive is not
// consulted and no parent directories are added.
package watch
