// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ports implements a replayable-resource contract, using a
// TCP port allocator as the canonical (and, for this module, only) resource type. A Spec
// snapshot is serialised alongside an eval-cache row (internal/cache) so that a cache hit can
// re-acquire the same ports before any code depending on them runs.
package ports
