// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package activity

import "sync/atomic"

// internalIDBit is set on every ID minted by nextID so that externally-minted IDs (e.g. a
// derivation's own identifier surfaced through the evaluation log bridge) can never collide
// with one generated here.
const internalIDBit uint64 = 1 << 63

var idCounter uint64

// nextID returns a process-unique Activity ID with the top bit set.
func nextID() uint64 {
	return internalIDBit | atomic.AddUint64(&idCounter, 1)
}
