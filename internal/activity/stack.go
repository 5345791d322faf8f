// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package activity

import "context"

// stackKey is the unexported context.Context key type for the implicit-parent activity
// stack.
//
// The implicit parent must be bound to the logical unit of work, not an OS thread, so it
// survives being handed off between goroutines. Go's idiomatic answer to that requirement is
// explicit context.Context propagation: every function on a suspend/await path already takes
// a ctx, so the stack rides along for free and a goroutine hop cannot lose it as long as the
// new goroutine is handed the same ctx.
type stackKey struct{}

// WithActivity returns a child context with id pushed onto the implicit-parent stack.
func WithActivity(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, stackKey{}, append(stackCopy(ctx), id))
}

// CurrentActivityID returns the top of the implicit-parent stack, or (0, false) if empty.
func CurrentActivityID(ctx context.Context) (uint64, bool) {
	s := stackCopy(ctx)
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// GetStack returns a copy of the full implicit-parent stack, root first.
func GetStack(ctx context.Context) []uint64 {
	return stackCopy(ctx)
}

func stackCopy(ctx context.Context) []uint64 {
	v, _ := ctx.Value(stackKey{}).([]uint64)
	if len(v) == 0 {
		return nil
	}
	out := make([]uint64, len(v))
	copy(out, v)
	return out
}
