// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package activity

import "context"

// MessageOpt carries Message's optional fields.
type MessageOpt struct {
	Details string
	Parent  *uint64
}

// Message emits a standalone Message event, not itself an Activity, parented to opt.Parent.
// It does not consult any context stack: if opt.Parent is unset the message is left
// unparented (MessageCtx resolves the parent from the caller's context stack instead).
func Message(level Level, text string, opt MessageOpt) {
	dispatch(Event{
		ActivityKind: KindMessage,
		Timestamp:    Now(),
		Level:        level,
		Text:         text,
		Details:      opt.Details,
		Parent:       opt.Parent,
	})
}

// MessageCtx is Message, but resolves an absent Parent from ctx's implicit-activity stack,
// matching how a Message is parented to "the currently-active activity on the emitting
// task" per spec §3.1.
func MessageCtx(ctx context.Context, level Level, text string, opt MessageOpt) {
	opt.Parent = resolveParent(ctx, opt.Parent)
	Message(level, text, opt)
}
