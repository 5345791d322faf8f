// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"strings"
	"sync"

	cage_activity "github.com/codeactual/devenv/internal/activity"
)

// knownBenignErrorMessages are evaluator messages that arrive tagged at Error severity but
// describe routine build setup, not an actual failure (a known evaluator quirk, per spec
// §9 open question (b)). They are demoted to Debug rather than surfaced as errors.
var knownBenignErrorMessages = []string{
	"setting up chroot environment",
	"executing builder",
	"exporting reference graph",
}

func isKnownBenignError(msg string) bool {
	for _, s := range knownBenignErrorMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

type activityInfo struct {
	typ      ActivityType
	activity *cage_activity.Activity
}

// Bridge converts evaluator InternalLog records into this module's Activity events.
//
// It tracks the current evaluation scope with lazy creation semantics matched from the
// original: the caller owns the Evaluate Activity and supplies its ID via BeginEval; the
// bridge itself never creates that Activity.
type Bridge struct {
	mu     sync.Mutex
	active map[uint64]activityInfo

	evalMu  sync.Mutex
	evalID  *uint64

	obsMu     sync.Mutex
	observers []Observer

	errMu          sync.Mutex
	preREPLErrors []string
}

// New returns an empty Bridge.
func New() *Bridge {
	return &Bridge{active: make(map[uint64]activityInfo)}
}

// EvalActivityGuard closes the evaluation scope it was returned from on Close; always call
// defer guard.Close() immediately after BeginEval so the scope closes even on a panicking
// path.
type EvalActivityGuard struct {
	bridge *Bridge
}

// Close ends the evaluation scope.
func (g *EvalActivityGuard) Close() {
	g.bridge.evalMu.Lock()
	g.bridge.evalID = nil
	g.bridge.evalMu.Unlock()
}

// BeginEval starts an evaluation scope parented at activityID, the caller-owned Evaluate
// Activity's ID. File/env observation messages arriving while the scope is open are
// attributed to it.
func (b *Bridge) BeginEval(activityID uint64) *EvalActivityGuard {
	b.evalMu.Lock()
	id := activityID
	b.evalID = &id
	b.evalMu.Unlock()
	return &EvalActivityGuard{bridge: b}
}

func (b *Bridge) currentEvalID() (uint64, bool) {
	b.evalMu.Lock()
	defer b.evalMu.Unlock()
	if b.evalID == nil {
		return 0, false
	}
	return *b.evalID, true
}

// StorePreREPLError stashes an error message to be printed after the TUI exits, before a
// debugging REPL is entered (spec §7: "stored in a pre-REPL buffer").
func (b *Bridge) StorePreREPLError(msg string) {
	b.errMu.Lock()
	b.preREPLErrors = append(b.preREPLErrors, msg)
	b.errMu.Unlock()
}

// TakePreREPLErrors returns and clears the stashed pre-REPL error messages.
func (b *Bridge) TakePreREPLErrors() []string {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	out := b.preREPLErrors
	b.preREPLErrors = nil
	return out
}

// AddObserver registers an Op observer, notified for every recognized file/env observation
// parsed out of evaluator messages during this Bridge's lifetime.
func (b *Bridge) AddObserver(o Observer) {
	b.obsMu.Lock()
	b.observers = append(b.observers, o)
	b.obsMu.Unlock()
}

// ClearObservers removes every registered observer, e.g. once an evaluation completes.
func (b *Bridge) ClearObservers() {
	b.obsMu.Lock()
	b.observers = nil
	b.obsMu.Unlock()
}

func (b *Bridge) notifyObservers(op Op) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	for _, o := range b.observers {
		if o.IsActive() {
			o.OnOp(op)
		}
	}
}

func (b *Bridge) insert(id uint64, typ ActivityType, a *cage_activity.Activity) {
	b.mu.Lock()
	b.active[id] = activityInfo{typ: typ, activity: a}
	b.mu.Unlock()
}

func (b *Bridge) get(id uint64) (activityInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.active[id]
	return info, ok
}

// Process handles one parsed InternalLog record, emitting Activity events as needed.
func (b *Bridge) Process(ctx context.Context, log InternalLog) {
	switch log.Kind {
	case LogStart:
		b.handleStart(ctx, log.ID, log.Type, log.Text, log.Fields)
	case LogStop:
		b.handleStop(log.ID)
	case LogResult:
		b.handleResult(log.ID, log.ResultKind, log.Fields)
	case LogSetPhase:
		b.mu.Lock()
		for _, info := range b.active {
			if info.typ == ActivityBuild {
				info.activity.Phase(log.Phase)
				break
			}
		}
		b.mu.Unlock()
	case LogMsg:
		b.handleMsg(ctx, log.Level, log.Msg)
	}
}

func (b *Bridge) handleStart(ctx context.Context, id uint64, typ ActivityType, text string, fields []Field) {
	parent, hasParent := b.currentEvalID()
	var parentPtr *uint64
	if hasParent {
		parentPtr = &parent
	}

	withParent := func() context.Context {
		if hasParent {
			return cage_activity.WithActivity(ctx, parent)
		}
		return ctx
	}

	switch typ {
	case ActivityBuild, ActivityBuildWaiting:
		drvPath, ok := StringField(fields, 0)
		if !ok {
			drvPath = text
		}
		builder := cage_activity.NewBuild().ID(id).DerivationPath(drvPath)
		if parentPtr != nil {
			builder = builder.Parent(*parentPtr)
		}
		_, a := builder.Start(withParent(), ExtractDerivationName(drvPath))
		b.insert(id, typ, a)

	case ActivityQueryPathInfo:
		storePath, ok := StringField(fields, 0)
		if !ok {
			return
		}
		builder := cage_activity.NewFetch(cage_activity.FetchQuery).ID(id)
		if parentPtr != nil {
			builder = builder.Parent(*parentPtr)
		}
		if url, ok := StringField(fields, 1); ok {
			builder = builder.URL(url)
		}
		_, a := builder.Start(withParent(), ExtractPackageName(storePath))
		b.insert(id, typ, a)

	case ActivityCopyPath:
		storePath, ok := StringField(fields, 0)
		if !ok {
			return
		}
		sourceURI, hasSource := StringField(fields, 1)

		var a *cage_activity.Activity
		switch {
		case hasSource && strings.HasPrefix(sourceURI, "/"):
			builder := cage_activity.NewFetch(cage_activity.FetchCopy).ID(id)
			if parentPtr != nil {
				builder = builder.Parent(*parentPtr)
			}
			_, a = builder.Start(withParent(), sourceURI)
		case hasSource:
			builder := cage_activity.NewFetch(cage_activity.FetchDownload).ID(id).URL(sourceURI)
			if parentPtr != nil {
				builder = builder.Parent(*parentPtr)
			}
			_, a = builder.Start(withParent(), ExtractPackageName(storePath))
		default:
			builder := cage_activity.NewFetch(cage_activity.FetchCopy).ID(id)
			if parentPtr != nil {
				builder = builder.Parent(*parentPtr)
			}
			_, a = builder.Start(withParent(), ExtractPackageName(storePath))
		}
		b.insert(id, typ, a)

	case ActivitySubstitute:
		storePath, ok := StringField(fields, 0)
		if !ok {
			return
		}
		builder := cage_activity.NewFetch(cage_activity.FetchDownload).ID(id)
		if parentPtr != nil {
			builder = builder.Parent(*parentPtr)
		}
		if url, ok := StringField(fields, 1); ok {
			builder = builder.URL(url)
		}
		_, a := builder.Start(withParent(), ExtractPackageName(storePath))
		b.insert(id, typ, a)

	case ActivityFetchTree:
		builder := cage_activity.NewFetch(cage_activity.FetchTree).ID(id)
		if parentPtr != nil {
			builder = builder.Parent(*parentPtr)
		}
		_, a := builder.Start(withParent(), text)
		b.insert(id, typ, a)

	case ActivityFileTransfer:
		url, hasURL := StringField(fields, 0)
		name := text
		if hasURL {
			name = url
		}
		builder := cage_activity.NewFetch(cage_activity.FetchDownload).ID(id)
		if parentPtr != nil {
			builder = builder.Parent(*parentPtr)
		}
		if hasURL {
			builder = builder.URL(url)
		}
		_, a := builder.Start(withParent(), name)
		b.insert(id, typ, a)

	default:
		// Unhandled evaluator activity types are intentionally dropped: they do not map to
		// a user-visible kind in this module's Activity set.
	}
}

func (b *Bridge) handleStop(id uint64) {
	b.mu.Lock()
	info, ok := b.active[id]
	if ok {
		delete(b.active, id)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	info.activity.Close()
}

func (b *Bridge) handleResult(id uint64, typ ResultType, fields []Field) {
	info, ok := b.get(id)
	if !ok {
		return
	}

	switch typ {
	case ResultProgress:
		if done, ok1 := IntField(fields, 0); ok1 {
			if expected, ok2 := IntField(fields, 1); ok2 {
				info.activity.Progress(uint64(done), uint64(expected))
				return
			}
		}
		if downloaded, ok1 := IntField(fields, 0); ok1 && info.typ == ActivityCopyPath {
			if total, ok2 := IntField(fields, 1); ok2 {
				t := uint64(total)
				info.activity.ProgressBytes(uint64(downloaded), &t)
			} else {
				info.activity.ProgressBytes(uint64(downloaded), nil)
			}
		}

	case ResultSetPhase:
		if phase, ok := StringField(fields, 0); ok && info.typ == ActivityBuild {
			info.activity.Phase(phase)
		}

	case ResultBuildLogLine:
		if line, ok := StringField(fields, 0); ok {
			info.activity.Log("stdout", line)
		}

	default:
		// SetExpected and the remaining result kinds do not have a direct Activity
		// counterpart in this module and are dropped without being logged.
	}
}

func (b *Bridge) handleMsg(ctx context.Context, level Verbosity, msg string) {
	if op, ok := OpFromMessage(msg); ok {
		b.notifyObservers(op)

		if evalID, hasEval := b.currentEvalID(); hasEval {
			if info, ok := b.get(evalID); ok {
				info.activity.Log("eval", msg)
			}
		}
		return
	}

	if level == VerbosityError && !isKnownBenignError(msg) {
		summary, details, hasDetails := ParseNixError(msg)
		opt := cage_activity.MessageOpt{}
		if hasDetails {
			opt.Details = details
		}
		cage_activity.MessageCtx(ctx, cage_activity.LevelError, summary, opt)
		return
	}

	cage_activity.MessageCtx(ctx, verbosityToLevel(level), msg, cage_activity.MessageOpt{})
}

func verbosityToLevel(v Verbosity) cage_activity.Level {
	switch v {
	case VerbosityError:
		// Reached only for the "known benign" case; demoted to Debug per spec §9(b).
		return cage_activity.LevelDebug
	case VerbosityWarn, VerbosityNotice:
		return cage_activity.LevelWarn
	case VerbosityInfo:
		return cage_activity.LevelInfo
	case VerbosityVomit:
		return cage_activity.LevelTrace
	default:
		return cage_activity.LevelDebug
	}
}
