// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tui

import (
	"sort"
	"sync"
	"time"

	"github.com/codeactual/devenv/internal/activity"
)

// LingerDuration is the default for how long a completed child keeps its place among active
// children before GetVisibleChildren demotes it below any still-active sibling; a Model can
// override it via SetLingerDuration (spec §3.5's "configurable duration (default 1 s)").
const LingerDuration = 1 * time.Second

// maxLogLines bounds Node.Log, the per-activity ring buffer (spec §3.5 "cap 1000"): the
// oldest lines are dropped once exceeded.
const maxLogLines = 1000

// Node is one entry in the activity tree: an Activity or a short-lived Message child.
type Node struct {
	ID       uint64
	Parent   *uint64
	Kind     activity.Kind
	Name     string
	Detail   string
	Cmd      string
	Phase    string
	Outcome  activity.Outcome

	StartedAt   time.Time
	CompletedAt time.Time
	Completed   bool

	// Progress, either items- or bytes-based; at most one pair is meaningful per node.
	Done, Expected   *uint64
	Current, Total   *uint64

	// Log holds recent captured lines, capped at maxLogLines (oldest dropped first).
	Log []LogLine

	children []uint64 // insertion order; get_visible_children reorders a filtered copy
}

// LogLine is one captured stdout/stderr (or task/command output) line.
type LogLine struct {
	Stream string
	Text   string
	At     time.Time
}

// Summary is the result of CalculateSummary: counts of active/completed/failed across
// builds, downloads, and queries.
type Summary struct {
	ActiveBuilds, CompletedBuilds, FailedBuilds       int
	ActiveDownloads, CompletedDownloads, FailedDownloads int
	ActiveQueries, CompletedQueries, FailedQueries    int
}

// Model is the pure state machine over ActivityEvents. It holds no I/O; a
// coordinator drains activity.InstallQueue() and calls Apply for each event.
type Model struct {
	mu       sync.RWMutex
	nodes    map[uint64]*Node
	roots    []uint64
	termW    int
	termH    int
	spinner  int

	// Selection/scrolling; the renderer drives these via key handlers, not Apply.
	selectedID    *uint64
	scrollOffsets map[uint64]int

	lingerDuration time.Duration
}

// NewModel returns an empty Model with LingerDuration as its linger default.
func NewModel() *Model {
	return &Model{
		nodes:          make(map[uint64]*Node),
		scrollOffsets:  make(map[uint64]int),
		lingerDuration: LingerDuration,
	}
}

// SetLingerDuration overrides how long a completed child lingers among active children
// before GetVisibleChildren demotes it; see LingerDuration for the default.
func (m *Model) SetLingerDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lingerDuration = d
}

// Apply folds one ActivityEvent into the model. It is the model's only mutation entry point
// besides SetLingerDuration and the selection/scroll/resize/spinner handlers below.
func (m *Model) Apply(e activity.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e.Event {
	case activity.EventStart:
		m.applyStart(e)
	case activity.EventComplete:
		m.applyComplete(e)
	case activity.EventProgress:
		m.applyProgress(e)
	case activity.EventPhase:
		if n, ok := m.nodes[e.ID]; ok {
			n.Phase = e.Phase
		}
	case activity.EventLog:
		if n, ok := m.nodes[e.ID]; ok {
			n.Log = append(n.Log, LogLine{Stream: e.Stream, Text: e.Line, At: e.Timestamp.Time})
			if len(n.Log) > maxLogLines {
				n.Log = n.Log[len(n.Log)-maxLogLines:]
			}
		}
	default:
		if e.ActivityKind == activity.KindMessage {
			m.applyMessage(e)
		}
	}
}

func (m *Model) applyStart(e activity.Event) {
	n := &Node{
		ID:        e.ID,
		Parent:    e.Parent,
		Kind:      e.ActivityKind,
		Name:      e.Name,
		Detail:    e.Detail,
		Cmd:       e.Cmd,
		StartedAt: e.Timestamp.Time,
	}
	m.nodes[e.ID] = n

	if e.Parent != nil {
		if parent, ok := m.nodes[*e.Parent]; ok {
			parent.children = append(parent.children, e.ID)
			return
		}
	}
	m.roots = append(m.roots, e.ID)
}

func (m *Model) applyComplete(e activity.Event) {
	n, ok := m.nodes[e.ID]
	if !ok {
		return
	}
	n.Completed = true
	n.CompletedAt = e.Timestamp.Time
	n.Outcome = e.Outcome
}

func (m *Model) applyProgress(e activity.Event) {
	n, ok := m.nodes[e.ID]
	if !ok {
		return
	}
	n.Done, n.Expected = e.Done, e.Expected
	n.Current, n.Total = e.Current, e.Total
}

// applyMessage turns a standalone Message with a parent into a short-lived child activity,
// inserted already-completed for inline status display.
func (m *Model) applyMessage(e activity.Event) {
	if e.Parent == nil {
		return
	}
	n := &Node{
		ID:          e.ID,
		Parent:      e.Parent,
		Kind:        activity.KindMessage,
		Name:        e.Text,
		Detail:      e.Details,
		StartedAt:   e.Timestamp.Time,
		CompletedAt: e.Timestamp.Time,
		Completed:   true,
	}
	switch e.Level {
	case activity.LevelError:
		n.Outcome = activity.OutcomeFailed
	default:
		n.Outcome = activity.OutcomeSuccess
	}
	m.nodes[e.ID] = n
	if parent, ok := m.nodes[*e.Parent]; ok {
		parent.children = append(parent.children, e.ID)
	}
}

// Node returns a copy of the node for id; the copy's Log slice shares its backing array with
// the model's node (the renderer always calls through Model methods, never stores a Node).
func (m *Model) Node(id uint64) (Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Roots returns the top-level activity ids in insertion order.
func (m *Model) Roots() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uint64, len(m.roots))
	copy(out, m.roots)
	return out
}

// VisibleLimit bounds how many children get_visible_children returns.
type VisibleLimit struct {
	MaxLines int
}

// GetVisibleChildren prioritises (1) active children, (2) completed children within the
// model's linger duration (LingerDuration unless SetLingerDuration changed it), (3) older
// completed children, each group sorted by id for stable display,
// truncated to limit.MaxLines.
func (m *Model) GetVisibleChildren(parent uint64, limit VisibleLimit, now time.Time) []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.nodes[parent]
	if !ok {
		return nil
	}

	var active, lingering, old []uint64
	for _, id := range p.children {
		c, ok := m.nodes[id]
		if !ok {
			continue
		}
		switch {
		case !c.Completed:
			active = append(active, id)
		case now.Sub(c.CompletedAt) <= m.lingerDuration:
			lingering = append(lingering, id)
		default:
			old = append(old, id)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })
	sort.Slice(lingering, func(i, j int) bool { return lingering[i] < lingering[j] })
	sort.Slice(old, func(i, j int) bool { return old[i] < old[j] })

	out := append(append(active, lingering...), old...)
	if limit.MaxLines > 0 && len(out) > limit.MaxLines {
		out = out[:limit.MaxLines]
	}
	return out
}

// GetSelectableActivityIDs returns activities restricted to active Build/Evaluate
// activities, the only kinds ExpandedLogs can open on.
func (m *Model) GetSelectableActivityIDs() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []uint64
	for id, n := range m.nodes {
		if n.Completed {
			continue
		}
		if n.Kind == activity.KindBuild || n.Kind == activity.KindEvaluate {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CalculateSummary counts active/completed/failed Build and Fetch activities. Node does not
// record a Fetch's sub-kind, so every Fetch activity (download, query, copy or tree) is
// counted under downloads and the query counters are always zero.
func (m *Model) CalculateSummary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Summary
	for _, n := range m.nodes {
		switch n.Kind {
		case activity.KindBuild:
			bump(&s.ActiveBuilds, &s.CompletedBuilds, &s.FailedBuilds, n)
		case activity.KindFetch:
			// FetchKind isn't carried on Node, so every Fetch lands in the download bucket.
			bump(&s.ActiveDownloads, &s.CompletedDownloads, &s.FailedDownloads, n)
		}
	}
	return s
}

func bump(active, completed, failed *int, n *Node) {
	switch {
	case !n.Completed:
		*active++
	case n.Outcome == activity.OutcomeFailed:
		*failed++
	default:
		*completed++
	}
}

// SetTerminalSize is called on every resize.
func (m *Model) SetTerminalSize(w, h int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.termW, m.termH = w, h
}

// TerminalSize returns the last size set via SetTerminalSize.
func (m *Model) TerminalSize() (w, h int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.termW, m.termH
}

// TickSpinner advances the spinner frame on a monotonic tick unrelated to data.
func (m *Model) TickSpinner() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spinner++
}

// SpinnerFrame returns the current spinner frame index.
func (m *Model) SpinnerFrame() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.spinner
}

// Select sets the selected activity id for ExpandedLogs; idempotent and not bounds-checked
// against selectability here (the renderer consults GetSelectableActivityIDs before calling).
func (m *Model) Select(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := id
	m.selectedID = &v
}

// Deselect clears the selection.
func (m *Model) Deselect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectedID = nil
}

// Selected returns the currently selected activity id, if any.
func (m *Model) Selected() (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.selectedID == nil {
		return 0, false
	}
	return *m.selectedID, true
}

// ScrollBy adjusts the scroll offset for id's log viewport by delta, clamped to
// [0, maxOffset]. It is idempotent and bounds-checked.
func (m *Model) ScrollBy(id uint64, delta, maxOffset int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	off := m.scrollOffsets[id] + delta
	if off < 0 {
		off = 0
	}
	if off > maxOffset {
		off = maxOffset
	}
	m.scrollOffsets[id] = off
}

// ScrollTo sets the scroll offset for id directly, clamped to [0, maxOffset].
func (m *Model) ScrollTo(id uint64, offset, maxOffset int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	if offset > maxOffset {
		offset = maxOffset
	}
	m.scrollOffsets[id] = offset
}

// ScrollOffset returns id's current scroll offset.
func (m *Model) ScrollOffset(id uint64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scrollOffsets[id]
}
