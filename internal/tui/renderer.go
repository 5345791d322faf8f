// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tui

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"github.com/gdamore/tcell"
	"github.com/pkg/errors"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/codeactual/devenv/internal/activity"
	cage_zap "github.com/codeactual/devenv/internal/cage/log/zap"
)

// ViewMode selects between the tree-shaped Main view and the full-screen ExpandedLogs view.
type ViewMode int

const (
	ViewMain ViewMode = iota
	ViewExpandedLogs
)

// MaxFPS bounds the renderer's redraw rate; Dirty() calls coalesce until the next frame
// deadline rather than forcing a redraw each time.
const MaxFPS = 30

// CollapsedLogLines bounds the recent log lines shown under a selected Build in the Main view.
// ExpandedLogLines is not referenced: the Main view has no expanded state, and the
// ExpandedLogs view shows viewportHeight lines at a time.
const (
	CollapsedLogLines = 10
	ExpandedLogLines  = 100
)

// gutterWidth is the width of the "NNNNN | " line-number gutter ExpandedLogs prepends to
// every line. Selection is tracked in whole log lines, not columns, so no selection code
// reads it.
const gutterWidth = 8

var spinnerFrames = []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
var nixStorePathRe = regexp.MustCompile(`/nix/store/[^/]+/`)

// Renderer drives a tview.Application over a Model: the Main tree view and the alternate-
// screen ExpandedLogs view, throttled redraws, and their keybinding tables.
type Renderer struct {
	model *Model
	log   *zap.Logger
	app   *tview.Application
	root  *tview.TextView

	mu        sync.Mutex
	mode      ViewMode
	expandID  uint64
	selecting bool
	selStart  int
	selEnd    int

	dirty     chan struct{}
	stop      chan struct{}
	shutdown  chan struct{} // closed on Ctrl+C
}

// NewRenderer constructs a Renderer over model.
func NewRenderer(model *Model, log *zap.Logger) *Renderer {
	r := &Renderer{
		model:    model,
		log:      log,
		dirty:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
		shutdown: make(chan struct{}),
	}

	r.root = tview.NewTextView()
	r.root.SetDynamicColors(true)
	r.root.SetScrollable(true)
	r.root.SetWrap(false)

	r.app = tview.NewApplication().SetInputCapture(r.inputCapture)
	r.app.SetRoot(r.root, true)
	r.app.EnableMouse(true)
	r.app.SetMouseCapture(r.mouseCapture)

	return r
}

// ShutdownCh is closed when Ctrl+C is pressed from any view.
func (r *Renderer) ShutdownCh() <-chan struct{} { return r.shutdown }

// Dirty schedules a redraw on the next frame deadline; repeated calls before that deadline
// coalesce into a single redraw.
func (r *Renderer) Dirty() {
	select {
	case r.dirty <- struct{}{}:
	default:
	}
}

// Run starts the frame-throttled redraw loop and blocks on the tview event loop until Stop is
// called or the application exits.
func (r *Renderer) Run() error {
	go r.redrawLoop()
	if err := r.app.Run(); err != nil {
		return errors.Wrap(err, "failed to run tui application")
	}
	return nil
}

// Stop ends the redraw loop and the tview application.
func (r *Renderer) Stop() {
	close(r.stop)
	r.app.Stop()
}

func (r *Renderer) redrawLoop() {
	interval := time.Second / MaxFPS
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			select {
			case <-r.dirty:
				r.draw()
			default:
			}
		}
	}
}

func (r *Renderer) draw() {
	r.app.QueueUpdateDraw(func() {
		r.mu.Lock()
		mode, expandID := r.mode, r.expandID
		r.mu.Unlock()

		switch mode {
		case ViewExpandedLogs:
			r.root.SetText(r.renderExpandedLogs(expandID))
		default:
			r.root.SetText(r.renderMain())
		}
	})
}

// renderMain renders the tree view: every root and its visible children, each as one to
// three lines.
func (r *Renderer) renderMain() string {
	w, _ := r.model.TerminalSize()
	if w <= 0 {
		w = 80
	}

	var b strings.Builder
	now := time.Now()
	for _, id := range r.model.Roots() {
		r.renderNode(&b, id, 0, w, now)
	}
	return b.String()
}

func (r *Renderer) renderNode(b *strings.Builder, id uint64, depth int, termW int, now time.Time) {
	n, ok := r.model.Node(id)
	if !ok {
		return
	}

	b.WriteString(r.headerLine(n, depth, termW, now))
	b.WriteString("\n")

	if n.Kind == activity.KindFetch && !n.Completed {
		b.WriteString(r.progressBarLine(n, termW))
		b.WriteString("\n")
	}

	if sel, ok := r.model.Selected(); ok && sel == id && n.Kind == activity.KindBuild {
		lines := n.Log
		if len(lines) > CollapsedLogLines {
			lines = lines[len(lines)-CollapsedLogLines:]
		}
		for _, l := range lines {
			b.WriteString("    ")
			b.WriteString(l.Text)
			b.WriteString("\n")
		}
	}

	children := r.model.GetVisibleChildren(id, VisibleLimit{MaxLines: termH(r.model)}, now)
	for _, c := range children {
		r.renderNode(b, c, depth+1, termW, now)
	}
}

func termH(m *Model) int {
	_, h := m.TerminalSize()
	if h <= 0 {
		return 20
	}
	return h
}

func (r *Renderer) headerLine(n Node, depth int, termW int, now time.Time) string {
	indent := ""
	if depth >= 1 {
		indent = strings.Repeat("  ", depth-1) + "└── "
	}

	action := actionWord(n.Kind, n.Completed, n.Outcome)

	spinner := ""
	if depth == 0 && !n.Completed {
		frames := spinnerFrames
		spinner = string(frames[r.model.SpinnerFrame()%len(frames)]) + " "
	}

	elapsed := elapsedFor(n, now)
	name := shortenName(n.Name, termW)

	line := fmt.Sprintf("%s%s%s %s", indent, spinner, action, name)
	pad := termW - len(stripColorTags(line)) - len(elapsed) - 1
	if pad < 1 {
		pad = 1
	}
	return line + strings.Repeat(" ", pad) + elapsed
}

func stripColorTags(s string) string { return s }

func actionWord(kind activity.Kind, completed bool, outcome activity.Outcome) string {
	base := map[activity.Kind]string{
		activity.KindBuild:     "Building",
		activity.KindFetch:     "Downloading",
		activity.KindEvaluate:  "Evaluating",
		activity.KindTask:      "Task",
		activity.KindCommand:   "Command",
		activity.KindOperation: "Running",
		activity.KindMessage:   "Message",
	}[kind]
	if base == "" {
		base = string(kind)
	}
	if !completed {
		return base
	}
	switch outcome {
	case activity.OutcomeFailed:
		return "Failed"
	case activity.OutcomeCancelled:
		return "Cancelled"
	default:
		return "Done"
	}
}

func elapsedFor(n Node, now time.Time) string {
	end := now
	if n.Completed {
		end = n.CompletedAt
	}
	d := end.Sub(n.StartedAt)
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Second).String()
}

// shortenName truncates with a leading ellipsis to fit, and aggressively shortens
// store-style paths when narrow.
func shortenName(name string, termW int) string {
	budget := termW - 30
	if budget < 10 {
		budget = 10
	}
	if len(name) <= budget {
		return name
	}

	shortened := nixStorePathRe.ReplaceAllString(name, "/nix/store/…")
	if len(shortened) <= budget {
		return shortened
	}

	keep := budget - 1
	if keep < 0 {
		keep = 0
	}
	return "…" + shortened[len(shortened)-keep:]
}

// progressBarLine renders a Download progress bar: width clamp(term_w-prefix-stats, 10, 100).
func (r *Renderer) progressBarLine(n Node, termW int) string {
	width := termW - 20
	if width < 10 {
		width = 10
	}
	if width > 100 {
		width = 100
	}

	var frac float64
	var stats string
	switch {
	case n.Current != nil && n.Total != nil && *n.Total > 0:
		frac = float64(*n.Current) / float64(*n.Total)
		stats = fmt.Sprintf("%d/%d", *n.Current, *n.Total)
	case n.Done != nil && n.Expected != nil && *n.Expected > 0:
		frac = float64(*n.Done) / float64(*n.Expected)
		stats = fmt.Sprintf("%d/%d", *n.Done, *n.Expected)
	default:
		stats = "?"
	}
	if frac > 1 {
		frac = 1
	}

	filled := int(frac * float64(width))
	return "    [" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "] " + stats
}

// viewportHeight is the ExpandedLogs scroll window: terminal_height - 2 (spec §4.7), at
// least 1.
func (r *Renderer) viewportHeight() int {
	_, h := r.model.TerminalSize()
	vh := h - 2
	if vh < 1 {
		vh = 1
	}
	return vh
}

// maxOffsetFor is the largest scroll offset that still leaves a full viewport of id's log on
// screen.
func (r *Renderer) maxOffsetFor(id uint64) int {
	n, _ := r.model.Node(id)
	maxOffset := len(n.Log) - r.viewportHeight()
	if maxOffset < 0 {
		maxOffset = 0
	}
	return maxOffset
}

// rowToLogIndex converts a mouse event's screen row y (within the ExpandedLogs viewport)
// into an index into id's Log, accounting for the current scroll offset and clamping to the
// log's bounds.
func (r *Renderer) rowToLogIndex(id uint64, y int) int {
	n, _ := r.model.Node(id)
	idx := r.model.ScrollOffset(id) + y
	if idx < 0 {
		idx = 0
	}
	if last := len(n.Log) - 1; idx > last {
		idx = last
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// scrollExpandedBy adjusts id's scroll offset by delta lines, used by the wheel bindings
// (±3 lines per event, spec §4.7).
func (r *Renderer) scrollExpandedBy(id uint64, delta int) {
	r.model.ScrollBy(id, delta, r.maxOffsetFor(id))
	r.Dirty()
}

// renderExpandedLogs renders the portion of id's log currently scrolled into view, with a
// line-number gutter and the active mouse selection (if any) highlighted.
func (r *Renderer) renderExpandedLogs(id uint64) string {
	n, ok := r.model.Node(id)
	if !ok {
		return ""
	}

	offset := r.model.ScrollOffset(id)
	if offset > len(n.Log) {
		offset = len(n.Log)
	}
	end := offset + r.viewportHeight()
	if end > len(n.Log) {
		end = len(n.Log)
	}
	visible := n.Log[offset:end]

	r.mu.Lock()
	selecting, selStart, selEnd := r.selecting, r.selStart, r.selEnd
	r.mu.Unlock()
	if selStart > selEnd {
		selStart, selEnd = selEnd, selStart
	}

	var b strings.Builder
	for i, l := range visible {
		idx := offset + i
		text := stripANSI(l.Text)
		if selecting && idx >= selStart && idx <= selEnd {
			text = "[black:white]" + text + "[-:-:-]"
		}
		fmt.Fprintf(&b, "%5d | %s\n", idx+1, text)
	}
	return b.String()
}

func stripANSI(s string) string { return ansiRe.ReplaceAllString(s, "") }

// inputCapture implements the keybinding tables for both view modes.
func (r *Renderer) inputCapture(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyCtrlC {
		r.mu.Lock()
		select {
		case <-r.shutdown:
		default:
			close(r.shutdown)
		}
		r.mu.Unlock()
		return event
	}

	r.mu.Lock()
	mode := r.mode
	r.mu.Unlock()

	if mode == ViewExpandedLogs {
		return r.expandedLogsInput(event)
	}
	return r.mainInput(event)
}

func (r *Renderer) mainInput(event *tcell.EventKey) *tcell.EventKey {
	if ids := r.model.GetSelectableActivityIDs(); len(ids) > 0 {
		if pos, err := strconv.Atoi(string(event.Rune())); err == nil && pos > 0 && pos-1 < len(ids) {
			r.openExpandedLogs(ids[pos-1])
			return nil
		}
	}
	return event
}

func (r *Renderer) openExpandedLogs(id uint64) {
	r.mu.Lock()
	r.mode = ViewExpandedLogs
	r.expandID = id
	r.mu.Unlock()
	r.Dirty()
}

func (r *Renderer) expandedLogsInput(event *tcell.EventKey) *tcell.EventKey {
	r.mu.Lock()
	id := r.expandID
	r.mu.Unlock()

	viewportH := r.viewportHeight()
	maxOffset := r.maxOffsetFor(id)

	switch {
	case event.Rune() == 'j' || event.Key() == tcell.KeyDown:
		r.model.ScrollBy(id, 1, maxOffset)
	case event.Rune() == 'k' || event.Key() == tcell.KeyUp:
		r.model.ScrollBy(id, -1, maxOffset)
	case event.Key() == tcell.KeyPgDn || event.Rune() == ' ':
		r.model.ScrollBy(id, viewportH, maxOffset)
	case event.Key() == tcell.KeyPgUp:
		r.model.ScrollBy(id, -viewportH, maxOffset)
	case event.Rune() == 'g' || event.Key() == tcell.KeyHome:
		r.model.ScrollTo(id, 0, maxOffset)
	case event.Rune() == 'G' || event.Key() == tcell.KeyEnd:
		r.model.ScrollTo(id, maxOffset, maxOffset)
	case event.Rune() == 'y' || event.Key() == tcell.KeyEnter:
		r.copySelection(id)
		r.clearSelection()
	case event.Key() == tcell.KeyEsc:
		if r.hasSelection() {
			r.clearSelection()
		} else {
			r.returnToMain()
		}
	case event.Rune() == 'q' || event.Key() == tcell.KeyCtrlE:
		r.returnToMain()
	default:
		return event
	}

	r.Dirty()
	return nil
}

// mouseCapture implements ExpandedLogs' mouse bindings (spec §4.7): the scroll wheel moves
// the viewport ±3 lines, and a left-button drag selects a line range for copySelection. Main
// view mouse events pass through unhandled.
func (r *Renderer) mouseCapture(event *tcell.EventMouse, action tview.MouseAction) (*tcell.EventMouse, tview.MouseAction) {
	r.mu.Lock()
	mode, id := r.mode, r.expandID
	r.mu.Unlock()
	if mode != ViewExpandedLogs {
		return event, action
	}

	switch action {
	case tview.MouseScrollUp:
		r.scrollExpandedBy(id, -3)
		return nil, action
	case tview.MouseScrollDown:
		r.scrollExpandedBy(id, 3)
		return nil, action
	}

	_, y := event.Position()
	switch action {
	case tview.MouseLeftDown:
		idx := r.rowToLogIndex(id, y)
		r.mu.Lock()
		r.selecting = true
		r.selStart, r.selEnd = idx, idx
		r.mu.Unlock()
		r.Dirty()
		return nil, action
	case tview.MouseMove, tview.MouseLeftClick:
		r.mu.Lock()
		dragging := r.selecting
		r.mu.Unlock()
		if !dragging {
			return event, action
		}
		idx := r.rowToLogIndex(id, y)
		r.mu.Lock()
		r.selEnd = idx
		r.mu.Unlock()
		r.Dirty()
		return nil, action
	case tview.MouseLeftUp:
		r.mu.Lock()
		hadSelection := r.selecting
		idx := r.rowToLogIndex(id, y)
		if hadSelection {
			r.selEnd = idx
		}
		r.mu.Unlock()
		if hadSelection {
			r.Dirty()
			return nil, action
		}
	}

	return event, action
}

func (r *Renderer) returnToMain() {
	r.mu.Lock()
	r.mode = ViewMain
	r.mu.Unlock()
}

func (r *Renderer) hasSelection() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selecting
}

func (r *Renderer) clearSelection() {
	r.mu.Lock()
	r.selecting = false
	r.selStart, r.selEnd = 0, 0
	r.mu.Unlock()
}

// copySelection writes the selected log lines to the terminal's clipboard via OSC 52. The
// selection covers whole lines (no column range is tracked), and the text is taken from the
// Log itself, so the "NNNNN | " gutter is never part of the copied text.
func (r *Renderer) copySelection(id uint64) {
	n, ok := r.model.Node(id)
	if !ok {
		return
	}

	r.mu.Lock()
	start, end := r.selStart, r.selEnd
	r.mu.Unlock()
	if start > end {
		start, end = end, start
	}
	if start < 0 {
		start = 0
	}
	if end >= len(n.Log) {
		end = len(n.Log) - 1
	}
	if end < start {
		return
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		b.WriteString(stripANSI(n.Log[i].Text))
		b.WriteString("\n")
	}

	seq := osc52.New(b.String())
	if tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0); err == nil {
		defer tty.Close()
		seq.WriteTo(tty)
	} else {
		seq.WriteTo(os.Stdout)
	}

	if r.log != nil {
		r.log.Debug("copied selection via osc52", cage_zap.Tag("tui"))
	}
}
