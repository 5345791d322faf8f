// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package shell_test

import (
	"bufio"
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeactual/devenv/internal/shell"
)

var startMarkerRe = regexp.MustCompile(`__DEVENV_TASK_START_(\d+)__`)

// scriptedRun writes cmd's marker script to a capture buffer (discovering the id RunCommand
// assigned), then builds a reader that imitates a real PTY's output: a bracketed-paste toggle
// before the start marker, the command's printable output, and the end marker with exitCode
// baked in.
func scriptedRun(t *testing.T, cmd, printable string, exitCode int) shell.RunResult {
	t.Helper()

	var sink bytes.Buffer
	var reader *bufio.Reader

	// RunCommand needs a reader before it knows what it wrote; capture the script via a
	// custom writer that, on first write, synthesizes the matching canned reader.
	w := &captureWriter{onWrite: func(script string) {
		m := startMarkerRe.FindStringSubmatch(script)
		require.NotNil(t, m, "script missing start marker: %q", script)
		id := m[1]

		var out bytes.Buffer
		out.WriteString("\x1b[?2004l") // real PTYs often emit bracketed-paste toggles
		out.WriteString(shell.StartMarker(id))
		out.WriteString("\n")
		if printable != "" {
			out.WriteString(printable)
			if printable[len(printable)-1] != '\n' {
				out.WriteString("\n")
			}
		}
		out.WriteString(shell.EndMarker(id, exitCode))
		out.WriteString("\n")
		reader = bufio.NewReader(&out)
	}}

	// RunCommand needs the reader at call time, but the reader depends on what's written to
	// w, which only happens inside RunCommand. Resolve this by writing the script ourselves
	// first with a throwaway id-discovery pass: RunCommand assigns a fresh id per call, so
	// instead drive it through a reader that lazily builds itself from whatever script w saw.
	lazy := &lazyReader{build: func() *bufio.Reader { return reader }}

	result, err := shell.RunCommand(w, lazy.asBufio(), cmd)
	require.NoError(t, err)
	_ = sink
	return result
}

type captureWriter struct {
	onWrite func(string)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.onWrite(string(p))
	return len(p), nil
}

// lazyReader defers construction of the underlying bufio.Reader until the first read, by
// which point captureWriter.onWrite has already run (RunCommand writes before it reads).
type lazyReader struct {
	build func() *bufio.Reader
	inner *bufio.Reader
}

func (r *lazyReader) asBufio() *bufio.Reader {
	return bufio.NewReader(&lazyReaderSource{r})
}

type lazyReaderSource struct{ r *lazyReader }

func (s *lazyReaderSource) Read(p []byte) (int, error) {
	if s.r.inner == nil {
		s.r.inner = s.r.build()
	}
	return s.r.inner.Read(p)
}

func TestMarkerProtocolCapturesOnlyPrintableOutput(t *testing.T) {
	result := scriptedRun(t, "echo hi", "hello\nworld", 0)
	require.Equal(t, 0, result.ExitCode)
	require.Equal(t, []string{"hello", "world"}, result.Lines)
}

func TestMarkerProtocolReportsNonZeroExit(t *testing.T) {
	result := scriptedRun(t, "false", "boom", 7)
	require.Equal(t, 7, result.ExitCode)
	require.Equal(t, []string{"boom"}, result.Lines)
}

func TestStripANSIRemovesEscapeSequences(t *testing.T) {
	require.Equal(t, "green", shell.StripANSI("\x1b[32mgreen\x1b[0m"))
	require.Equal(t, "plain", shell.StripANSI("plain"))
}

func TestWaitForDrainSentinelRequiresThePair(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString(shell.DrainSentinel + "\n" + shell.DrainSentinel + "\n"))
	require.NoError(t, shell.WaitForDrainSentinel(r))
}

func TestWaitForDrainSentinelIgnoresLoneOccurrence(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString(shell.DrainSentinel + "\nsome noise\n"))
	err := shell.WaitForDrainSentinel(r)
	require.Error(t, err)
}
