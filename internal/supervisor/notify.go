// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package supervisor

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NotifyMessage is a parsed datagram from a supervised process. Unknown
// keys are ignored entirely; recognised-but-absent fields are left at their zero value.
type NotifyMessage struct {
	Ready              bool
	WatchdogPing       bool
	WatchdogTrigger    bool
	Status             string
	Stopping           bool
	Reloading          bool
	ExtendTimeoutUsec  uint64
	HasExtendTimeout   bool
	MainPID            int
}

// parseNotify parses one newline-separated KEY=VALUE datagram. Malformed lines are skipped
// rather than erroring, since malformed bytes must never crash the supervisor --
// parseNotify never returns an error for that reason; it simply does its best.
func parseNotify(b []byte) NotifyMessage {
	var msg NotifyMessage

	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key, val := line[:eq], line[eq+1:]

		switch key {
		case "READY":
			msg.Ready = val == "1"
		case "WATCHDOG":
			if val == "1" {
				msg.WatchdogPing = true
			} else if val == "trigger" {
				msg.WatchdogTrigger = true
			}
		case "STATUS":
			msg.Status = val
		case "STOPPING":
			msg.Stopping = val == "1"
		case "RELOADING":
			msg.Reloading = val == "1"
		case "EXTEND_TIMEOUT_USEC":
			if n, err := strconv.ParseUint(val, 10, 64); err == nil {
				msg.ExtendTimeoutUsec = n
				msg.HasExtendTimeout = true
			}
		case "MAINPID":
			if n, err := strconv.Atoi(val); err == nil {
				msg.MainPID = n
			}
		default:
			// unrecognised keys are silently ignored
		}
	}

	return msg
}

// NotifySocket is the per-process Unix-datagram receiver.
type NotifySocket struct {
	Path string

	conn *net.UnixConn
}

// ListenNotify binds a Unix-datagram socket at path, removing any stale socket file first.
func ListenNotify(path string) (*NotifySocket, error) {
	_ = removeStaleSocket(path)

	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on notify socket [%s]", path)
	}

	return &NotifySocket{Path: path, conn: conn}, nil
}

// Recv blocks for the next datagram and parses it. Malformed content never produces an
// error: malformed lines are skipped, so a fully malformed datagram yields an empty
// NotifyMessage. Only the first 4096 bytes of a datagram are read.
func (s *NotifySocket) Recv() (NotifyMessage, error) {
	buf := make([]byte, 4096)
	n, _, err := s.conn.ReadFromUnix(buf)
	if err != nil {
		return NotifyMessage{}, errors.Wrap(err, "failed to read notify datagram")
	}
	return parseNotify(buf[:n]), nil
}

// Close removes the socket file and releases the underlying connection when a supervisor
// stops.
func (s *NotifySocket) Close() error {
	err := s.conn.Close()
	_ = removeStaleSocket(s.Path)
	return errors.Wrap(err, "failed to close notify socket")
}
