// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package gdbserver

import (
	"errors"
	"fmt"

	"github.com/0rganizers/tasarch/internal/gdbbuf"
	"github.com/0rganizers/tasarch/internal/hostio"
)

// ErrUnknownCommand is raised when the leading command byte of a packet
// has no registered packet handler (spec.md §7 "unknown request").
var ErrUnknownCommand = errors.New("gdbserver: unknown command")

// ErrUnexpectedFReply is raised when an F reply arrives that the
// Coordinator cannot correlate to any outstanding request (spec.md §9
// Open Questions: treated as a protocol error that stops the Connection).
var ErrUnexpectedFReply = hostio.ErrUnexpectedReply

// HostIOError wraps a failed Host-I/O reply (spec.md §4.6 step 5:
// "If retcode < 0 and an errno is present, it fails with a
// host-io-failure carrying errno").
type HostIOError struct {
	Errno hostio.WireErrno
}

func (e *HostIOError) Error() string {
	return fmt.Sprintf("gdbserver: host I/O failed: errno=%d", e.Errno)
}

// classify maps a handler error to the wire-level response spec.md §7
// dictates. unknown=true means "respond with an empty packet"; otherwise
// code is the single byte rendered as E<hh>.
func classify(err error) (unknown bool, code byte) {
	switch {
	case err == nil:
		return false, 0
	case errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrUnknownQuery):
		return true, 0
	case isBufferError(err):
		return false, 0x02
	default:
		return false, 0x01
	}
}

func isBufferError(err error) bool {
	if errors.Is(err, gdbbuf.ErrUnderflow) || errors.Is(err, gdbbuf.ErrOverflow) {
		return true
	}
	var tooSmall *gdbbuf.TooSmallError
	return errors.As(err, &tooSmall)
}
