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
	"testing"

	"github.com/0rganizers/tasarch/internal/gdbbuf"
	"github.com/0rganizers/tasarch/internal/gdbcodec"
)

// TestPacketHandler4 exercises the widest arity on the PacketHandlerN
// ladder. No built-in command currently needs four decoded arguments,
// but the ladder is meant to go as wide as a Host-I/O reply
// (retcode, errno, break flag, attachment) requires, so it is covered
// directly here rather than left untested until some future command
// needs it.
func TestPacketHandler4(t *testing.T) {
	parse := func(s string) (uint64, error) { return gdbcodec.ParseHexUint[uint64](s) }
	render := func(v uint64) string { return gdbcodec.FormatHexUint(v) }
	a := gdbcodec.DelimitedString(',', true, parse, render)
	b := gdbcodec.DelimitedString(',', true, parse, render)
	c := gdbcodec.DelimitedString(',', true, parse, render)
	d := gdbcodec.DelimitedString(0, false, parse, render)

	var got [4]uint64
	h := PacketHandler4(a, b, c, d, func(conn *Connection, v1, v2, v3, v4 uint64) error {
		got = [4]uint64{v1, v2, v3, v4}
		return nil
	})

	buf := gdbbuf.New(64)
	if err := buf.AppendBuf([]byte("1,2,3,4")); err != nil {
		t.Fatalf("AppendBuf: %s", err)
	}
	if err := h(nil, buf); err != nil {
		t.Fatalf("handler: %s", err)
	}
	if got != [4]uint64{1, 2, 3, 4} {
		t.Fatalf("got %v, want [1 2 3 4]", got)
	}
}
