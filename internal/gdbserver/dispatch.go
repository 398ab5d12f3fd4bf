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
	"github.com/0rganizers/tasarch/internal/gdbbuf"
	"github.com/0rganizers/tasarch/internal/gdbcodec"
)

// packetHandlerFunc decodes a command's argument buffer (the packet body
// with the leading command byte already stripped) and runs the handler.
// It is the Go stand-in for spec.md §4.2's decode_sequence<Codecs...>
// bound to a handler callback: since Go has no variadic generics, each
// arity is expressed with its own PacketHandlerN constructor below
// instead of a single variadic template.
type packetHandlerFunc func(c *Connection, buf *gdbbuf.Buffer) error

// PacketHandler0 registers a command that takes no decoded arguments
// (e.g. '?', 'g').
func PacketHandler0(fn func(c *Connection) error) packetHandlerFunc {
	return func(c *Connection, buf *gdbbuf.Buffer) error {
		return fn(c)
	}
}

// PacketHandler1 registers a command whose remaining bytes decode via a
// single codec.
func PacketHandler1[A any](ca gdbcodec.Codec[A], fn func(c *Connection, a A) error) packetHandlerFunc {
	return func(c *Connection, buf *gdbbuf.Buffer) error {
		return gdbcodec.DecodeSequence1(buf, ca, func(a A) error { return fn(c, a) })
	}
}

// PacketHandler2 registers a two-argument command (e.g. `m<addr>,<len>`).
func PacketHandler2[A, B any](ca gdbcodec.Codec[A], cb gdbcodec.Codec[B], fn func(c *Connection, a A, b B) error) packetHandlerFunc {
	return func(c *Connection, buf *gdbbuf.Buffer) error {
		return gdbcodec.DecodeSequence2(buf, ca, cb, func(a A, b B) error { return fn(c, a, b) })
	}
}

// PacketHandler3 registers a three-argument command (e.g.
// `M<addr>,<len>:<hexbytes>`).
func PacketHandler3[A, B, C any](ca gdbcodec.Codec[A], cb gdbcodec.Codec[B], cc gdbcodec.Codec[C], fn func(conn *Connection, a A, b B, c C) error) packetHandlerFunc {
	return func(conn *Connection, buf *gdbbuf.Buffer) error {
		return gdbcodec.DecodeSequence3(buf, ca, cb, cc, func(a A, b B, c C) error { return fn(conn, a, b, c) })
	}
}

// PacketHandler4 registers a four-argument command. No built-in command
// currently needs it, but it keeps the arity ladder complete up to the
// widest Host-I/O reply shape (retcode, errno, break flag, attachment).
func PacketHandler4[A, B, C, D any](ca gdbcodec.Codec[A], cb gdbcodec.Codec[B], cc gdbcodec.Codec[C], cd gdbcodec.Codec[D], fn func(conn *Connection, a A, b B, c C, d D) error) packetHandlerFunc {
	return func(conn *Connection, buf *gdbbuf.Buffer) error {
		return gdbcodec.DecodeSequence4(buf, ca, cb, cc, cd, func(a A, b B, c C, d D) error { return fn(conn, a, b, c, d) })
	}
}
