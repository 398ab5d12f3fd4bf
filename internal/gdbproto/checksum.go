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

package gdbproto

// checksum accumulates the unsigned 8-bit sum (mod 256) of transmitted
// bytes, per spec.md §4.3.
type checksum byte

func (c *checksum) add(b byte) { *c += checksum(b) }

const hexDigits = "0123456789abcdef"

// hex renders the checksum as its two lowercase hex nibbles.
func (c checksum) hex() [2]byte {
	return [2]byte{hexDigits[c>>4], hexDigits[c&0xf]}
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
