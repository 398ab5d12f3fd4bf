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

package gdbcodec

import (
	"encoding/hex"

	"github.com/0rganizers/tasarch/internal/gdbbuf"
)

// Bytes is the Bytes(container) codec of spec.md §4.2: pairs of hex
// nibbles per element byte, consuming the rest of the buffer. An odd
// number of remaining hex digits is a malformed packet. This is used for
// the trailing <hexbytes> of an M (write memory) command.
func Bytes() Codec[[]byte] {
	return Codec[[]byte]{
		Encode: func(buf *gdbbuf.Buffer, v []byte) error {
			enc := make([]byte, hex.EncodedLen(len(v)))
			hex.Encode(enc, v)
			return buf.AppendBuf(enc)
		},
		Decode: func(buf *gdbbuf.Buffer) ([]byte, error) {
			span := buf.ReadSlice()
			if len(span)%2 != 0 {
				return nil, malformedf("odd-length hex byte run (%d nibbles)", len(span))
			}
			out := make([]byte, len(span)/2)
			if _, err := hex.Decode(out, span); err != nil {
				return nil, malformedf("invalid hex byte run: %s", err)
			}
			if err := buf.GetCount(len(span)); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}
