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

import "github.com/0rganizers/tasarch/internal/gdbbuf"

// DelimitedString builds the DelimitedString(child, sep, sepRequired)
// codec of spec.md §4.2: it consumes bytes from the buffer up to sep (or
// end of buffer), hands the collected span to parse, and renders values
// back with render on Encode, followed by sep only when sepRequired is
// true. If sepRequired is true and the buffer runs out before sep is
// seen, decoding fails with ErrMalformed.
func DelimitedString[V any](sep byte, sepRequired bool, parse func(string) (V, error), render func(V) string) Codec[V] {
	return Codec[V]{
		Encode: func(buf *gdbbuf.Buffer, v V) error {
			if err := buf.AppendBuf([]byte(render(v))); err != nil {
				return err
			}
			if sepRequired {
				return buf.AppendByte(sep)
			}
			return nil
		},
		Decode: func(buf *gdbbuf.Buffer) (V, error) {
			var zero V
			span := buf.ReadSlice()
			idx := -1
			for i, c := range span {
				if c == sep {
					idx = i
					break
				}
			}
			if idx < 0 {
				if sepRequired {
					return zero, malformedf("missing delimiter %q", sep)
				}
				if err := buf.GetCount(len(span)); err != nil {
					return zero, err
				}
				return parse(string(span))
			}
			if err := buf.GetCount(idx + 1); err != nil {
				return zero, err
			}
			return parse(string(span[:idx]))
		},
	}
}

// String is DelimitedString specialised to string values (no further
// child parsing), for free-text arguments.
func String(sep byte, sepRequired bool) Codec[string] {
	return DelimitedString(sep, sepRequired, func(s string) (string, error) { return s, nil }, func(s string) string { return s })
}
