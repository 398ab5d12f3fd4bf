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

// Array is the Array(child, sep) codec of spec.md §4.2: it repeatedly
// applies DelimitedString(child, sep, sepRequired=false) until the
// buffer is exhausted. sep defaults to ';' at call sites that match the
// spec's default, but is left as a parameter here since qSupported's
// feature list and other arrays in the protocol can use other
// separators.
func Array[V any](sep byte, child func(string) (V, error), render func(V) string) Codec[[]V] {
	return Codec[[]V]{
		Encode: func(buf *gdbbuf.Buffer, vs []V) error {
			for i, v := range vs {
				if i > 0 {
					if err := buf.AppendByte(sep); err != nil {
						return err
					}
				}
				if err := buf.AppendBuf([]byte(render(v))); err != nil {
					return err
				}
			}
			return nil
		},
		Decode: func(buf *gdbbuf.Buffer) ([]V, error) {
			var out []V
			for buf.ReadSize() > 0 {
				elem := DelimitedString(sep, false, child, render)
				v, err := elem.Decode(buf)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil
		},
	}
}
