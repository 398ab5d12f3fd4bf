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

// Opt is the value type produced by Optional: either nothing (an empty
// remaining buffer) or a decoded child value.
type Opt[V any] struct {
	Present bool
	Value   V
}

// Some wraps a present value, for callers building responses.
func Some[V any](v V) Opt[V] { return Opt[V]{Present: true, Value: v} }

// None is the absent Opt value.
func None[V any]() Opt[V] { return Opt[V]{} }

// Optional is the Optional(child) codec of spec.md §4.2: if the buffer is
// empty, it yields an absent Opt without consuming anything; otherwise it
// delegates to child.
func Optional[V any](child Codec[V]) Codec[Opt[V]] {
	return Codec[Opt[V]]{
		Encode: func(buf *gdbbuf.Buffer, v Opt[V]) error {
			if !v.Present {
				return nil
			}
			return child.Encode(buf, v.Value)
		},
		Decode: func(buf *gdbbuf.Buffer) (Opt[V], error) {
			if buf.ReadSize() == 0 {
				return None[V](), nil
			}
			v, err := child.Decode(buf)
			if err != nil {
				return Opt[V]{}, err
			}
			return Some(v), nil
		},
	}
}
