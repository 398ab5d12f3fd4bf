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
	"strconv"

	"golang.org/x/exp/constraints"
)

// ParseInt parses s in the given base (0 means infer from a 0x/0 prefix,
// as strconv.ParseInt does) into T, failing with ErrMalformed on bad
// input. This is the Integer(T, base) codec of spec.md §4.2, expressed as
// a plain string->value function rather than a buffer-backed Codec,
// since Integer's location type is a string: it is meant to be composed
// inside DelimitedString, which carves the string span out of the buffer.
func ParseInt[T constraints.Signed](s string, base int) (T, error) {
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0, malformedf("invalid integer %q: %s", s, err)
	}
	return T(v), nil
}

// ParseUint is ParseInt for unsigned integer types.
func ParseUint[T constraints.Unsigned](s string, base int) (T, error) {
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, malformedf("invalid unsigned integer %q: %s", s, err)
	}
	return T(v), nil
}

// FormatInt renders v in the given base, the inverse of ParseInt.
func FormatInt[T constraints.Signed](v T, base int) string {
	return strconv.FormatInt(int64(v), base)
}

// FormatUint renders v in the given base, the inverse of ParseUint.
func FormatUint[T constraints.Unsigned](v T, base int) string {
	return strconv.FormatUint(uint64(v), base)
}

// ParseHexInt is the HexInteger(T) codec: Integer with base 16, the
// overwhelmingly common case in RSP (addresses, lengths, register
// numbers are always lowercase hex with no 0x prefix).
func ParseHexInt[T constraints.Signed](s string) (T, error) {
	return ParseInt[T](s, 16)
}

// ParseHexUint is ParseHexInt for unsigned integer types.
func ParseHexUint[T constraints.Unsigned](s string) (T, error) {
	return ParseUint[T](s, 16)
}

// FormatHexUint renders v as lowercase hex with no leading zeros, the
// wire form used throughout RSP for addresses and lengths.
func FormatHexUint[T constraints.Unsigned](v T) string {
	return FormatUint(v, 16)
}
