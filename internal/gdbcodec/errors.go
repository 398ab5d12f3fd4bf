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
	"errors"
	"fmt"
)

// ErrMalformed is returned whenever a codec fails to parse its argument
// span: a missing required separator, an invalid integer, an odd-length
// hex-byte run, and so on (spec.md Error Taxonomy: malformed packet).
var ErrMalformed = errors.New("gdbcodec: malformed packet")

// malformedf wraps ErrMalformed with a reason, preserving errors.Is.
func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
}
