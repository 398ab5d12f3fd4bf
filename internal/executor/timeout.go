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

package executor

import (
	"context"
	"errors"
	"time"
)

// ErrTimedOut is the distinct failure surfaced when the timer in
// WithTimeout fires before fn returns (spec.md §4.8, §7 "timed out").
var ErrTimedOut = errors.New("executor: timed out")

// WithTimeout races fn against a timer of duration d. fn is invoked with
// a context that is cancelled the instant the timer fires, so that any
// I/O fn performs (a net.Conn read honoring ctx, for instance) can
// unwind instead of leaking a goroutine waiting on a descriptor nobody
// will ever service again.
//
// If fn returns before the timer fires, its result is returned
// unmodified. Otherwise WithTimeout returns the zero value and
// ErrTimedOut; fn's eventual return value (if it ever returns) is
// discarded.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ErrTimedOut
	}
}
