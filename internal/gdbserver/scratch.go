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
	"sync"

	"github.com/0rganizers/tasarch/internal/hostio"
	"github.com/0rganizers/tasarch/ints"
)

// scratchBase is the fixed, non-overlapping sentinel address Scratch
// Memory is mapped at (spec.md §4.6). It is chosen far outside any
// plausible target address space so the `m`/`M` built-in handlers can
// distinguish a Scratch Memory access from a plain stubbed register/
// memory read by address range alone.
const scratchBase uint64 = 0x1337133713370000

// scratch is the byte-addressable region the server exposes to the GDB
// client via ordinary m/M packets, used to stage Host-I/O pointer
// arguments (spec.md §4.6, §3 "Scratch Memory"). It only grows during a
// session; nothing is ever freed.
type scratch struct {
	mu   sync.Mutex
	data []byte
}

func newScratch() *scratch {
	return &scratch{}
}

// contains reports whether [addr, addr+n) falls entirely within the
// scratch region.
func (s *scratch) contains(addr uint64, n int) bool {
	if addr < scratchBase {
		return false
	}
	off := addr - scratchBase
	s.mu.Lock()
	defer s.mu.Unlock()
	return off <= uint64(len(s.data)) && off+uint64(n) <= uint64(len(s.data))
}

// alloc appends b to the region and returns a pointer to it.
func (s *scratch) alloc(b []byte) hostio.Ptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := scratchBase + uint64(len(s.data))
	s.data = append(s.data, b...)
	return hostio.Ptr{Addr: addr, Len: uint64(len(b))}
}

// allocCString appends s plus a trailing NUL, matching the Host I/O
// convention that C-string pointer arguments are NUL-terminated
// (spec.md §6 "sizes include a trailing NUL for C strings"). The
// returned Ptr.Len counts the NUL.
func (s *scratch) allocCString(str string) hostio.Ptr {
	return s.alloc(append([]byte(str), 0))
}

// reserve grows the region by n zero bytes and returns a pointer to the
// reserved span, for Host-I/O reads that need a destination buffer
// before the reply copies data into it.
func (s *scratch) reserve(n int) hostio.Ptr {
	return s.alloc(make([]byte, n))
}

// read returns a clamped copy of the bytes at [addr, addr+n).
func (s *scratch) read(addr uint64, n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := int(addr - scratchBase)
	off = ints.Clamp(off, 0, len(s.data))
	end := ints.Clamp(off+n, off, len(s.data))
	out := make([]byte, end-off)
	copy(out, s.data[off:end])
	return out
}

// write overwrites the bytes at [addr, addr+len(b)), clamped to the
// region's current size.
func (s *scratch) write(addr uint64, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := int(addr - scratchBase)
	if off < 0 || off >= len(s.data) {
		return
	}
	n := ints.Min(len(b), len(s.data)-off)
	copy(s.data[off:off+n], b[:n])
}
