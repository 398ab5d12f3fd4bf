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

// Package gdbbuf provides a fixed-capacity byte store with independent
// read and write cursors. It is the substrate every other layer of the
// RSP stack is built on: packets are received into a Buffer, decoded in
// place, and responses are appended to a (different) Buffer before being
// handed back to the transport for framing.
package gdbbuf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnderflow is returned when a read would consume more bytes than are
// currently available between the read and write cursors.
var ErrUnderflow = errors.New("gdbbuf: buffer underflow")

// ErrOverflow is returned when a write would advance the write cursor past
// the buffer's capacity.
var ErrOverflow = errors.New("gdbbuf: buffer overflow")

// TooSmallError is returned by AppendBuf when a write would exceed the
// buffer's capacity. Writable carries the number of bytes that actually
// were available, which higher layers surface as diagnostic information
// (see spec.md Error Taxonomy: buffer-too-small).
type TooSmallError struct {
	Requested int
	Writable  int
}

func (e *TooSmallError) Error() string {
	return fmt.Sprintf("gdbbuf: buffer too small: requested %d bytes, %d writable", e.Requested, e.Writable)
}

// Buffer is a fixed-capacity byte store with independent read and write
// cursors, per spec.md §3/§4.1. The zero value is not usable; use New.
type Buffer struct {
	buf   []byte
	read  int
	write int
}

// New allocates a Buffer with the given fixed capacity.
func New(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, capacity)}
}

// Cap returns the buffer's fixed capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// ReadSize returns the number of unread bytes (write - read).
func (b *Buffer) ReadSize() int { return b.write - b.read }

// WriteSize returns the number of bytes that can still be written
// (capacity - write).
func (b *Buffer) WriteSize() int { return len(b.buf) - b.write }

// ReadSlice returns a view of the unread bytes without copying or
// advancing the read cursor.
func (b *Buffer) ReadSlice() []byte { return b.buf[b.read:b.write] }

// WriteSlice returns a view of the writable region without copying or
// advancing the write cursor. Callers that write directly into this slice
// must follow up with PutCount to advance the cursor.
func (b *Buffer) WriteSlice() []byte { return b.buf[b.write:len(b.buf)] }

// Reset sets both cursors to zero, discarding any unread data.
func (b *Buffer) Reset() {
	b.read = 0
	b.write = 0
}

// GetByte consumes and returns one byte, or ErrUnderflow if the buffer
// is empty.
func (b *Buffer) GetByte() (byte, error) {
	if b.read >= b.write {
		return 0, ErrUnderflow
	}
	c := b.buf[b.read]
	b.read++
	return c, nil
}

// PeekByte returns the next unread byte without consuming it.
func (b *Buffer) PeekByte() (byte, error) {
	if b.read >= b.write {
		return 0, ErrUnderflow
	}
	return b.buf[b.read], nil
}

// GetCount advances the read cursor by n bytes without copying.
func (b *Buffer) GetCount(n int) error {
	if n < 0 || b.read+n > b.write {
		return ErrUnderflow
	}
	b.read += n
	return nil
}

// PutCount advances the write cursor by n bytes, for callers that wrote
// directly into WriteSlice.
func (b *Buffer) PutCount(n int) error {
	if n < 0 || b.write+n > len(b.buf) {
		return ErrOverflow
	}
	b.write += n
	return nil
}

// GetBuf consumes n bytes and returns a view of them (no copy), advancing
// the read cursor, or ErrUnderflow if fewer than n bytes are available.
func (b *Buffer) GetBuf(n int) ([]byte, error) {
	if n < 0 || b.read+n > b.write {
		return nil, ErrUnderflow
	}
	s := b.buf[b.read : b.read+n]
	b.read += n
	return s, nil
}

// AppendBuf copies s into the buffer's writable region and advances the
// write cursor, or returns a *TooSmallError carrying the actual writable
// size if s does not fit.
func (b *Buffer) AppendBuf(s []byte) error {
	if len(s) > b.WriteSize() {
		return &TooSmallError{Requested: len(s), Writable: b.WriteSize()}
	}
	copy(b.buf[b.write:], s)
	b.write += len(s)
	return nil
}

// AppendByte appends a single byte, or returns a *TooSmallError if full.
func (b *Buffer) AppendByte(c byte) error {
	if b.WriteSize() < 1 {
		return &TooSmallError{Requested: 1, Writable: 0}
	}
	b.buf[b.write] = c
	b.write++
	return nil
}

// PutUint64 writes v as 8 little-endian bytes (a typed write_from helper,
// per spec.md §4.1). It is used by Scratch Memory to serialize pointer
// values into the region it exposes to the client.
func (b *Buffer) PutUint64(v uint64) error {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return b.AppendBuf(tmp[:])
}

// GetUint64 reads 8 little-endian bytes into a uint64 (a typed read_into
// helper, the inverse of PutUint64).
func (b *Buffer) GetUint64() (uint64, error) {
	s, err := b.GetBuf(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(s), nil
}
