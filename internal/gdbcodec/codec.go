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

// Package gdbcodec implements the composable value encoders/decoders that
// sit between the wire bytes of an RSP packet body and the strongly-typed
// arguments a packet/query handler wants to receive (spec.md §4.2).
//
// Each codec is a stateless descriptor with an Encode and a Decode
// function operating over a *gdbbuf.Buffer. Codecs compose: DelimitedString
// carves a sub-span out of the buffer and hands it to a child parser;
// Array repeats DelimitedString; Optional and Bytes wrap or reinterpret a
// span. Go has no variadic generics, so DecodeSequence is provided in a
// handful of fixed arities (1-4), which is enough to express every command
// in spec.md §6 — this is the idiomatic Go stand-in for the
// decode_sequence<Codecs...> template described in the spec.
package gdbcodec

import "github.com/0rganizers/tasarch/internal/gdbbuf"

// Encoder appends the wire representation of v to buf.
type Encoder[V any] func(buf *gdbbuf.Buffer, v V) error

// Decoder consumes exactly the bytes that represent a V from buf and
// returns the decoded value.
type Decoder[V any] func(buf *gdbbuf.Buffer) (V, error)

// Codec bundles a matching Encoder/Decoder pair for one wire value type.
// Handlers are registered with a tuple of Codecs; the tuple alone
// determines the handler's Go-level argument types (spec.md §4.4).
type Codec[V any] struct {
	Encode Encoder[V]
	Decode Decoder[V]
}

// DecodeSequence1 decodes a single codec's value from buf and invokes f.
// This is decode_sequence<C> from spec.md §4.2.
func DecodeSequence1[A any](buf *gdbbuf.Buffer, ca Codec[A], f func(A) error) error {
	a, err := ca.Decode(buf)
	if err != nil {
		return err
	}
	return f(a)
}

// DecodeSequence2 is decode_sequence<C1,C2>: each codec fully consumes its
// argument span (left to right) before the next begins.
func DecodeSequence2[A, B any](buf *gdbbuf.Buffer, ca Codec[A], cb Codec[B], f func(A, B) error) error {
	a, err := ca.Decode(buf)
	if err != nil {
		return err
	}
	b, err := cb.Decode(buf)
	if err != nil {
		return err
	}
	return f(a, b)
}

// DecodeSequence3 is decode_sequence<C1,C2,C3>.
func DecodeSequence3[A, B, C any](buf *gdbbuf.Buffer, ca Codec[A], cb Codec[B], cc Codec[C], f func(A, B, C) error) error {
	a, err := ca.Decode(buf)
	if err != nil {
		return err
	}
	b, err := cb.Decode(buf)
	if err != nil {
		return err
	}
	c, err := cc.Decode(buf)
	if err != nil {
		return err
	}
	return f(a, b, c)
}

// DecodeSequence4 is decode_sequence<C1,C2,C3,C4>.
func DecodeSequence4[A, B, C, D any](buf *gdbbuf.Buffer, ca Codec[A], cb Codec[B], cc Codec[C], cd Codec[D], f func(A, B, C, D) error) error {
	a, err := ca.Decode(buf)
	if err != nil {
		return err
	}
	b, err := cb.Decode(buf)
	if err != nil {
		return err
	}
	c, err := cc.Decode(buf)
	if err != nil {
		return err
	}
	d, err := cd.Decode(buf)
	if err != nil {
		return err
	}
	return f(a, b, c, d)
}

// Raw is the Identity codec of spec.md §4.2: it passes the remainder of
// the buffer through unchanged, consuming everything that is left. It is
// used as the final codec in a tuple when a handler wants the rest of the
// packet verbatim (e.g. the trailing hex-byte payload of an M command is
// instead decoded with Bytes, but Raw takes the body of a 'v' packet).
func Raw() Codec[[]byte] {
	return Codec[[]byte]{
		Encode: func(buf *gdbbuf.Buffer, v []byte) error {
			return buf.AppendBuf(v)
		},
		Decode: func(buf *gdbbuf.Buffer) ([]byte, error) {
			s, err := buf.GetBuf(buf.ReadSize())
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}
