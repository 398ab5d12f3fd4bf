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
	"bytes"
	"errors"
	"testing"

	"github.com/0rganizers/tasarch/internal/gdbbuf"
)

func hexUintCodec() Codec[uint64] {
	return DelimitedString(',', false,
		func(s string) (uint64, error) { return ParseHexUint[uint64](s) },
		func(v uint64) string { return FormatHexUint(v) })
}

func TestDelimitedStringRoundTrip(t *testing.T) {
	c := hexUintCodec()
	buf := gdbbuf.New(64)
	if err := c.Encode(buf, 0x1337); err != nil {
		t.Fatalf("encode: %s", err)
	}
	// Encode with sepRequired=false does not append a trailing comma, so
	// simulate the "m<addr>,<len>" shape by writing the comma ourselves
	// before decoding the second field.
	buf.AppendByte(',')
	buf.AppendBuf([]byte("2"))

	got, err := c.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if got != 0x1337 {
		t.Fatalf("got %#x want 0x1337", got)
	}
	rest, err := c.Decode(buf)
	if err != nil {
		t.Fatalf("decode rest: %s", err)
	}
	if rest != 2 {
		t.Fatalf("got %d want 2", rest)
	}
}

func TestDelimitedStringMissingRequiredSeparator(t *testing.T) {
	c := DelimitedString(',', true, func(s string) (string, error) { return s, nil }, func(s string) string { return s })
	buf := gdbbuf.New(16)
	buf.AppendBuf([]byte("nosep"))
	_, err := c.Decode(buf)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestBytesCodecRoundTrip(t *testing.T) {
	c := Bytes()
	buf := gdbbuf.New(64)
	want := []byte("hi")
	if err := c.Encode(buf, want); err != nil {
		t.Fatalf("encode: %s", err)
	}
	if got := buf.ReadSlice(); string(got) != "6869" {
		t.Fatalf("wire form = %q, want 6869", got)
	}
	got, err := c.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBytesCodecOddLength(t *testing.T) {
	c := Bytes()
	buf := gdbbuf.New(16)
	buf.AppendBuf([]byte("abc"))
	if _, err := c.Decode(buf); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestOptionalCodec(t *testing.T) {
	inner := DelimitedString(0, false, func(s string) (string, error) { return s, nil }, func(s string) string { return s })
	c := Optional(inner)

	empty := gdbbuf.New(8)
	got, err := c.Decode(empty)
	if err != nil || got.Present {
		t.Fatalf("expected absent value, got %+v err=%v", got, err)
	}

	present := gdbbuf.New(8)
	present.AppendBuf([]byte("x"))
	got, err = c.Decode(present)
	if err != nil || !got.Present || got.Value != "x" {
		t.Fatalf("expected present x, got %+v err=%v", got, err)
	}
}

func TestArrayCodecRoundTrip(t *testing.T) {
	c := Array(';', func(s string) (string, error) { return s, nil }, func(s string) string { return s })
	buf := gdbbuf.New(64)
	want := []string{"a", "bb", "ccc"}
	if err := c.Encode(buf, want); err != nil {
		t.Fatalf("encode: %s", err)
	}
	if got := string(buf.ReadSlice()); got != "a;bb;ccc" {
		t.Fatalf("wire form = %q", got)
	}
	got, err := c.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestFeatureParsing(t *testing.T) {
	cases := []struct {
		in   string
		want Feature
	}{
		{"multiprocess+", FeatureBool("multiprocess", true)},
		{"QThreadEvents-", FeatureBool("QThreadEvents", false)},
		{"PacketSize=8000", FeatureValue("PacketSize", "8000")},
	}
	for _, tc := range cases {
		got, err := parseFeature(tc.in)
		if err != nil {
			t.Fatalf("parseFeature(%q): %s", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseFeature(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
		if got.String() != tc.in {
			t.Fatalf("round trip %q -> %+v -> %q", tc.in, got, got.String())
		}
	}
}

func TestFeatureArrayDecode(t *testing.T) {
	buf := gdbbuf.New(128)
	buf.AppendBuf([]byte("multiprocess+;swbreak-;xmlRegisters=i386"))
	got, err := FeatureArray().Decode(buf)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d features, want 3: %+v", len(got), got)
	}
	if got[2].Name != "xmlRegisters" || got[2].Value != "i386" {
		t.Fatalf("got %+v", got[2])
	}
}

func TestDecodeSequence2(t *testing.T) {
	addr := DelimitedString(',', true, func(s string) (uint64, error) { return ParseHexUint[uint64](s) }, func(v uint64) string { return FormatHexUint(v) })
	length := DelimitedString(0, false, func(s string) (uint64, error) { return ParseHexUint[uint64](s) }, func(v uint64) string { return FormatHexUint(v) })

	buf := gdbbuf.New(64)
	buf.AppendBuf([]byte("1337,2"))

	var gotAddr, gotLen uint64
	err := DecodeSequence2(buf, addr, length, func(a, l uint64) error {
		gotAddr, gotLen = a, l
		return nil
	})
	if err != nil {
		t.Fatalf("DecodeSequence2: %s", err)
	}
	if gotAddr != 0x1337 || gotLen != 2 {
		t.Fatalf("got addr=%#x len=%d", gotAddr, gotLen)
	}
}
