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
	"bytes"
	"context"
	"errors"
	"log"
	"net"
	"testing"
	"time"

	"github.com/0rganizers/tasarch/internal/executor"
	"github.com/0rganizers/tasarch/internal/gdbbuf"
	"github.com/0rganizers/tasarch/internal/gdbcodec"
	"github.com/0rganizers/tasarch/internal/gdbproto"
)

func testConfig() gdbproto.Config {
	return gdbproto.Config{
		AckMode:       true,
		Timeout:       time.Second,
		PacketSize:    4096,
		TransportSize: 256,
	}
}

func quietLogger() *log.Logger { return log.New(bytes.NewBuffer(nil), "", 0) }

// newTestConnection wires a Connection over one half of a net.Pipe and
// returns a Transport over the other half, playing the GDB client.
func newTestConnection(t *testing.T, dbg Debugger, opts ...Option) (*Connection, *gdbproto.Transport) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	cfg := testConfig()
	if dbg == nil {
		dbg = NewStubDebugger()
	}
	c := NewConnection(server, cfg, dbg, opts...)
	t.Cleanup(c.Stop)

	clientTr := gdbproto.New(client, cfg, quietLogger())

	done := make(chan error, 1)
	go func() { done <- c.Serve() }()
	t.Cleanup(func() {
		c.Stop()
		<-done
	})

	return c, clientTr
}

func exchange(t *testing.T, tr *gdbproto.Transport, payload string) string {
	t.Helper()
	if _, err := tr.Send([]byte(payload)); err != nil {
		t.Fatalf("send %q: %s", payload, err)
	}
	body, brk, err := tr.Receive()
	if err != nil {
		t.Fatalf("receive after %q: %s", payload, err)
	}
	if brk {
		t.Fatalf("unexpected break after %q", payload)
	}
	return string(body)
}

func TestConnectionQuestionMark(t *testing.T) {
	_, tr := newTestConnection(t, nil)
	if got := exchange(t, tr, "?"); got != "S05" {
		t.Fatalf("?: got %q, want S05", got)
	}
}

func TestConnectionUnknownCommand(t *testing.T) {
	_, tr := newTestConnection(t, nil)
	if got := exchange(t, tr, "Z0,0,0"); got != "" {
		t.Fatalf("unknown command: got %q, want empty packet", got)
	}
}

func TestConnectionRegistersGP(t *testing.T) {
	_, tr := newTestConnection(t, nil)
	got := exchange(t, tr, "g")
	want := 8 * 4 * 2 // StubDebugger default: 8 registers, 4 bytes wide, 2 hex digits/byte
	if len(got) != want {
		t.Fatalf("g: got %d hex chars, want %d", len(got), want)
	}
	for _, r := range got {
		if r != '0' {
			t.Fatalf("g: expected all-zero register block, got %q", got)
		}
	}

	got = exchange(t, tr, "p0")
	if len(got) != 4*2 {
		t.Fatalf("p0: got %d hex chars, want %d", len(got), 4*2)
	}
}

// TestConnectionMemoryNotScratch covers spec.md §6's placeholder
// behaviour: an address outside Scratch Memory always reads back as the
// single byte "a", regardless of the requested length.
func TestConnectionMemoryNotScratch(t *testing.T) {
	_, tr := newTestConnection(t, nil)
	if got := exchange(t, tr, "m1000,40"); got != "61" {
		t.Fatalf("m (outside scratch): got %q, want 61 (hex 'a')", got)
	}
}

// TestConnectionMemoryWriteOutsideScratch covers the matching M case: a
// write outside Scratch Memory is silently accepted (OK) without
// mutating anything observable, since there is nothing in range to write.
func TestConnectionMemoryWriteOutsideScratch(t *testing.T) {
	_, tr := newTestConnection(t, nil)
	if got := exchange(t, tr, "M1000,2:abcd"); got != "OK" {
		t.Fatalf("M (outside scratch): got %q, want OK", got)
	}
}

func TestConnectionVContUnimplemented(t *testing.T) {
	_, tr := newTestConnection(t, nil)
	if got := exchange(t, tr, "vCont?"); got != "" {
		t.Fatalf("vCont?: got %q, want empty packet", got)
	}
}

// TestConnectionQSupported covers feature negotiation (spec.md §4.4,
// §8 S1): the client's advertised features are recorded, and the
// server's own advertised set includes PacketSize plus every
// advertise=true query entry.
func TestConnectionQSupported(t *testing.T) {
	c, tr := newTestConnection(t, nil)

	reply := exchange(t, tr, "qSupported:multiprocess+;swbreak-;qXfer:features:read-")
	buf := gdbbuf.New(len(reply))
	if err := buf.AppendBuf([]byte(reply)); err != nil {
		t.Fatalf("AppendBuf: %s", err)
	}
	feats, err := gdbcodec.FeatureArray().Decode(buf)
	if err != nil {
		t.Fatalf("decode qSupported reply: %s", err)
	}

	var sawPacketSize, sawStartNoAck bool
	for _, f := range feats {
		if f.Name == "PacketSize" && f.HasValue {
			sawPacketSize = true
		}
		if f.Name == "QStartNoAckMode" && f.Supported {
			sawStartNoAck = true
		}
	}
	if !sawPacketSize {
		t.Fatalf("qSupported reply missing PacketSize=...: %q", reply)
	}
	if !sawStartNoAck {
		t.Fatalf("qSupported reply missing QStartNoAckMode+: %q", reply)
	}

	client := c.ClientFeatures()
	if len(client) != 3 || client[0].Name != "multiprocess" || !client[0].Supported {
		t.Fatalf("ClientFeatures: got %+v", client)
	}
}

// TestConnectionStartNoAckMode covers spec.md §8 scenario S2: the OK
// reply to QStartNoAckMode is still ack'd, and only the exchange after
// that stops using acks.
func TestConnectionStartNoAckMode(t *testing.T) {
	_, tr := newTestConnection(t, nil)

	if got := exchange(t, tr, "QStartNoAckMode"); got != "OK" {
		t.Fatalf("QStartNoAckMode: got %q, want OK", got)
	}
	tr.SetAckMode(false)

	if got := exchange(t, tr, "?"); got != "S05" {
		t.Fatalf("post-no-ack ?: got %q, want S05", got)
	}
}

func TestConnectionQRcmd(t *testing.T) {
	_, tr := newTestConnection(t, nil)
	// "help" hex-encoded.
	if got := exchange(t, tr, "qRcmd,68656c70"); got != "OK" {
		t.Fatalf("qRcmd: got %q, want OK", got)
	}
}

func TestConnectionQXferRejected(t *testing.T) {
	_, tr := newTestConnection(t, nil)
	if got := exchange(t, tr, "qXfer:features:read:target.xml:0,1000"); got != "" {
		t.Fatalf("qXfer: got %q, want empty packet (unsupported)", got)
	}
}

// hostioDebugger drives one Host-I/O round trip from Continue, exactly
// the way a real emulator backend would: spec.md §8 scenario S6, a
// server-pushed Fopen while a 'c' is still outstanding.
type hostioDebugger struct {
	*StubDebugger
	conn    *Connection
	openErr chan error
}

func (d *hostioDebugger) Continue() {
	go func() {
		_, err := d.conn.Open(context.Background(), "/tmp/scenario-s6", 0, 0)
		d.openErr <- err
	}()
}

func TestConnectionHostIOPushDuringContinue(t *testing.T) {
	dbg := &hostioDebugger{StubDebugger: NewStubDebugger(), openErr: make(chan error, 1)}
	c, tr := newTestConnection(t, dbg)
	dbg.conn = c

	if _, err := tr.Send([]byte("c")); err != nil {
		t.Fatalf("send c: %s", err)
	}

	body, brk, err := tr.Receive()
	if err != nil {
		t.Fatalf("receive Fopen push: %s", err)
	}
	if brk {
		t.Fatalf("unexpected break")
	}
	if len(body) == 0 || body[0] != 'F' {
		t.Fatalf("expected unsolicited F request, got %q", body)
	}

	if _, err := tr.Send([]byte("F5")); err != nil {
		t.Fatalf("send F reply: %s", err)
	}

	select {
	case err := <-dbg.openErr:
		if err != nil {
			t.Fatalf("Open: %s", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Open to complete")
	}
}

// TestConnectionHostIOTimesOut covers the §4.8 Timeout Combinator wired
// into Connection.call: a client that receives the pushed Fopen request
// but never sends a reply must not park the Debugger's Open call
// forever, it has to fail with executor.ErrTimedOut once hostIOTimeout
// elapses.
func TestConnectionHostIOTimesOut(t *testing.T) {
	dbg := &hostioDebugger{StubDebugger: NewStubDebugger(), openErr: make(chan error, 1)}
	c, tr := newTestConnection(t, dbg, WithHostIOTimeout(20*time.Millisecond))
	dbg.conn = c

	if _, err := tr.Send([]byte("c")); err != nil {
		t.Fatalf("send c: %s", err)
	}

	body, brk, err := tr.Receive()
	if err != nil {
		t.Fatalf("receive Fopen push: %s", err)
	}
	if brk {
		t.Fatalf("unexpected break")
	}
	if len(body) == 0 || body[0] != 'F' {
		t.Fatalf("expected unsolicited F request, got %q", body)
	}
	// Deliberately never reply.

	select {
	case err := <-dbg.openErr:
		if !errors.Is(err, executor.ErrTimedOut) {
			t.Fatalf("Open: got %v, want executor.ErrTimedOut", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open did not time out")
	}
}

// nopWriteCloser adapts a bytes.Buffer to io.WriteCloser for WithTracer,
// which expects the kind of handle a caller gets back from os.Create.
type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

// TestConnectionTracer covers the opt-in packet tracer (WithTracer):
// every sent/received packet is folded into the trace, producing a
// non-empty gzip stream and a stable content-derived name once at least
// one packet has been recorded.
func TestConnectionTracer(t *testing.T) {
	var buf bytes.Buffer
	c, tr := newTestConnection(t, nil, WithTracer(nopWriteCloser{&buf}))

	if name := c.TraceName(); name != "" {
		t.Fatalf("TraceName before any packet: got %q, want empty", name)
	}

	if got := exchange(t, tr, "?"); got != "S05" {
		t.Fatalf("?: got %q, want S05", got)
	}

	if name := c.TraceName(); name == "" {
		t.Fatal("TraceName after an exchange: got empty, want a content-derived name")
	}
	c.Stop()
	if buf.Len() == 0 {
		t.Fatal("trace buffer is empty after an exchange")
	}
}
