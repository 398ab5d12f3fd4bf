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

package gdbproto

import (
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0rganizers/tasarch/internal/gdbbuf"
)

// Config holds the per-operation framing parameters (spec.md §6). The
// zero value is not meaningful; use DefaultConfig.
type Config struct {
	AckMode       bool
	Timeout       time.Duration
	PacketSize    int // capacity of a single inbound/outbound packet payload
	TransportSize int // size of the raw-socket receive buffer
}

// DefaultConfig returns the spec.md §4.3/§6 defaults.
func DefaultConfig() Config {
	return Config{
		AckMode:       DefaultAckMode,
		Timeout:       DefaultTimeoutMS * time.Millisecond,
		PacketSize:    DefaultPacketSize,
		TransportSize: DefaultTransportSize,
	}
}

// Transport implements the RSP framing state machine (spec.md §4.3) over
// a net.Conn: escaping, checksums, the +/- ack handshake and break
// detection, with a configurable per-operation timeout.
//
// Transport's send path is guarded by a mutex spanning the whole frame
// (prefix+body+checksum+ack handshake), so no two sends interleave
// (spec.md §5). The receive path is single-reader by construction — only
// the owning Connection's dispatch loop calls Receive.
type Transport struct {
	conn   net.Conn
	logger *log.Logger

	ackMode atomic.Bool
	timeout atomic.Int64 // time.Duration, nanoseconds

	packetSize int

	sendMu  sync.Mutex
	sendBuf *gdbbuf.Buffer

	recv    []byte
	recvPos int
	recvLen int
}

// New wraps conn in a Transport configured per cfg.
func New(conn net.Conn, cfg Config, logger *log.Logger) *Transport {
	t := &Transport{
		conn:       conn,
		logger:     logger,
		packetSize: cfg.PacketSize,
		sendBuf:    gdbbuf.New(1 + 2*cfg.PacketSize + 4),
		recv:       make([]byte, cfg.TransportSize),
	}
	t.ackMode.Store(cfg.AckMode)
	t.timeout.Store(int64(cfg.Timeout))
	return t
}

// SetAckMode toggles the ack/nack handshake, used by the QStartNoAckMode
// handler. It is safe to call concurrently with Send/Receive, though in
// practice only the dispatch loop that owns this Transport ever does so.
func (t *Transport) SetAckMode(on bool) { t.ackMode.Store(on) }

// AckMode reports whether the ack/nack handshake is currently enabled.
func (t *Transport) AckMode() bool { return t.ackMode.Load() }

// SetTimeout updates the per-operation timeout used by subsequent calls.
func (t *Transport) SetTimeout(d time.Duration) { t.timeout.Store(int64(d)) }

func (t *Transport) timeoutDur() time.Duration { return time.Duration(t.timeout.Load()) }

// Close closes the underlying connection, which also unblocks any
// in-progress Receive or Send by causing their next Read/Write to fail.
func (t *Transport) Close() error { return t.conn.Close() }

// readByte returns the next raw byte from the socket, refilling the
// transport receive buffer as needed and applying the configured
// per-operation timeout to the underlying read.
func (t *Transport) readByte() (byte, error) {
	if t.recvPos >= t.recvLen {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.timeoutDur())); err != nil {
			return 0, err
		}
		n, err := t.conn.Read(t.recv)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return 0, ErrTimedOut
			}
			return 0, err
		}
		t.recvPos, t.recvLen = 0, n
	}
	c := t.recv[t.recvPos]
	t.recvPos++
	return c, nil
}

// rsState is the receive-side state machine's current state
// (spec.md §4.3).
type rsState int

const (
	rsInitial rsState = iota
	rsPacketData
	rsEscaped
	rsCheckHi
	rsCheckLo
)

// Receive runs the receive state machine until a complete, checksum-valid
// packet body is available (in no-ack mode the checksum is not enforced),
// a break is observed, or a timeout/IO error occurs. On ErrTimedOut the caller should simply retry — per spec.md §7,
// receive timeouts are not fatal.
func (t *Transport) Receive() (body []byte, brk bool, err error) {
restart:
	state := rsInitial
	var acc []byte
	var cksum checksum
	var hiNibble byte

	for {
		c, err := t.readByte()
		if err != nil {
			return nil, false, err
		}
		switch state {
		case rsInitial:
			switch c {
			case Break:
				return nil, true, nil
			case PacketStart:
				state = rsPacketData
				acc = acc[:0]
				cksum = 0
			default:
				if t.logger != nil {
					t.logger.Printf("gdbproto: discarding stray byte %#x outside frame", c)
				}
			}
		case rsPacketData:
			switch c {
			case PacketEnd:
				state = rsCheckHi
			case Escape:
				cksum.add(c)
				state = rsEscaped
			default:
				cksum.add(c)
				acc = append(acc, c)
			}
		case rsEscaped:
			cksum.add(c)
			acc = append(acc, c^escapeXOR)
			state = rsPacketData
		case rsCheckHi:
			n, ok := hexNibble(c)
			if !ok {
				// malformed checksum digit: treat like a mismatch
				hiNibble = 0xff
			} else {
				hiNibble = n
			}
			state = rsCheckLo
		case rsCheckLo:
			loNibble, ok := hexNibble(c)
			var want checksum
			if !ok || hiNibble == 0xff {
				want = checksum(0xff) // guaranteed mismatch unless cksum also 0xff, negligible
			} else {
				want = checksum(hiNibble<<4 | loNibble)
			}
			if want != cksum {
				if t.ackMode.Load() {
					if err := t.writeRaw([]byte{Nack}); err != nil {
						return nil, false, err
					}
					goto restart
				}
				// no-ack mode: accept despite mismatch
			}
			if t.ackMode.Load() {
				if err := t.writeRaw([]byte{Ack}); err != nil {
					return nil, false, err
				}
			}
			out := make([]byte, len(acc))
			copy(out, acc)
			return out, false, nil
		}
	}
}

// writeRaw writes b directly to the socket with the configured timeout
// applied, without any framing.
func (t *Transport) writeRaw(b []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeoutDur())); err != nil {
		return err
	}
	_, err := t.conn.Write(b)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ErrTimedOut
		}
		return err
	}
	return nil
}

// frame builds the wire frame for payload into t.sendBuf: $<escaped
// payload>#<hh>.
func (t *Transport) frame(payload []byte) error {
	t.sendBuf.Reset()
	if err := t.sendBuf.AppendByte(PacketStart); err != nil {
		return err
	}
	var cksum checksum
	for _, c := range payload {
		if mustEscape(c) {
			if err := t.sendBuf.AppendByte(Escape); err != nil {
				return err
			}
			cksum.add(Escape)
			esc := c ^ escapeXOR
			if err := t.sendBuf.AppendByte(esc); err != nil {
				return err
			}
			cksum.add(esc)
		} else {
			if err := t.sendBuf.AppendByte(c); err != nil {
				return err
			}
			cksum.add(c)
		}
	}
	if err := t.sendBuf.AppendByte(PacketEnd); err != nil {
		return err
	}
	hx := cksum.hex()
	return t.sendBuf.AppendBuf(hx[:])
}

// Send transmits payload as a complete $<payload>#<hh> frame, handling
// the ack/nack handshake when ack mode is enabled. It reports whether a
// break byte was observed while waiting for the ack.
//
// Send acquires the send mutex for its entire duration, including any
// NACK-triggered retransmits, so no two Sends ever interleave on the wire
// (spec.md §5). The ack bytes Receive writes do not take this mutex.
func (t *Transport) Send(payload []byte) (brk bool, err error) {
	if len(payload) > t.packetSize {
		return false, ErrPacketTooLarge
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if err := t.frame(payload); err != nil {
		return false, err
	}
	for {
		if err := t.writeRaw(t.sendBuf.ReadSlice()); err != nil {
			return false, err
		}
		if !t.ackMode.Load() {
			return false, nil
		}
		for {
			c, err := t.readByte()
			if err != nil {
				return false, err
			}
			switch c {
			case Ack:
				return false, nil
			case Nack:
				goto retransmit
			case Break:
				return true, nil
			default:
				if t.logger != nil {
					t.logger.Printf("gdbproto: discarding stray byte %#x during ack wait", c)
				}
			}
		}
	retransmit:
	}
}

var _ io.Closer = (*Transport)(nil)
