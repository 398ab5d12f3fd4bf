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

// Package gdbserver implements the per-connection RSP state machine of
// spec.md §4.4: the packet-handler and query-handler tables, feature
// negotiation, Scratch Memory, Host I/O wiring and the dispatch loop
// that ties them to a gdbproto.Transport.
package gdbserver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/0rganizers/tasarch/internal/executor"
	"github.com/0rganizers/tasarch/internal/gdbbuf"
	"github.com/0rganizers/tasarch/internal/gdbcodec"
	"github.com/0rganizers/tasarch/internal/gdbproto"
	"github.com/0rganizers/tasarch/internal/hostio"
)

// Option configures a Connection at construction time, the same pattern
// the teacher uses for tenant.Manager (tenant.WithLogger, WithRemote, ...).
type Option func(*Connection)

// WithLogger attaches a logger; nil (the default) disables logging.
func WithLogger(l *log.Logger) Option {
	return func(c *Connection) { c.log = newLevelLogger(l) }
}

// WithExecutor runs tasks spawned via Connection.Spawn on e rather than
// a bare goroutine per task (the Connection's own long-lived loops never
// run on e; see Spawn and pumpHostIO).
func WithExecutor(e *executor.Executor) Option {
	return func(c *Connection) { c.exec = e }
}

// WithID overrides the Connection's generated uuid identity. Server uses
// this to name a trace file before the Connection (and its own uuid)
// exists.
func WithID(id string) Option {
	return func(c *Connection) { c.id = id }
}

// WithTracer captures every packet body sent or received to w, gzip-
// compressed; TraceName reports a content digest of what was captured
// (internal/gdbserver/trace.go).
func WithTracer(w io.WriteCloser) Option {
	return func(c *Connection) { c.trace = newTracer(w) }
}

// WithHostIOTimeout bounds every Host-I/O round trip (Open/Read/Write/...)
// at d, overriding the cfg.Timeout default NewConnection otherwise reuses
// (spec.md §4.8 Timeout Combinator). A round trip still waiting on the
// client past d fails with executor.ErrTimedOut rather than hanging the
// Debugger call that initiated it forever.
func WithHostIOTimeout(d time.Duration) Option {
	return func(c *Connection) { c.hostIOTimeout = d }
}

// Connection is the per-client RSP state machine of spec.md §4.4: one
// Transport, one request buffer, one response buffer, the packet- and
// query-handler tables, the two Host-I/O FIFOs (via hostio.Coordinator),
// negotiated features, and a reference to the Debugger backend.
type Connection struct {
	id        string
	log       levelLogger
	transport *gdbproto.Transport
	dbg       Debugger
	exec      *executor.Executor
	trace     *tracer

	hostIOTimeout time.Duration

	packets map[byte]packetHandlerFunc
	queries *queryTable

	scratch *scratch
	coord   *hostio.Coordinator

	reqBuf  *gdbbuf.Buffer
	respBuf *gdbbuf.Buffer

	featMu         sync.Mutex
	clientFeatures []gdbcodec.Feature

	// per-dispatch-cycle scratch state, reset at the top of each
	// iteration of the dispatch loop.
	deferResponse  bool
	noAckRequested bool

	stopOnce sync.Once
	stopped  atomic.Bool
}

// NewConnection builds a Connection over conn, ready to Serve. dbg must
// not be nil; use NewStubDebugger if no real backend is wired up yet.
func NewConnection(conn net.Conn, cfg gdbproto.Config, dbg Debugger, opts ...Option) *Connection {
	c := &Connection{
		id:            uuid.New().String(),
		dbg:           dbg,
		packets:       make(map[byte]packetHandlerFunc),
		queries:       newQueryTable(),
		scratch:       newScratch(),
		coord:         hostio.NewCoordinator(),
		reqBuf:        gdbbuf.New(cfg.PacketSize),
		respBuf:       gdbbuf.New(cfg.PacketSize),
		hostIOTimeout: cfg.Timeout,
	}
	for _, o := range opts {
		o(c)
	}
	c.transport = gdbproto.New(conn, cfg, c.log.Logger)
	c.registerBuiltins(cfg)
	go c.pumpHostIO()
	return c
}

// pumpHostIO releases parked Host-I/O "may send" waiters as soon as they
// appear, independent of the client packet dispatch cycle (see
// hostio.Coordinator.Drain). It runs for the Connection's whole lifetime
// and exits once Stop closes the Coordinator down.
//
// This always runs on a bare goroutine, never via Spawn/the shared
// Executor: it never returns until Stop, so submitting it as a pool task
// would pin a worker for the Connection's entire lifetime. With a small
// fixed-size pool that starves every other Connection's dispatch loop
// after a couple of accepts (Executor.Go blocks the caller, including
// Server.spawn's accept loop, once the pool is saturated).
func (c *Connection) pumpHostIO() {
	for c.coord.Drain() {
	}
}

// ID is the connection's uuid.New identity, used in every log line the
// same way handler_query.go's queryID threads a uuid through a request's
// logging.
func (c *Connection) ID() string { return c.id }

// TraceName returns the content-derived name of the packet trace
// captured so far, or "" if tracing is disabled or nothing has been
// recorded yet.
func (c *Connection) TraceName() string { return c.trace.Name() }

// Spawn runs fn as a task, on the shared Executor if one was configured
// via WithExecutor, or on a bare goroutine otherwise. External Debugger
// backends use this to run Host-I/O round trips outside the packet
// dispatch cycle (spec.md §4.6: Host I/O happens "while the client is
// stepping/continuing").
func (c *Connection) Spawn(fn func()) {
	if c.exec != nil {
		if err := c.exec.Go(fn); err == nil {
			return
		}
	}
	go fn()
}

// Stop halts the dispatch loop at its next iteration, drains pending
// Host-I/O waiters and closes the underlying socket exactly once
// (spec.md §8 property 9).
func (c *Connection) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		c.coord.Stop()
		c.transport.Close()
		if c.trace != nil {
			c.trace.Close()
		}
	})
}

// Serve runs the dispatch loop until the connection is stopped or a
// fatal transport error occurs (spec.md §4.4).
func (c *Connection) Serve() error {
	defer c.Stop()
	for !c.stopped.Load() {
		body, brk, err := c.transport.Receive()
		if err != nil {
			if errors.Is(err, gdbproto.ErrTimedOut) {
				// spec.md §7: receive timeouts are "retry-continue", not errors.
				continue
			}
			c.log.Warnf("%s: receive: %s", c.id, err)
			return err
		}
		if c.trace != nil {
			c.trace.Record('<', body, c.log)
		}
		if brk {
			c.dbg.Break()
			if err := c.sendRaw([]byte("S05")); err != nil {
				return err
			}
			continue
		}
		if len(body) == 0 {
			if err := c.sendRaw(nil); err != nil {
				return err
			}
			continue
		}
		if body[0] == 'F' {
			if err := c.handleFReply(body[1:]); err != nil {
				c.log.Errorf("%s: %s", c.id, err)
				return err
			}
			continue
		}
		if err := c.dispatchOne(body); err != nil {
			return err
		}
	}
	return nil
}

// dispatchOne decodes and runs the handler for one non-F packet, then
// performs the response-send-point handoff spec.md §4.6 step 2
// describes: a parked Host-I/O "may send" waiter preempts the handler's
// own response. This races with the Connection's own pumpHostIO task,
// which releases the same waiters independent of any packet arriving;
// whichever sees the waiter first wins; either way it gets sent exactly
// once.
func (c *Connection) dispatchOne(body []byte) error {
	kind := body[0]
	args := body[1:]

	c.reqBuf.Reset()
	if err := c.reqBuf.AppendBuf(args); err != nil {
		return c.sendErr(0x02)
	}
	c.respBuf.Reset()
	c.deferResponse = false

	var herr error
	switch {
	case kind == 'q':
		herr = c.queries.dispatch(c, false, c.reqBuf.ReadSlice())
	case kind == 'Q':
		herr = c.queries.dispatch(c, true, c.reqBuf.ReadSlice())
	default:
		h, ok := c.packets[kind]
		if !ok {
			herr = ErrUnknownCommand
			break
		}
		herr = h(c, c.reqBuf)
	}

	if c.coord.ReleaseOne() {
		// A parked Host-I/O request got to send its own F-request in
		// place of this packet's response; nothing more to do here.
		return nil
	}

	if herr != nil {
		unknown, code := classify(herr)
		if unknown {
			return c.sendRaw(nil)
		}
		return c.sendErr(code)
	}
	if c.deferResponse {
		return nil
	}
	if err := c.sendRaw(c.respBuf.ReadSlice()); err != nil {
		return err
	}
	if c.noAckRequested {
		c.transport.SetAckMode(false)
		c.noAckRequested = false
	}
	return nil
}

// handleFReply parses a Host-I/O reply and routes it to the correlated
// waiter (spec.md §4.6 step 4). An unexpected reply (no outstanding
// request) is a protocol error that stops the Connection, per spec.md §9
// Open Questions.
func (c *Connection) handleFReply(body []byte) error {
	reply, err := hostio.ParseReply(body)
	if err != nil {
		return fmt.Errorf("gdbserver: %s: %w", c.id, err)
	}
	if err := c.coord.DeliverReply(reply); err != nil {
		return fmt.Errorf("gdbserver: %s: %w", c.id, err)
	}
	if reply.Break {
		c.dbg.Break()
	}
	return nil
}

// sendRaw frames and transmits payload, recording it in the optional
// tracer and surfacing a break observed during the ack handshake to the
// Debugger.
func (c *Connection) sendRaw(payload []byte) error {
	if c.trace != nil {
		c.trace.Record('>', payload, c.log)
	}
	brk, err := c.transport.Send(payload)
	if err != nil {
		return err
	}
	if brk {
		c.dbg.Break()
	}
	return nil
}

// sendErr transmits E<hh> for the given single-byte error code
// (spec.md §7).
func (c *Connection) sendErr(code byte) error {
	return c.sendRaw([]byte(fmt.Sprintf("E%02x", code)))
}

// registerBuiltins installs spec.md §4.4's minimum built-in packet
// handlers and the query handlers described in SPEC_FULL's supplemented
// features.
func (c *Connection) registerBuiltins(cfg gdbproto.Config) {
	c.packets['?'] = PacketHandler0(func(c *Connection) error {
		return c.respBuf.AppendBuf([]byte("S05"))
	})

	c.packets['g'] = PacketHandler0(func(c *Connection) error {
		zeros := make([]byte, c.dbg.RegisterCount()*c.dbg.RegisterWidth()*2)
		for i := range zeros {
			zeros[i] = '0'
		}
		return c.respBuf.AppendBuf(zeros)
	})

	hexUint := gdbcodec.DelimitedString(0, false,
		gdbcodec.ParseHexUint[uint64], gdbcodec.FormatHexUint[uint64])
	c.packets['p'] = PacketHandler1(hexUint, func(c *Connection, _ uint64) error {
		zeros := make([]byte, c.dbg.RegisterWidth()*2)
		for i := range zeros {
			zeros[i] = '0'
		}
		return c.respBuf.AppendBuf(zeros)
	})

	c.packets['c'] = PacketHandler0(func(c *Connection) error {
		c.deferResponse = true
		c.dbg.Continue()
		return nil
	})

	addrLen := gdbcodec.DelimitedString(',', true,
		gdbcodec.ParseHexUint[uint64], gdbcodec.FormatHexUint[uint64])
	lenArg := gdbcodec.DelimitedString(0, false,
		gdbcodec.ParseHexUint[uint64], gdbcodec.FormatHexUint[uint64])
	c.packets['m'] = PacketHandler2(addrLen, lenArg, func(c *Connection, addr, nArg uint64) error {
		n := int(nArg)
		if c.scratch.contains(addr, n) {
			return gdbcodec.Bytes().Encode(c.respBuf, c.scratch.read(addr, n))
		}
		// Not backed by Scratch Memory: respond with the single-byte
		// placeholder "a", hex-encoded as "61", regardless of the
		// requested length.
		return gdbcodec.Bytes().Encode(c.respBuf, []byte{'a'})
	})

	addrLen2 := gdbcodec.DelimitedString(',', true,
		gdbcodec.ParseHexUint[uint64], gdbcodec.FormatHexUint[uint64])
	lenColon := gdbcodec.DelimitedString(':', true,
		gdbcodec.ParseHexUint[uint64], gdbcodec.FormatHexUint[uint64])
	c.packets['M'] = PacketHandler3(addrLen2, lenColon, gdbcodec.Bytes(), func(c *Connection, addr, nArg uint64, data []byte) error {
		if c.scratch.contains(addr, int(nArg)) {
			c.scratch.write(addr, data)
		}
		return c.respBuf.AppendBuf([]byte("OK"))
	})

	// vCont?/vCont are explicitly registered as unimplemented rather
	// than falling through the default unknown-command path, so the
	// dispatch table itself documents the stub (SPEC_FULL supplemented
	// feature #2).
	c.packets['v'] = PacketHandler1(gdbcodec.Raw(), func(c *Connection, _ []byte) error {
		return ErrUnknownCommand
	})

	c.registerQueries(cfg)
}

// registerQueries installs the query-dispatch table: qSupported feature
// negotiation, QStartNoAckMode, qRcmd (monitor command no-op) and the
// explicit qXfer rejection (SPEC_FULL supplemented features #1, #3).
func (c *Connection) registerQueries(cfg gdbproto.Config) {
	c.queries.register("Supported", ':', false, func(conn *Connection, buf *gdbbuf.Buffer) error {
		feats, err := gdbcodec.FeatureArray().Decode(buf)
		if err != nil {
			return err
		}
		conn.featMu.Lock()
		conn.clientFeatures = feats
		conn.featMu.Unlock()

		out := []gdbcodec.Feature{
			gdbcodec.FeatureValue("PacketSize", gdbcodec.FormatHexUint(uint32(cfg.PacketSize))),
		}
		out = append(out, conn.queries.advertised()...)
		return gdbcodec.FeatureArray().Encode(conn.respBuf, out)
	}, nil)

	c.queries.register("StartNoAckMode", 0, true, nil, func(conn *Connection, buf *gdbbuf.Buffer) error {
		conn.noAckRequested = true
		return conn.respBuf.AppendBuf([]byte("OK"))
	})

	c.queries.register("Rcmd", ',', true, func(conn *Connection, buf *gdbbuf.Buffer) error {
		// Monitor-command text arrives hex-encoded; SPEC_FULL supplemented
		// feature #1 acknowledges it without interpreting it, since no
		// monitor commands are implemented by this core.
		cmdHex := buf.ReadSlice()
		if _, err := hex.DecodeString(string(cmdHex)); err != nil {
			return fmt.Errorf("%w: qRcmd: %s", gdbcodec.ErrMalformed, err)
		}
		return conn.respBuf.AppendBuf([]byte("OK"))
	}, nil)

	// Explicit, documented rejection: no target description support.
	c.queries.register("Xfer", ':', false, nil, nil)
}

// ClientFeatures returns the feature vector the client advertised via
// qSupported, or nil before that exchange has happened.
func (c *Connection) ClientFeatures() []gdbcodec.Feature {
	c.featMu.Lock()
	defer c.featMu.Unlock()
	out := make([]gdbcodec.Feature, len(c.clientFeatures))
	copy(out, c.clientFeatures)
	return out
}

