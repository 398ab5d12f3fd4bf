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
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/0rganizers/tasarch/internal/executor"
	"github.com/0rganizers/tasarch/internal/gdbproto"
)

// ServerOption configures a Server at construction, mirroring Connection's
// Option pattern.
type ServerOption func(*Server)

// WithServerLogger attaches a logger used for accept/close session
// events (spec.md §7 "INFO for session events"; SPEC_FULL supplemented
// feature #5).
func WithServerLogger(l *log.Logger) ServerOption {
	return func(s *Server) { s.log = newLevelLogger(l) }
}

// WithServerExecutor hands e down to every accepted Connection, which
// runs tasks started through Connection.Spawn on it (spec.md §4.7);
// the Connection's own long-lived loops never run on e (see Server.spawn).
func WithServerExecutor(e *executor.Executor) ServerOption {
	return func(s *Server) { s.exec = e }
}

// WithServerTraceDir enables per-connection packet tracing (see
// internal/gdbserver/trace.go): each accepted connection gets its own
// gzip trace file under dir, named by the connection's uuid.
func WithServerTraceDir(dir string) ServerOption {
	return func(s *Server) { s.traceDir = dir }
}

// WithNewDebugger supplies a factory invoked once per accepted
// connection to obtain its Debugger backend. The default constructs a
// fresh StubDebugger per connection. Debugger implementations may share
// state across connections (spec.md §3 "Ownership": "The Debugger
// Interface is shared").
func WithNewDebugger(factory func() Debugger) ServerOption {
	return func(s *Server) { s.newDebugger = factory }
}

// Server accepts TCP connections and spawns one Connection per accept,
// tracking their lifetime (spec.md §4.5).
type Server struct {
	cfg         gdbproto.Config
	log         levelLogger
	exec        *executor.Executor
	newDebugger func() Debugger
	traceDir    string

	mu       sync.Mutex
	ln       net.Listener
	conns    map[*Connection]struct{}
	stopping bool
}

// NewServer builds a Server that will frame connections per cfg.
func NewServer(cfg gdbproto.Config, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		conns:       make(map[*Connection]struct{}),
		newDebugger: func() Debugger { return NewStubDebugger() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Serve accepts connections on ln until Stop is called or Accept fails
// fatally. Each accepted socket gets its own Connection, whose dispatch
// loop always runs on a bare goroutine; the configured Executor (if any)
// runs only the tasks started through Connection.Spawn.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopping := s.stopping
			s.mu.Unlock()
			if stopping {
				return nil
			}
			return err
		}
		s.log.Infof("accepted connection from %s", conn.RemoteAddr())
		s.spawn(conn)
	}
}

func (s *Server) spawn(conn net.Conn) {
	var opts []Option
	if s.log.Logger != nil {
		opts = append(opts, WithLogger(s.log.Logger))
	}
	if s.exec != nil {
		opts = append(opts, WithExecutor(s.exec))
	}
	if s.traceDir != "" {
		id := uuid.New().String()
		path := filepath.Join(s.traceDir, id+".trace.gz")
		if f, err := os.Create(path); err != nil {
			s.log.Warnf("trace: unable to create %s: %s", path, err)
		} else {
			opts = append(opts, WithID(id), WithTracer(f))
		}
	}
	c := NewConnection(conn, s.cfg, s.newDebugger(), opts...)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	// Serve blocks for the Connection's entire lifetime, so it always
	// runs on a bare goroutine rather than through s.exec: submitting it
	// as a pool task would pin a worker per live connection and wedge
	// Server.Serve's own accept loop (via Executor.Go's blocking
	// submission) as soon as the pool is saturated. The configured
	// Executor is still passed down to the Connection itself, which
	// runs the tasks started through Connection.Spawn on it (spec.md §4.7).
	go func() {
		err := c.Serve()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		trace := c.TraceName()
		if err != nil {
			s.log.Warnf("connection %s: closed: %s trace=%s", c.ID(), err, trace)
		} else {
			s.log.Infof("connection %s: closed trace=%s", c.ID(), trace)
		}
	}()
}

// Stop instructs every live Connection to stop, then closes the
// listening socket (spec.md §4.5).
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopping = true
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	ln := s.ln
	s.mu.Unlock()

	for _, c := range conns {
		c.Stop()
	}
	if ln != nil {
		return ln.Close()
	}
	return nil
}

// Addr returns the listener's address, or nil before Serve has been
// called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}
