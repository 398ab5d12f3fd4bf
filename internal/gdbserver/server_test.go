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
	"net"
	"testing"
	"time"

	"github.com/0rganizers/tasarch/internal/executor"
	"github.com/0rganizers/tasarch/internal/gdbproto"
)

// TestServerAcceptAndServe covers spec.md §4.5: the Server accepts a
// connection and immediately speaks RSP over it.
func TestServerAcceptAndServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %s", err)
	}
	s := NewServer(testConfig())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()
	t.Cleanup(func() {
		s.Stop()
		<-done
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %s", err)
	}
	defer conn.Close()

	tr := gdbproto.New(conn, testConfig(), quietLogger())
	if got := exchange(t, tr, "?"); got != "S05" {
		t.Fatalf("?: got %q, want S05", got)
	}
}

// TestServerStopClosesListenerAndConnections covers spec.md §4.5/§8
// property 9: Stop tells every live Connection to stop and closes the
// listening socket, and Serve returns cleanly rather than with an error.
func TestServerStopClosesListenerAndConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %s", err)
	}
	s := NewServer(testConfig())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %s", err)
	}
	defer conn.Close()
	// Give the accept loop a chance to register the connection before
	// stopping, so Stop's drain path is actually exercised.
	time.Sleep(20 * time.Millisecond)

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %s", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error after Stop: %s", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected connection to be closed after Stop")
	}
}

// TestServerExecutorHandlesManyConnections is a regression test for a
// pool-exhaustion deadlock: a Connection's long-lived loops (Serve,
// pumpHostIO) must never be submitted to the shared Executor, since
// Executor.Go blocks the caller (including Server.Serve's own accept
// loop) once every worker is pinned. With a single-worker pool, a bug
// that routed either loop through exec would hang on the second accept.
func TestServerExecutorHandlesManyConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %s", err)
	}
	exec := executor.New(1)
	t.Cleanup(exec.Stop)

	s := NewServer(testConfig(), WithServerExecutor(exec))
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()
	t.Cleanup(func() {
		s.Stop()
		<-done
	})

	const n = 3
	for i := 0; i < n; i++ {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Fatalf("dial %d: %s", i, err)
		}
		defer conn.Close()

		tr := gdbproto.New(conn, testConfig(), quietLogger())
		exchangeDone := make(chan struct{})
		go func() {
			defer close(exchangeDone)
			if got := exchange(t, tr, "?"); got != "S05" {
				t.Errorf("connection %d: ?: got %q, want S05", i, got)
			}
		}()
		select {
		case <-exchangeDone:
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d: exchange timed out, pool likely deadlocked", i)
		}
	}
}

func TestServerAddrBeforeServe(t *testing.T) {
	s := NewServer(testConfig())
	if addr := s.Addr(); addr != nil {
		t.Fatalf("Addr before Serve: got %v, want nil", addr)
	}
}
