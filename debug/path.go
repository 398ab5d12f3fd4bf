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

//go:build linux

package debug

import (
	"log"
	"net"
	"net/http"
	"os"
	"syscall"
)

// Path binds pprof handlers to a new unix domain socket at path,
// asynchronously, the socket-path counterpart to Fd. Every accepted
// connection's peer credentials are checked against allow (nil allows
// everyone); connections that fail the check are closed immediately
// without being served.
func Path(path string, allow func(*syscall.Ucred) bool, lg *log.Logger) {
	os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		lg.Printf("warning: unable to bind debug socket %s: %s", path, err)
		return
	}
	lg.Printf("binding pprof handlers to %s", path)
	go func() {
		defer l.Close()
		lg.Printf("debug path %s: %s", path, http.Serve(&credListener{Listener: l, allow: allow, lg: lg}, nil))
	}()
}

// credListener wraps a unix-domain net.Listener, rejecting connections
// whose peer credentials don't satisfy allow before handing them to
// http.Serve.
type credListener struct {
	net.Listener
	allow func(*syscall.Ucred) bool
	lg    *log.Logger
}

func (cl *credListener) Accept() (net.Conn, error) {
	for {
		conn, err := cl.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if cl.allow == nil {
			return conn, nil
		}
		cred, err := peerCred(conn)
		if err != nil {
			cl.lg.Printf("debug path: peer credentials: %s", err)
			conn.Close()
			continue
		}
		if !cl.allow(cred) {
			conn.Close()
			continue
		}
		return conn, nil
	}
}

// peerCred reads SO_PEERCRED off a unix-domain connection.
func peerCred(conn net.Conn) (*syscall.Ucred, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, syscall.EINVAL
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, err
	}
	var cred *syscall.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		cred, sockErr = syscall.GetsockoptUcred(int(fd), syscall.SOL_SOCKET, syscall.SO_PEERCRED)
	})
	if err != nil {
		return nil, err
	}
	return cred, sockErr
}
