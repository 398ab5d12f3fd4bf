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

// Package hostio implements the server-initiated "Host I/O" file
// operations of spec.md §4.6: F-request formatting, F-reply parsing,
// the FIFO request/response correlation between a Connection's handlers
// and its arriving F replies, and the fixed errno table of §6.
package hostio

import "golang.org/x/sys/unix"

// WireErrno is a GDB File-I/O wire errno value (spec.md §6). These are
// fixed protocol constants, not the host's native errno numbering — in
// particular WireErrno(ENAMETOOLONG) is 91 on every host, even though
// unix.ENAMETOOLONG is 36 on Linux.
type WireErrno uint32

// The fixed errno table from spec.md §6.
const (
	WireEUNKNOWN      WireErrno = 9999
	WireEPERM         WireErrno = 1
	WireENOENT        WireErrno = 2
	WireEINTR         WireErrno = 4
	WireEBADF         WireErrno = 9
	WireEACCES        WireErrno = 13
	WireEFAULT        WireErrno = 14
	WireEBUSY         WireErrno = 16
	WireEEXIST        WireErrno = 17
	WireENODEV        WireErrno = 19
	WireENOTDIR       WireErrno = 20
	WireEISDIR        WireErrno = 21
	WireEINVAL        WireErrno = 22
	WireENFILE        WireErrno = 23
	WireEMFILE        WireErrno = 24
	WireEFBIG         WireErrno = 27
	WireENOSPC        WireErrno = 28
	WireESPIPE        WireErrno = 29
	WireEROFS         WireErrno = 30
	WireENAMETOOLONG  WireErrno = 91
)

// wireTable maps the host's unix.Errno values to the fixed wire
// constants above. Built from named unix constants (rather than hand-
// written numbers) so the table stays correct across the host platforms
// golang.org/x/sys/unix supports.
var wireTable = map[unix.Errno]WireErrno{
	unix.EPERM:        WireEPERM,
	unix.ENOENT:       WireENOENT,
	unix.EINTR:        WireEINTR,
	unix.EBADF:        WireEBADF,
	unix.EACCES:       WireEACCES,
	unix.EFAULT:       WireEFAULT,
	unix.EBUSY:        WireEBUSY,
	unix.EEXIST:       WireEEXIST,
	unix.ENODEV:       WireENODEV,
	unix.ENOTDIR:      WireENOTDIR,
	unix.EISDIR:       WireEISDIR,
	unix.EINVAL:       WireEINVAL,
	unix.ENFILE:       WireENFILE,
	unix.EMFILE:       WireEMFILE,
	unix.EFBIG:        WireEFBIG,
	unix.ENOSPC:       WireENOSPC,
	unix.ESPIPE:       WireESPIPE,
	unix.EROFS:        WireEROFS,
	unix.ENAMETOOLONG: WireENAMETOOLONG,
}

// ToWireErrno translates err (expected to be, or wrap, a unix.Errno) to
// its fixed RSP wire value, falling back to WireEUNKNOWN for anything
// not in the table or not a unix.Errno at all. This is the opposite
// direction from WireErrno(reply.Errno): a Connection only ever
// consumes wire errno values that already arrived in an F-reply, so
// nothing in this repo's Connection path calls ToWireErrno. It exists
// for Debugger implementations that serve Host I/O out of the local
// filesystem themselves (a loopback/test backend, say) and need to turn
// a Go os/unix error into the wire errno they report back over RSP.
func ToWireErrno(err error) WireErrno {
	var errno unix.Errno
	if e, ok := err.(unix.Errno); ok {
		errno = e
	} else if ue, ok := asErrno(err); ok {
		errno = ue
	} else {
		return WireEUNKNOWN
	}
	if w, ok := wireTable[errno]; ok {
		return w
	}
	return WireEUNKNOWN
}

func asErrno(err error) (unix.Errno, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(unix.Errno); ok {
			return e, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}
