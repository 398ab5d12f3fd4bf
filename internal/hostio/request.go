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

package hostio

import "fmt"

// Ptr is a Scratch-Memory address used as a Host-I/O pointer argument
// (spec.md §4.6). Len is the byte count at that address; for a C string
// staged by the Scratch Memory writer it includes the trailing NUL.
type Ptr struct {
	Addr uint64
	Len  uint64
}

// Open renders an Fopen request (spec.md §6).
func Open(path Ptr, flags, mode uint32) []byte {
	return []byte(fmt.Sprintf("Fopen,%x/%x,%x,%x", path.Addr, path.Len, flags, mode))
}

// Read renders an Fread request.
func Read(fd int32, buf Ptr, count uint64) []byte {
	return []byte(fmt.Sprintf("Fread,%x,%x,%x", fd, buf.Addr, count))
}

// Write renders an Fwrite request.
func Write(fd int32, buf Ptr, count uint64) []byte {
	return []byte(fmt.Sprintf("Fwrite,%x,%x,%x", fd, buf.Addr, count))
}

// Lseek renders an Flseek request.
func Lseek(fd int32, offset int64, whence int32) []byte {
	return []byte(fmt.Sprintf("Flseek,%x,%x,%x", fd, offset, whence))
}

// Close renders an Fclose request.
func Close(fd int32) []byte {
	return []byte(fmt.Sprintf("Fclose,%x", fd))
}

// Unlink renders an Funlink request. path follows the same Scratch-
// Memory pointer/len convention as Open's filename argument.
func Unlink(path Ptr) []byte {
	return []byte(fmt.Sprintf("Funlink,%x/%x", path.Addr, path.Len))
}

// System renders an Fsystem request.
func System(cmd Ptr) []byte {
	return []byte(fmt.Sprintf("Fsystem,%x/%x", cmd.Addr, cmd.Len))
}
