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

// Debugger is the narrow interface a Connection calls into to size
// register responses, resume execution on 'c', and request an execution
// break, including a Host-I/O break-flag delivery (spec.md §4.7
// "Debugger Interface"). It has no target-memory read/write methods: the
// m/M handlers serve only Scratch Memory. It is
// implemented by an external collaborator — the actual emulator/debugger
// backend is explicitly out of scope (spec.md §1 Non-goals) — so this
// package only ships a narrow interface plus a stub implementation
// usable for tests and for standing the server up without a backend
// wired in yet.
//
// Multiple Connections may share one Debugger.
type Debugger interface {
	// RegisterWidth returns the byte width of a single register, used to
	// size the all-zeros 'g'/'p' responses.
	RegisterWidth() int

	// RegisterCount returns how many registers 'g' reports.
	RegisterCount() int

	// Continue is called when a 'c' packet is dispatched. The Connection
	// treats the packet as deferred whatever Continue does; a
	// later Host-I/O exchange (or eventual stop event) produces the
	// actual stop-reply.
	Continue()

	// Break is called when the Transport observes a break character,
	// either from the initial receive state or from the 'C' flag on a
	// Host-I/O reply (spec.md §4.6, supplemented feature #4).
	Break()
}

// StubDebugger is a Debugger that does nothing beyond declaring a
// register layout; it satisfies every built-in handler spec.md §4.4
// requires without any real emulator behind it.
type StubDebugger struct {
	Width int
	Count int
}

// NewStubDebugger returns a StubDebugger with a plausible default
// register layout (32-bit-wide general registers, matching spec.md §8
// scenario S3's 32-byte block).
func NewStubDebugger() *StubDebugger {
	return &StubDebugger{Width: 4, Count: 8}
}

func (s *StubDebugger) RegisterWidth() int { return s.Width }
func (s *StubDebugger) RegisterCount() int { return s.Count }
func (s *StubDebugger) Continue()          {}
func (s *StubDebugger) Break()             {}
