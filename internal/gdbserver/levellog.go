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

import "log"

// levelLogger adds the INFO/WARN/ERROR prefixes spec.md §7 calls for on
// top of a plain *log.Logger, the same style of thin wrapper the teacher
// builds around log.Logger rather than adopting a leveled-logging
// framework.
type levelLogger struct {
	*log.Logger
}

func newLevelLogger(l *log.Logger) levelLogger { return levelLogger{l} }

func (l levelLogger) Infof(format string, args ...any) {
	if l.Logger == nil {
		return
	}
	l.Printf("INFO "+format, args...)
}

func (l levelLogger) Warnf(format string, args ...any) {
	if l.Logger == nil {
		return
	}
	l.Printf("WARN "+format, args...)
}

func (l levelLogger) Errorf(format string, args ...any) {
	if l.Logger == nil {
		return
	}
	l.Printf("ERROR "+format, args...)
}
