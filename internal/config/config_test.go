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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesSpec(t *testing.T) {
	c := Default()
	if c.Listen.Port != 5555 || c.Executor.Threads != 2 || !c.AckMode {
		t.Fatalf("got %+v", c)
	}
	if c.Transport.PacketSize != 32*1024 || c.Transport.TransportSize != 4*1024 {
		t.Fatalf("got %+v", c.Transport)
	}
}

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if c != Default() {
		t.Fatalf("got %+v want defaults", c)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasarchd.yaml")
	contents := "listen:\n  port: 9999\nack_mode: false\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %s", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if c.Listen.Port != 9999 {
		t.Fatalf("got port %d want 9999", c.Listen.Port)
	}
	if c.AckMode {
		t.Fatal("expected ack_mode overridden to false")
	}
	if c.Executor.Threads != 2 {
		t.Fatalf("unconfigured fields should keep defaults, got %d", c.Executor.Threads)
	}
}
