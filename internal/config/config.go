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

// Package config holds the daemon's configuration surface (spec.md §6):
// listen port, executor thread count, transport timeout/buffer sizing
// and the default ack-mode setting. Values come from an optional YAML
// file merged under flag overrides set up by cmd/tasarchd.
package config

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/0rganizers/tasarch/internal/gdbproto"
)

// Config is the daemon's full configuration surface.
type Config struct {
	Listen struct {
		Port int `json:"port"`
	} `json:"listen"`
	Executor struct {
		Threads int `json:"threads"`
	} `json:"executor"`
	Transport struct {
		TimeoutMS     int `json:"timeout_ms"`
		PacketSize    int `json:"packet_size"`
		TransportSize int `json:"transport_size"`
	} `json:"transport"`
	AckMode bool `json:"ack_mode"`
}

// Default returns the spec.md §6 default configuration.
func Default() Config {
	var c Config
	c.Listen.Port = gdbproto.DefaultPort
	c.Executor.Threads = gdbproto.DefaultExecutorThreads
	c.Transport.TimeoutMS = gdbproto.DefaultTimeoutMS
	c.Transport.PacketSize = gdbproto.DefaultPacketSize
	c.Transport.TransportSize = gdbproto.DefaultTransportSize
	c.AckMode = gdbproto.DefaultAckMode
	return c
}

// Load reads path (YAML) and overlays it onto the defaults. An empty
// path is not an error: an unconfigured daemon simply runs with
// defaults, as sigs.k8s.io/yaml is only consulted when -config is
// explicitly given. A non-empty path that cannot be read is an error.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return c, nil
}

// TransportConfig adapts Config into gdbproto.Config.
func (c Config) TransportConfig() gdbproto.Config {
	return gdbproto.Config{
		AckMode:       c.AckMode,
		Timeout:       time.Duration(c.Transport.TimeoutMS) * time.Millisecond,
		PacketSize:    c.Transport.PacketSize,
		TransportSize: c.Transport.TransportSize,
	}
}
