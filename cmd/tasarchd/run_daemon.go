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

package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/0rganizers/tasarch/debug"
	"github.com/0rganizers/tasarch/internal/config"
	"github.com/0rganizers/tasarch/internal/executor"
	"github.com/0rganizers/tasarch/internal/gdbserver"
)

// runDaemon parses daemon flags, loads configuration (spec.md §6) and
// runs the GDB stub's accept loop until SIGINT/SIGTERM.
func runDaemon(args []string) error {
	daemonCmd := flag.NewFlagSet("daemon", flag.ExitOnError)
	configPath := daemonCmd.String("config", "", "path to a YAML configuration file (defaults apply if empty)")
	listenAddr := daemonCmd.String("listen", "", "host:port to listen on (overrides listen.port from -config)")
	debugSock := daemonCmd.Int("debug", -1, "file descriptor to listen on for pprof debug activity")
	traceDir := daemonCmd.String("trace", "", "directory to write one gzip packet trace per connection to (empty disables tracing)")
	if err := daemonCmd.Parse(args); err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("tasarchd: %w", err)
	}

	if fd := *debugSock; fd >= 0 {
		debug.Fd(fd, logger)
	}

	addr := *listenAddr
	if addr == "" {
		addr = net.JoinHostPort("", strconv.Itoa(cfg.Listen.Port))
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tasarchd: listen: %w", err)
	}

	exec := executor.New(cfg.Executor.Threads)
	srvOpts := []gdbserver.ServerOption{
		gdbserver.WithServerLogger(logger),
		gdbserver.WithServerExecutor(exec),
	}
	if *traceDir != "" {
		if err := os.MkdirAll(*traceDir, 0o755); err != nil {
			return fmt.Errorf("tasarchd: trace dir: %w", err)
		}
		srvOpts = append(srvOpts, gdbserver.WithServerTraceDir(*traceDir))
	}
	srv := gdbserver.NewServer(cfg.TransportConfig(), srvOpts...)

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("tasarchd %s: listening on %s", version, ln.Addr())
		serveErr <- srv.Serve(ln)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		logger.Println("tasarchd: shutting down")
		if err := srv.Stop(); err != nil {
			logger.Printf("tasarchd: stop: %s", err)
		}
		<-serveErr
	case err := <-serveErr:
		if err != nil {
			exec.Stop()
			return fmt.Errorf("tasarchd: serve: %w", err)
		}
	}

	exec.Stop()
	return nil
}
