// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command distant-agent is the server binary: it listens for framed,
// authenticated connections (C1-C4), then hosts one request dispatcher
// (C6) per connection, each backed by the shared process supervisor
// (C7) and filesystem handlers (C8).
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/distantlabs/distant-agent/internal/agent"
	"github.com/distantlabs/distant-agent/internal/config"
	"github.com/distantlabs/distant-agent/internal/crypto"
	"github.com/distantlabs/distant-agent/internal/dispatch"
	"github.com/distantlabs/distant-agent/internal/keychain"
	"github.com/distantlabs/distant-agent/internal/logging"
	"github.com/distantlabs/distant-agent/internal/netconn"
	"github.com/distantlabs/distant-agent/internal/process"
	"github.com/distantlabs/distant-agent/internal/protocol"
)

// currentVersion is this build's protocol version (spec §4.2); bumping
// Major breaks compatibility with older clients/servers.
var currentVersion = protocol.Version{Major: 1, Minor: 0, Patch: 0}

func main() {
	configPath := flag.String("config", "/etc/distant-agent/agent.yaml", "path to agent config file")
	flag.Parse()

	cfg, err := config.LoadAgentConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("agent error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AgentConfig, logger *slog.Logger) error {
	tlsConfig, err := crypto.NewServerTLSConfig(cfg.TLS.CACert, cfg.TLS.ServerCert, cfg.TLS.ServerKey)
	if err != nil {
		return fmt.Errorf("loading server tls config: %w", err)
	}

	masterSecret := make([]byte, 32)
	if _, err := rand.Read(masterSecret); err != nil {
		return fmt.Errorf("generating master secret: %w", err)
	}

	kc := keychain.New()
	procs := process.NewState()

	reaper, err := agent.NewReaper(kc, logger, cfg.Reaper.SweepSchedule, cfg.Reaper.PendingOTPMaxAge, cfg.Reaper.ShutdownAfter)
	if err != nil {
		return fmt.Errorf("creating reaper: %w", err)
	}

	ln, err := listen(cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	defer ln.Close()
	logger.Info("listening", "address", ln.Addr().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reaper.Start(cancel)
	defer reaper.Stop(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var nextID atomic.Uint32
	dispatchServer := &dispatch.Server{Version: currentVersion, Processes: procs, Logger: logger}

	for {
		rawConn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.Warn("accept failed", "error", err)
				continue
			}
		}
		reaper.Touch()

		go func() {
			defer rawConn.Close()
			conn, err := netconn.Accept(rawConn, netconn.ServerConfig{
				Version:      currentVersion,
				TLSConfig:    tlsConfig,
				Keychain:     kc,
				MasterSecret: masterSecret,
				BackupBytes:  cfg.Dispatch.MaxMsgCapacity * 4096,
				NextID:       func() uint32 { return nextID.Add(1) },
			})
			if err != nil {
				logger.Warn("connection establishment failed", "error", err)
				return
			}
			defer conn.Close()

			connID := strconv.FormatUint(uint64(conn.ID), 10)

			connLogger, sessionCloser, _, err := logging.NewSessionLogger(logger, cfg.Logging.SessionLogDir, "distant-agent", connID)
			if err != nil {
				logger.Warn("opening session log failed, continuing without one", "conn_id", connID, "error", err)
				connLogger, sessionCloser = logger, io.NopCloser(nil)
			}
			defer sessionCloser.Close()
			connLogger = connLogger.With("conn_id", connID)
			connLogger.Info("connection established", "remote", rawConn.RemoteAddr())

			dispatch.Run(ctx, dispatch.Connection{ID: connID, Transport: conn.Transport}, dispatchServer.NewHandler, procs, cfg.Dispatch.RequestsPerSecond, connLogger)
			logging.RemoveSessionLog(cfg.Logging.SessionLogDir, "distant-agent", connID)
		}()
	}
}

func listen(cfg config.ListenConfig) (net.Listener, error) {
	if cfg.PortRangeMin == 0 && cfg.PortRangeMax == 0 {
		return net.Listen("tcp", cfg.Address)
	}

	var lastErr error
	for port := cfg.PortRangeMin; port <= cfg.PortRangeMax; port++ {
		addr := net.JoinHostPort(cfg.Address, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no free port in range [%d,%d]: %w", cfg.PortRangeMin, cfg.PortRangeMax, lastErr)
}
