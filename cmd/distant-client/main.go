// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command distant-client is a thin demonstration client: it loads a
// config, dials the agent once, issues a small batch of requests, prints
// the responses, and exits. It exists to exercise the C5 event loop end
// to end, mirroring the teacher's cmd/nbackup-agent --once path.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/distantlabs/distant-agent/internal/client"
	"github.com/distantlabs/distant-agent/internal/config"
	"github.com/distantlabs/distant-agent/internal/crypto"
	"github.com/distantlabs/distant-agent/internal/logging"
	"github.com/distantlabs/distant-agent/internal/netconn"
	"github.com/distantlabs/distant-agent/internal/protocol"
)

var currentVersion = protocol.Version{Major: 1, Minor: 0, Patch: 0}

func main() {
	configPath := flag.String("config", "/etc/distant-client/client.yaml", "path to client config file")
	cmdStr := flag.String("cmd", "", "if set, also spawn this command on the agent after the version and system-info probes")
	flag.Parse()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, "")
	defer logCloser.Close()

	if err := run(cfg, logger, *cmdStr); err != nil {
		logger.Error("client error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.ClientConfig, logger *slog.Logger, cmdStr string) error {
	tlsConfig, err := crypto.NewClientTLSConfig(cfg.TLS.CACert, cfg.TLS.ClientCert, cfg.TLS.ClientKey)
	if err != nil {
		return fmt.Errorf("loading client tls config: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rawConn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", cfg.Server.Address, err)
	}

	conn, err := netconn.Connect(rawConn, netconn.ClientConfig{
		Version:     currentVersion,
		TLSConfig:   tlsConfig,
		BackupBytes: 4096,
	})
	if err != nil {
		rawConn.Close()
		return fmt.Errorf("establishing connection: %w", err)
	}

	strategy, err := cfg.Reconnect.Build()
	if err != nil {
		return err
	}

	cl := client.New(conn, client.Config{
		ReconnectStrategy: strategy,
		SilenceDuration:   cfg.Reconnect.SilenceDuration,
		ShutdownOnDrop:    cfg.Reconnect.ShutdownOnDrop,
		TLSConfig:         tlsConfig,
		Logger:            nil,
		Dialer: func(ctx context.Context) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, "tcp", cfg.Server.Address)
		},
	})
	defer cl.Shutdown()

	payload := []protocol.RequestData{protocol.VersionRequest{}, protocol.SystemInfoRequest{}}
	if cmdStr != "" {
		payload = append(payload, protocol.ProcSpawn{Cmd: "sh", Args: []string{"-c", cmdStr}})
	}

	req := &protocol.Request{ID: "client-1", Payload: payload}
	ctx, cancel2 := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel2()

	resp, err := cl.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for i, item := range resp.Payload {
		fmt.Printf("[%d] %T: %+v\n", i, item, item)
	}
	logger.Info("request completed", "payload_count", len(resp.Payload))
	return nil
}
