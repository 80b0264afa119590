// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentConfig is the configuration surface of the distant-agent listener
// (spec.md §6 "Server listener"): bind address, port range, the idle
// reaper timeout, and the bounded per-connection mailbox depth, plus the
// mTLS material for the encrypted handshake upgrade (C2).
type AgentConfig struct {
	Listen   ListenConfig `yaml:"listen"`
	TLS      TLSServer    `yaml:"tls"`
	Dispatch DispatchInfo `yaml:"dispatch"`
	Reaper   ReaperInfo   `yaml:"reaper"`
	Logging  LoggingInfo  `yaml:"logging"`
}

// ListenConfig describes the bind address and, optionally, a port range
// to try in order rather than a single fixed port.
type ListenConfig struct {
	Address      string `yaml:"address"`
	PortRangeMin int    `yaml:"port_range_min"`
	PortRangeMax int    `yaml:"port_range_max"`
}

// TLSServer contains the mTLS certificate paths used by the C2 encrypted
// framed transport upgrade.
type TLSServer struct {
	CACert     string `yaml:"ca_cert"`
	ServerCert string `yaml:"server_cert"`
	ServerKey  string `yaml:"server_key"`
}

// DispatchInfo configures the C6 request dispatcher.
type DispatchInfo struct {
	MaxMsgCapacity    int `yaml:"max_msg_capacity"`    // bounded mpsc depth per connection
	RequestsPerSecond int `yaml:"requests_per_second"` // per-connection rate limit
}

// ReaperInfo configures the cron-driven idle-listener and keychain-sweep
// tasks (SPEC_FULL §2: robfig/cron/v3, grounded on the teacher's
// internal/agent/scheduler.go).
type ReaperInfo struct {
	ShutdownAfter    time.Duration `yaml:"shutdown_after"` // 0 disables the idle reaper
	SweepSchedule    string        `yaml:"sweep_schedule"` // cron expression, default "@every 1m"
	PendingOTPMaxAge time.Duration `yaml:"pending_otp_max_age"`
}

// LoggingInfo contains logging configuration. SessionLogDir, when set,
// makes the agent open a dedicated DEBUG-level JSON log file per
// connection under {SessionLogDir}/distant-agent/{conn_id}.log in
// addition to the process-wide logger (internal/logging.NewSessionLogger).
type LoggingInfo struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	File          string `yaml:"file"`
	SessionLogDir string `yaml:"session_log_dir"`
}

// LoadAgentConfig reads and validates the distant-agent YAML config file.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent config: %w", err)
	}

	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating agent config: %w", err)
	}

	return &cfg, nil
}

func (c *AgentConfig) validate() error {
	if c.Listen.Address == "" {
		return fmt.Errorf("listen.address is required")
	}
	if c.Listen.PortRangeMin != 0 || c.Listen.PortRangeMax != 0 {
		if c.Listen.PortRangeMin <= 0 || c.Listen.PortRangeMax <= 0 {
			return fmt.Errorf("listen.port_range_min and listen.port_range_max must both be set when either is")
		}
		if c.Listen.PortRangeMin > c.Listen.PortRangeMax {
			return fmt.Errorf("listen.port_range_min must be <= listen.port_range_max")
		}
	}
	if c.TLS.CACert == "" {
		return fmt.Errorf("tls.ca_cert is required")
	}
	if c.TLS.ServerCert == "" {
		return fmt.Errorf("tls.server_cert is required")
	}
	if c.TLS.ServerKey == "" {
		return fmt.Errorf("tls.server_key is required")
	}

	if c.Dispatch.MaxMsgCapacity <= 0 {
		c.Dispatch.MaxMsgCapacity = 256
	}
	if c.Dispatch.RequestsPerSecond <= 0 {
		c.Dispatch.RequestsPerSecond = 200
	}

	if c.Reaper.SweepSchedule == "" {
		c.Reaper.SweepSchedule = "@every 1m"
	}
	if c.Reaper.PendingOTPMaxAge <= 0 {
		c.Reaper.PendingOTPMaxAge = 10 * time.Minute
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}
