// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/distantlabs/distant-agent/internal/client"
)

// ClientConfig is the configuration surface of the distant-client demo
// binary (spec.md §6 "Client"): the reconnect strategy, silence
// duration, shutdown-on-drop flag, the server address to dial, and the
// mTLS material for C2's encrypted handshake upgrade.
type ClientConfig struct {
	Server    ServerAddr    `yaml:"server"`
	TLS       TLSClient     `yaml:"tls"`
	Reconnect ReconnectInfo `yaml:"reconnect"`
	Logging   LoggingInfo   `yaml:"logging"`
}

// ServerAddr is the address of the distant-agent listener to dial.
type ServerAddr struct {
	Address string `yaml:"address"`
}

// TLSClient contains the mTLS certificate paths used by the client half
// of the C2 encrypted transport upgrade.
type TLSClient struct {
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// ReconnectInfo configures the client event loop's reconnect strategy
// (spec.md §4.5.1): Strategy selects the policy; the remaining fields
// are interpreted according to which one is chosen.
type ReconnectInfo struct {
	Strategy        string        `yaml:"strategy"` // "fail" (default), "fixed_interval", "exponential_backoff"
	Interval        time.Duration `yaml:"interval"`
	Base            time.Duration `yaml:"base"`
	Max             time.Duration `yaml:"max"`
	MaxRetries      int           `yaml:"max_retries"`
	Timeout         time.Duration `yaml:"timeout"`
	ShutdownOnDrop  bool          `yaml:"shutdown_on_drop"`
	SilenceDuration time.Duration `yaml:"silence_duration"`
}

// Build constructs the client.Strategy this configuration describes.
func (r ReconnectInfo) Build() (client.Strategy, error) {
	switch strings.ToLower(r.Strategy) {
	case "", "fail":
		return client.Fail{}, nil
	case "fixed_interval":
		return client.FixedInterval{Interval: r.Interval, MaxRetries: r.MaxRetries, Timeout: r.Timeout}, nil
	case "exponential_backoff":
		return client.ExponentialBackoff{Base: r.Base, Max: r.Max, MaxRetries: r.MaxRetries, Timeout: r.Timeout}, nil
	default:
		return nil, fmt.Errorf("reconnect.strategy: unknown strategy %q", r.Strategy)
	}
}

// LoadClientConfig reads and validates the distant-client YAML config
// file.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading client config: %w", err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}

	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.TLS.CACert == "" {
		return fmt.Errorf("tls.ca_cert is required")
	}
	if c.TLS.ClientCert == "" {
		return fmt.Errorf("tls.client_cert is required")
	}
	if c.TLS.ClientKey == "" {
		return fmt.Errorf("tls.client_key is required")
	}
	if _, err := c.Reconnect.Build(); err != nil {
		return err
	}
	if c.Reconnect.SilenceDuration <= 0 {
		c.Reconnect.SilenceDuration = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}
