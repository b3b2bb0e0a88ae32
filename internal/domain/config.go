// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "time"

type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	PprofEnabled  bool   `toml:"pprofEnabled" mapstructure:"pprofEnabled"`

	MetricsEnabled bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost    string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort    int    `toml:"metricsPort" mapstructure:"metricsPort"`

	// Transmission daemon
	RPCURL      string `toml:"rpcUrl" mapstructure:"rpcUrl"`
	RPCUsername string `toml:"rpcUsername" mapstructure:"rpcUsername"`
	RPCPassword string `toml:"rpcPassword" mapstructure:"rpcPassword"`
	// RPCTimeout is in seconds, 0 disables the client timeout.
	RPCTimeout int `toml:"rpcTimeout" mapstructure:"rpcTimeout"`

	// SessionIdleTimeout is in seconds.
	SessionIdleTimeout int `toml:"sessionIdleTimeout" mapstructure:"sessionIdleTimeout"`
}

// RPCTimeoutDuration returns the transport timeout for daemon calls.
func (c *Config) RPCTimeoutDuration() time.Duration {
	if c.RPCTimeout <= 0 {
		return 0
	}
	return time.Duration(c.RPCTimeout) * time.Second
}

// SessionIdleDuration returns how long an unobserved page session is kept.
func (c *Config) SessionIdleDuration() time.Duration {
	if c.SessionIdleTimeout <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.SessionIdleTimeout) * time.Second
}
