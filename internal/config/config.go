// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

// Package config loads and validates server configuration via Koanf v2
// with layered sources: built-in defaults, an optional YAML file, and
// environment variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	Relay    RelayConfig    `koanf:"relay"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds the PostgreSQL connection settings for the
// permission store.
type DatabaseConfig struct {
	// URL is a pgx connection string. Empty selects the in-memory
	// store, which is intended for development and tests only.
	URL string `koanf:"url"`

	MaxConns     int           `koanf:"max_conns"`
	QueryTimeout time.Duration `koanf:"query_timeout"`

	// BreakerFailureThreshold is the consecutive-failure count that
	// opens the circuit breaker guarding store reads.
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold"`

	// BreakerOpenTimeout is how long the breaker stays open before
	// probing the store again.
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`
}

// SecurityConfig holds authentication settings.
type SecurityConfig struct {
	// JWTSecret signs bearer credentials. Minimum 32 characters.
	JWTSecret string `koanf:"jwt_secret"`

	// TokenTTL bounds the validity window of an issued credential.
	TokenTTL time.Duration `koanf:"token_ttl"`

	// MinClientVersion gates login by protocol version.
	MinClientVersion int `koanf:"min_client_version"`

	// LoginRateLimit / LoginRateWindow bound per-IP requests on the
	// auth endpoints.
	LoginRateLimit  int           `koanf:"login_rate_limit"`
	LoginRateWindow time.Duration `koanf:"login_rate_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// RelayConfig holds the tunables of the action relay core.
type RelayConfig struct {
	// TargetCap is the maximum number of targets an in-game action
	// request may name.
	TargetCap int `koanf:"target_cap"`

	// Cooldown is the per-sender minimum interval between relayed
	// actions.
	Cooldown time.Duration `koanf:"cooldown"`

	// ChatMessagesPerSecond / ChatBurst bound the global chat channel.
	ChatMessagesPerSecond float64 `koanf:"chat_messages_per_second"`
	ChatBurst             int     `koanf:"chat_burst"`

	// MoodleInfoMaxBytes / CustomizationMaxBytes cap structured blob
	// payload sizes.
	MoodleInfoMaxBytes    int `koanf:"moodle_info_max_bytes"`
	CustomizationMaxBytes int `koanf:"customization_max_bytes"`

	// ExpirySweepInterval is how often expired grants are removed.
	ExpirySweepInterval time.Duration `koanf:"expiry_sweep_interval"`

	// SessionSendBuffer is the per-session outbound queue length; a
	// full queue turns a delivery into DeliveryFailed.
	SessionSendBuffer int `koanf:"session_send_buffer"`
}

// LoggingConfig mirrors logging.Config for the config file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks cross-field invariants. Called after loading.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("security.token_ttl must be positive")
	}
	if c.Relay.TargetCap < 1 {
		return fmt.Errorf("relay.target_cap must be at least 1")
	}
	if c.Relay.Cooldown < 0 {
		return fmt.Errorf("relay.cooldown must not be negative")
	}
	if c.Relay.SessionSendBuffer < 1 {
		return fmt.Errorf("relay.session_send_buffer must be at least 1")
	}
	if c.Database.URL != "" && c.Database.MaxConns < 1 {
		return fmt.Errorf("database.max_conns must be at least 1")
	}
	return nil
}
