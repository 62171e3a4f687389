// Linkrelay - Pairwise-Consented Action Relay for Companion Clients
// Copyright 2026 Linkrelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/linkrelay/linkrelay

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/linkrelay/config.yaml",
	"/etc/linkrelay/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are
// layered first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    7443,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			URL:                     "",
			MaxConns:                8,
			QueryTimeout:            5 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerOpenTimeout:      30 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:        "",
			TokenTTL:         4 * time.Hour,
			MinClientVersion: 1,
			LoginRateLimit:   10,
			LoginRateWindow:  time.Minute,
			CORSOrigins:      []string{"*"},
		},
		Relay: RelayConfig{
			TargetCap:             3,
			Cooldown:              500 * time.Millisecond,
			ChatMessagesPerSecond: 5,
			ChatBurst:             10,
			MoodleInfoMaxBytes:    8 << 10,
			CustomizationMaxBytes: 64 << 10,
			ExpirySweepInterval:   time.Minute,
			SessionSendBuffer:     256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources (highest priority wins):
//  1. Environment variables
//  2. Config file (config.yaml)
//  3. Built-in defaults
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when sourced from environment variables.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated strings to slices for the
// known slice fields. Env vars arrive as strings but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf paths.
// Unknown variables map to the empty string and are skipped, so random
// environment noise cannot pollute the config.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		"database_url":              "database.url",
		"database_max_conns":        "database.max_conns",
		"database_query_timeout":    "database.query_timeout",
		"store_breaker_failures":    "database.breaker_failure_threshold",
		"store_breaker_open_timeout": "database.breaker_open_timeout",

		"jwt_secret":         "security.jwt_secret",
		"token_ttl":          "security.token_ttl",
		"min_client_version": "security.min_client_version",
		"login_rate_limit":   "security.login_rate_limit",
		"login_rate_window":  "security.login_rate_window",
		"cors_origins":       "security.cors_origins",

		"relay_target_cap":          "relay.target_cap",
		"relay_cooldown":            "relay.cooldown",
		"chat_messages_per_second":  "relay.chat_messages_per_second",
		"chat_burst":                "relay.chat_burst",
		"moodle_info_max_bytes":     "relay.moodle_info_max_bytes",
		"customization_max_bytes":   "relay.customization_max_bytes",
		"expiry_sweep_interval":     "relay.expiry_sweep_interval",
		"session_send_buffer":       "relay.session_send_buffer",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
