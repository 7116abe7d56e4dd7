// Copyright (C) 2025 SIWA Project
//
// This file is part of siwa-go.
//
// siwa-go is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// siwa-go is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with siwa-go.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads the daemon configuration from YAML with
// environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the keyring daemon configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// DatabasePath is the SQLite policy database location.
	DatabasePath string `yaml:"database_path"`

	// Secrets configure the two HMAC capabilities of the keyring
	// surface. Environment variables override the file values so
	// secrets can stay out of config files entirely.
	Secrets SecretsConfig `yaml:"secrets"`

	// Receipt configures receipt issuance for the sign-in surface.
	Receipt ReceiptConfig `yaml:"receipt"`

	// Registry configures the onchain identity registry.
	Registry RegistryConfig `yaml:"registry"`
}

// SecretsConfig holds the keyring capability secrets.
type SecretsConfig struct {
	Admin string `yaml:"admin"`
	Agent string `yaml:"agent"`
}

// ReceiptConfig holds receipt issuance settings.
type ReceiptConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// RegistryConfig holds onchain registry settings.
type RegistryConfig struct {
	// RPCURL is the Ethereum JSON-RPC endpoint.
	RPCURL string `yaml:"rpc_url"`

	// ChainID the daemon operates on.
	ChainID uint64 `yaml:"chain_id"`

	// Address is the identity registry contract address.
	Address string `yaml:"address"`
}

// Environment variables overriding the file-based secrets.
const (
	EnvAdminSecret   = "SIWA_ADMIN_SECRET"
	EnvAgentSecret   = "SIWA_AGENT_SECRET"
	EnvReceiptSecret = "SIWA_RECEIPT_SECRET"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:       ":8484",
		LogLevel:     "info",
		DatabasePath: "siwa-keyring.db",
		Receipt: ReceiptConfig{
			TTL: 30 * time.Minute,
		},
		Registry: RegistryConfig{
			ChainID: 84532,
		},
	}
}

// Load reads the configuration file at path, merged over defaults. A
// missing file is not an error: defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv(EnvAdminSecret); v != "" {
		cfg.Secrets.Admin = v
	}
	if v := os.Getenv(EnvAgentSecret); v != "" {
		cfg.Secrets.Agent = v
	}
	if v := os.Getenv(EnvReceiptSecret); v != "" {
		cfg.Receipt.Secret = v
	}

	return cfg, nil
}

// Validate checks the fields a running daemon cannot do without.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.Secrets.Admin == "" || c.Secrets.Agent == "" {
		return fmt.Errorf("admin and agent secrets are required (set %s / %s)", EnvAdminSecret, EnvAgentSecret)
	}
	if c.Secrets.Admin == c.Secrets.Agent {
		return fmt.Errorf("admin and agent secrets must differ")
	}
	return nil
}
