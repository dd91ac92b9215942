// Package config provides configuration management for the matching servers.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"

	"github.com/kidney-match-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and keeps match records in SQLite.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for data files

	// Server identity reported to MCP clients
	ServerName    string
	ServerVersion string

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".kidney-match")

	return &LiteConfig{
		DataDir:       dataDir,
		ServerName:    "kidney-match-mcp",
		ServerVersion: "1.0.0",
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv(EnvPrefix + "_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvPrefix + "_MCP_SERVER_NAME"); v != "" {
		cfg.ServerName = v
	}
	if v := os.Getenv(EnvPrefix + "_MCP_SERVER_VERSION"); v != "" {
		cfg.ServerVersion = v
	}
	if v := os.Getenv(EnvPrefix + "_LOGGING_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "_LOGGING_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// MatchDBPath returns the path to the kidney match SQLite database.
func (c *LiteConfig) MatchDBPath() string {
	return filepath.Join(c.DataDir, "kidney_matches.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// Logging returns the lite settings as a logging configuration. MCP stdio servers
// must keep stdout for the protocol, so logs go to stderr.
func (c *LiteConfig) Logging() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"}
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
