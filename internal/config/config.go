// Package config implements TOML configuration loading with a layered
// override chain (defaults -> config file -> environment -> CLI flags) and
// platform-specific path resolution for driveup.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
)

// Default values for configuration options — "layer 0" of the override
// chain, chosen so driveup works with nothing but a token.
const (
	defaultChunkSize = "0" // 0: send the whole payload in one request
	defaultLogLevel  = "info"
)

// Config is the top-level structure parsed from the TOML config file.
type Config struct {
	Token     string `toml:"token"`
	APIURL    string `toml:"api_url"`
	UploadURL string `toml:"upload_url"`
	ChunkSize string `toml:"chunk_size"`
	LogLevel  string `toml:"log_level"`
	DataDir   string `toml:"data_dir"`
}

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding (unset fields keep their
// defaults) and as the fallback when no config file exists. API URLs
// default to empty: the clients substitute their own endpoints, and the
// zero value here lets tests point at local servers.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize: defaultChunkSize,
		LogLevel:  defaultLogLevel,
	}
}

// Resolved is the effective configuration after the override chain and
// validation, with sizes parsed into bytes.
type Resolved struct {
	Token      string
	APIURL     string
	UploadURL  string
	ChunkBytes int64
	LogLevel   string
	DataDir    string
}

// Validate checks the semantic constraints a parsed Config must satisfy.
func Validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want debug, info, warn, or error)", cfg.LogLevel)
	}

	if _, err := parseChunkSize(cfg.ChunkSize); err != nil {
		return err
	}

	return nil
}

// parseChunkSize parses a human-readable size ("8MiB", "256k", "0").
func parseChunkSize(s string) (int64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid chunk_size %q: %w", s, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("chunk_size must be non-negative, got %q", s)
	}

	return n, nil
}

// DefaultConfigPath returns the per-user config file location,
// e.g. ~/.config/driveup/config.toml on Linux.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "driveup.toml")
	}

	return filepath.Join(dir, "driveup", "config.toml")
}

// DefaultDataDir returns the per-user state directory holding the upload
// session database.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".driveup")
	}

	return filepath.Join(home, ".driveup")
}
