package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment variable names for overrides.
const (
	EnvConfig = "DRIVEUP_CONFIG"
	EnvToken  = "DRIVEUP_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // DRIVEUP_CONFIG: override config file path
	Token      string // DRIVEUP_TOKEN: bearer token
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Token:      os.Getenv(EnvToken),
	}
}

// CLIOverrides holds values set via command-line flags, the highest
// layer of the override chain.
type CLIOverrides struct {
	ConfigPath string
	Token      string
}

// Load reads and parses a TOML config file and validates it. Unknown keys
// are fatal errors — silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. This supports the
// zero-config first run: a token via DRIVEUP_TOKEN is enough.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// CLI flags always win, matching user expectations for one-off overrides.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	token := cfg.Token
	if env.Token != "" {
		token = env.Token
	}

	if cli.Token != "" {
		token = cli.Token
	}

	chunkBytes, err := parseChunkSize(cfg.ChunkSize)
	if err != nil {
		return nil, err
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	return &Resolved{
		Token:      token,
		APIURL:     cfg.APIURL,
		UploadURL:  cfg.UploadURL,
		ChunkBytes: chunkBytes,
		LogLevel:   cfg.LogLevel,
		DataDir:    dataDir,
	}, nil
}
