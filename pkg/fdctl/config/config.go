// Package config holds the fdctl client configuration file and its default
// locations.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"
)

// Config is the fdctl YAML configuration.
type Config struct {
	Version string `yaml:"version"`
	// Server is the base URL of the credential issuance service.
	Server                string   `yaml:"server"`
	CAFile                string   `yaml:"ca-file,omitempty"`
	InsecureSkipTLSVerify bool     `yaml:"insecure-skip-tls-verify,omitempty"`
	Settings              Settings `yaml:"settings,omitempty"`
}

// Settings are cosmetic preferences.
type Settings struct {
	Verbose bool `yaml:"verbose,omitempty"`
}

// DefaultConfig returns a config with defaults filled in.
func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
	}
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

// Save writes the config, creating the directory with restrictive modes.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

// Validate checks the config for problems that would break every command.
func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	if strings.TrimSpace(c.Server) == "" {
		return errors.New("server is required")
	}
	return nil
}
