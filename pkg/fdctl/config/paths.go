package config

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigDirName = "fdctl"
	defaultConfigFile    = "config.yaml"
)

// DefaultConfigPath resolves the config file location. The FDCTL_CONFIG
// environment variable wins over the platform config dir.
func DefaultConfigPath() string {
	if env := os.Getenv("FDCTL_CONFIG"); env != "" {
		return env
	}
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName, defaultConfigFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fdctl", defaultConfigFile)
}

// SessionFallbackPath is where the session store keeps its file fallback when
// the platform keychain is unavailable.
func SessionFallbackPath() string {
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName, "session.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fdctl", "session.json")
}
