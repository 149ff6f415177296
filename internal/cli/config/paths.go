package config

import (
	"os"
	"path/filepath"
)

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".mcpexec")
}

func DefaultConfigPath() string {
	if v := os.Getenv("MCPEXEC_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(DefaultConfigDir(), "config")
}
