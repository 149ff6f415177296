package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models the optional server config file. Every key has a usable
// zero-value default, so running without a file works.
type Config struct {
	LogsDir     string            `yaml:"logsDir"`
	Shell       string            `yaml:"shell"`
	Interpreter string            `yaml:"interpreter"`
	Workdir     string            `yaml:"workdir"`
	Env         map[string]string `yaml:"env"`
	SSH         SSH               `yaml:"ssh"`
}

// SSH tunes how remote sessions are established.
type SSH struct {
	ConfigPath         string `yaml:"configPath"`
	KeyPath            string `yaml:"keyPath"`
	DialTimeoutSeconds int    `yaml:"dialTimeoutSeconds"`
}

// Load decodes the config file. Missing files return (nil, nil).
func Load(path string) (*Config, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	expanded, err := ExpandPath(trimmed)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to disk, creating parent directories if needed.
func (c *Config) Save(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(expanded, data, 0o600); err != nil {
		return err
	}
	return nil
}

// LogsDirFor returns the run-log directory for one server kind. An explicit
// logsDir gets a per-kind subdirectory so listings stay separable; unset
// falls back to a per-kind directory under the system temp dir.
func (c *Config) LogsDirFor(kind string) string {
	if c != nil && strings.TrimSpace(c.LogsDir) != "" {
		return filepath.Join(c.LogsDir, kind)
	}
	return filepath.Join(os.TempDir(), "mcp_"+kind+"_logs")
}

// SSHConfigPath returns the ssh_config file consulted for host resolution.
func (c *Config) SSHConfigPath() string {
	if c != nil && strings.TrimSpace(c.SSH.ConfigPath) != "" {
		return c.SSH.ConfigPath
	}
	return "~/.ssh/config"
}

// SSHKeyPath returns the private key offered during authentication.
func (c *Config) SSHKeyPath() string {
	if c != nil && strings.TrimSpace(c.SSH.KeyPath) != "" {
		return c.SSH.KeyPath
	}
	return "~/.ssh/id_rsa"
}

// DialTimeout returns the SSH dial timeout.
func (c *Config) DialTimeout() time.Duration {
	if c != nil && c.SSH.DialTimeoutSeconds > 0 {
		return time.Duration(c.SSH.DialTimeoutSeconds) * time.Second
	}
	return 10 * time.Second
}

// Starter is the config written by "config init": defaults spelled out so
// the operator has something to edit.
func Starter() *Config {
	return &Config{
		SSH: SSH{
			ConfigPath:         "~/.ssh/config",
			KeyPath:            "~/.ssh/id_rsa",
			DialTimeoutSeconds: 10,
		},
	}
}

// ExpandPath resolves ~ and relative paths to absolute ones.
func ExpandPath(path string) (string, error) {
	switch {
	case strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	case path == "~":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	case filepath.IsAbs(path):
		return path, nil
	default:
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(cwd, path), nil
	}
}
