package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const defaultServer = "http://localhost:8080"

// Config is the bookctl.toml file: where the server lives and the session
// saved by the last login.
type Config struct {
	Server  string        `toml:"server"`
	Session SessionConfig `toml:"session"`
}

// SessionConfig holds the saved session token.
type SessionConfig struct {
	Email string `toml:"email,omitempty"`
	Token string `toml:"token,omitempty"`
}

// LoadConfig reads the config file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := &Config{Server: defaultServer}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Server == "" {
		config.Server = defaultServer
	}
	return config, nil
}

// SaveConfig writes the config file readable only by the current user, since
// it holds a session token.
func SaveConfig(path string, config *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
