// Package config loads the coxswain client configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full client configuration. Unset values fall back to the
// defaults below; environment variables referenced in the file are expanded
// before parsing.
type Config struct {
	Backend struct {
		BaseURL   string `yaml:"base_url"`
		APIKeyEnv string `yaml:"api_key_env,omitempty"`
	} `yaml:"backend"`
	Client struct {
		EventBuffer   int    `yaml:"event_buffer"`
		EmitTimeoutMs int    `yaml:"emit_timeout_ms"`
		LogLevel      string `yaml:"log_level"`
		LogFile       string `yaml:"log_file,omitempty"`
	} `yaml:"client"`
}

// Load reads the config at path, or the default location when path is empty.
// A missing file yields the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultPath returns the per-user config location.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.ExpandEnv("$HOME/.config")
	}
	return filepath.Join(configDir, "coxswain", "config.yaml")
}

// EmitTimeout converts the configured milliseconds to a duration.
func (c *Config) EmitTimeout() time.Duration {
	return time.Duration(c.Client.EmitTimeoutMs) * time.Millisecond
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:8723"
	}
	if cfg.Backend.APIKeyEnv == "" {
		cfg.Backend.APIKeyEnv = "COXSWAIN_API_KEY"
	}
	if cfg.Client.EventBuffer == 0 {
		cfg.Client.EventBuffer = 64
	}
	if cfg.Client.LogLevel == "" {
		cfg.Client.LogLevel = "INFO"
	}
}
