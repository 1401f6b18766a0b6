package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents ~/.deskd/config.toml.
type Config struct {
	DataDir           string `toml:"data_dir"`
	RetentionDays     int    `toml:"retention_days"`
	SweepDelaySeconds int    `toml:"sweep_delay_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		RetentionDays:     7,
		SweepDelaySeconds: 15,
	}
}

// Load reads config from the given path, filling unset values with the
// defaults. Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.SweepDelaySeconds <= 0 {
		cfg.SweepDelaySeconds = 15
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
