// Package config loads the optional tool-level configuration file
// (~/.pyforge/config.yaml). Everything has a working default; the file
// exists for people pointing at an index mirror or tuning timeouts.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultIndexURL is the upstream release index consumed when no mirror
// is configured.
const DefaultIndexURL = "https://releases.pyforge.dev/index.json"

// Config captures tool-level settings.
type Config struct {
	IndexURL       string        `yaml:"index_url"`
	MaxRetries     int           `yaml:"max_retries"`
	NetworkTimeout time.Duration `yaml:"network_timeout"`
	LockTimeout    time.Duration `yaml:"lock_timeout"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		IndexURL:       DefaultIndexURL,
		MaxRetries:     3,
		NetworkTimeout: 30 * time.Second,
		LockTimeout:    60 * time.Second,
	}
}

// Load reads the configuration file at path, applying defaults for any
// field left unset. A missing file yields the defaults; unknown keys are
// ignored.
func Load(path string) (Config, error) {
	cfg := Default()

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(contents, &loaded); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if loaded.IndexURL != "" {
		cfg.IndexURL = loaded.IndexURL
	}
	if loaded.MaxRetries > 0 {
		cfg.MaxRetries = loaded.MaxRetries
	}
	if loaded.NetworkTimeout > 0 {
		cfg.NetworkTimeout = loaded.NetworkTimeout
	}
	if loaded.LockTimeout > 0 {
		cfg.LockTimeout = loaded.LockTimeout
	}

	return cfg, nil
}
