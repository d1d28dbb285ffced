package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the per-profile config.toml.
type Config struct {
	// Identity is the user id this profile connects as.
	Identity string `toml:"identity"`
	// RealtimeURL is the push endpoint, e.g. "wss://api.quickfix.app/ws".
	RealtimeURL string `toml:"realtime_url"`
	// RESTBaseURLs are tried in order when a call fails with a
	// retryable status; the first entry is the primary deployment.
	RESTBaseURLs []string `toml:"rest_base_urls"`
	// TokenEnv names the environment variable holding the bearer
	// token. Defaults to "QUICKFIX_TOKEN".
	TokenEnv string `toml:"token_env"`
}

// Load reads config from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if cfg.TokenEnv == "" {
		cfg.TokenEnv = "QUICKFIX_TOKEN"
	}
	return &cfg, nil
}

// Validate checks the fields a daemon cannot run without.
func (c *Config) Validate() error {
	if c.Identity == "" {
		return fmt.Errorf("config: identity is required")
	}
	if c.RealtimeURL == "" {
		return fmt.Errorf("config: realtime_url is required")
	}
	if len(c.RESTBaseURLs) == 0 {
		return fmt.Errorf("config: at least one rest_base_urls entry is required")
	}
	return nil
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
