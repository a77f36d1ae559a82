// Package config holds CLI configuration: where the backend lives and how
// the client talks to it. Sources, in increasing precedence: built-in
// defaults, the config file, a .env file, then NEGOTIATOR_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full CLI configuration.
type Config struct {
	// Server is the backend origin.
	Server string `yaml:"server"`

	// PollInterval is the delay between task status checks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// RequestTimeout bounds each individual backend request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// CachePath is the sqlite file mirroring the session catalog for
	// offline listing. Empty disables the mirror.
	CachePath string `yaml:"cache_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:         "http://localhost:8000",
		PollInterval:   time.Second,
		RequestTimeout: 30 * time.Second,
		CachePath:      defaultCachePath(),
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "negotiator.yaml"
	}
	return filepath.Join(home, ".negotiator", "config.yaml")
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".negotiator", "catalog.db")
}

// Load reads the config file at path, layering defaults underneath and env
// overrides on top. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	// .env in the working directory, if present. Does not clobber variables
	// already set in the environment.
	_ = godotenv.Load()

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the config file, creating the directory if needed.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NEGOTIATOR_SERVER"); v != "" {
		c.Server = v
	}
	if v := os.Getenv("NEGOTIATOR_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PollInterval = d
		}
	}
	if v := os.Getenv("NEGOTIATOR_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := os.Getenv("NEGOTIATOR_CACHE_PATH"); v != "" {
		c.CachePath = v
	}
}

func (c Config) validate() error {
	if c.Server == "" {
		return fmt.Errorf("server must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	return nil
}
