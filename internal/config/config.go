package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the client configuration
type Config struct {
	APIURL          string `toml:"api_url"`
	PageSize        int    `toml:"page_size"`
	PollInterval    string `toml:"poll_interval"`
	PollMaxAttempts int    `toml:"poll_max_attempts"`
	LogLevel        string `toml:"log_level"`
	NoColor         bool   `toml:"no_color"`
}

const (
	DefaultAPIURL          = "http://localhost:8080/api/v1"
	DefaultPageSize        = 20
	DefaultPollInterval    = 2 * time.Second
	DefaultPollMaxAttempts = 30
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIURL:          DefaultAPIURL,
		PageSize:        DefaultPageSize,
		PollInterval:    DefaultPollInterval.String(),
		PollMaxAttempts: DefaultPollMaxAttempts,
		LogLevel:        "info",
	}
}

// DataDir returns the lens data directory.
// Uses LENS_DATA_DIR env var if set, otherwise ~/.lens
func DataDir() string {
	if dir := os.Getenv("LENS_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lens")
}

// GlobalConfigPath returns the path to the global config file
func GlobalConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// LoadGlobal loads the global configuration from the default path
func LoadGlobal() (*Config, error) {
	return LoadGlobalFrom(GlobalConfigPath())
}

// LoadGlobalFrom loads the global configuration from a specific path.
// LENS_API_URL overrides api_url from the file.
func LoadGlobalFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if url := os.Getenv("LENS_API_URL"); url != "" {
		cfg.APIURL = url
	}

	return cfg, nil
}

// ResolvePollInterval parses poll_interval, falling back to the default
// for empty, malformed or non-positive values.
func (c *Config) ResolvePollInterval() time.Duration {
	if c == nil || c.PollInterval == "" {
		return DefaultPollInterval
	}
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return DefaultPollInterval
	}
	return d
}

// ResolvePageSize returns page_size or the default when unset
func (c *Config) ResolvePageSize() int {
	if c == nil || c.PageSize <= 0 {
		return DefaultPageSize
	}
	return c.PageSize
}

// ResolvePollMaxAttempts returns poll_max_attempts or the default when unset
func (c *Config) ResolvePollMaxAttempts() int {
	if c == nil || c.PollMaxAttempts <= 0 {
		return DefaultPollMaxAttempts
	}
	return c.PollMaxAttempts
}

// SaveGlobal saves the global configuration
func SaveGlobal(cfg *Config) error {
	return SaveGlobalTo(GlobalConfigPath(), cfg)
}

// SaveGlobalTo saves the configuration to a specific path
func SaveGlobalTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
