// ABOUTME: Configuration loading and parsing for openclaw-sync
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete openclaw-sync configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds gateway authentication configuration. When a gateway
// record carries no static bearer token, a short-lived connect token is
// minted from jwt_secret instead.
type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	ConnectTokenTTL    time.Duration `yaml:"-"`
	ConnectTokenTTLRaw string        `yaml:"connect_token_ttl"`
}

// SyncConfig holds retry tuning for gateway calls during a sync pass
type SyncConfig struct {
	Attempts     int           `yaml:"attempts"`
	BaseDelay    time.Duration `yaml:"-"`
	BaseDelayRaw string        `yaml:"base_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in unset optional fields.
func (c *Config) applyDefaults() {
	if c.Sync.Attempts == 0 {
		c.Sync.Attempts = 3
	}
	if c.Sync.BaseDelay == 0 {
		c.Sync.BaseDelay = 750 * time.Millisecond
	}
	if c.Auth.ConnectTokenTTL == 0 {
		c.Auth.ConnectTokenTTL = time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Sync.Attempts < 0 {
		return fmt.Errorf("sync.attempts must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sync.BaseDelayRaw != "" {
		cfg.Sync.BaseDelay, err = time.ParseDuration(cfg.Sync.BaseDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing base_delay %q: %w", cfg.Sync.BaseDelayRaw, err)
		}
	}

	if cfg.Auth.ConnectTokenTTLRaw != "" {
		cfg.Auth.ConnectTokenTTL, err = time.ParseDuration(cfg.Auth.ConnectTokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing connect_token_ttl %q: %w", cfg.Auth.ConnectTokenTTLRaw, err)
		}
	}

	return nil
}
