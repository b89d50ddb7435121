// ABOUTME: Configuration loading and parsing for ohms-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ohms-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Canister CanisterConfig `yaml:"canister"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Quota    QuotaConfig    `yaml:"quota"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// CanisterConfig holds the model backend configuration
type CanisterConfig struct {
	// Host is the boundary host the HTTP agent talks to
	Host string `yaml:"host"`
	// CanisterID is the text form of the model canister's principal
	CanisterID string `yaml:"canister_id"`
	// Identity is the caller principal bound to the transport.
	// Empty means anonymous.
	Identity string `yaml:"identity"`
}

// DatabaseConfig holds the archive database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TokenTTLRaw string `yaml:"token_ttl"`
}

// QuotaConfig holds quota refresh timing configuration
type QuotaConfig struct {
	RefreshInterval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RefreshIntervalRaw string `yaml:"refresh_interval"`
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

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Canister.Host == "" {
		return fmt.Errorf("canister.host is required")
	}
	if c.Canister.CanisterID == "" {
		return fmt.Errorf("canister.canister_id is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	if cfg.Quota.RefreshIntervalRaw != "" {
		cfg.Quota.RefreshInterval, err = time.ParseDuration(cfg.Quota.RefreshIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing refresh_interval %q: %w", cfg.Quota.RefreshIntervalRaw, err)
		}
	}
	if cfg.Quota.RefreshInterval == 0 {
		cfg.Quota.RefreshInterval = 5 * time.Minute
	}

	return nil
}
