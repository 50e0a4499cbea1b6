// ABOUTME: Configuration loading and parsing for navigator
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete navigator configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Session    SessionConfig    `yaml:"session"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ClassifierConfig holds the safety classifier configuration.
// When Enabled is false the lexicon-only classifier is used, which is
// intended for development and tests, not production traffic.
type ClassifierConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// GuardrailsConfig holds guardrail pipeline tuning
type GuardrailsConfig struct {
	MaxRegenerations int `yaml:"max_regenerations"`
}

// SessionConfig holds conversation session tuning
type SessionConfig struct {
	MaxTurnsPerDay int64 `yaml:"max_turns_per_day"`

	InactivityTimeout    time.Duration `yaml:"-"`
	InactivityTimeoutRaw string        `yaml:"inactivity_timeout"`
}

// DirectoryConfig holds the facility directory sources. Each entry is an
// upstream provider the search worker queries.
type DirectoryConfig struct {
	Sources []DirectorySource `yaml:"sources"`

	LookupTimeout    time.Duration `yaml:"-"`
	LookupTimeoutRaw string        `yaml:"lookup_timeout"`
}

// DirectorySource is one upstream facility provider endpoint
type DirectorySource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
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

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
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

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// A classifier enabled without credentials would silently degrade every
	// safety decision, so refuse to start instead.
	if c.Classifier.Enabled && c.Classifier.APIKey == "" {
		return fmt.Errorf("classifier.api_key is required when classifier is enabled")
	}

	if c.Guardrails.MaxRegenerations < 0 {
		return fmt.Errorf("guardrails.max_regenerations must not be negative")
	}

	for i, src := range c.Directory.Sources {
		if src.Name == "" {
			return fmt.Errorf("directory.sources[%d].name is required", i)
		}
		if src.URL == "" {
			return fmt.Errorf("directory.sources[%d].url is required", i)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Classifier.TimeoutRaw != "" {
		cfg.Classifier.Timeout, err = time.ParseDuration(cfg.Classifier.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing classifier.timeout %q: %w", cfg.Classifier.TimeoutRaw, err)
		}
	}

	if cfg.Session.InactivityTimeoutRaw != "" {
		cfg.Session.InactivityTimeout, err = time.ParseDuration(cfg.Session.InactivityTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing session.inactivity_timeout %q: %w", cfg.Session.InactivityTimeoutRaw, err)
		}
	}

	if cfg.Directory.LookupTimeoutRaw != "" {
		cfg.Directory.LookupTimeout, err = time.ParseDuration(cfg.Directory.LookupTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing directory.lookup_timeout %q: %w", cfg.Directory.LookupTimeoutRaw, err)
		}
	}

	return nil
}
