// ABOUTME: Configuration loading and parsing for the FastAGI server
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete fastagi-server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Queue   QueueConfig   `yaml:"queue"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds listener address configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// QueueConfig holds the per-channel command queue defaults. All duration
// fields accept Go duration strings ("10s", "6h") and are parsed into
// time.Duration during Load.
type QueueConfig struct {
	MaxSize int `yaml:"max_size"`

	DefaultTimeout  time.Duration `yaml:"-"`
	PlaybackTimeout time.Duration `yaml:"-"`
	RecordTimeout   time.Duration `yaml:"-"`
	MaxCallDuration time.Duration `yaml:"-"`

	DefaultTimeoutRaw  string `yaml:"default_timeout"`
	PlaybackTimeoutRaw string `yaml:"playback_timeout"`
	RecordTimeoutRaw   string `yaml:"record_timeout"`
	MaxCallDurationRaw string `yaml:"max_call_duration"`
}

// AuditConfig holds the session/command audit store configuration.
// Path may be ":memory:" for an ephemeral in-process store.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults mirrors the agi package's build-time defaults: maxQueueSize=100,
// defaultCommandTimeout=10s, maxCallDuration=6h. Of the Queue fields, only
// MaxSize is passed on to the agi package (through agi.ListenerOptions);
// the timeout fields are loaded and parsed, but the command queue always
// applies its own built-in timeouts.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":4573"},
		Queue: QueueConfig{
			MaxSize:         100,
			DefaultTimeout:  10 * time.Second,
			PlaybackTimeout: 60 * time.Second,
			RecordTimeout:   10 * time.Minute,
			MaxCallDuration: 6 * time.Hour,
		},
		Audit:   AuditConfig{Path: ":memory:"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config, seeded from Defaults() so an absent section keeps its default.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
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
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Queue.MaxSize <= 0 {
		return fmt.Errorf("queue.max_size must be positive")
	}
	if c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values,
// leaving the Defaults() value in place when a field is absent from the file.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw string
		dst *time.Duration
		name string
	}{
		{cfg.Queue.DefaultTimeoutRaw, &cfg.Queue.DefaultTimeout, "queue.default_timeout"},
		{cfg.Queue.PlaybackTimeoutRaw, &cfg.Queue.PlaybackTimeout, "queue.playback_timeout"},
		{cfg.Queue.RecordTimeoutRaw, &cfg.Queue.RecordTimeout, "queue.record_timeout"},
		{cfg.Queue.MaxCallDurationRaw, &cfg.Queue.MaxCallDuration, "queue.max_call_duration"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
