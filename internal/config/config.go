// Package config loads optional invocation defaults from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level mssh configuration.
type Config struct {
	Defaults Defaults `yaml:"defaults"`
}

// Defaults holds default settings, each overridable by a flag.
type Defaults struct {
	Concurrency    int      `yaml:"concurrency"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	Output         string   `yaml:"output"` // "json", "text" or "table"
	PrivateKey     string   `yaml:"private_key,omitempty"`
}

// Duration wraps time.Duration to support YAML unmarshaling from
// strings like "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// DefaultConfig returns a Config with the built-in default values.
func DefaultConfig() *Config {
	return &Config{
		Defaults: Defaults{
			Concurrency:    10,
			ConnectTimeout: Duration{5 * time.Second},
			Output:         "table",
		},
	}
}

// DefaultConfigPath returns the default config file path. Respects
// $XDG_CONFIG_HOME if set, otherwise falls back to ~/.config.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir != "" {
		return filepath.Join(configDir, "mssh", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mssh", "config.yaml")
}

// Load reads and parses a config YAML file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads the config at path, returning built-in defaults
// when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Defaults.Concurrency <= 0 {
		return fmt.Errorf("defaults.concurrency must be positive, got %d", c.Defaults.Concurrency)
	}
	if c.Defaults.ConnectTimeout.Duration < 0 {
		return fmt.Errorf("defaults.connect_timeout must not be negative")
	}
	switch c.Defaults.Output {
	case "json", "text", "table":
	default:
		return fmt.Errorf("defaults.output must be json, text or table, got %q", c.Defaults.Output)
	}
	return nil
}
