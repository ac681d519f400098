// Package config implements the ~/.config/avml/config.toml-backed defaults
// the CLI layer falls back to when a flag isn't given explicitly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the ~/.config/avml/config.toml file: every field has a
// corresponding CLI flag that overrides it when set explicitly.
type Config struct {
	DefaultCompress        bool    `toml:"default_compress,omitempty"`
	DefaultSource          string  `toml:"default_source,omitempty"`
	MaxDiskUsageMB         uint64  `toml:"max_disk_usage_mb,omitempty"`
	MaxDiskUsagePercentage float64 `toml:"max_disk_usage_percentage,omitempty"`
	SasBlockSizeMB         uint64  `toml:"sas_block_size_mb,omitempty"`
	SasBlockConcurrency    uint64  `toml:"sas_block_concurrency,omitempty"`
	LogLevel               string  `toml:"log_level,omitempty"`
}

// configDirOverride is set by the --config-dir flag.
var configDirOverride string

// SetConfigDir allows the CLI to pass in the --config-dir flag value.
func SetConfigDir(dir string) {
	configDirOverride = dir
}

// AvmlHome returns the config directory path.
// Precedence: --config-dir flag / SetConfigDir > AVML_HOME env > ~/.config/avml
func AvmlHome() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	if v := os.Getenv("AVML_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "avml")
	}
	return filepath.Join(home, ".config", "avml")
}

// ConfigPath returns the full path to config.toml.
func ConfigPath() string {
	return filepath.Join(AvmlHome(), "config.toml")
}

// EnsureDir creates the avml home directory if it does not exist.
func EnsureDir() error {
	return os.MkdirAll(AvmlHome(), 0o755)
}

// Load reads config.toml and returns a Config struct.
// If the file does not exist, it returns a zero-value Config (all flag
// defaults apply).
func Load() (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}
	return cfg, nil
}

// Save writes the Config struct back to config.toml.
func Save(cfg *Config) error {
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o644)
}

// validKeys lists the keys usable with Get/Set, matching Config's toml tags.
var validKeys = map[string]bool{
	"default_compress":          true,
	"default_source":            true,
	"max_disk_usage_mb":         true,
	"max_disk_usage_percentage": true,
	"sas_block_size_mb":         true,
	"sas_block_concurrency":     true,
	"log_level":                 true,
}

// Get retrieves a single config value by key, rendered as a string.
func Get(key string) (string, error) {
	if !validKeys[key] {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	return getField(cfg, key)
}

// Set parses value into the field named by key and persists it.
func Set(key, value string) error {
	if !validKeys[key] {
		return fmt.Errorf("unknown config key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return err
	}
	if err := setField(cfg, key, value); err != nil {
		return err
	}
	return Save(cfg)
}

func getField(cfg *Config, key string) (string, error) {
	switch key {
	case "default_compress":
		return strconv.FormatBool(cfg.DefaultCompress), nil
	case "default_source":
		return cfg.DefaultSource, nil
	case "max_disk_usage_mb":
		return strconv.FormatUint(cfg.MaxDiskUsageMB, 10), nil
	case "max_disk_usage_percentage":
		return strconv.FormatFloat(cfg.MaxDiskUsagePercentage, 'g', -1, 64), nil
	case "sas_block_size_mb":
		return strconv.FormatUint(cfg.SasBlockSizeMB, 10), nil
	case "sas_block_concurrency":
		return strconv.FormatUint(cfg.SasBlockConcurrency, 10), nil
	case "log_level":
		return cfg.LogLevel, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

func setField(cfg *Config, key, value string) error {
	switch key {
	case "default_compress":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parsing %s as bool: %w", key, err)
		}
		cfg.DefaultCompress = b
	case "default_source":
		cfg.DefaultSource = value
	case "max_disk_usage_mb":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %s as uint: %w", key, err)
		}
		cfg.MaxDiskUsageMB = n
	case "max_disk_usage_percentage":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("parsing %s as float: %w", key, err)
		}
		cfg.MaxDiskUsagePercentage = f
	case "sas_block_size_mb":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %s as uint: %w", key, err)
		}
		cfg.SasBlockSizeMB = n
	case "sas_block_concurrency":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %s as uint: %w", key, err)
		}
		cfg.SasBlockConcurrency = n
	case "log_level":
		cfg.LogLevel = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
