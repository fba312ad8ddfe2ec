package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	gotoml "github.com/pelletier/go-toml"
)

// Config holds all configuration options for acminer.
type Config struct {
	// Graph construction settings
	Analysis AnalysisConfig `koanf:"analysis" toml:"analysis"`

	// Database settings
	Store StoreConfig `koanf:"store" toml:"store"`

	// Cache settings
	Cache CacheConfig `koanf:"cache" toml:"cache"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`

	// Logging settings
	Log LogConfig `koanf:"log" toml:"log"`
}

// AnalysisConfig controls how graphs are built.
type AnalysisConfig struct {
	Workers          int  `koanf:"workers" toml:"workers"` // 0 = 2x NumCPU
	KeepReceiver     bool `koanf:"keep_receiver" toml:"keep_receiver"`
	FollowParameters bool `koanf:"follow_parameters" toml:"follow_parameters"`
	InlineConstants  bool `koanf:"inline_constants" toml:"inline_constants"`
}

// StoreConfig controls database reading and writing.
type StoreConfig struct {
	ValidateSchema bool   `koanf:"validate_schema" toml:"validate_schema"`
	Path           string `koanf:"path" toml:"path"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format string `koanf:"format" toml:"format"` // text, json, markdown, toon
	Color  bool   `koanf:"color" toml:"color"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `koanf:"level" toml:"level"` // debug, info, warn, error
	JSON  bool   `koanf:"json" toml:"json"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Workers:          0,
			KeepReceiver:     false,
			FollowParameters: true,
			InlineConstants:  true,
		},
		Store: StoreConfig{
			ValidateSchema: true,
			Path:           ".acminer/defuse.json",
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".acminer/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// configNames are searched in order in each search directory.
var configNames = []string{
	"acminer.toml",
	"acminer.yaml",
	"acminer.yml",
	"acminer.json",
}

// Find returns the first config file in the standard locations, or "".
func Find() string {
	for _, dir := range []string{".", ".acminer"} {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// LoadOrDefault loads the config from the standard locations or returns
// defaults.
func LoadOrDefault() *Config {
	if path := Find(); path != "" {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	return DefaultConfig()
}

var validFormats = map[string]bool{"text": true, "json": true, "markdown": true, "toon": true}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Analysis.Workers < 0 {
		return fmt.Errorf("analysis.workers must not be negative, got %d", c.Analysis.Workers)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %d", c.Cache.TTL)
	}
	if !validFormats[c.Output.Format] {
		return fmt.Errorf("output.format %q is not one of text, json, markdown, toon", c.Output.Format)
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// TOML encodes c as a TOML document.
func (c *Config) TOML() ([]byte, error) {
	var buf bytes.Buffer
	enc := gotoml.NewEncoder(&buf).Order(gotoml.OrderPreserve)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := DefaultConfig().TOML()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
