// Package config loads settings for the ziptree command from a YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/meigma/ziptree/codec"
)

// Config holds command settings. Zero values mean "use the default".
type Config struct {
	// Method is the compression method: deflate, store, or zstd.
	Method string `yaml:"method"`

	// Level is the Deflate compression level, -2 through 9.
	Level *int `yaml:"level,omitempty"`

	// ChunkSize is the copy buffer size in bytes.
	ChunkSize int `yaml:"chunk_size"`

	// StrictNames rejects packs in which two files share an entry name.
	StrictNames bool `yaml:"strict_names"`

	// StrictChanges enables strict change detection while packing.
	StrictChanges bool `yaml:"strict_changes"`

	// MaxFiles limits the number of files packed. Negative disables the limit.
	MaxFiles int `yaml:"max_files"`

	// StoreCompressed stores files that are already compressed, and files
	// smaller than StoreBelow bytes, without recompressing them.
	StoreCompressed bool  `yaml:"store_compressed"`
	StoreBelow      int64 `yaml:"store_below"`

	// PreserveMode and PreserveTimes apply stored metadata on unpack.
	PreserveMode  bool `yaml:"preserve_mode"`
	PreserveTimes bool `yaml:"preserve_times"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Method:        "deflate",
		PreserveMode:  true,
		PreserveTimes: true,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load reads path and overlays it on Default. A missing file is not an error
// when optional is set.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // user-provided path is intentional
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, ok := codec.ParseMethod(c.Method); !ok {
		return fmt.Errorf("unknown method %q", c.Method)
	}
	if c.Level != nil && (*c.Level < -2 || *c.Level > 9) {
		return fmt.Errorf("level %d out of range -2..9", *c.Level)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size %d must not be negative", c.ChunkSize)
	}
	if c.StoreBelow < 0 {
		return fmt.Errorf("store_below %d must not be negative", c.StoreBelow)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

// CodecMethod returns the parsed compression method.
func (c Config) CodecMethod() codec.Method {
	m, _ := codec.ParseMethod(c.Method)
	return m
}

// SlogLevel returns the parsed log level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return level, nil
}

// Marshal returns the YAML form of c.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
