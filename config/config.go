// Package config loads table settings from YAML files with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/dacapoday/glass/compress"
	"github.com/dacapoday/glass/internal/heap"
	"github.com/dacapoday/glass/table"
)

// Config is the top-level configuration.
type Config struct {
	Table   TableConfig   `yaml:"table"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TableConfig holds the settings tables are opened and created with.
type TableConfig struct {
	ReadOnly        bool   `yaml:"readOnly"`
	BlockSize       int    `yaml:"blockSize"`
	Compression     string `yaml:"compression"`
	NoSync          bool   `yaml:"noSync"`
	NoCompress      bool   `yaml:"noCompress"`
	RetainRevisions uint8  `yaml:"retainRevisions"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus collectors.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Table: TableConfig{
			BlockSize:   heap.DefaultBlockSize,
			Compression: compress.Zstd.String(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file (if provided) over the defaults and applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides reads GLASS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	if v := os.Getenv("GLASS_TABLE_READ_ONLY"); v != "" {
		errs = append(errs, parseBool("GLASS_TABLE_READ_ONLY", v, &cfg.Table.ReadOnly))
	}
	if v := os.Getenv("GLASS_TABLE_BLOCK_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GLASS_TABLE_BLOCK_SIZE: %w", err))
		} else {
			cfg.Table.BlockSize = size
		}
	}
	if v := os.Getenv("GLASS_TABLE_COMPRESSION"); v != "" {
		cfg.Table.Compression = v
	}
	if v := os.Getenv("GLASS_TABLE_NO_SYNC"); v != "" {
		errs = append(errs, parseBool("GLASS_TABLE_NO_SYNC", v, &cfg.Table.NoSync))
	}
	if v := os.Getenv("GLASS_TABLE_NO_COMPRESS"); v != "" {
		errs = append(errs, parseBool("GLASS_TABLE_NO_COMPRESS", v, &cfg.Table.NoCompress))
	}
	if v := os.Getenv("GLASS_TABLE_RETAIN_REVISIONS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			errs = append(errs, fmt.Errorf("GLASS_TABLE_RETAIN_REVISIONS: %w", err))
		} else {
			cfg.Table.RetainRevisions = uint8(n)
		}
	}
	if v := os.Getenv("GLASS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GLASS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GLASS_METRICS_ENABLED"); v != "" {
		errs = append(errs, parseBool("GLASS_METRICS_ENABLED", v, &cfg.Metrics.Enabled))
	}
	return errors.Join(errs...)
}

func parseBool(name, v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = b
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Table.BlockSize != 0 && !heap.ValidBlockSize(c.Table.BlockSize) {
		errs = append(errs, fmt.Errorf("table.blockSize %d: must be a power of two in [%d, %d]",
			c.Table.BlockSize, heap.MinBlockSize, heap.MaxBlockSize))
	}
	if _, err := compress.ParseStrategy(c.Table.Compression); err != nil {
		errs = append(errs, fmt.Errorf("table.compression: %w", err))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q: want debug, info, warn or error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want text or json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// TableOptions converts the table settings to table.Options. File system,
// logger and metrics are left for the caller to set.
func (c *Config) TableOptions() (table.Options, error) {
	strategy, err := compress.ParseStrategy(c.Table.Compression)
	if err != nil {
		return table.Options{}, err
	}
	var flags table.Flags
	if c.Table.NoSync {
		flags |= table.FlagNoSync
	}
	if c.Table.NoCompress {
		flags |= table.FlagNoCompress
	}
	return table.Options{
		ReadOnly:        c.Table.ReadOnly,
		BlockSize:       c.Table.BlockSize,
		Strategy:        strategy,
		Flags:           flags,
		RetainRevisions: c.Table.RetainRevisions,
	}, nil
}
