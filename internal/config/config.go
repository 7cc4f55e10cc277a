// Package config loads the creport command configuration from a YAML file and
// CREPORT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/internal/lru"
	"github.com/arloliu/creport/report"
	"github.com/arloliu/creport/section"
)

// Sentinel validation errors.
var (
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidHandles     = errors.New("max open handles must be positive")
	ErrInvalidFrameCache  = errors.New("frame cache size must be positive")
	ErrInvalidChunkRows   = errors.New("chunk rows must be positive")
	ErrInvalidCompression = errors.New("invalid compression")
)

// Default configuration values.
const (
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultMaxOpenHandles = lru.DefaultMaxEntries
	defaultFrameCacheSize = report.DefaultFrameCacheSize
	defaultChunkRows      = section.DefaultChunkRows
	defaultCompression    = "none"
	envPrefix             = "CREPORT"
)

// Config holds all configuration for the creport command.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheConfig bounds the per-report caches.
type CacheConfig struct {
	MaxOpenHandles int `mapstructure:"max_open_handles"`
	FrameCacheSize int `mapstructure:"frame_cache_size"`
}

// StorageConfig holds the settings applied to written reports.
type StorageConfig struct {
	Compression string `mapstructure:"compression"`
	ChunkRows   int    `mapstructure:"chunk_rows"`
	ReportName  string `mapstructure:"report_name"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile is written after each command when non-empty.
	Textfile string `mapstructure:"textfile"`
}

// LoadConfig loads configuration from configPath (optional) and the environment.
// Without configPath, creport.yaml is searched in the working directory and /etc/creport.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("creport")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/creport")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.format", defaultLogFormat)

	v.SetDefault("cache.max_open_handles", defaultMaxOpenHandles)
	v.SetDefault("cache.frame_cache_size", defaultFrameCacheSize)

	v.SetDefault("storage.compression", defaultCompression)
	v.SetDefault("storage.chunk_rows", defaultChunkRows)
	v.SetDefault("storage.report_name", report.DefaultReportName)

	v.SetDefault("metrics.textfile", "")
}

// Validate checks every field.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Cache.MaxOpenHandles <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHandles, c.Cache.MaxOpenHandles)
	}

	if c.Cache.FrameCacheSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFrameCache, c.Cache.FrameCacheSize)
	}

	if c.Storage.ChunkRows <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkRows, c.Storage.ChunkRows)
	}

	if _, err := format.ParseCompression(c.Storage.Compression); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCompression, err)
	}

	return nil
}

// NewLogger builds the slog logger described by the logging section.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}

	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// ReportOptions converts the cache and storage sections into report options.
func (c *Config) ReportOptions() ([]report.Option, error) {
	compression, err := format.ParseCompression(c.Storage.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCompression, err)
	}

	return []report.Option{
		report.WithMaxOpenHandles(c.Cache.MaxOpenHandles),
		report.WithFrameCacheSize(c.Cache.FrameCacheSize),
		report.WithCompression(compression),
		report.WithChunkRows(uint32(c.Storage.ChunkRows)), //nolint: gosec
		report.WithReportName(c.Storage.ReportName),
	}, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}

	return level, nil
}
