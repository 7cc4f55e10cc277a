package report

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/creport/compress"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/internal/lru"
	"github.com/arloliu/creport/internal/metrics"
	"github.com/arloliu/creport/internal/options"
)

// Config holds the options shared by every backend.
type Config struct {
	// Logger receives structured backend events. Defaults to a discard logger.
	Logger *slog.Logger
	// Registerer exports backend counters when set.
	Registerer prometheus.Registerer
	// MaxOpenHandles bounds the per-neuron handle cache.
	MaxOpenHandles int
	// FrameCacheSize bounds the decoded frame cache of frame-major backends.
	FrameCacheSize int
	// Compression selects the payload codec of backends that compress.
	Compression format.CompressionType
	// ChunkRows is the row allocation granularity of dataset files.
	ChunkRows uint32
	// ReportName namespaces reports sharing one store.
	ReportName string
}

// Option configures a Config.
type Option = options.Option[*Config]

const (
	DefaultFrameCacheSize = 16
	DefaultReportName     = "default"
)

// NewConfig applies opts over the defaults.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		Logger:         slog.New(slog.DiscardHandler),
		MaxOpenHandles: lru.DefaultMaxEntries,
		FrameCacheSize: DefaultFrameCacheSize,
		Compression:    format.CompressionNone,
	}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Counters returns the metric counters labelled with the backend name.
func (c *Config) Counters(backend string) (*metrics.BackendCounters, error) {
	collectors, err := metrics.New(c.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	return collectors.Backend(backend), nil
}

// WithLogger sets the structured logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	})
}

// WithRegisterer exports backend counters to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return options.NoError(func(c *Config) {
		c.Registerer = reg
	})
}

// WithMaxOpenHandles bounds the number of per-neuron handles kept open.
func WithMaxOpenHandles(n int) Option {
	return options.New(func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("max open handles must be positive, got %d", n)
		}
		c.MaxOpenHandles = n

		return nil
	})
}

// WithFrameCacheSize bounds the number of decoded frames kept in memory.
func WithFrameCacheSize(n int) Option {
	return options.New(func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("frame cache size must be positive, got %d", n)
		}
		c.FrameCacheSize = n

		return nil
	})
}

// WithCompression selects the payload codec.
func WithCompression(compression format.CompressionType) Option {
	return options.New(func(c *Config) error {
		if !compress.IsValid(compression) {
			return fmt.Errorf("unsupported compression %s", compression)
		}
		c.Compression = compression

		return nil
	})
}

// WithChunkRows sets the row allocation granularity of dataset files.
func WithChunkRows(rows uint32) Option {
	return options.New(func(c *Config) error {
		if rows == 0 {
			return fmt.Errorf("chunk rows must be positive")
		}
		c.ChunkRows = rows

		return nil
	})
}

// WithReportName sets the name used to namespace a report inside a shared store.
func WithReportName(name string) Option {
	return options.NoError(func(c *Config) {
		c.ReportName = name
	})
}
