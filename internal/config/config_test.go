package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/creport/report"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "creport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 256, cfg.Cache.MaxOpenHandles)
	assert.Equal(t, report.DefaultFrameCacheSize, cfg.Cache.FrameCacheSize)
	assert.Equal(t, "none", cfg.Storage.Compression)
	assert.Equal(t, 64, cfg.Storage.ChunkRows)
	assert.Equal(t, report.DefaultReportName, cfg.Storage.ReportName)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
cache:
  max_open_handles: 32
storage:
  compression: zstd
  chunk_rows: 128
  report_name: soma
metrics:
  textfile: /tmp/creport.prom
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 32, cfg.Cache.MaxOpenHandles)
	assert.Equal(t, "zstd", cfg.Storage.Compression)
	assert.Equal(t, 128, cfg.Storage.ChunkRows)
	assert.Equal(t, "soma", cfg.Storage.ReportName)
	assert.Equal(t, "/tmp/creport.prom", cfg.Metrics.Textfile)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("CREPORT_CACHE_MAX_OPEN_HANDLES", "8")
	t.Setenv("CREPORT_STORAGE_COMPRESSION", "lz4")

	cfg, err := LoadConfig(writeConfig(t, "cache:\n  max_open_handles: 32\n"))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Cache.MaxOpenHandles)
	assert.Equal(t, "lz4", cfg.Storage.Compression)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Logging: LoggingConfig{Level: "info", Format: "text"},
			Cache:   CacheConfig{MaxOpenHandles: 1, FrameCacheSize: 1},
			Storage: StorageConfig{Compression: "s2", ChunkRows: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{"Valid", func(*Config) {}, nil},
		{"Log level", func(c *Config) { c.Logging.Level = "loud" }, ErrInvalidLogLevel},
		{"Log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
		{"Handles", func(c *Config) { c.Cache.MaxOpenHandles = 0 }, ErrInvalidHandles},
		{"Frame cache", func(c *Config) { c.Cache.FrameCacheSize = -1 }, ErrInvalidFrameCache},
		{"Chunk rows", func(c *Config) { c.Storage.ChunkRows = 0 }, ErrInvalidChunkRows},
		{"Compression", func(c *Config) { c.Storage.Compression = "brotli" }, ErrInvalidCompression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	cfg := Config{Logging: LoggingConfig{Level: "warn", Format: "json"}}
	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "gid", 7)
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown","gid":7`)
}

func TestReportOptions(t *testing.T) {
	cfg := Config{
		Cache:   CacheConfig{MaxOpenHandles: 4, FrameCacheSize: 2},
		Storage: StorageConfig{Compression: "zstd", ChunkRows: 16, ReportName: "soma"},
	}

	opts, err := cfg.ReportOptions()
	require.NoError(t, err)

	rc, err := report.NewConfig(opts...)
	require.NoError(t, err)
	assert.Equal(t, 4, rc.MaxOpenHandles)
	assert.Equal(t, 2, rc.FrameCacheSize)
	assert.Equal(t, "Zstd", rc.Compression.String())
	assert.Equal(t, uint32(16), rc.ChunkRows)
	assert.Equal(t, "soma", rc.ReportName)
}
