package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	handles int
	name    string
	calls   []string
}

func withHandles(n int) Option[*testConfig] {
	return New(func(c *testConfig) error {
		if n <= 0 {
			return errors.New("handles must be positive")
		}
		c.handles = n
		c.calls = append(c.calls, "handles")

		return nil
	})
}

func withName(name string) Option[*testConfig] {
	return NoError(func(c *testConfig) {
		c.name = name
		c.calls = append(c.calls, "name")
	})
}

func TestApply(t *testing.T) {
	t.Run("Applies in order", func(t *testing.T) {
		cfg := &testConfig{}
		err := Apply(cfg, withName("v1"), withHandles(8), withName("v2"))

		require.NoError(t, err)
		require.Equal(t, 8, cfg.handles)
		require.Equal(t, "v2", cfg.name)
		require.Equal(t, []string{"name", "handles", "name"}, cfg.calls)
	})

	t.Run("Stops at first error", func(t *testing.T) {
		cfg := &testConfig{}
		err := Apply(cfg, withHandles(0), withName("never"))

		require.EqualError(t, err, "handles must be positive")
		require.Empty(t, cfg.name)
	})

	t.Run("Skips nil options", func(t *testing.T) {
		cfg := &testConfig{}
		require.NoError(t, Apply(cfg, nil, withName("x")))
		require.Equal(t, "x", cfg.name)
	})

	t.Run("No options", func(t *testing.T) {
		require.NoError(t, Apply(&testConfig{}))
	})
}
