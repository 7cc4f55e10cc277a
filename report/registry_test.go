package report

import (
	"strings"
	"testing"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/stretchr/testify/require"
)

func descriptor(name string, handles func(InitData) bool) Descriptor {
	return Descriptor{
		Name:    name,
		Handles: handles,
		New: func(InitData, *Config) (Backend, error) {
			return newMemBackend(), nil
		},
	}
}

func TestRegistry_Select(t *testing.T) {
	var checked []string
	check := func(name string, accept bool) func(InitData) bool {
		return func(InitData) bool {
			checked = append(checked, name)
			return accept
		}
	}

	reg, err := NewRegistry(
		descriptor("null", check("null", false)),
		descriptor("binary", check("binary", true)),
		descriptor("dataset", check("dataset", true)),
	)
	require.NoError(t, err)
	require.Equal(t, []string{"null", "binary", "dataset"}, reg.Names())

	t.Run("First match in order", func(t *testing.T) {
		checked = nil
		d, err := reg.Select(InitData{Source: "/x", Mode: format.ModeRead})
		require.NoError(t, err)
		require.Equal(t, "binary", d.Name)
		require.Equal(t, []string{"null", "binary"}, checked)
	})

	t.Run("Type hint overrides predicates", func(t *testing.T) {
		checked = nil
		d, err := reg.Select(InitData{Source: "/x", Type: "null"})
		require.NoError(t, err)
		require.Equal(t, "null", d.Name)
		require.Empty(t, checked)
	})

	t.Run("Type hint alias", func(t *testing.T) {
		d, err := reg.Select(InitData{Source: "/x", Type: "H5D"})
		require.NoError(t, err)
		require.Equal(t, "dataset", d.Name)
	})

	t.Run("Unknown type hint", func(t *testing.T) {
		_, err := reg.Select(InitData{Source: "/x", Type: "stream"})
		require.ErrorIs(t, err, errs.ErrUnsupportedFormat)
	})
}

func TestRegistry_SelectUnsupported(t *testing.T) {
	reg, err := NewRegistry(descriptor("null", func(init InitData) bool {
		return strings.HasPrefix(init.Source, "null://")
	}))
	require.NoError(t, err)

	_, err = reg.Select(InitData{Source: "/nowhere.txt", Mode: format.ModeRead})
	require.ErrorIs(t, err, errs.ErrUnsupportedFormat)

	_, err = Open(reg, InitData{Source: "/nowhere.txt", Mode: format.ModeRead})
	require.ErrorIs(t, err, errs.ErrUnsupportedFormat)
}

func TestRegistry_Register(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	require.NoError(t, reg.Register(descriptor("a", func(InitData) bool { return false })))
	require.Error(t, reg.Register(descriptor("A", func(InitData) bool { return false })))
	require.Error(t, reg.Register(Descriptor{Name: "b"}))
	require.Error(t, reg.Register(descriptor("", func(InitData) bool { return false })))

	_, err = NewRegistry(descriptor("x", nil))
	require.Error(t, err)
}
