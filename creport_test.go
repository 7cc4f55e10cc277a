package creport

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
	"github.com/arloliu/creport/report/reporttest"
)

func writeSample(t *testing.T, source string, opts ...report.Option) {
	t.Helper()

	w, err := Create(source, opts...)
	require.NoError(t, err)
	reporttest.WriteSample(t, w)
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	require.Equal(t, []string{"null", "binary", "kv", "dataset"}, reg.Names())
}

func TestOpen(t *testing.T) {
	source := filepath.Join(t.TempDir(), "sample.bbp")
	writeSample(t, source)

	t.Run("Subset", func(t *testing.T) {
		r, err := Open(source, mapping.NewGIDSet(7, 1))
		require.NoError(t, err)
		defer r.Close()

		require.Equal(t, "binary", r.BackendName())
		size, err := r.FrameSize()
		require.NoError(t, err)
		require.Equal(t, uint64(7), size)
	})

	t.Run("Unknown GID", func(t *testing.T) {
		_, err := Open(source, mapping.GIDSet{3})
		require.ErrorIs(t, err, errs.ErrNeuronNotFound)
	})

	t.Run("Unsupported source", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "report.txt"), nil)
		require.ErrorIs(t, err, errs.ErrUnsupportedFormat)
	})

	t.Run("Forced type", func(t *testing.T) {
		r, err := OpenWith(report.InitData{Source: source, Mode: format.ModeRead, Type: "binary"})
		require.NoError(t, err)
		require.NoError(t, r.Close())

		_, err = OpenWith(report.InitData{Source: source, Mode: format.ModeRead, Type: "h5d"})
		require.Error(t, err)
	})
}

func TestConvert(t *testing.T) {
	src := filepath.Join(t.TempDir(), "sample.bbp")
	writeSample(t, src, report.WithCompression(format.CompressionZstd))

	tests := []struct {
		name string
		dst  func(t *testing.T) string
	}{
		{"Binary", func(t *testing.T) string { return filepath.Join(t.TempDir(), "copy.crb") }},
		{"KV", func(t *testing.T) string { return "kv://" + t.TempDir() + "#copy" }},
		{"Dataset", func(t *testing.T) string { return filepath.Join(t.TempDir(), "copy.h5d") }},
		{"Null", func(t *testing.T) string { return "null://" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := tt.dst(t)

			in, err := Open(src, nil)
			require.NoError(t, err)
			defer in.Close()

			out, err := Create(dst, report.WithCompression(format.CompressionS2))
			require.NoError(t, err)
			require.NoError(t, Convert(context.Background(), in, out))
			require.NoError(t, out.Close())

			if tt.name == "Null" {
				return
			}

			got, err := Open(dst, nil)
			require.NoError(t, err)
			defer got.Close()

			gotHeader, err := got.Header()
			require.NoError(t, err)
			require.Equal(t, reporttest.Header, gotHeader)

			want, err := in.LoadFrames(reporttest.Header.StartTime, reporttest.Header.EndTime)
			require.NoError(t, err)
			frames, err := got.LoadFrames(reporttest.Header.StartTime, reporttest.Header.EndTime)
			require.NoError(t, err)
			require.Len(t, frames, reporttest.Header.FrameCount())
			require.Equal(t, want, frames)
		})
	}
}

func TestConvertSubset(t *testing.T) {
	src := filepath.Join(t.TempDir(), "sample.bbp")
	writeSample(t, src)

	in, err := Open(src, mapping.GIDSet{2})
	require.NoError(t, err)
	defer in.Close()

	dst := filepath.Join(t.TempDir(), "subset.bbp")
	out, err := Create(dst)
	require.NoError(t, err)
	require.NoError(t, Convert(context.Background(), in, out))
	require.NoError(t, out.Close())

	got, err := Open(dst, nil)
	require.NoError(t, err)
	defer got.Close()

	gids, err := got.GIDs()
	require.NoError(t, err)
	require.Equal(t, mapping.GIDSet{2}, gids)

	frame, err := got.LoadFrame(4)
	require.NoError(t, err)
	require.Equal(t, reporttest.Row(2, 4, 4), frame)
	frame, err = got.LoadFrame(5)
	require.NoError(t, err)
	require.Equal(t, make([]float32, 4), frame)
}

func TestConvertCanceled(t *testing.T) {
	src := filepath.Join(t.TempDir(), "sample.bbp")
	writeSample(t, src)

	in, err := Open(src, nil)
	require.NoError(t, err)
	defer in.Close()

	out, err := Create("null://")
	require.NoError(t, err)
	defer out.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Convert(ctx, in, out), context.Canceled)
}

func TestConvertNeedsHeader(t *testing.T) {
	out, err := Create("null://")
	require.NoError(t, err)
	defer out.Close()

	in, err := Create(filepath.Join(t.TempDir(), "empty.bbp"))
	require.NoError(t, err)
	defer in.Close()

	require.ErrorIs(t, Convert(context.Background(), in, out), errs.ErrNoHeader)
}
