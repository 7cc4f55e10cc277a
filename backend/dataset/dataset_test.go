package dataset

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
	"github.com/arloliu/creport/report/reporttest"
)

func newSource(t *testing.T) string {
	return filepath.Join(t.TempDir(), "sim"+ContainerExt)
}

func open(t *testing.T, source string, mode format.AccessMode, opts ...report.Option) *Backend {
	t.Helper()

	cfg, err := report.NewConfig(opts...)
	require.NoError(t, err)
	b, err := New(report.InitData{Source: source, Mode: mode}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return b
}

func TestConformance(t *testing.T) {
	reg, err := report.NewRegistry(Descriptor())
	require.NoError(t, err)

	reporttest.Suite{
		NewSource: newSource,
		Open: func(init report.InitData) (*report.Report, error) {
			return report.Open(reg, init, report.WithMaxOpenHandles(8), report.WithChunkRows(4))
		},
		Snapshot: reporttest.DirDigest,
	}.Run(t)
}

func TestHandles(t *testing.T) {
	dir := t.TempDir()
	withAttrs := filepath.Join(dir, "a.h5d")
	require.NoError(t, os.Mkdir(withAttrs, 0o755))
	require.NoError(t, writeAttrs(filepath.Join(withAttrs, AttrsFile), reporttest.Header))
	plainDir := filepath.Join(dir, "plain")
	require.NoError(t, os.Mkdir(plainDir, 0o755))
	file := filepath.Join(dir, "file.bbp")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name   string
		source string
		mode   format.AccessMode
		want   bool
	}{
		{"Existing report read", withAttrs, format.ModeRead, true},
		{"Existing report write", withAttrs, format.ModeWrite, true},
		{"Plain directory read", plainDir, format.ModeRead, false},
		{"Plain directory write", plainDir, format.ModeWrite, true},
		{"Missing h5d write", filepath.Join(dir, "new.h5d"), format.ModeOverwrite, true},
		{"Missing bare path write", filepath.Join(dir, "new"), format.ModeWrite, true},
		{"Missing h5d read", filepath.Join(dir, "new.h5d"), format.ModeRead, false},
		{"Missing other extension write", filepath.Join(dir, "new.bbp"), format.ModeWrite, false},
		{"Regular file", file, format.ModeWrite, false},
		{"Scheme", "kv://" + dir, format.ModeWrite, false},
		{"Empty", "", format.ModeWrite, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Handles(report.InitData{Source: tt.source, Mode: tt.mode}))
		})
	}
}

func TestRejectedWriteLeavesRowCount(t *testing.T) {
	b := open(t, newSource(t), format.ModeWrite)
	require.NoError(t, b.WriteHeader(reporttest.Header))
	require.NoError(t, b.WriteCompartments(1, []uint16{3, 2}))

	ok, err := b.WriteFrame(1, reporttest.Row(1, 2, 5), 2)
	require.NoError(t, err)
	require.True(t, ok)
	rows, err := b.Rows(1)
	require.NoError(t, err)
	require.Equal(t, uint64(3), rows)

	_, err = b.WriteFrame(1, []float32{1, 2}, 7)
	require.ErrorIs(t, err, errs.ErrInconsistent)

	rows, err = b.Rows(1)
	require.NoError(t, err)
	require.Equal(t, uint64(3), rows)
}

func TestExtensibleRows(t *testing.T) {
	source := newSource(t)
	b := open(t, source, format.ModeWrite, report.WithChunkRows(2))
	require.NoError(t, b.WriteHeader(reporttest.Header))
	require.NoError(t, b.WriteCompartments(4, []uint16{2}))

	path := filepath.Join(source, "4"+DatasetExt)
	info, err := os.Stat(path)
	require.NoError(t, err)
	emptySize := info.Size()

	_, err = b.WriteFrame(4, []float32{1, 2}, 0)
	require.NoError(t, err)
	info, err = os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, emptySize+2*8, info.Size(), "one chunk of two rows")

	_, err = b.WriteFrame(4, []float32{5, 6}, 4)
	require.NoError(t, err)
	info, err = os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, emptySize+6*8, info.Size(), "grown to three chunks")

	rows, err := b.Rows(4)
	require.NoError(t, err)
	require.Equal(t, uint64(5), rows)

	frame, err := b.LoadFrame(2)
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0}, frame, "gap rows read as the fill value")

	frame, err = b.LoadFrame(8)
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0}, frame, "rows past the extent read as the fill value")
}

func TestHandleCacheBounded(t *testing.T) {
	source := newSource(t)
	reg := prometheus.NewRegistry()

	w := open(t, source, format.ModeWrite, report.WithMaxOpenHandles(3))
	require.NoError(t, w.WriteHeader(reporttest.Header))
	for gid := uint32(1); gid <= 10; gid++ {
		require.NoError(t, w.WriteCompartments(gid, []uint16{1}))
		_, err := w.WriteFrame(gid, []float32{float32(gid)}, 1)
		require.NoError(t, err)
	}
	require.LessOrEqual(t, w.handles.Len(), 3)
	require.NoError(t, w.Close())

	r := open(t, source, format.ModeRead, report.WithMaxOpenHandles(3), report.WithRegisterer(reg))
	frame, err := r.LoadFrame(1)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, frame)

	// Mapping all ten GIDs evicts seven handles; reading them back in order
	// misses and evicts on every GID.
	stats := r.CacheStats()
	require.Equal(t, 3, stats.Entries)
	require.Equal(t, int64(17), stats.Evictions)
	// The three most recently used handles are the last GIDs read.
	require.Equal(t, []uint32{10, 9, 8}, r.handles.Keys())

	counters, err := r.cfg.Counters(Name)
	require.NoError(t, err)
	require.InDelta(t, 17.0, testutil.ToFloat64(counters.CacheEvictions), 0)
	require.InDelta(t, 1.0, testutil.ToFloat64(counters.FramesRead), 0)

	// Evicted handles are closed; every dataset can still be read.
	require.NoError(t, r.UpdateMapping(mapping.GIDSet{1, 2}))
	frame, err = r.LoadFrame(1)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, frame)
}

func TestEvictionSyncsHandle(t *testing.T) {
	w := open(t, newSource(t), format.ModeWrite, report.WithMaxOpenHandles(1))
	require.NoError(t, w.WriteHeader(reporttest.Header))
	require.NoError(t, w.WriteCompartments(1, []uint16{1}))
	_, err := w.WriteFrame(1, []float32{1}, 1)
	require.NoError(t, err)

	// Closing the file underneath makes the sync on eviction fail.
	h, ok := w.handles.Peek(1)
	require.True(t, ok)
	require.NoError(t, h.file.Close())

	require.NoError(t, w.WriteCompartments(2, []uint16{1}))
	require.Equal(t, []uint32{2}, w.handles.Keys())

	err = w.Flush()
	require.ErrorIs(t, err, os.ErrClosed)
	require.ErrorContains(t, err, "evict gid 1")

	// The failure is reported once.
	require.NoError(t, w.Flush())
}

func TestFlushAfterEviction(t *testing.T) {
	source := newSource(t)

	w := open(t, source, format.ModeWrite, report.WithMaxOpenHandles(2))
	require.NoError(t, w.WriteHeader(reporttest.Header))
	for gid := uint32(1); gid <= 5; gid++ {
		require.NoError(t, w.WriteCompartments(gid, []uint16{2}))
		_, err := w.WriteFrame(gid, reporttest.Row(gid, 3, 2), 3)
		require.NoError(t, err)
	}
	require.NoError(t, w.Flush())
	require.Equal(t, int64(3), w.CacheStats().Evictions)

	r := open(t, source, format.ModeRead)
	frame, err := r.LoadFrame(3)
	require.NoError(t, err)
	for gid := uint32(1); gid <= 5; gid++ {
		require.Equal(t, reporttest.Row(gid, 3, 2), frame[2*(gid-1):2*gid])
	}
}

func TestUpdateMappingReadsOnlyRequestedGIDs(t *testing.T) {
	source := newSource(t)
	w := open(t, source, format.ModeWrite)
	require.NoError(t, w.WriteHeader(reporttest.Header))
	for _, gid := range []uint32{1, 2, 3} {
		require.NoError(t, w.WriteCompartments(gid, []uint16{2}))
	}
	require.NoError(t, w.Close())

	// A corrupt dataset outside the mapping does not matter.
	require.NoError(t, os.WriteFile(filepath.Join(source, "3"+DatasetExt), []byte("garbage"), 0o644))

	r := open(t, source, format.ModeRead)
	require.NoError(t, r.UpdateMapping(mapping.GIDSet{1, 2}))
	require.Equal(t, 2, r.handles.Len())

	err := r.UpdateMapping(mapping.GIDSet{3})
	require.ErrorIs(t, err, errs.ErrCorruptFormat)
	m, err := r.Mapping()
	require.NoError(t, err)
	require.Equal(t, mapping.GIDSet{1, 2}, m.GIDs())
}

func TestOpenErrors(t *testing.T) {
	t.Run("Missing directory", func(t *testing.T) {
		cfg, err := report.NewConfig()
		require.NoError(t, err)

		_, err = New(report.InitData{Source: newSource(t), Mode: format.ModeRead}, cfg)
		require.ErrorIs(t, err, errs.ErrNotFound)

		var ioErr *errs.IOError
		require.ErrorAs(t, err, &ioErr)
		require.False(t, ioErr.Retryable())
	})

	t.Run("Missing attributes", func(t *testing.T) {
		cfg, err := report.NewConfig()
		require.NoError(t, err)

		_, err = New(report.InitData{Source: t.TempDir(), Mode: format.ModeRead}, cfg)
		require.ErrorIs(t, err, errs.ErrCorruptFormat)
	})

	t.Run("Corrupt attributes", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, AttrsFile), make([]byte, 64), 0o644))
		cfg, err := report.NewConfig()
		require.NoError(t, err)

		_, err = New(report.InitData{Source: dir, Mode: format.ModeRead}, cfg)
		require.ErrorIs(t, err, errs.ErrCorruptFormat)
	})

	t.Run("Corrupt dataset", func(t *testing.T) {
		source := newSource(t)
		w := open(t, source, format.ModeWrite)
		require.NoError(t, w.WriteHeader(reporttest.Header))
		require.NoError(t, w.WriteCompartments(5, []uint16{1}))
		require.NoError(t, w.Close())

		path := filepath.Join(source, "5"+DatasetExt)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		data[10] ^= 0xFF
		require.NoError(t, os.WriteFile(path, data, 0o644))

		r := open(t, source, format.ModeRead)
		err = r.UpdateMapping(mapping.GIDSet{5})
		require.ErrorIs(t, err, errs.ErrCorruptFormat)
		require.ErrorIs(t, err, errs.ErrChecksumMismatch)
	})

	t.Run("Misnamed dataset", func(t *testing.T) {
		source := newSource(t)
		w := open(t, source, format.ModeWrite)
		require.NoError(t, w.WriteHeader(reporttest.Header))
		require.NoError(t, w.WriteCompartments(5, []uint16{1}))
		require.NoError(t, w.Close())
		require.NoError(t, os.Rename(filepath.Join(source, "5"+DatasetExt), filepath.Join(source, "6"+DatasetExt)))

		r := open(t, source, format.ModeRead)
		require.ErrorIs(t, r.UpdateMapping(mapping.GIDSet{6}), errs.ErrCorruptFormat)
	})
}

func TestGIDsIgnoresForeignFiles(t *testing.T) {
	source := newSource(t)
	w := open(t, source, format.ModeWrite)
	require.NoError(t, w.WriteHeader(reporttest.Header))
	require.NoError(t, w.WriteCompartments(12, []uint16{1}))
	require.NoError(t, w.Close())

	require.NoError(t, os.WriteFile(filepath.Join(source, "notes.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(source, "abc"+DatasetExt), nil, 0o644))

	r := open(t, source, format.ModeRead)
	gids, err := r.GIDs()
	require.NoError(t, err)
	require.Equal(t, mapping.GIDSet{12}, gids)
}

func TestOverwriteKeepsForeignFiles(t *testing.T) {
	source := newSource(t)
	w := open(t, source, format.ModeWrite)
	require.NoError(t, w.WriteHeader(reporttest.Header))
	require.NoError(t, w.WriteCompartments(1, []uint16{1}))
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(filepath.Join(source, "notes.txt"), []byte("keep"), 0o644))

	o := open(t, source, format.ModeOverwrite)
	gids, err := o.GIDs()
	require.NoError(t, err)
	require.Empty(t, gids)
	require.True(t, o.Header().IsZero())

	_, err = os.Stat(filepath.Join(source, "notes.txt"))
	require.NoError(t, err)
}

func TestConcurrentLoadFrame(t *testing.T) {
	source := newSource(t)
	w := open(t, source, format.ModeWrite)
	require.NoError(t, w.WriteHeader(reporttest.Header))
	for gid := uint32(1); gid <= 20; gid++ {
		require.NoError(t, w.WriteCompartments(gid, []uint16{2}))
		for frame := range 10 {
			_, err := w.WriteFrame(gid, reporttest.Row(gid, frame, 2), float64(frame))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())

	// No explicit mapping: the first LoadFrame calls race to build the default one.
	r := open(t, source, format.ModeRead, report.WithMaxOpenHandles(4))

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 20 {
				frame := (g + i) % 10
				got, err := r.LoadFrame(float64(frame))
				if err != nil {
					errCh <- err
					return
				}
				if got[0] != reporttest.Value(1, frame, 0) || got[39] != reporttest.Value(20, frame, 1) {
					errCh <- errs.ErrInconsistent
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
}

func TestClosed(t *testing.T) {
	b := open(t, newSource(t), format.ModeReadWrite)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.LoadFrame(0)
	require.ErrorIs(t, err, errs.ErrClosed)
	require.ErrorIs(t, b.WriteHeader(reporttest.Header), errs.ErrClosed)
	require.ErrorIs(t, b.Flush(), errs.ErrClosed)
}

func TestReadOnly(t *testing.T) {
	source := newSource(t)
	w := open(t, source, format.ModeWrite)
	require.NoError(t, w.WriteHeader(reporttest.Header))
	require.NoError(t, w.Close())

	r := open(t, source, format.ModeRead)
	require.ErrorIs(t, r.WriteHeader(reporttest.Header), errs.ErrReadOnly)
	require.ErrorIs(t, r.WriteCompartments(1, []uint16{1}), errs.ErrReadOnly)
	require.NoError(t, r.Flush())
}
