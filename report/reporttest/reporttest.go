// Package reporttest provides a conformance suite for report backends.
//
// Every backend that stores data runs the same suite from its own tests:
//
//	reporttest.Suite{
//		NewSource: func(t *testing.T) string { return filepath.Join(t.TempDir(), "r.h5d") },
//		Open: func(init report.InitData) (*report.Report, error) {
//			return report.Open(reg, init)
//		},
//	}.Run(t)
package reporttest

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/internal/hash"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
)

// Header is the header written by the suite.
var Header = report.Header{StartTime: 0, EndTime: 10, Timestep: 1, DataUnit: "mV", TimeUnit: "ms"}

// Sample neurons written by the suite. GID 2 is only written at even frames.
var sampleCounts = map[uint32][]uint16{
	1: {3, 2},
	2: {4},
	7: {1, 1},
}

// Suite runs the shared backend tests.
type Suite struct {
	// NewSource returns a location where no report exists yet.
	NewSource func(t *testing.T) string
	// Open opens a report.
	Open func(init report.InitData) (*report.Report, error)
	// Snapshot returns a digest of the durable content at source. Optional.
	Snapshot func(t *testing.T, source string) string
}

// Value is the deterministic sample value of (gid, frame, column).
func Value(gid uint32, frame, column int) float32 {
	return float32(gid)*1000 + float32(frame)*10 + float32(column)
}

// Row returns the sample row of gid at frame.
func Row(gid uint32, frame int, columns int) []float32 {
	row := make([]float32, columns)
	for c := range row {
		row[c] = Value(gid, frame, c)
	}

	return row
}

// Run executes every test of the suite.
func (s Suite) Run(t *testing.T) {
	t.Run("RoundTrip", s.testRoundTrip)
	t.Run("FullPopulationMapping", s.testFullPopulation)
	t.Run("SubsetMapping", s.testSubsetMapping)
	t.Run("UnknownGID", s.testUnknownGID)
	t.Run("Boundaries", s.testBoundaries)
	t.Run("EmptyMapping", s.testEmptyMapping)
	t.Run("LengthMismatch", s.testLengthMismatch)
	t.Run("UndeclaredGID", s.testUndeclaredGID)
	t.Run("HeaderRequired", s.testHeaderRequired)
	t.Run("HeaderConsistency", s.testHeaderConsistency)
	t.Run("CompartmentConsistency", s.testCompartmentConsistency)
	t.Run("RewriteFrame", s.testRewriteFrame)
	t.Run("FlushIdempotent", s.testFlushIdempotent)
	t.Run("Append", s.testAppend)
	t.Run("Overwrite", s.testOverwrite)
	t.Run("ReadWrite", s.testReadWrite)
	t.Run("ManyNeurons", s.testManyNeurons)
	t.Run("MissingSource", s.testMissingSource)
	t.Run("ConcurrentLoadFrame", s.testConcurrentLoadFrame)
	t.Run("ConcurrentReaders", s.testConcurrentReaders)
}

func (s Suite) open(t *testing.T, source string, mode format.AccessMode, gids mapping.GIDSet) *report.Report {
	t.Helper()

	r, err := s.Open(report.InitData{Source: source, Mode: mode, GIDs: gids})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return r
}

// WriteSample writes the sample report to r and closes it.
func WriteSample(t *testing.T, r *report.Report) {
	t.Helper()

	require.NoError(t, r.WriteHeader(Header))
	for _, gid := range []uint32{1, 2, 7} {
		require.NoError(t, r.WriteCompartments(gid, sampleCounts[gid]))
	}
	for frame := range Header.FrameCount() {
		ts := Header.Timestamp(frame)
		for _, gid := range []uint32{1, 2, 7} {
			if gid == 2 && frame%2 == 1 {
				continue
			}
			ok, err := r.WriteFrame(gid, Row(gid, frame, mapping.Total(sampleCounts[gid])), ts)
			require.NoError(t, err)
			require.True(t, ok)
		}
	}
	require.NoError(t, r.Close())
}

func (s Suite) sample(t *testing.T) string {
	t.Helper()

	source := s.NewSource(t)
	WriteSample(t, s.open(t, source, format.ModeWrite, nil))

	return source
}

func (s Suite) testRoundTrip(t *testing.T) {
	source := s.NewSource(t)

	w := s.open(t, source, format.ModeWrite, nil)
	require.NoError(t, w.WriteHeader(Header))
	require.NoError(t, w.WriteCompartments(1, []uint16{3, 2}))
	values := []float32{0.5, -1.25, 3, 4.75, 5}
	ok, err := w.WriteFrame(1, values, 4)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, w.Close())

	r := s.open(t, source, format.ModeRead, nil)
	require.NoError(t, r.UpdateMapping(mapping.NewGIDSet(1)))

	h, err := r.Header()
	require.NoError(t, err)
	require.Equal(t, Header, h)

	frame, err := r.LoadFrame(4)
	require.NoError(t, err)
	require.Equal(t, values, frame)

	offsets, err := r.Offsets()
	require.NoError(t, err)
	require.Equal(t, mapping.SectionOffsets{{0, 3}}, offsets)
}

func (s Suite) testFullPopulation(t *testing.T) {
	r := s.open(t, s.sample(t), format.ModeRead, nil)

	gids, err := r.GIDs()
	require.NoError(t, err)
	require.Equal(t, mapping.GIDSet{1, 2, 7}, gids)

	size, err := r.FrameSize()
	require.NoError(t, err)
	require.Equal(t, uint64(11), size)

	counts, err := r.CompartmentCounts()
	require.NoError(t, err)
	require.Equal(t, mapping.CompartmentCounts{{3, 2}, {4}, {1, 1}}, counts)

	for _, frame := range []int{2, 3} {
		got, err := r.LoadFrame(Header.Timestamp(frame))
		require.NoError(t, err)

		want := Row(1, frame, 5)
		if frame%2 == 0 {
			want = append(want, Row(2, frame, 4)...)
		} else {
			want = append(want, 0, 0, 0, 0)
		}
		want = append(want, Row(7, frame, 2)...)
		require.Equal(t, want, got, "frame %d", frame)
	}
}

func (s Suite) testSubsetMapping(t *testing.T) {
	r := s.open(t, s.sample(t), format.ModeRead, mapping.GIDSet{7, 1})

	offsets, err := r.Offsets()
	require.NoError(t, err)
	require.Equal(t, mapping.SectionOffsets{{0, 3}, {5, 6}}, offsets)

	frame, err := r.LoadFrame(6)
	require.NoError(t, err)
	require.Equal(t, append(Row(1, 6, 5), Row(7, 6, 2)...), frame)

	require.NoError(t, r.UpdateMapping(mapping.GIDSet{2}))
	frame, err = r.LoadFrame(6)
	require.NoError(t, err)
	require.Equal(t, Row(2, 6, 4), frame)

	// Same set, same layout.
	first, err := r.Mapping()
	require.NoError(t, err)
	require.NoError(t, r.UpdateMapping(mapping.GIDSet{2}))
	second, err := r.Mapping()
	require.NoError(t, err)
	require.True(t, first.Equal(second))
}

func (s Suite) testUnknownGID(t *testing.T) {
	r := s.open(t, s.sample(t), format.ModeRead, nil)
	require.NoError(t, r.UpdateMapping(mapping.GIDSet{7}))

	err := r.UpdateMapping(mapping.GIDSet{1, 3})
	require.ErrorIs(t, err, errs.ErrNeuronNotFound)

	m, err := r.Mapping()
	require.NoError(t, err)
	require.Equal(t, mapping.GIDSet{7}, m.GIDs())

	_, err = s.Open(report.InitData{Source: s.sample(t), Mode: format.ModeRead, GIDs: mapping.GIDSet{42}})
	require.ErrorIs(t, err, errs.ErrNeuronNotFound)
}

func (s Suite) testBoundaries(t *testing.T) {
	r := s.open(t, s.sample(t), format.ModeRead, mapping.GIDSet{7})

	_, err := r.LoadFrame(Header.EndTime)
	require.ErrorIs(t, err, errs.ErrOutOfRange)
	_, err = r.LoadFrame(-1)
	require.ErrorIs(t, err, errs.ErrOutOfRange)

	frame, err := r.LoadFrame(Header.StartTime)
	require.NoError(t, err)
	require.Equal(t, Row(7, 0, 2), frame)

	frame, err = r.LoadFrame(Header.EndTime - Header.Timestep/4)
	require.NoError(t, err)
	require.Equal(t, Row(7, 9, 2), frame)

	frame, err = r.LoadFrame(4.4)
	require.NoError(t, err)
	require.Equal(t, Row(7, 4, 2), frame)
}

func (s Suite) testEmptyMapping(t *testing.T) {
	r := s.open(t, s.sample(t), format.ModeRead, nil)
	require.NoError(t, r.UpdateMapping(mapping.GIDSet{}))

	size, err := r.FrameSize()
	require.NoError(t, err)
	require.Zero(t, size)

	frame, err := r.LoadFrame(3)
	require.NoError(t, err)
	require.Empty(t, frame)
}

func (s Suite) testLengthMismatch(t *testing.T) {
	source := s.NewSource(t)

	w := s.open(t, source, format.ModeWrite, nil)
	require.NoError(t, w.WriteHeader(Header))
	require.NoError(t, w.WriteCompartments(1, []uint16{3, 2}))

	ok, err := w.WriteFrame(1, []float32{1, 2, 3}, 5)
	require.ErrorIs(t, err, errs.ErrInconsistent)
	require.False(t, ok)
	_, err = w.WriteFrame(1, make([]float32, 6), 5)
	require.ErrorIs(t, err, errs.ErrInconsistent)
	require.NoError(t, w.Close())

	r := s.open(t, source, format.ModeRead, mapping.GIDSet{1})
	frame, err := r.LoadFrame(5)
	require.NoError(t, err)
	require.Equal(t, make([]float32, 5), frame)
}

func (s Suite) testUndeclaredGID(t *testing.T) {
	w := s.open(t, s.NewSource(t), format.ModeWrite, nil)
	require.NoError(t, w.WriteHeader(Header))
	require.NoError(t, w.WriteCompartments(1, []uint16{1}))

	ok, err := w.WriteFrame(2, []float32{1}, 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func (s Suite) testHeaderRequired(t *testing.T) {
	w := s.open(t, s.NewSource(t), format.ModeWrite, nil)

	require.ErrorIs(t, w.WriteCompartments(1, []uint16{1}), errs.ErrNoHeader)
	require.ErrorIs(t, w.WriteHeader(report.Header{StartTime: 0, EndTime: 10, Timestep: 0}), errs.ErrInvalidHeader)
}

func (s Suite) testHeaderConsistency(t *testing.T) {
	w := s.open(t, s.NewSource(t), format.ModeWrite, nil)

	require.NoError(t, w.WriteHeader(Header))
	require.NoError(t, w.WriteHeader(Header))

	other := Header
	other.EndTime = 20
	require.ErrorIs(t, w.WriteHeader(other), errs.ErrInconsistent)

	h, err := w.Header()
	require.NoError(t, err)
	require.Equal(t, Header, h)
}

func (s Suite) testCompartmentConsistency(t *testing.T) {
	w := s.open(t, s.NewSource(t), format.ModeWrite, nil)
	require.NoError(t, w.WriteHeader(Header))

	require.NoError(t, w.WriteCompartments(3, []uint16{2, 2}))
	require.NoError(t, w.WriteCompartments(3, []uint16{2, 2}))
	require.ErrorIs(t, w.WriteCompartments(3, []uint16{4}), errs.ErrInconsistent)

	ok, err := w.WriteFrame(3, []float32{1, 2, 3, 4}, 1)
	require.NoError(t, err)
	require.True(t, ok)
}

func (s Suite) testRewriteFrame(t *testing.T) {
	source := s.NewSource(t)

	w := s.open(t, source, format.ModeWrite, nil)
	require.NoError(t, w.WriteHeader(Header))
	require.NoError(t, w.WriteCompartments(9, []uint16{2}))
	for _, v := range []float32{1, 2} {
		ok, err := w.WriteFrame(9, []float32{v, v}, 8)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, w.Close())

	r := s.open(t, source, format.ModeRead, nil)
	frame, err := r.LoadFrame(8)
	require.NoError(t, err)
	require.Equal(t, []float32{2, 2}, frame)
}

func (s Suite) testFlushIdempotent(t *testing.T) {
	source := s.NewSource(t)

	w := s.open(t, source, format.ModeWrite, nil)
	require.NoError(t, w.WriteHeader(Header))
	require.NoError(t, w.WriteCompartments(1, []uint16{3, 2}))
	_, err := w.WriteFrame(1, Row(1, 2, 5), 2)
	require.NoError(t, err)

	require.NoError(t, w.Flush())
	var once string
	if s.Snapshot != nil {
		once = s.Snapshot(t, source)
	}
	require.NoError(t, w.Flush())
	if s.Snapshot != nil {
		require.Equal(t, once, s.Snapshot(t, source))
	}
	require.NoError(t, w.Close())

	r := s.open(t, source, format.ModeRead, nil)
	frame, err := r.LoadFrame(2)
	require.NoError(t, err)
	require.Equal(t, Row(1, 2, 5), frame)
}

func (s Suite) testAppend(t *testing.T) {
	source := s.sample(t)

	w := s.open(t, source, format.ModeWrite, nil)
	require.NoError(t, w.WriteHeader(Header))
	require.NoError(t, w.WriteCompartments(2, []uint16{4}))
	require.ErrorIs(t, w.WriteCompartments(2, []uint16{5}), errs.ErrInconsistent)
	ok, err := w.WriteFrame(2, []float32{9, 9, 9, 9}, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, w.Close())

	r := s.open(t, source, format.ModeRead, mapping.GIDSet{1, 2})
	frame, err := r.LoadFrame(3)
	require.NoError(t, err)
	require.Equal(t, append(Row(1, 3, 5), 9, 9, 9, 9), frame)
}

func (s Suite) testOverwrite(t *testing.T) {
	source := s.sample(t)

	w := s.open(t, source, format.ModeOverwrite, nil)
	other := Header
	other.Timestep = 0.5
	require.NoError(t, w.WriteHeader(other))
	require.NoError(t, w.WriteCompartments(5, []uint16{1}))
	_, err := w.WriteFrame(5, []float32{42}, 0.5)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := s.open(t, source, format.ModeRead, nil)
	gids, err := r.GIDs()
	require.NoError(t, err)
	require.Equal(t, mapping.GIDSet{5}, gids)
	require.Equal(t, 20, r.FrameCount())

	frame, err := r.LoadFrame(0.5)
	require.NoError(t, err)
	require.Equal(t, []float32{42}, frame)
}

func (s Suite) testReadWrite(t *testing.T) {
	source := s.sample(t)

	rw := s.open(t, source, format.ModeReadWrite, mapping.GIDSet{7})
	frame, err := rw.LoadFrame(1)
	require.NoError(t, err)
	require.Equal(t, Row(7, 1, 2), frame)

	ok, err := rw.WriteFrame(7, []float32{-1, -2}, 1)
	require.NoError(t, err)
	require.True(t, ok)

	frame, err = rw.LoadFrame(1)
	require.NoError(t, err)
	require.Equal(t, []float32{-1, -2}, frame)
}

func (s Suite) testManyNeurons(t *testing.T) {
	source := s.NewSource(t)
	const n = 40

	w := s.open(t, source, format.ModeWrite, nil)
	require.NoError(t, w.WriteHeader(Header))
	for gid := uint32(100); gid < 100+n; gid++ {
		require.NoError(t, w.WriteCompartments(gid, []uint16{uint16(gid % 7), 1}))
	}
	for frame := range 3 {
		for gid := uint32(100); gid < 100+n; gid++ {
			_, err := w.WriteFrame(gid, Row(gid, frame, int(gid%7)+1), Header.Timestamp(frame))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())

	r := s.open(t, source, format.ModeRead, nil)
	for _, frame := range []int{2, 0, 1} {
		got, err := r.LoadFrame(Header.Timestamp(frame))
		require.NoError(t, err)

		var want []float32
		for gid := uint32(100); gid < 100+n; gid++ {
			want = append(want, Row(gid, frame, int(gid%7)+1)...)
		}
		require.Equal(t, want, got)
	}
}

func (s Suite) testMissingSource(t *testing.T) {
	_, err := s.Open(report.InitData{Source: s.NewSource(t), Mode: format.ModeRead})
	require.Error(t, err)
}

// SampleFrame returns the full-population frame of the sample report at frame.
func SampleFrame(frame int) []float32 {
	var out []float32
	for _, gid := range []uint32{1, 2, 7} {
		columns := mapping.Total(sampleCounts[gid])
		if gid == 2 && frame%2 == 1 {
			out = append(out, make([]float32, columns)...)
			continue
		}
		out = append(out, Row(gid, frame, columns)...)
	}

	return out
}

// testConcurrentLoadFrame reads a report opened without a GID subset from
// several goroutines, so the default mapping is built while they race.
func (s Suite) testConcurrentLoadFrame(t *testing.T) {
	r := s.open(t, s.sample(t), format.ModeRead, nil)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 10 {
				frame := (g + i) % Header.FrameCount()
				got, err := r.LoadFrame(Header.Timestamp(frame))
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, SampleFrame(frame), got)
			}
		}()
	}
	wg.Wait()
}

func (s Suite) testConcurrentReaders(t *testing.T) {
	source := s.sample(t)

	first := s.open(t, source, format.ModeRead, nil)
	frame, err := first.LoadFrame(1)
	require.NoError(t, err)
	require.Equal(t, SampleFrame(1), frame)

	second := s.open(t, source, format.ModeRead, nil)
	frame, err = second.LoadFrame(2)
	require.NoError(t, err)
	require.Equal(t, SampleFrame(2), frame)

	frame, err = first.LoadFrame(3)
	require.NoError(t, err)
	require.Equal(t, SampleFrame(3), frame)
}

// DirDigest hashes every regular file below root (or root itself) in name order.
func DirDigest(t *testing.T, root string) string {
	t.Helper()

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}

		return nil
	})
	require.NoError(t, err)
	slices.Sort(paths)

	digest := hash.NewDigest()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		digest.Write([]byte(rel))
		digest.Write(data)
	}

	return strconv.FormatUint(digest.Sum64(), 16)
}
