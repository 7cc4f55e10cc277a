package report

import (
	"testing"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/mapping"
	"github.com/stretchr/testify/require"
)

func memRegistry(t *testing.T, backend *memBackend) *Registry {
	t.Helper()

	reg, err := NewRegistry(Descriptor{
		Name:    "mem",
		Handles: func(InitData) bool { return true },
		New: func(InitData, *Config) (Backend, error) {
			return backend, nil
		},
	})
	require.NoError(t, err)

	return reg
}

func populated(t *testing.T) *memBackend {
	t.Helper()

	b := newMemBackend()
	require.NoError(t, b.WriteHeader(testHeader))
	require.NoError(t, b.WriteCompartments(1, []uint16{3, 2}))
	require.NoError(t, b.WriteCompartments(2, []uint16{1}))
	for i := range 10 {
		ok, err := b.WriteFrame(1, []float32{float32(i), 1, 2, 3, 4}, float64(i))
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = b.WriteFrame(2, []float32{float32(-i)}, float64(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	return b
}

func TestOpen_InitialMapping(t *testing.T) {
	backend := populated(t)
	r, err := Open(memRegistry(t, backend), InitData{Source: "x", Mode: format.ModeRead, GIDs: mapping.GIDSet{2}})
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, "mem", r.BackendName())
	size, err := r.FrameSize()
	require.NoError(t, err)
	require.Equal(t, uint64(1), size)
}

func TestOpen_InitialMappingMissingGID(t *testing.T) {
	backend := populated(t)
	_, err := Open(memRegistry(t, backend), InitData{Source: "x", Mode: format.ModeRead, GIDs: mapping.GIDSet{7}})
	require.ErrorIs(t, err, errs.ErrNeuronNotFound)
	require.Equal(t, 1, backend.closed)
}

func TestOpen_InvalidOption(t *testing.T) {
	_, err := Open(memRegistry(t, newMemBackend()), InitData{Source: "x", Mode: format.ModeRead}, WithMaxOpenHandles(0))
	require.Error(t, err)
}

func TestReport_Accessors(t *testing.T) {
	r := New(populated(t), "mem", format.ModeRead)

	h, err := r.Header()
	require.NoError(t, err)
	require.Equal(t, testHeader, h)
	require.Equal(t, 0.0, r.StartTime())
	require.Equal(t, 10.0, r.EndTime())
	require.Equal(t, 1.0, r.Timestep())
	require.Equal(t, "mV", r.DataUnit())
	require.Equal(t, "ms", r.TimeUnit())
	require.Equal(t, 10, r.FrameCount())

	gids, err := r.GIDs()
	require.NoError(t, err)
	require.Equal(t, mapping.GIDSet{1, 2}, gids)

	offsets, err := r.Offsets()
	require.NoError(t, err)
	require.Equal(t, mapping.SectionOffsets{{0, 3}, {5}}, offsets)

	counts, err := r.CompartmentCounts()
	require.NoError(t, err)
	require.Equal(t, mapping.CompartmentCounts{{3, 2}, {1}}, counts)
}

func TestReport_NoHeader(t *testing.T) {
	r := New(newMemBackend(), "mem", format.ModeWrite)

	_, err := r.Header()
	require.ErrorIs(t, err, errs.ErrNoHeader)
	require.Equal(t, 0.0, r.Timestep())
	require.Equal(t, 0, r.FrameCount())
}

func TestReport_UpdateMappingSortsInput(t *testing.T) {
	r := New(populated(t), "mem", format.ModeRead)

	require.NoError(t, r.UpdateMapping(mapping.GIDSet{2, 1, 2}))
	m, err := r.Mapping()
	require.NoError(t, err)
	require.Equal(t, mapping.GIDSet{1, 2}, m.GIDs())
}

func TestReport_UpdateMappingKeepsPreviousOnFailure(t *testing.T) {
	r := New(populated(t), "mem", format.ModeRead)

	require.NoError(t, r.UpdateMapping(mapping.GIDSet{2}))
	err := r.UpdateMapping(mapping.GIDSet{1, 99})
	require.ErrorIs(t, err, errs.ErrNeuronNotFound)

	m, err := r.Mapping()
	require.NoError(t, err)
	require.Equal(t, mapping.GIDSet{2}, m.GIDs())
}

func TestReport_LoadFrames(t *testing.T) {
	r := New(populated(t), "mem", format.ModeRead)
	require.NoError(t, r.UpdateMapping(mapping.GIDSet{2}))

	frames, err := r.LoadFrames(2, 5)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{-2}, {-3}, {-4}}, frames)

	frames, err = r.LoadFrames(8, 100)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{-8}, {-9}}, frames)

	frames, err = r.LoadFrames(5, 5)
	require.NoError(t, err)
	require.Empty(t, frames)

	_, err = r.LoadFrames(10, 12)
	require.ErrorIs(t, err, errs.ErrOutOfRange)
}

func TestReport_ModeChecks(t *testing.T) {
	ro := New(populated(t), "mem", format.ModeRead)
	require.ErrorIs(t, ro.WriteHeader(testHeader), errs.ErrReadOnly)
	require.ErrorIs(t, ro.WriteCompartments(3, []uint16{1}), errs.ErrReadOnly)
	_, err := ro.WriteFrame(1, nil, 0)
	require.ErrorIs(t, err, errs.ErrReadOnly)

	wo := New(populated(t), "mem", format.ModeWrite)
	_, err = wo.LoadFrame(0)
	require.ErrorIs(t, err, errs.ErrWriteOnly)
}

func TestReport_Close(t *testing.T) {
	backend := populated(t)
	r := New(backend, "mem", format.ModeReadWrite)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	require.Equal(t, 1, backend.closed)

	_, err := r.LoadFrame(0)
	require.ErrorIs(t, err, errs.ErrClosed)
	require.ErrorIs(t, r.Flush(), errs.ErrClosed)
	require.ErrorIs(t, r.UpdateMapping(nil), errs.ErrClosed)
	require.ErrorIs(t, r.WriteHeader(testHeader), errs.ErrClosed)
	_, err = r.GIDs()
	require.ErrorIs(t, err, errs.ErrClosed)
}
