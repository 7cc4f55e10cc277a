package report

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/mapping"
)

// Report is the object applications hold. It delegates to the backend
// selected at Open and rejects every call after Close.
type Report struct {
	backend Backend
	name    string
	mode    format.AccessMode
	source  string
	logger  *slog.Logger
	closed  bool
}

// Open selects a backend for init from reg and opens it.
//
// In read modes a non-nil init.GIDs becomes the initial mapping.
//
// Returns:
//   - *Report: The open report
//   - error: ErrUnsupportedFormat if no backend accepts the source, or the
//     backend's open error
func Open(reg *Registry, init InitData, opts ...Option) (*Report, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	desc, err := reg.Select(init)
	if err != nil {
		return nil, err
	}

	backend, err := desc.New(init, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s report %q: %w", desc.Name, init.Source, err)
	}

	r := &Report{
		backend: backend,
		name:    desc.Name,
		mode:    init.Mode,
		source:  init.Source,
		logger:  cfg.Logger.With("backend", desc.Name, "source", init.Source),
	}

	if init.Mode.CanRead() && init.GIDs != nil {
		if err := backend.UpdateMapping(init.GIDs); err != nil {
			return nil, errors.Join(err, backend.Close())
		}
	}

	r.logger.Debug("report opened", "mode", init.Mode.String())

	return r, nil
}

// New wraps an already opened backend.
func New(backend Backend, name string, mode format.AccessMode) *Report {
	return &Report{
		backend: backend,
		name:    name,
		mode:    mode,
		logger:  slog.New(slog.DiscardHandler),
	}
}

// BackendName returns the name of the selected backend.
func (r *Report) BackendName() string {
	return r.name
}

// Mode returns the access mode the report was opened with.
func (r *Report) Mode() format.AccessMode {
	return r.mode
}

// Backend returns the underlying backend.
func (r *Report) Backend() Backend {
	return r.backend
}

// Header returns the report header.
//
// Returns:
//   - Header: The stored header
//   - error: ErrNoHeader if no header was read or written yet, ErrClosed after Close
func (r *Report) Header() (Header, error) {
	if r.closed {
		return Header{}, errs.ErrClosed
	}

	h := r.backend.Header()
	if h.IsZero() {
		return Header{}, errs.ErrNoHeader
	}

	return h, nil
}

// StartTime returns the time of the first frame, or 0 without a header.
func (r *Report) StartTime() float64 {
	return r.backend.Header().StartTime
}

// EndTime returns the exclusive end of the time axis, or 0 without a header.
func (r *Report) EndTime() float64 {
	return r.backend.Header().EndTime
}

// Timestep returns the time between frames, or 0 without a header.
func (r *Report) Timestep() float64 {
	return r.backend.Header().Timestep
}

// DataUnit returns the unit of the compartment values.
func (r *Report) DataUnit() string {
	return r.backend.Header().DataUnit
}

// TimeUnit returns the unit of the time axis.
func (r *Report) TimeUnit() string {
	return r.backend.Header().TimeUnit
}

// FrameCount returns the number of frames on the time axis.
func (r *Report) FrameCount() int {
	return r.backend.Header().FrameCount()
}

// GIDs returns every neuron in the store, independent of the active mapping.
func (r *Report) GIDs() (mapping.GIDSet, error) {
	if r.closed {
		return nil, errs.ErrClosed
	}

	return r.backend.GIDs()
}

// Mapping returns the active frame layout.
func (r *Report) Mapping() (*mapping.Mapping, error) {
	if r.closed {
		return nil, errs.ErrClosed
	}

	return r.backend.Mapping()
}

// Offsets returns the section offsets of the active mapping.
func (r *Report) Offsets() (mapping.SectionOffsets, error) {
	m, err := r.Mapping()
	if err != nil {
		return nil, err
	}

	return m.Offsets(), nil
}

// CompartmentCounts returns the section counts of the active mapping.
func (r *Report) CompartmentCounts() (mapping.CompartmentCounts, error) {
	m, err := r.Mapping()
	if err != nil {
		return nil, err
	}

	return m.Counts(), nil
}

// FrameSize returns the number of values in one frame of the active mapping.
func (r *Report) FrameSize() (uint64, error) {
	m, err := r.Mapping()
	if err != nil {
		return 0, err
	}

	return m.FrameSize(), nil
}

// UpdateMapping restricts the report to gids.
//
// Returns:
//   - error: ErrNeuronNotFound if a GID is absent; the previous mapping stays active
func (r *Report) UpdateMapping(gids mapping.GIDSet) error {
	if r.closed {
		return errs.ErrClosed
	}

	return r.backend.UpdateMapping(mapping.NewGIDSet(gids...))
}

// LoadFrame returns the frame nearest to timestamp.
func (r *Report) LoadFrame(timestamp float64) ([]float32, error) {
	if r.closed {
		return nil, errs.ErrClosed
	}
	if !r.mode.CanRead() {
		return nil, errs.ErrWriteOnly
	}

	return r.backend.LoadFrame(timestamp)
}

// LoadFrames returns every frame whose timestamp lies in [start, end).
// An end past the report's end time is truncated to it.
func (r *Report) LoadFrames(start, end float64) ([][]float32, error) {
	h, err := r.Header()
	if err != nil {
		return nil, err
	}

	first, err := FrameIndex(h, start)
	if err != nil {
		return nil, err
	}

	last := h.FrameCount()
	if end < h.EndTime {
		last = min(last, int(math.Ceil((end-h.StartTime)/h.Timestep-stepTolerance)))
	}

	frames := make([][]float32, 0, max(last-first, 0))
	for i := first; i < last; i++ {
		frame, err := r.LoadFrame(h.Timestamp(i))
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, frame)
	}

	return frames, nil
}

// WriteHeader stores the header. It must precede every other write.
func (r *Report) WriteHeader(h Header) error {
	if err := r.checkWritable(); err != nil {
		return err
	}

	return r.backend.WriteHeader(h)
}

// WriteCompartments declares the section counts of gid.
func (r *Report) WriteCompartments(gid uint32, counts []uint16) error {
	if err := r.checkWritable(); err != nil {
		return err
	}

	return r.backend.WriteCompartments(gid, counts)
}

// WriteFrame stores the values of gid at timestamp.
//
// Returns:
//   - bool: false if gid was never declared with WriteCompartments
//   - error: ErrInconsistent if len(values) differs from the declared count
func (r *Report) WriteFrame(gid uint32, values []float32, timestamp float64) (bool, error) {
	if err := r.checkWritable(); err != nil {
		return false, err
	}

	return r.backend.WriteFrame(gid, values, timestamp)
}

// Flush persists everything written so far.
func (r *Report) Flush() error {
	if r.closed {
		return errs.ErrClosed
	}

	return r.backend.Flush()
}

// Close releases the backend. Closing twice is a no-op.
func (r *Report) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	err := r.backend.Close()
	if err != nil {
		r.logger.Error("close report", "error", err)
		return err
	}
	r.logger.Debug("report closed")

	return nil
}

func (r *Report) checkWritable() error {
	if r.closed {
		return errs.ErrClosed
	}
	if !r.mode.CanWrite() {
		return errs.ErrReadOnly
	}

	return nil
}
