package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
)

// WriteHeader writes the container attribute file once.
// Repeating the stored values is a no-op; different values fail with ErrInconsistent.
func (b *Backend) WriteHeader(h report.Header) error {
	if err := b.checkWritable(); err != nil {
		return err
	}

	store, err := report.CheckHeader(b.header, h)
	if err != nil || !store {
		return err
	}

	if err := writeAttrs(filepath.Join(b.dir, AttrsFile), h); err != nil {
		return err
	}
	b.header = h
	b.logger.Debug("header written", "start", h.StartTime, "end", h.EndTime, "timestep", h.Timestep)

	return nil
}

// WriteCompartments creates the dataset file of gid with zero rows.
// Redeclaring gid with the same counts is a no-op.
func (b *Backend) WriteCompartments(gid uint32, counts []uint16) error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	if b.header.IsZero() {
		return errs.ErrNoHeader
	}

	b.io.Lock()
	defer b.io.Unlock()

	h, err := b.acquire(gid)
	switch {
	case err == nil:
		if !slices.Equal(h.counts, counts) {
			return fmt.Errorf("%w: gid %d declared with counts %v, got %v", errs.ErrInconsistent, gid, h.counts, counts)
		}

		return nil
	case !errors.Is(err, errs.ErrNeuronNotFound):
		return err
	}

	h, err = createHandle(b.datasetPath(gid), gid, counts, b.cfg.ChunkRows)
	if err != nil {
		return err
	}
	b.handles.Put(gid, h)
	b.addGID(gid)

	return nil
}

// WriteFrame stores values as the row of gid nearest to timestamp.
//
// Returns:
//   - bool: false if gid has no dataset
//   - error: ErrInconsistent, before any mutation, if len(values) differs from
//     the declared compartment count
func (b *Backend) WriteFrame(gid uint32, values []float32, timestamp float64) (bool, error) {
	if err := b.checkWritable(); err != nil {
		return false, err
	}
	if b.header.IsZero() {
		return false, errs.ErrNoHeader
	}

	b.io.Lock()
	defer b.io.Unlock()

	h, err := b.acquire(gid)
	if errors.Is(err, errs.ErrNeuronNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if uint32(len(values)) != h.hdr.Columns { //nolint: gosec
		return false, fmt.Errorf("%w: gid %d expects %d values, got %d", errs.ErrInconsistent, gid, h.hdr.Columns, len(values))
	}

	idx, err := report.FrameIndex(b.header, timestamp)
	if err != nil {
		return false, err
	}

	n, err := h.writeRow(uint64(idx), values) //nolint: gosec
	if err != nil {
		return false, err
	}
	b.counters.RowsWritten.Inc()
	b.counters.BytesWritten.Add(float64(n))

	return true, nil
}

// Rows returns the row extent of the dataset of gid.
func (b *Backend) Rows(gid uint32) (uint64, error) {
	b.io.Lock()
	defer b.io.Unlock()

	h, err := b.acquire(gid)
	if err != nil {
		return 0, err
	}

	return h.hdr.Rows, nil
}

func (b *Backend) addGID(gid uint32) {
	if b.gids == nil || b.gids.Contains(gid) {
		return
	}
	b.gids = mapping.NewGIDSet(append(b.gids, gid)...)
}

func (b *Backend) checkWritable() error {
	if b.closed {
		return errs.ErrClosed
	}
	if !b.mode.CanWrite() {
		return errs.ErrReadOnly
	}

	return nil
}
