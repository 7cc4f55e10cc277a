package dataset

import (
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/report"
)

// LoadFrame assembles the frame nearest to timestamp.
//
// The frame index is computed once; then, in ascending GID order, the single
// row at that index is read from every mapped dataset into the frame at the
// GID's base offset. Rows never written read as zeros.
func (b *Backend) LoadFrame(timestamp float64) ([]float32, error) {
	if b.closed {
		return nil, errs.ErrClosed
	}
	if b.header.IsZero() {
		return nil, errs.ErrNoHeader
	}

	m, err := b.Mapping()
	if err != nil {
		return nil, err
	}

	idx, err := report.FrameIndex(b.header, timestamp)
	if err != nil {
		return nil, err
	}

	frame := make([]float32, m.FrameSize())
	for i, gid := range m.GIDs() {
		base := m.Base(i)
		dst := frame[base : base+m.Total(i)]
		if len(dst) == 0 {
			continue
		}
		if err := b.readRow(gid, uint64(idx), dst); err != nil { //nolint: gosec
			return nil, err
		}
	}
	b.counters.FramesRead.Inc()

	return frame, nil
}

func (b *Backend) readRow(gid uint32, idx uint64, dst []float32) error {
	b.io.Lock()
	defer b.io.Unlock()

	h, err := b.acquire(gid)
	if err != nil {
		return err
	}

	return h.readRow(idx, dst)
}
