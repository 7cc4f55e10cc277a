package binary

import (
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/creport/endian"
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/internal/hash"
	"github.com/arloliu/creport/internal/pool"
	"github.com/arloliu/creport/report"
)

// LoadFrame assembles the frame nearest to timestamp from the stored frame
// and the rows written since the last Flush.
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

	var full []float32
	if m.Len() > 0 {
		if full, err = b.storedFrame(idx); err != nil {
			return nil, err
		}
	}

	frame := make([]float32, m.FrameSize())
	pending := b.pending[idx]
	for i, gid := range m.GIDs() {
		base := m.Base(i)
		dst := frame[base : base+m.Total(i)]
		if row, ok := pending[gid]; ok {
			copy(dst, row)
			continue
		}
		if full == nil {
			continue
		}
		if fi := b.disk.layout.Index(gid); fi >= 0 {
			src := b.disk.layout.Base(fi)
			copy(dst, full[src:src+b.disk.layout.Total(fi)])
		}
	}
	b.counters.FramesRead.Inc()

	return frame, nil
}

// storedFrame returns frame idx of the file in the file's layout, or nil if
// the file holds no data for it.
func (b *Backend) storedFrame(idx int) ([]float32, error) {
	if b.disk == nil || idx >= len(b.disk.index) || b.disk.index[idx].IsEmpty() {
		return nil, nil
	}

	if frame, ok := b.frames.Get(idx); ok {
		b.counters.CacheHits.Inc()
		return frame, nil
	}
	b.counters.CacheMisses.Inc()

	frame, err := b.disk.decode(idx)
	if err != nil {
		return nil, err
	}
	b.frames.Put(idx, frame)

	return frame, nil
}

// decode reads, verifies and decompresses frame idx.
func (s *stored) decode(idx int) ([]float32, error) {
	entry := s.index[idx]
	buf, release := pool.GetBytes(int(entry.Length))
	defer release()

	off := int64(s.hdr.PayloadOffset + entry.Offset) //nolint: gosec
	if _, err := s.file.ReadAt(buf, off); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s: frame %d truncated", errs.ErrCorruptFormat, s.file.Name(), idx)
		}

		return nil, errs.NewIOError("read", s.file.Name(), err)
	}
	if hash.Checksum32(buf) != entry.Checksum {
		return nil, fmt.Errorf("%w: %s: frame %d: %w", errs.ErrCorruptFormat, s.file.Name(), idx, errs.ErrChecksumMismatch)
	}

	raw, err := s.codec.Decompress(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: frame %d: %w", errs.ErrCorruptFormat, s.file.Name(), idx, err)
	}
	if uint64(len(raw)) != s.hdr.FrameSize*endian.Float32Size {
		return nil, fmt.Errorf("%w: %s: frame %d decodes to %d bytes", errs.ErrCorruptFormat, s.file.Name(), idx, len(raw))
	}

	frame := make([]float32, s.hdr.FrameSize)
	endian.Float32s(s.hdr.Flag.GetEndianEngine(), frame, raw)

	return frame, nil
}
