package binary

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/arloliu/creport/endian"
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/internal/hash"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
	"github.com/arloliu/creport/section"
)

func (b *Backend) WriteHeader(h report.Header) error {
	if err := b.checkWritable(); err != nil {
		return err
	}

	store, err := report.CheckHeader(b.header, h)
	if err != nil || !store {
		return err
	}
	b.header = h
	b.dirty = true

	return nil
}

func (b *Backend) WriteCompartments(gid uint32, counts []uint16) error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	if b.header.IsZero() {
		return errs.ErrNoHeader
	}
	if len(counts) > section.MaxSections {
		return fmt.Errorf("%w: gid %d has %d sections", errs.ErrInconsistent, gid, len(counts))
	}

	if prev, ok := b.counts[gid]; ok {
		if !slices.Equal(prev, counts) {
			return fmt.Errorf("%w: gid %d declared with counts %v, got %v", errs.ErrInconsistent, gid, prev, counts)
		}

		return nil
	}
	b.counts[gid] = slices.Clone(counts)
	b.dirty = true

	return nil
}

// WriteFrame buffers values as the row of gid nearest to timestamp until the next Flush.
func (b *Backend) WriteFrame(gid uint32, values []float32, timestamp float64) (bool, error) {
	if err := b.checkWritable(); err != nil {
		return false, err
	}
	if b.header.IsZero() {
		return false, errs.ErrNoHeader
	}

	counts, ok := b.counts[gid]
	if !ok {
		return false, nil
	}
	if len(values) != mapping.Total(counts) {
		return false, fmt.Errorf("%w: gid %d expects %d values, got %d", errs.ErrInconsistent, gid, mapping.Total(counts), len(values))
	}

	idx, err := report.FrameIndex(b.header, timestamp)
	if err != nil {
		return false, err
	}

	rows, ok := b.pending[idx]
	if !ok {
		rows = map[uint32][]float32{}
		b.pending[idx] = rows
	}
	rows[gid] = slices.Clone(values)
	b.dirty = true
	b.counters.RowsWritten.Inc()

	return true, nil
}

// Flush rewrites the file with every stored and pending row.
// It does nothing when nothing changed since the last Flush.
func (b *Backend) Flush() error {
	if b.closed {
		return errs.ErrClosed
	}
	if !b.dirty || b.header.IsZero() {
		return nil
	}

	written, err := b.rewrite()
	if err != nil {
		return err
	}

	disk, err := load(b.path)
	if err != nil {
		return err
	}
	if b.disk != nil {
		_ = b.disk.close()
	}
	b.disk = disk
	b.pending = map[int]map[uint32][]float32{}
	b.frames.Purge()
	b.dirty = false

	b.counters.BytesWritten.Add(float64(written))
	b.logger.Debug("binary report flushed", "bytes", written, "frames", len(disk.index))

	return nil
}

// rewrite writes the merged report to a temporary file and renames it over b.path.
func (b *Backend) rewrite() (int64, error) {
	gids, _ := b.GIDs()
	layout, err := mapping.FromCounts(gids, b.counts, func(uint32) error { return nil })
	if err != nil {
		return 0, err
	}

	hdr := section.NewBinaryHeader(b.cfg.Compression)
	engine := hdr.Flag.GetEndianEngine()

	attrs, err := section.NewContainerAttrs(b.header.StartTime, b.header.EndTime, b.header.Timestep,
		b.header.DataUnit, b.header.TimeUnit).Bytes()
	if err != nil {
		return 0, err
	}

	var table []byte
	for i, gid := range layout.GIDs() {
		table = section.AppendMappingEntry(engine, table, gid, layout.Counts()[i])
	}

	frameCount := b.header.FrameCount()
	hdr.GIDCount = uint32(len(gids))    //nolint: gosec
	hdr.FrameCount = uint32(frameCount) //nolint: gosec
	hdr.MappingOffset = hdr.AttrsOffset + uint64(len(attrs))
	hdr.IndexOffset = hdr.MappingOffset + uint64(len(table))
	hdr.PayloadOffset = hdr.IndexOffset + uint64(frameCount)*section.FrameIndexEntrySize
	hdr.FrameSize = layout.FrameSize()

	tmp, err := os.CreateTemp(filepath.Dir(b.path), "."+filepath.Base(b.path)+"-*")
	if err != nil {
		return 0, errs.NewIOError("create", b.path, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	prefix := make([]byte, hdr.PayloadOffset)
	copy(prefix[hdr.AttrsOffset:], attrs)
	copy(prefix[hdr.MappingOffset:], table)
	if _, err := tmp.WriteAt(prefix, 0); err != nil {
		return 0, errs.NewIOError("write", tmp.Name(), err)
	}

	index := prefix[hdr.IndexOffset:hdr.PayloadOffset]
	var offset uint64
	raw := make([]byte, layout.FrameSize()*endian.Float32Size)
	for idx := range frameCount {
		frame, ok, err := b.mergedFrame(idx, layout)
		if err != nil {
			return 0, err
		}
		if !ok || layout.FrameSize() == 0 {
			continue
		}

		endian.PutFloat32s(engine, raw, frame)
		payload, err := b.codec.Compress(raw)
		if err != nil {
			return 0, fmt.Errorf("compress frame %d: %w", idx, err)
		}
		if _, err := tmp.WriteAt(payload, int64(hdr.PayloadOffset+offset)); err != nil { //nolint: gosec
			return 0, errs.NewIOError("write", tmp.Name(), err)
		}

		entry := section.FrameIndexEntry{
			Offset:   offset,
			Length:   uint32(len(payload)), //nolint: gosec
			Checksum: hash.Checksum32(payload),
		}
		entry.WriteToSlice(engine, index[idx*section.FrameIndexEntrySize:])
		offset += uint64(len(payload))
	}

	copy(prefix, hdr.Bytes())
	if _, err := tmp.WriteAt(prefix[:hdr.PayloadOffset], 0); err != nil {
		return 0, errs.NewIOError("write", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, errs.NewIOError("sync", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return 0, errs.NewIOError("close", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return 0, errs.NewIOError("rename", b.path, err)
	}
	committed = true

	return int64(hdr.PayloadOffset + offset), nil //nolint: gosec
}

// mergedFrame assembles frame idx in layout from the stored file and the pending rows.
//
// Returns:
//   - []float32: The frame
//   - bool: false if neither source holds any row of the frame
func (b *Backend) mergedFrame(idx int, layout *mapping.Mapping) ([]float32, bool, error) {
	stored, err := b.storedFrame(idx)
	if err != nil {
		return nil, false, err
	}
	pending := b.pending[idx]
	if stored == nil && len(pending) == 0 {
		return nil, false, nil
	}

	frame := make([]float32, layout.FrameSize())
	for i, gid := range layout.GIDs() {
		base := layout.Base(i)
		dst := frame[base : base+layout.Total(i)]
		if row, ok := pending[gid]; ok {
			copy(dst, row)
			continue
		}
		if stored == nil {
			continue
		}
		if fi := b.disk.layout.Index(gid); fi >= 0 {
			src := b.disk.layout.Base(fi)
			copy(dst, stored[src:src+b.disk.layout.Total(fi)])
		}
	}

	return frame, true, nil
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
