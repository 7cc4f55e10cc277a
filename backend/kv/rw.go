package kv

import (
	"errors"
	"fmt"
	"slices"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/arloliu/creport/compress"
	"github.com/arloliu/creport/endian"
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
	"github.com/arloliu/creport/section"
)

// LoadFrame reads the rows of the mapped GIDs nearest to timestamp in one
// read transaction. Rows never written read as zeros.
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
	err = b.db.View(func(txn *badger.Txn) error {
		for i, gid := range m.GIDs() {
			item, err := txn.Get(b.keys.frame(idx, gid))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			dst := frame[m.Base(i) : m.Base(i)+m.Total(i)]
			if err := item.Value(func(val []byte) error {
				return decodeRow(val, dst)
			}); err != nil {
				return fmt.Errorf("gid %d frame %d: %w", gid, idx, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, wrapDBError("read", b.dir, err)
	}
	b.counters.FramesRead.Inc()

	return frame, nil
}

func (b *Backend) WriteHeader(h report.Header) error {
	if err := b.checkWritable(); err != nil {
		return err
	}

	store, err := report.CheckHeader(b.header, h)
	if err != nil || !store {
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return setRecord(txn, b.keys.header(), newHeaderRecord(b.name, h))
	})
	if err != nil {
		return errs.NewIOError("write", b.dir, err)
	}
	b.header = h

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

	created := false
	err := b.db.Update(func(txn *badger.Txn) error {
		prev, err := b.lookupCounts(txn, gid)
		switch {
		case err == nil:
			if !slices.Equal(prev, counts) {
				return fmt.Errorf("%w: gid %d declared with counts %v, got %v", errs.ErrInconsistent, gid, prev, counts)
			}

			return nil
		case !errors.Is(err, errs.ErrNeuronNotFound):
			return err
		}

		created = true

		return setRecord(txn, b.keys.gid(gid), gidRecord{Counts: counts})
	})
	if err != nil {
		return wrapDBError("write", b.dir, err)
	}

	if created {
		b.counts[gid] = slices.Clone(counts)
		if b.gids != nil {
			b.gids = mapping.NewGIDSet(append(b.gids, gid)...)
		}
	}

	return nil
}

// WriteFrame stores values as the row of gid nearest to timestamp.
func (b *Backend) WriteFrame(gid uint32, values []float32, timestamp float64) (bool, error) {
	if err := b.checkWritable(); err != nil {
		return false, err
	}
	if b.header.IsZero() {
		return false, errs.ErrNoHeader
	}

	var counts []uint16
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		counts, err = b.lookupCounts(txn, gid)

		return err
	})
	if errors.Is(err, errs.ErrNeuronNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrapDBError("read", b.dir, err)
	}

	if len(values) != mapping.Total(counts) {
		return false, fmt.Errorf("%w: gid %d expects %d values, got %d", errs.ErrInconsistent, gid, mapping.Total(counts), len(values))
	}
	idx, err := report.FrameIndex(b.header, timestamp)
	if err != nil {
		return false, err
	}

	val, err := b.encodeRow(values)
	if err != nil {
		return false, err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.keys.frame(idx, gid), val)
	})
	if err != nil {
		return false, errs.NewIOError("write", b.dir, err)
	}
	b.counters.RowsWritten.Inc()
	b.counters.BytesWritten.Add(float64(len(val)))

	return true, nil
}

// encodeRow returns the compression type byte followed by the compressed row.
func (b *Backend) encodeRow(values []float32) ([]byte, error) {
	raw := endian.AppendFloat32s(endian.GetLittleEndianEngine(), make([]byte, 0, len(values)*endian.Float32Size), values)
	payload, err := b.codec.Compress(raw)
	if err != nil {
		return nil, err
	}

	val := make([]byte, 0, 1+len(payload))
	val = append(val, byte(b.cfg.Compression))

	return append(val, payload...), nil
}

// decodeRow decodes a value written by encodeRow into dst.
func decodeRow(val []byte, dst []float32) error {
	if len(val) == 0 {
		return fmt.Errorf("%w: empty row value", errs.ErrCorruptFormat)
	}

	codec, err := compress.GetCodec(format.CompressionType(val[0]))
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrCorruptFormat, err)
	}
	raw, err := codec.Decompress(val[1:])
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrCorruptFormat, err)
	}
	if len(raw) != len(dst)*endian.Float32Size {
		return fmt.Errorf("%w: row holds %d bytes, want %d", errs.ErrCorruptFormat, len(raw), len(dst)*endian.Float32Size)
	}
	endian.Float32s(endian.GetLittleEndianEngine(), dst, raw)

	return nil
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
