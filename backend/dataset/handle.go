package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"

	"github.com/arloliu/creport/endian"
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/internal/pool"
	"github.com/arloliu/creport/section"
)

// handle is an open per-neuron dataset file.
type handle struct {
	gid      uint32
	path     string
	file     *os.File
	hdr      section.DatasetHeader
	counts   []uint16
	engine   endian.EndianEngine
	writable bool
}

// openHandle opens an existing dataset file and validates its header and counts.
func openHandle(path string, gid uint32, writable bool) (*handle, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: gid %d", errs.ErrNeuronNotFound, gid)
		}

		return nil, errs.NewIOError("open", path, err)
	}

	h, err := loadHandle(f, path, gid)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	h.writable = writable

	return h, nil
}

func loadHandle(f *os.File, path string, gid uint32) (*handle, error) {
	buf := make([]byte, section.DatasetHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s: truncated dataset header", errs.ErrCorruptFormat, path)
		}

		return nil, errs.NewIOError("read", path, err)
	}

	hdr, err := section.ParseDatasetHeader(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrCorruptFormat, path, err)
	}
	if hdr.GID != gid {
		return nil, fmt.Errorf("%w: %s holds gid %d", errs.ErrCorruptFormat, path, hdr.GID)
	}

	countsBuf := make([]byte, hdr.CountsSize())
	if _, err := f.ReadAt(countsBuf, section.DatasetHeaderSize); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s: truncated section counts", errs.ErrCorruptFormat, path)
		}

		return nil, errs.NewIOError("read", path, err)
	}

	counts, err := hdr.DecodeCounts(countsBuf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrCorruptFormat, path, err)
	}

	return &handle{
		gid:    gid,
		path:   path,
		file:   f,
		hdr:    hdr,
		counts: counts,
		engine: hdr.Flag.GetEndianEngine(),
	}, nil
}

// createHandle creates a dataset file with zero rows.
func createHandle(path string, gid uint32, counts []uint16, chunkRows uint32) (*handle, error) {
	hdr, err := section.NewDatasetHeader(gid, counts, chunkRows)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, errs.NewIOError("create", path, err)
	}

	buf := make([]byte, hdr.DataOffset)
	copy(buf, hdr.Bytes())
	copy(buf[section.DatasetHeaderSize:], hdr.EncodeCounts(counts))
	if _, err := f.WriteAt(buf, 0); err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return nil, errs.NewIOError("write", path, err)
	}

	return &handle{
		gid:      gid,
		path:     path,
		file:     f,
		hdr:      hdr,
		counts:   slices.Clone(counts),
		engine:   hdr.Flag.GetEndianEngine(),
		writable: true,
	}, nil
}

// readRow decodes row idx into dst. Rows past the extent read as zeros.
func (h *handle) readRow(idx uint64, dst []float32) error {
	if idx >= h.hdr.Rows {
		clear(dst)
		return nil
	}

	buf, release := pool.GetBytes(len(dst) * endian.Float32Size)
	defer release()

	if _, err := h.file.ReadAt(buf, h.hdr.RowOffset(idx)); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s: row %d past end of file", errs.ErrCorruptFormat, h.path, idx)
		}

		return errs.NewIOError("read", h.path, err)
	}
	endian.Float32s(h.engine, dst, buf)

	return nil
}

// writeRow stores values at row idx, growing the row area as needed.
// The header is rewritten last so a failed write leaves the extent unchanged.
//
// Returns:
//   - int: payload bytes written
func (h *handle) writeRow(idx uint64, values []float32) (int, error) {
	next := h.hdr
	grew := next.GrowTo(idx + 1)
	if grew {
		if err := h.file.Truncate(next.FileSize()); err != nil {
			return 0, errs.NewIOError("extend", h.path, err)
		}
	}

	buf, release := pool.GetBytes(len(values) * endian.Float32Size)
	defer release()

	n := endian.PutFloat32s(h.engine, buf, values)
	if _, err := h.file.WriteAt(buf[:n], next.RowOffset(idx)); err != nil {
		return 0, errs.NewIOError("write", h.path, err)
	}

	if next != h.hdr {
		if _, err := h.file.WriteAt(next.Bytes(), 0); err != nil {
			return 0, errs.NewIOError("write", h.path, err)
		}
		h.hdr = next
	}

	return n, nil
}

func (h *handle) sync() error {
	if !h.writable {
		return nil
	}

	return errs.NewIOError("sync", h.path, h.file.Sync())
}

func (h *handle) close() error {
	return errs.NewIOError("close", h.path, h.file.Close())
}
