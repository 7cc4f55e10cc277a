package section

import (
	"fmt"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/internal/hash"
)

// DatasetHeader is the fixed-size header at the start of a per-neuron dataset file.
//
// The section counts follow the header directly; rows start at DataOffset.
type DatasetHeader struct {
	// Flag is a packed field for the magic number, endianness and version.
	Flag Flag // byte offset 0-3
	// GID is the neuron the dataset belongs to.
	GID uint32 // byte offset 4-7
	// Columns is the number of compartment values per row.
	Columns uint32 // byte offset 8-11
	// Sections is the number of section counts following the header.
	Sections uint32 // byte offset 12-15
	// Rows is the current extent: number of rows ever written, including gaps.
	Rows uint64 // byte offset 16-23
	// Capacity is the number of rows allocated on disk, a multiple of ChunkRows.
	Capacity uint64 // byte offset 24-31
	// ChunkRows is the allocation granularity when the row area grows.
	ChunkRows uint32 // byte offset 32-35
	// DataOffset is the byte offset of row 0.
	DataOffset uint64 // byte offset 40-47
	// CountsChecksum is the xxHash64 of the encoded section counts.
	CountsChecksum uint64 // byte offset 48-55
}

// NewDatasetHeader creates an empty dataset header for gid with the given section counts.
//
// Parameters:
//   - gid: Neuron identifier
//   - counts: Per-section compartment counts
//   - chunkRows: Row allocation granularity (0 selects DefaultChunkRows)
//
// Returns:
//   - DatasetHeader: Header with zero rows, DataOffset and CountsChecksum filled in
//   - error: ErrInconsistent if there are more than MaxSections sections
func NewDatasetHeader(gid uint32, counts []uint16, chunkRows uint32) (DatasetHeader, error) {
	if len(counts) > MaxSections {
		return DatasetHeader{}, fmt.Errorf("%w: %d sections", errs.ErrInconsistent, len(counts))
	}
	if chunkRows == 0 {
		chunkRows = DefaultChunkRows
	}

	var columns uint32
	for _, c := range counts {
		columns += uint32(c)
	}

	h := DatasetHeader{
		Flag:      NewFlag(MagicDatasetV1Opt),
		GID:       gid,
		Columns:   columns,
		Sections:  uint32(len(counts)), //nolint: gosec
		ChunkRows: chunkRows,
	}
	h.DataOffset = uint64(align8(DatasetHeaderSize + len(counts)*2)) //nolint: gosec
	h.CountsChecksum = hash.Checksum(h.EncodeCounts(counts))

	return h, nil
}

// RowSize returns the encoded size of one row in bytes.
func (h DatasetHeader) RowSize() int64 {
	return int64(h.Columns) * 4
}

// RowOffset returns the byte offset of row idx.
func (h DatasetHeader) RowOffset(idx uint64) int64 {
	return int64(h.DataOffset) + int64(idx)*h.RowSize() //nolint: gosec
}

// CountsSize returns the encoded size of the section counts.
func (h DatasetHeader) CountsSize() int {
	return int(h.Sections) * 2
}

// FileSize returns the on-disk size needed to hold Capacity rows.
func (h DatasetHeader) FileSize() int64 {
	return h.RowOffset(h.Capacity)
}

// GrowTo raises Rows to at least rows and Capacity to the next multiple of ChunkRows.
//
// Returns:
//   - bool: true if Capacity changed and the file must be extended
func (h *DatasetHeader) GrowTo(rows uint64) bool {
	if rows <= h.Rows {
		return false
	}
	h.Rows = rows
	if rows <= h.Capacity {
		return false
	}

	chunk := uint64(h.ChunkRows)
	h.Capacity = (rows + chunk - 1) / chunk * chunk

	return true
}

// Bytes serializes the header into a DatasetHeaderSize byte slice.
func (h DatasetHeader) Bytes() []byte {
	b := make([]byte, DatasetHeaderSize)
	engine := h.Flag.GetEndianEngine()

	h.Flag.PutTo(b[0:4])
	engine.PutUint32(b[4:8], h.GID)
	engine.PutUint32(b[8:12], h.Columns)
	engine.PutUint32(b[12:16], h.Sections)
	engine.PutUint64(b[16:24], h.Rows)
	engine.PutUint64(b[24:32], h.Capacity)
	engine.PutUint32(b[32:36], h.ChunkRows)
	engine.PutUint64(b[40:48], h.DataOffset)
	engine.PutUint64(b[48:56], h.CountsChecksum)
	engine.PutUint64(b[56:64], hash.Checksum(b[:56]))

	return b
}

// Parse parses the header from a byte slice.
//
// Parameters:
//   - data: Byte slice containing the header (must be exactly 64 bytes)
//
// Returns:
//   - error: ErrInvalidHeaderSize, flag validation errors, ErrChecksumMismatch,
//     or ErrInconsistent when the geometry fields contradict each other
func (h *DatasetHeader) Parse(data []byte) error {
	if len(data) != DatasetHeaderSize {
		return errs.ErrInvalidHeaderSize
	}

	flag, err := ParseFlag(data)
	if err != nil {
		return err
	}
	if err := flag.Validate(MagicDatasetV1Opt); err != nil {
		return err
	}

	engine := flag.GetEndianEngine()
	if engine.Uint64(data[56:64]) != hash.Checksum(data[:56]) {
		return fmt.Errorf("%w: dataset header", errs.ErrChecksumMismatch)
	}

	h.Flag = flag
	h.GID = engine.Uint32(data[4:8])
	h.Columns = engine.Uint32(data[8:12])
	h.Sections = engine.Uint32(data[12:16])
	h.Rows = engine.Uint64(data[16:24])
	h.Capacity = engine.Uint64(data[24:32])
	h.ChunkRows = engine.Uint32(data[32:36])
	h.DataOffset = engine.Uint64(data[40:48])
	h.CountsChecksum = engine.Uint64(data[48:56])

	switch {
	case h.ChunkRows == 0:
		return fmt.Errorf("%w: zero chunk rows", errs.ErrInconsistent)
	case h.Rows > h.Capacity:
		return fmt.Errorf("%w: rows %d exceed capacity %d", errs.ErrInconsistent, h.Rows, h.Capacity)
	case h.DataOffset < uint64(DatasetHeaderSize+h.CountsSize()):
		return fmt.Errorf("%w: data offset %d overlaps counts", errs.ErrInconsistent, h.DataOffset)
	}

	return nil
}

// EncodeCounts encodes section counts in the header's byte order.
func (h DatasetHeader) EncodeCounts(counts []uint16) []byte {
	engine := h.Flag.GetEndianEngine()
	b := make([]byte, 0, len(counts)*2)
	for _, c := range counts {
		b = engine.AppendUint16(b, c)
	}

	return b
}

// DecodeCounts decodes and verifies the section counts that follow the header.
//
// Returns:
//   - []uint16: Per-section compartment counts
//   - error: ErrInvalidHeaderSize, ErrChecksumMismatch, or ErrInconsistent if
//     the counts do not sum to Columns
func (h DatasetHeader) DecodeCounts(data []byte) ([]uint16, error) {
	size := h.CountsSize()
	if len(data) < size {
		return nil, errs.ErrInvalidHeaderSize
	}
	data = data[:size]
	if hash.Checksum(data) != h.CountsChecksum {
		return nil, fmt.Errorf("%w: section counts", errs.ErrChecksumMismatch)
	}

	engine := h.Flag.GetEndianEngine()
	counts := make([]uint16, h.Sections)
	var total uint32
	for i := range counts {
		counts[i] = engine.Uint16(data[i*2:])
		total += uint32(counts[i])
	}
	if total != h.Columns {
		return nil, fmt.Errorf("%w: counts sum to %d, header declares %d columns", errs.ErrInconsistent, total, h.Columns)
	}

	return counts, nil
}

// ParseDatasetHeader parses a DatasetHeader from the start of data.
func ParseDatasetHeader(data []byte) (DatasetHeader, error) {
	if len(data) < DatasetHeaderSize {
		return DatasetHeader{}, errs.ErrInvalidHeaderSize
	}

	var h DatasetHeader
	if err := h.Parse(data[:DatasetHeaderSize]); err != nil {
		return DatasetHeader{}, err
	}

	return h, nil
}
