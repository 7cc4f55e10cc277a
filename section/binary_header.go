package section

import (
	"fmt"

	"github.com/arloliu/creport/endian"
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/internal/hash"
)

// BinaryHeader is the fixed-size header at the start of a single-file binary report.
type BinaryHeader struct {
	// Flag carries the frame payload compression.
	Flag Flag // byte offset 0-3
	// GIDCount is the number of neurons in the mapping table.
	GIDCount uint32 // byte offset 4-7
	// FrameCount is the number of entries in the frame index.
	FrameCount uint32 // byte offset 8-11
	// AttrsOffset is the byte offset of the container attributes.
	AttrsOffset uint64 // byte offset 16-23
	// MappingOffset is the byte offset of the mapping table.
	MappingOffset uint64 // byte offset 24-31
	// IndexOffset is the byte offset of the frame index.
	IndexOffset uint64 // byte offset 32-39
	// PayloadOffset is the byte offset of the first frame payload.
	PayloadOffset uint64 // byte offset 40-47
	// FrameSize is the number of float32 values per decoded frame.
	FrameSize uint64 // byte offset 48-55
}

// NewBinaryHeader creates a little-endian binary header with the given frame compression.
func NewBinaryHeader(compression format.CompressionType) BinaryHeader {
	flag := NewFlag(MagicBinaryV1Opt)
	flag.SetCompression(compression)

	return BinaryHeader{Flag: flag, AttrsOffset: BinaryHeaderSize}
}

// Bytes serializes the header into a BinaryHeaderSize byte slice.
func (h BinaryHeader) Bytes() []byte {
	b := make([]byte, BinaryHeaderSize)
	engine := h.Flag.GetEndianEngine()

	h.Flag.PutTo(b[0:4])
	engine.PutUint32(b[4:8], h.GIDCount)
	engine.PutUint32(b[8:12], h.FrameCount)
	engine.PutUint64(b[16:24], h.AttrsOffset)
	engine.PutUint64(b[24:32], h.MappingOffset)
	engine.PutUint64(b[32:40], h.IndexOffset)
	engine.PutUint64(b[40:48], h.PayloadOffset)
	engine.PutUint64(b[48:56], h.FrameSize)
	engine.PutUint64(b[56:64], hash.Checksum(b[:56]))

	return b
}

// ParseBinaryHeader parses a BinaryHeader from the start of data.
//
// Returns:
//   - BinaryHeader: Parsed header
//   - error: ErrInvalidHeaderSize, flag validation errors, ErrChecksumMismatch,
//     or ErrInconsistent when the section offsets are out of order
func ParseBinaryHeader(data []byte) (BinaryHeader, error) {
	if len(data) < BinaryHeaderSize {
		return BinaryHeader{}, errs.ErrInvalidHeaderSize
	}

	flag, err := ParseFlag(data)
	if err != nil {
		return BinaryHeader{}, err
	}
	if err := flag.Validate(MagicBinaryV1Opt); err != nil {
		return BinaryHeader{}, err
	}

	engine := flag.GetEndianEngine()
	if engine.Uint64(data[56:64]) != hash.Checksum(data[:56]) {
		return BinaryHeader{}, fmt.Errorf("%w: binary header", errs.ErrChecksumMismatch)
	}

	h := BinaryHeader{
		Flag:          flag,
		GIDCount:      engine.Uint32(data[4:8]),
		FrameCount:    engine.Uint32(data[8:12]),
		AttrsOffset:   engine.Uint64(data[16:24]),
		MappingOffset: engine.Uint64(data[24:32]),
		IndexOffset:   engine.Uint64(data[32:40]),
		PayloadOffset: engine.Uint64(data[40:48]),
		FrameSize:     engine.Uint64(data[48:56]),
	}

	if h.AttrsOffset < BinaryHeaderSize ||
		h.MappingOffset < h.AttrsOffset ||
		h.IndexOffset < h.MappingOffset ||
		h.PayloadOffset < h.IndexOffset {
		return BinaryHeader{}, fmt.Errorf("%w: section offsets out of order", errs.ErrInconsistent)
	}
	if h.PayloadOffset-h.IndexOffset != uint64(h.FrameCount)*FrameIndexEntrySize {
		return BinaryHeader{}, fmt.Errorf("%w: frame index size", errs.ErrInconsistent)
	}

	return h, nil
}

// HasBinaryMagic reports whether data starts with a binary report flag.
// Only the magic number is checked.
func HasBinaryMagic(data []byte) bool {
	flag, err := ParseFlag(data)
	if err != nil {
		return false
	}

	return flag.GetMagicNumber() == MagicBinaryV1Opt
}

// MappingEntrySize returns the encoded size of one mapping table entry.
func MappingEntrySize(sections int) int {
	return 8 + sections*2
}

// AppendMappingEntry appends {gid, sections, counts...} to dst.
func AppendMappingEntry(engine endian.EndianEngine, dst []byte, gid uint32, counts []uint16) []byte {
	dst = engine.AppendUint32(dst, gid)
	dst = engine.AppendUint32(dst, uint32(len(counts))) //nolint: gosec
	for _, c := range counts {
		dst = engine.AppendUint16(dst, c)
	}

	return dst
}

// ParseMappingEntry decodes one mapping table entry from the start of data.
//
// Returns:
//   - uint32: GID
//   - []uint16: Section counts
//   - int: Number of bytes consumed
//   - error: ErrInvalidHeaderSize if data is truncated
func (h BinaryHeader) ParseMappingEntry(data []byte) (uint32, []uint16, int, error) {
	if len(data) < 8 {
		return 0, nil, 0, errs.ErrInvalidHeaderSize
	}

	engine := h.Flag.GetEndianEngine()
	gid := engine.Uint32(data[0:4])
	sections := int(engine.Uint32(data[4:8]))
	if sections > MaxSections || len(data) < MappingEntrySize(sections) {
		return 0, nil, 0, errs.ErrInvalidHeaderSize
	}

	counts := make([]uint16, sections)
	for i := range counts {
		counts[i] = engine.Uint16(data[8+i*2:])
	}

	return gid, counts, MappingEntrySize(sections), nil
}
