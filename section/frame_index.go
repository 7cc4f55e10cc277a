package section

import (
	"github.com/arloliu/creport/endian"
	"github.com/arloliu/creport/errs"
)

// FrameIndexEntry locates one compressed frame in a binary report.
//
// Layout (16 bytes):
//
//	Bytes 0-7:   Offset   (uint64, relative to BinaryHeader.PayloadOffset)
//	Bytes 8-11:  Length   (uint32, 0 marks a frame that was never written)
//	Bytes 12-15: Checksum (uint32, folded xxHash64 of the compressed payload)
type FrameIndexEntry struct {
	Offset   uint64
	Length   uint32
	Checksum uint32
}

// IsEmpty reports whether the frame was never written; it reads as zeros.
func (e FrameIndexEntry) IsEmpty() bool {
	return e.Length == 0
}

// WriteToSlice encodes the entry into the first FrameIndexEntrySize bytes of b.
func (e FrameIndexEntry) WriteToSlice(engine endian.EndianEngine, b []byte) {
	engine.PutUint64(b[0:8], e.Offset)
	engine.PutUint32(b[8:12], e.Length)
	engine.PutUint32(b[12:16], e.Checksum)
}

// ParseFrameIndexEntry decodes an entry from the start of data.
func ParseFrameIndexEntry(engine endian.EndianEngine, data []byte) (FrameIndexEntry, error) {
	if len(data) < FrameIndexEntrySize {
		return FrameIndexEntry{}, errs.ErrInvalidHeaderSize
	}

	return FrameIndexEntry{
		Offset:   engine.Uint64(data[0:8]),
		Length:   engine.Uint32(data[8:12]),
		Checksum: engine.Uint32(data[12:16]),
	}, nil
}
