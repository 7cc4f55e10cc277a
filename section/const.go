package section

import "math"

const (
	// Bit masks of Flag.Options.
	EndiannessMask   = 0x0002 // Mask for endianness bit (bit 1)
	ReservedBitsMask = 0x000D // Mask for reserved bits (bits 0, 2, 3)
	MagicNumberMask  = 0xFFF0 // Mask for magic number (bits 4-15)

	// Magic numbers (bits 4-15).
	MagicDatasetV1Opt = 0xCD10 // per-neuron dataset file
	MagicAttrsV1Opt   = 0xCA10 // container attribute file
	MagicBinaryV1Opt  = 0xCB10 // single-file binary report

	// Version is the layout version written by this package.
	Version = 1
)

const (
	FlagSize            = 4  // packed flag size in bytes
	DatasetHeaderSize   = 64 // fixed dataset header size in bytes
	BinaryHeaderSize    = 64 // fixed binary report header size in bytes
	AttrsFixedSize      = 32 // container attributes before the unit strings
	ChecksumSize        = 8  // trailing xxHash64
	FrameIndexEntrySize = 16 // fixed frame index entry size in bytes

	DefaultChunkRows = 64             // default row allocation granularity
	MaxUnitLength    = math.MaxUint16 // longest unit string
	MaxSections      = math.MaxUint16 // most sections per neuron
)

// align8 rounds n up to the next multiple of 8.
func align8(n int) int {
	return (n + 7) &^ 7
}
