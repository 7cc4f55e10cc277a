// Package section defines the low-level binary structures of the creport containers.
//
// Every container file starts with a 4-byte Flag that identifies the layout
// (magic number), the byte order of everything that follows, a layout version
// and the payload compression. Fixed-size headers follow the flag and carry an
// xxHash64 checksum so corruption surfaces as errs.ErrChecksumMismatch instead
// of garbage frames.
//
// # Flag Format
//
//	Bytes 0-1 (Options, always little-endian):
//	  Bit 0:     Reserved (must be 0)
//	  Bit 1:     Endianness (0=little-endian, 1=big-endian)
//	  Bits 2-3:  Reserved (must be 0)
//	  Bits 4-15: Magic number
//	Byte 2: Version
//	Byte 3: Compression (format.CompressionType)
//
// Magic numbers:
//
//	MagicDatasetV1Opt = 0xCD10  // per-neuron dataset file (<gid>.cds)
//	MagicAttrsV1Opt   = 0xCA10  // container attribute file (report.attrs)
//	MagicBinaryV1Opt  = 0xCB10  // single-file binary report
//
// # Dataset File
//
// One file per neuron. The rows form a two-dimensional time × compartment
// dataset; row i starts at DataOffset + i*Columns*4 so any single row (one
// hyperslab) is one positioned read.
//
//	┌─────────────────────────────────────────────────────────┐
//	│ DatasetHeader (64 bytes, fixed)                         │
//	├─────────────────────────────────────────────────────────┤
//	│ Section counts (Sections × uint16)                      │
//	├─────────────────────────────────────────────────────────┤
//	│ Padding (0-7 bytes, for 8-byte alignment)               │
//	├─────────────────────────────────────────────────────────┤
//	│ Rows (Capacity × Columns × float32)                     │
//	│  - rows >= Rows are unwritten and read as zero          │
//	└─────────────────────────────────────────────────────────┘
//
//	Bytes  | Field          | Type   | Description
//	-------|----------------|--------|----------------------------------
//	0-3    | Flag           | Flag   |
//	4-7    | GID            | uint32 | neuron identifier
//	8-11   | Columns        | uint32 | sum of section counts
//	12-15  | Sections       | uint32 | number of sections
//	16-23  | Rows           | uint64 | rows written (extent)
//	24-31  | Capacity       | uint64 | rows allocated on disk
//	32-35  | ChunkRows      | uint32 | allocation granularity in rows
//	36-39  | Reserved       |        |
//	40-47  | DataOffset     | uint64 | byte offset of row 0
//	48-55  | CountsChecksum | uint64 | xxHash64 of the section counts
//	56-63  | Checksum       | uint64 | xxHash64 of bytes 0-55
//
// # Container Attributes
//
//	Bytes  | Field          | Type    |
//	-------|----------------|---------|
//	0-3    | Flag           | Flag    |
//	4-5    | DataUnit len   | uint16  |
//	6-7    | TimeUnit len   | uint16  |
//	8-15   | StartTime      | float64 |
//	16-23  | EndTime        | float64 |
//	24-31  | Timestep       | float64 |
//	32-... | DataUnit, TimeUnit bytes  |
//	last 8 | Checksum       | uint64  | xxHash64 of all preceding bytes
//
// # Binary Report File
//
//	┌─────────────────────────────────────────────────────────┐
//	│ BinaryHeader (64 bytes, fixed)                          │
//	├─────────────────────────────────────────────────────────┤
//	│ Container attributes (variable)                         │
//	├─────────────────────────────────────────────────────────┤
//	│ Mapping table: per GID {gid, sections, counts...}       │
//	├─────────────────────────────────────────────────────────┤
//	│ Frame index (FrameCount × 16 bytes)                     │
//	├─────────────────────────────────────────────────────────┤
//	│ Frame payload (compressed float32 frames)               │
//	└─────────────────────────────────────────────────────────┘
//
// All types in this package are plain values; none of them perform I/O.
package section
