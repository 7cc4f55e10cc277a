package format

import (
	"fmt"
	"strings"
)

type (
	AccessMode      uint8
	CompressionType uint8
	Kind            uint8
)

// Access mode bits. ModeOverwrite implies ModeWrite; ModeReadWrite is ModeRead|ModeWrite.
const (
	ModeRead      AccessMode = 0x1
	ModeWrite     AccessMode = 0x2
	modeTruncate  AccessMode = 0x4
	ModeOverwrite            = ModeWrite | modeTruncate
	ModeReadWrite            = ModeRead | ModeWrite
)

const (
	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

// Report encodings known to the engine.
const (
	KindInvalid Kind = iota
	KindNull         // discarding sink
	KindBinary       // single-file, frame-major
	KindKV           // badger key/value store
	KindDataset      // one dataset per neuron
)

// CanRead reports whether the mode permits reading existing data.
func (m AccessMode) CanRead() bool {
	return m&ModeRead != 0
}

// CanWrite reports whether the mode permits writing.
func (m AccessMode) CanWrite() bool {
	return m&ModeWrite != 0
}

// Truncates reports whether existing data is discarded on open.
func (m AccessMode) Truncates() bool {
	return m&modeTruncate != 0
}

func (m AccessMode) String() string {
	switch m {
	case ModeRead:
		return "Read"
	case ModeWrite:
		return "Write"
	case ModeOverwrite:
		return "Overwrite"
	case ModeReadWrite:
		return "ReadWrite"
	default:
		return "Unknown"
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// ParseCompression parses a case-insensitive compression name.
func ParseCompression(s string) (CompressionType, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBinary:
		return "binary"
	case KindKV:
		return "kv"
	case KindDataset:
		return "dataset"
	default:
		return "invalid"
	}
}

// ParseKind parses a backend name as returned by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "null":
		return KindNull, nil
	case "binary":
		return KindBinary, nil
	case "kv":
		return KindKV, nil
	case "dataset", "h5d":
		return KindDataset, nil
	default:
		return KindInvalid, fmt.Errorf("unknown report kind %q", s)
	}
}
