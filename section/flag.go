package section

import (
	"fmt"

	"github.com/arloliu/creport/endian"
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
)

// Flag is the packed 4-byte prefix shared by every creport container.
type Flag struct {
	// Options holds the magic number and the endianness bit.
	Options uint16
	// Version is the layout version.
	Version uint8
	// Compression is the payload compression; dataset files always use CompressionNone.
	Compression uint8
}

// NewFlag creates a little-endian, uncompressed flag for the given magic number.
func NewFlag(magic uint16) Flag {
	return Flag{
		Options:     magic & MagicNumberMask,
		Version:     Version,
		Compression: uint8(format.CompressionNone),
	}
}

// ParseFlag decodes the first FlagSize bytes of data.
func ParseFlag(data []byte) (Flag, error) {
	if len(data) < FlagSize {
		return Flag{}, errs.ErrInvalidHeaderSize
	}

	return Flag{
		Options:     uint16(data[0]) | uint16(data[1])<<8,
		Version:     data[2],
		Compression: data[3],
	}, nil
}

// PutTo writes the flag into the first FlagSize bytes of b.
func (f Flag) PutTo(b []byte) {
	b[0] = byte(f.Options)
	b[1] = byte(f.Options >> 8)
	b[2] = f.Version
	b[3] = f.Compression
}

// IsLittleEndian returns whether the data is little-endian.
func (f Flag) IsLittleEndian() bool {
	return f.Options&EndiannessMask == 0
}

// WithBigEndian sets big-endian byte order.
func (f *Flag) WithBigEndian() {
	f.Options |= EndiannessMask
}

// WithLittleEndian sets little-endian byte order.
func (f *Flag) WithLittleEndian() {
	f.Options &^= EndiannessMask
}

// GetMagicNumber returns the magic number from the Options field.
func (f Flag) GetMagicNumber() uint16 {
	return f.Options & MagicNumberMask
}

// CompressionType returns the payload compression.
func (f Flag) CompressionType() format.CompressionType {
	return format.CompressionType(f.Compression)
}

// SetCompression sets the payload compression.
func (f *Flag) SetCompression(c format.CompressionType) {
	f.Compression = uint8(c)
}

// GetEndianEngine returns the engine matching the endianness bit.
func (f Flag) GetEndianEngine() endian.EndianEngine {
	if f.IsLittleEndian() {
		return endian.GetLittleEndianEngine()
	}

	return endian.GetBigEndianEngine()
}

// Validate checks the magic number, reserved bits, version and compression.
func (f Flag) Validate(magic uint16) error {
	if f.GetMagicNumber() != magic {
		return fmt.Errorf("%w: got 0x%04X, want 0x%04X", errs.ErrInvalidMagicNumber, f.GetMagicNumber(), magic)
	}
	if f.Options&ReservedBitsMask != 0 {
		return fmt.Errorf("%w: reserved bits set", errs.ErrInvalidHeaderFlags)
	}
	if f.Version == 0 || f.Version > Version {
		return fmt.Errorf("%w: version %d", errs.ErrInvalidHeaderFlags, f.Version)
	}
	switch f.CompressionType() {
	case format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4:
		return nil
	default:
		return fmt.Errorf("%w: 0x%02X", errs.ErrInvalidCompression, f.Compression)
	}
}
