package section

import (
	"fmt"

	"github.com/arloliu/creport/endian"
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/internal/hash"
)

// ContainerAttrs holds the container-level report attributes: time axis and units.
type ContainerAttrs struct {
	Flag      Flag
	StartTime float64
	EndTime   float64
	Timestep  float64
	DataUnit  string
	TimeUnit  string
}

// NewContainerAttrs creates little-endian attributes with the given values.
func NewContainerAttrs(start, end, timestep float64, dataUnit, timeUnit string) ContainerAttrs {
	return ContainerAttrs{
		Flag:      NewFlag(MagicAttrsV1Opt),
		StartTime: start,
		EndTime:   end,
		Timestep:  timestep,
		DataUnit:  dataUnit,
		TimeUnit:  timeUnit,
	}
}

// Size returns the encoded size in bytes.
func (a ContainerAttrs) Size() int {
	return AttrsFixedSize + len(a.DataUnit) + len(a.TimeUnit) + ChecksumSize
}

// Bytes serializes the attributes, including the checksum trailer.
//
// Returns:
//   - []byte: Encoded attributes
//   - error: ErrInvalidHeader if a unit string exceeds MaxUnitLength bytes
func (a ContainerAttrs) Bytes() ([]byte, error) {
	if len(a.DataUnit) > MaxUnitLength || len(a.TimeUnit) > MaxUnitLength {
		return nil, fmt.Errorf("%w: unit string too long", errs.ErrInvalidHeader)
	}

	engine := a.Flag.GetEndianEngine()
	b := make([]byte, AttrsFixedSize, a.Size())
	a.Flag.PutTo(b[0:4])
	engine.PutUint16(b[4:6], uint16(len(a.DataUnit))) //nolint: gosec
	engine.PutUint16(b[6:8], uint16(len(a.TimeUnit))) //nolint: gosec
	endian.PutFloat64(engine, b[8:16], a.StartTime)
	endian.PutFloat64(engine, b[16:24], a.EndTime)
	endian.PutFloat64(engine, b[24:32], a.Timestep)
	b = append(b, a.DataUnit...)
	b = append(b, a.TimeUnit...)
	b = engine.AppendUint64(b, hash.Checksum(b))

	return b, nil
}

// ParseContainerAttrs decodes attributes produced by ContainerAttrs.Bytes.
//
// Returns:
//   - ContainerAttrs: Decoded attributes
//   - int: Number of bytes consumed
//   - error: ErrInvalidHeaderSize, flag validation errors, or ErrChecksumMismatch
func ParseContainerAttrs(data []byte) (ContainerAttrs, int, error) {
	if len(data) < AttrsFixedSize+ChecksumSize {
		return ContainerAttrs{}, 0, errs.ErrInvalidHeaderSize
	}

	flag, err := ParseFlag(data)
	if err != nil {
		return ContainerAttrs{}, 0, err
	}
	if err := flag.Validate(MagicAttrsV1Opt); err != nil {
		return ContainerAttrs{}, 0, err
	}

	engine := flag.GetEndianEngine()
	dlen := int(engine.Uint16(data[4:6]))
	tlen := int(engine.Uint16(data[6:8]))
	end := AttrsFixedSize + dlen + tlen
	if len(data) < end+ChecksumSize {
		return ContainerAttrs{}, 0, errs.ErrInvalidHeaderSize
	}
	if engine.Uint64(data[end:end+ChecksumSize]) != hash.Checksum(data[:end]) {
		return ContainerAttrs{}, 0, fmt.Errorf("%w: container attributes", errs.ErrChecksumMismatch)
	}

	a := ContainerAttrs{
		Flag:      flag,
		StartTime: endian.Float64(engine, data[8:16]),
		EndTime:   endian.Float64(engine, data[16:24]),
		Timestep:  endian.Float64(engine, data[24:32]),
		DataUnit:  string(data[AttrsFixedSize : AttrsFixedSize+dlen]),
		TimeUnit:  string(data[AttrsFixedSize+dlen : end]),
	}

	return a, end + ChecksumSize, nil
}
