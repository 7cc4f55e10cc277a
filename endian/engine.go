// Package endian provides byte order utilities for the creport binary layouts.
//
// EndianEngine combines binary.ByteOrder and binary.AppendByteOrder so the
// same value can both patch fixed header slots and append variable payloads.
// Every creport file records its byte order in its header flag; writers default
// to little-endian.
//
// The float32 helpers encode and decode compartment rows: a row of n values
// occupies exactly 4*n bytes in IEEE 754 binary32 form.
//
// All functions are safe for concurrent use.
package endian

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// EndianEngine is satisfied by binary.LittleEndian and binary.BigEndian.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Float32Size is the encoded size of one compartment value.
const Float32Size = 4

// CheckEndianness returns the host byte order.
func CheckEndianness() binary.ByteOrder {
	var i uint16 = 0x0100
	b := (*[2]byte)(unsafe.Pointer(&i))
	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// IsNativeLittleEndian reports whether the host is little-endian.
func IsNativeLittleEndian() bool {
	return CheckEndianness() == binary.LittleEndian
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// PutFloat32s encodes src into dst, which must hold at least 4*len(src) bytes.
//
// Returns:
//   - int: number of bytes written
func PutFloat32s(engine EndianEngine, dst []byte, src []float32) int {
	if len(src) == 0 {
		return 0
	}
	_ = dst[len(src)*Float32Size-1] // bounds hint
	for i, v := range src {
		engine.PutUint32(dst[i*Float32Size:], math.Float32bits(v))
	}

	return len(src) * Float32Size
}

// AppendFloat32s appends the encoding of src to dst.
func AppendFloat32s(engine EndianEngine, dst []byte, src []float32) []byte {
	for _, v := range src {
		dst = engine.AppendUint32(dst, math.Float32bits(v))
	}

	return dst
}

// Float32s decodes len(dst) values from src into dst.
// src must hold at least 4*len(dst) bytes.
func Float32s(engine EndianEngine, dst []float32, src []byte) {
	if len(dst) == 0 {
		return
	}
	_ = src[len(dst)*Float32Size-1] // bounds hint
	for i := range dst {
		dst[i] = math.Float32frombits(engine.Uint32(src[i*Float32Size:]))
	}
}

// PutFloat64 writes v at the start of dst.
func PutFloat64(engine EndianEngine, dst []byte, v float64) {
	engine.PutUint64(dst, math.Float64bits(v))
}

// Float64 reads a float64 from the start of src.
func Float64(engine EndianEngine, src []byte) float64 {
	return math.Float64frombits(engine.Uint64(src))
}
