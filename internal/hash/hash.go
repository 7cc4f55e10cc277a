// Package hash wraps xxHash64 for report identifiers and integrity checks.
package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of a report name.
func ID(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Checksum computes the xxHash64 of data.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Checksum32 folds the 64-bit checksum of data into 32 bits, for index
// entries that only reserve four bytes.
func Checksum32(data []byte) uint32 {
	sum := xxhash.Sum64(data)
	return uint32(sum>>32) ^ uint32(sum) //nolint: gosec
}

// Digest accumulates a checksum over several non-contiguous parts.
type Digest struct {
	d *xxhash.Digest
}

// NewDigest returns an empty Digest.
func NewDigest() Digest {
	return Digest{d: xxhash.New()}
}

// Write adds p to the digest.
func (d Digest) Write(p []byte) {
	_, _ = d.d.Write(p)
}

// Sum64 returns the checksum of everything written so far.
func (d Digest) Sum64() uint64 {
	return d.d.Sum64()
}
