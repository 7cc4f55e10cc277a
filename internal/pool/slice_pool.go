// Package pool provides reusable scratch buffers for the row and frame codecs.
package pool

import "sync"

// Scratch buffers larger than this are dropped instead of pooled so one huge
// frame does not pin memory for the lifetime of the process.
const maxPooledBytes = 8 * 1024 * 1024

var (
	byteSlicePool = sync.Pool{
		New: func() any { return &[]byte{} },
	}
	float32SlicePool = sync.Pool{
		New: func() any { return &[]float32{} },
	}
)

// GetBytes retrieves a byte slice of exactly size bytes from the pool.
//
// The contents are unspecified. The caller must call the returned cleanup
// function (typically with defer) once the slice is no longer referenced.
//
// Example:
//
//	buf, release := pool.GetBytes(columns * endian.Float32Size)
//	defer release()
func GetBytes(size int) ([]byte, func()) {
	ptr, _ := byteSlicePool.Get().(*[]byte)
	if cap(*ptr) < size {
		*ptr = make([]byte, size)
	}
	*ptr = (*ptr)[:size]

	return *ptr, func() {
		if cap(*ptr) <= maxPooledBytes {
			byteSlicePool.Put(ptr)
		}
	}
}

// GetFloat32s retrieves a float32 slice of exactly size elements from the pool.
//
// The contents are unspecified; see GetBytes for the cleanup contract.
func GetFloat32s(size int) ([]float32, func()) {
	ptr, _ := float32SlicePool.Get().(*[]float32)
	if cap(*ptr) < size {
		*ptr = make([]float32, size)
	}
	*ptr = (*ptr)[:size]

	return *ptr, func() {
		if cap(*ptr)*4 <= maxPooledBytes {
			float32SlicePool.Put(ptr)
		}
	}
}
