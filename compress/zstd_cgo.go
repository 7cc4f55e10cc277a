//go:build zstdcgo

package compress

import (
	"github.com/valyala/gozstd"
)

// zstdLevel keeps rows written by the libzstd build comparable in size to the
// pure Go build (zstd.SpeedDefault).
const zstdLevel = 3

// Compress packs one row or frame payload with libzstd.
// Stored payloads stay readable by the pure Go decoder.
func (c ZstdCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return gozstd.CompressLevel(nil, data, zstdLevel), nil
}

// Decompress unpacks a stored row or frame payload with libzstd.
func (c ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return gozstd.Decompress(nil, data)
}
