package compress

// ZstdCompressor provides Zstandard compression for frames and rows.
//
// The default build uses github.com/klauspost/compress/zstd with pooled
// encoders and decoders; building with the zstdcgo tag switches to
// github.com/valyala/gozstd.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor returns the Zstd row and frame codec.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
