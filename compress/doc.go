// Package compress provides the codecs applied to encoded compartment rows and frames.
//
// Rows and frames are first encoded as raw IEEE 754 float32 values (see package
// endian), then optionally compressed by one of the codecs below. The codec in
// use is recorded in each container's header flag so readers never need to be
// configured with it.
//
// Supported algorithms:
//   - None (format.CompressionNone): bytes are passed through untouched
//   - Zstd (format.CompressionZstd): best ratio; pure Go by default, cgo with the zstdcgo build tag
//   - S2 (format.CompressionS2): balanced speed and ratio
//   - LZ4 (format.CompressionLZ4): fastest decompression
//
// Membrane voltage traces change slowly between neighbouring compartments, so
// Zstd typically shrinks a frame by 2-4x while S2 and LZ4 trade some of that for
// lower latency on the frame read path.
//
// Every codec returned by GetCodec is stateless from the caller's point of view
// and safe for concurrent use.
package compress
