package compress

import "github.com/klauspost/compress/s2"

// S2Compressor stores rows and frames as S2 blocks.
//
// S2 keeps most of Snappy's speed on the frame read path while matching the
// long runs of near-equal voltages that neighbouring compartments produce.
type S2Compressor struct{}

var _ Codec = (*S2Compressor)(nil)

// NewS2Compressor returns the S2 row and frame codec.
func NewS2Compressor() S2Compressor {
	return S2Compressor{}
}

// Compress encodes one row or frame payload as a single S2 block.
// An empty payload stays empty so unwritten rows cost no bytes.
func (c S2Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Encode(nil, data), nil
}

// Decompress restores the float32 payload of a stored row or frame block.
func (c S2Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Decode(nil, data)
}
