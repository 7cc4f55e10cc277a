package section

import (
	"testing"

	"github.com/arloliu/creport/endian"
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/stretchr/testify/require"
)

func TestBinaryHeader_RoundTrip(t *testing.T) {
	h := NewBinaryHeader(format.CompressionS2)
	h.GIDCount = 3
	h.FrameCount = 10
	h.MappingOffset = 120
	h.IndexOffset = 180
	h.PayloadOffset = 180 + 10*FrameIndexEntrySize
	h.FrameSize = 42

	data := h.Bytes()
	require.Len(t, data, BinaryHeaderSize)
	require.True(t, HasBinaryMagic(data))

	parsed, err := ParseBinaryHeader(data)
	require.NoError(t, err)
	require.Equal(t, h, parsed)
	require.Equal(t, format.CompressionS2, parsed.Flag.CompressionType())
}

func TestParseBinaryHeader_Errors(t *testing.T) {
	t.Run("Too short", func(t *testing.T) {
		_, err := ParseBinaryHeader(make([]byte, 8))
		require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)
	})

	t.Run("Offsets out of order", func(t *testing.T) {
		h := NewBinaryHeader(format.CompressionNone)
		h.MappingOffset = 10

		_, err := ParseBinaryHeader(h.Bytes())
		require.ErrorIs(t, err, errs.ErrInconsistent)
	})

	t.Run("Index size mismatch", func(t *testing.T) {
		h := NewBinaryHeader(format.CompressionNone)
		h.MappingOffset = 100
		h.IndexOffset = 100
		h.PayloadOffset = 100
		h.FrameCount = 2

		_, err := ParseBinaryHeader(h.Bytes())
		require.ErrorIs(t, err, errs.ErrInconsistent)
	})

	t.Run("Not a binary report", func(t *testing.T) {
		data := make([]byte, BinaryHeaderSize)
		NewFlag(MagicDatasetV1Opt).PutTo(data)

		require.False(t, HasBinaryMagic(data))
		require.False(t, HasBinaryMagic(nil))
		_, err := ParseBinaryHeader(data)
		require.ErrorIs(t, err, errs.ErrInvalidMagicNumber)
	})
}

func TestMappingEntry(t *testing.T) {
	h := NewBinaryHeader(format.CompressionNone)
	engine := endian.GetLittleEndianEngine()

	var buf []byte
	buf = AppendMappingEntry(engine, buf, 10, []uint16{3, 2})
	buf = AppendMappingEntry(engine, buf, 11, nil)
	require.Len(t, buf, MappingEntrySize(2)+MappingEntrySize(0))

	gid, counts, n, err := h.ParseMappingEntry(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(10), gid)
	require.Equal(t, []uint16{3, 2}, counts)

	gid, counts, _, err = h.ParseMappingEntry(buf[n:])
	require.NoError(t, err)
	require.Equal(t, uint32(11), gid)
	require.Empty(t, counts)

	_, _, _, err = h.ParseMappingEntry(buf[:n-1])
	require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)
}

func TestFrameIndexEntry(t *testing.T) {
	engine := endian.GetBigEndianEngine()
	entry := FrameIndexEntry{Offset: 1 << 40, Length: 512, Checksum: 0xDEADBEEF}

	b := make([]byte, FrameIndexEntrySize)
	entry.WriteToSlice(engine, b)

	parsed, err := ParseFrameIndexEntry(engine, b)
	require.NoError(t, err)
	require.Equal(t, entry, parsed)
	require.False(t, parsed.IsEmpty())
	require.True(t, FrameIndexEntry{}.IsEmpty())

	_, err = ParseFrameIndexEntry(engine, b[:4])
	require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)
}
