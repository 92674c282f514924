package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quiversearch/quiver/errs"
)

func TestWriter_FixedWidthRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteByte(0xAB))
	require.NoError(t, w.WriteInt8(-5))
	require.NoError(t, w.WriteUint16(0xBEEF))
	require.NoError(t, w.WriteInt32(-123456))
	require.NoError(t, w.WriteUint32(0xDEADBEEF))
	require.NoError(t, w.WriteInt64(-1<<40))
	require.NoError(t, w.WriteUint64(1<<63))
	require.NoError(t, w.WriteFloat32(1.5))
	require.NoError(t, w.WriteFloat64(-2.25))
	require.Equal(t, int64(buf.Len()), w.Offset())

	r := NewBytesReader(buf.Bytes())

	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), b)

	i8, err := r.ReadInt8()
	require.NoError(t, err)
	require.Equal(t, int8(-5), i8)

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0xBEEF), u16)

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(-123456), i32)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), u32)

	i64, err := r.ReadInt64()
	require.NoError(t, err)
	require.Equal(t, int64(-1<<40), i64)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(1)<<63, u64)

	f32, err := r.ReadFloat32()
	require.NoError(t, err)
	require.Equal(t, float32(1.5), f32)

	f64, err := r.ReadFloat64()
	require.NoError(t, err)
	require.Equal(t, -2.25, f64)

	require.Equal(t, int64(0), r.Remaining())
}

func TestWriter_CanonicalByteOrder(t *testing.T) {
	// On-disk layout must be little-endian regardless of host order.
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteUint32(0x01020304))
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf.Bytes())
}

func TestVarintRoundTrip(t *testing.T) {
	uvals := []uint64{0, 1, 127, 128, 255, 300, 16383, 16384, 1 << 32, 1<<64 - 1}
	svals := []int64{0, 1, -1, 63, -64, 64, -65, 1 << 40, -(1 << 40), 1<<63 - 1, -1 << 63}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, v := range uvals {
		require.NoError(t, w.WriteUvarint(v))
	}
	for _, v := range svals {
		require.NoError(t, w.WriteVarint(v))
	}

	r := NewBytesReader(buf.Bytes())
	for _, v := range uvals {
		got, err := r.ReadUvarint()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	for _, v := range svals {
		got, err := r.ReadVarint()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestVarintSingleByteForSmallValues(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteUvarint(127))
	require.Equal(t, 1, buf.Len())

	buf.Reset()
	require.NoError(t, w.WriteUvarint(128))
	require.Equal(t, 2, buf.Len())
}

func TestStringRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("alfa"),
		[]byte("with\x00null\x00bytes"),
		bytes.Repeat([]byte{0xFF}, 1000),
	}

	t.Run("varint prefix", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		for _, c := range cases {
			require.NoError(t, w.WriteVarString(c))
		}
		r := NewBytesReader(buf.Bytes())
		for _, c := range cases {
			got, err := r.ReadVarString()
			require.NoError(t, err)
			require.Equal(t, len(c), len(got))
			require.True(t, bytes.Equal(c, got))
		}
	})

	t.Run("2-byte prefix", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		for _, c := range cases {
			require.NoError(t, w.WriteString2(c))
		}
		r := NewBytesReader(buf.Bytes())
		for _, c := range cases {
			got, err := r.ReadString2()
			require.NoError(t, err)
			require.Equal(t, len(c), len(got))
		}
	})

	t.Run("4-byte prefix", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		for _, c := range cases {
			require.NoError(t, w.WriteString4(c))
		}
		r := NewBytesReader(buf.Bytes())
		for _, c := range cases {
			got, err := r.ReadString4()
			require.NoError(t, err)
			require.Equal(t, len(c), len(got))
		}
	})
}

func TestArrayRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	u32s := []uint32{0, 1, 0xFFFFFFFF, 42}
	i64s := []int64{-1, 0, 1 << 50}
	f64s := []float64{0, -1.5, 3.14159}

	require.NoError(t, w.WriteUint32Slice(u32s))
	require.NoError(t, w.WriteInt64Slice(i64s))
	require.NoError(t, w.WriteFloat64Slice(f64s))

	r := NewBytesReader(buf.Bytes())

	gotU32 := make([]uint32, len(u32s))
	require.NoError(t, r.ReadUint32Slice(gotU32))
	require.Equal(t, u32s, gotU32)

	gotI64 := make([]int64, len(i64s))
	require.NoError(t, r.ReadInt64Slice(gotI64))
	require.Equal(t, i64s, gotI64)

	gotF64 := make([]float64, len(f64s))
	require.NoError(t, r.ReadFloat64Slice(gotF64))
	require.Equal(t, f64s, gotF64)
}

func TestSubset(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteBytes([]byte("aaaabbbbcccc")))

	r := NewBytesReader(buf.Bytes())

	sub, err := r.Subset(4, 4)
	require.NoError(t, err)
	p := make([]byte, 4)
	require.NoError(t, sub.ReadBytes(p))
	require.Equal(t, []byte("bbbb"), p)
	require.Equal(t, int64(0), sub.Remaining())

	// Nested subsets stay relative to the child window.
	sub2, err := r.Subset(4, 8)
	require.NoError(t, err)
	inner, err := sub2.Subset(4, 4)
	require.NoError(t, err)
	require.NoError(t, inner.ReadBytes(p))
	require.Equal(t, []byte("cccc"), p)

	// Out-of-range subset is rejected.
	_, err = r.Subset(8, 8)
	require.ErrorIs(t, err, errs.ErrCorrupt)
}

func TestChecksumWriterReader(t *testing.T) {
	var buf bytes.Buffer
	w := NewChecksumWriter(&buf)
	require.NoError(t, w.WriteUint64(0x0123456789ABCDEF))
	require.NoError(t, w.WriteVarString([]byte("checksummed")))
	sum := w.Checksum()
	require.NotZero(t, sum)

	// Reading the same bytes accumulates the same digest.
	r := NewChecksumReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	_, err := r.ReadUint64()
	require.NoError(t, err)
	_, err = r.ReadVarString()
	require.NoError(t, err)
	require.Equal(t, sum, r.Checksum())
}

func TestChecksumRejectsSeek(t *testing.T) {
	var buf bytes.Buffer
	w := NewChecksumWriter(&buf)
	require.ErrorIs(t, w.SeekTo(0), errs.ErrUnsupported)

	r := NewChecksumReader(bytes.NewReader([]byte("abc")), 3)
	require.ErrorIs(t, r.SeekTo(0), errs.ErrUnsupported)
	_, err := r.Subset(0, 1)
	require.ErrorIs(t, err, errs.ErrUnsupported)
}

func TestReader_ReadPastWindow(t *testing.T) {
	r := NewBytesReader([]byte{1, 2})
	_, err := r.ReadUint32()
	require.ErrorIs(t, err, errs.ErrCorrupt)
}
