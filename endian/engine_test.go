package endian

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckEndianness(t *testing.T) {
	result := CheckEndianness()
	switch result {
	case binary.BigEndian, binary.LittleEndian:
	default:
		t.Fatalf("unexpected ByteOrder: %v", result)
	}

	// Stable across calls.
	for i := 0; i < 10; i++ {
		require.Equal(t, result, CheckEndianness())
	}

	require.NotEqual(t, IsNativeLittleEndian(), IsNativeBigEndian())
	require.Equal(t, IsNativeLittleEndian(), CompareNativeEndian(GetLittleEndianEngine()))
}

func TestLittleEndianEngine(t *testing.T) {
	engine := GetLittleEndianEngine()
	require.Implements(t, (*EndianEngine)(nil), engine)
	require.Equal(t, binary.LittleEndian, engine)

	b := make([]byte, 2)
	engine.PutUint16(b, 0x0102)
	require.Equal(t, []byte{0x02, 0x01}, b, "LSB comes first")
	require.Equal(t, uint16(0x0102), engine.Uint16(b))
}

func TestEnginesDisagreeOnLayout(t *testing.T) {
	little := GetLittleEndianEngine()
	big := GetBigEndianEngine()

	lb := make([]byte, 8)
	bb := make([]byte, 8)
	var v uint64 = 0x0102030405060708
	little.PutUint64(lb, v)
	big.PutUint64(bb, v)

	require.NotEqual(t, lb, bb)
	require.Equal(t, v, little.Uint64(lb))
	require.Equal(t, v, big.Uint64(bb))

	require.Equal(t, lb, little.AppendUint64(nil, v))
}
