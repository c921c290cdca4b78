package uleb

import (
	"testing"

	"github.com/bgrewell/vromfs-kit/pkg/blkerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_SingleByte(t *testing.T) {
	n, v, err := Decode([]byte{0x2a})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(42), v)
}

func TestDecode_MultiByte(t *testing.T) {
	// 300 = 0b1_0010_1100 -> groups: 0101100 (lower 7), continue; 0000010 (upper)
	n, v, err := Decode([]byte{0xAC, 0x02, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(300), v)
}

func TestDecode_EmptyBuffer(t *testing.T) {
	_, _, err := Decode(nil)
	assert.ErrorIs(t, err, blkerr.ErrEmptyBuffer)
}

func TestDecode_TruncatedContinuation(t *testing.T) {
	_, _, err := Decode([]byte{0x80})
	assert.ErrorIs(t, err, blkerr.ErrTruncatedContinuation)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 16384, 1 << 40}
	for _, v := range values {
		buf := Encode(nil, v)
		assert.Equal(t, Size(v), len(buf))
		n, got, err := Decode(append(buf, 0xFF))
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, v, got)
	}
}
