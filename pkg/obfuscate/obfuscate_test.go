package obfuscate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_ShortBufferNoop(t *testing.T) {
	data := bytes.Repeat([]byte{0xFF}, 10)
	orig := append([]byte(nil), data...)
	Apply(data)
	assert.Equal(t, orig, data)
}

func TestApply_HeadOnlyFixture(t *testing.T) {
	// Scenario 4 from the spec: a 24-byte buffer of 0xFF.
	data := bytes.Repeat([]byte{0xFF}, 24)
	want := []byte{
		0xAA, 0x55, 0xAA, 0x55, 0xF0, 0x0F, 0xF0, 0x0F,
		0xAA, 0x55, 0xAA, 0x55, 0xB7, 0xED, 0xB7, 0xED,
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	}
	Apply(data)
	assert.Equal(t, want, data)
}

func TestApply_Involution(t *testing.T) {
	for _, n := range []int{0, 5, 15, 16, 17, 31, 32, 33, 64, 127, 4096} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 7)
		}
		orig := append([]byte(nil), data...)
		Apply(data)
		Apply(data)
		require.Equal(t, orig, data, "n=%d", n)
	}
}

func TestApply_LongBufferTailWindow(t *testing.T) {
	data := make([]byte, 64)
	Apply(data)
	// Head window changed.
	assert.NotEqual(t, byte(0), data[0])
	// Tail window at (64 & 0x03FFFFFC) - 16 = 48.
	tail := (64 & 0x03FFFFFC) - 16
	assert.Equal(t, 48, tail)
	assert.NotEqual(t, make([]byte, 16), data[tail:tail+16])
}
