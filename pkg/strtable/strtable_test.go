package strtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNames_Basic(t *testing.T) {
	data := []byte("root\x00alpha\x00beta\x00")
	names := ParseNames(data, 3)
	assert.Equal(t, []Handle{"root", "alpha", "beta"}, names)
}

func TestParseNames_NoTrailingZero(t *testing.T) {
	data := []byte("root\x00alpha")
	names := ParseNames(data, 2)
	assert.Equal(t, []Handle{"root", "alpha"}, names)
}

func TestParseNames_LossyUTF8(t *testing.T) {
	data := append([]byte("ok\x00"), 0xFF, 0xFE, 0x00)
	names := ParseNames(data, 2)
	assert.Equal(t, Handle("ok"), names[0])
	assert.Equal(t, "��", names[1].String())
}

func TestHandleLess(t *testing.T) {
	assert.True(t, Handle("alpha").Less("beta"))
	assert.False(t, Handle("beta").Less("alpha"))
}
