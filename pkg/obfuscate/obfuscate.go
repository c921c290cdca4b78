// Package obfuscate implements the reversible XOR mask applied to the head
// (and, for long payloads, a window near the tail) of an obfuscated VROMFS
// inner payload. See spec section 4.3.
package obfuscate

import "encoding/binary"

// forwardWords and reverseWords are the four 32-bit little-endian words that
// make up the XOR pattern, and its mirror image used on the tail window.
var (
	forwardWords = [4]uint32{0xAA55AA55, 0xF00FF00F, 0xAA55AA55, 0x12481248}
	reverseWords = [4]uint32{0x12481248, 0xAA55AA55, 0xF00FF00F, 0xAA55AA55}
)

func patternBytes(words [4]uint32) [16]byte {
	var b [16]byte
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:i*4+4], w)
	}
	return b
}

var (
	forwardPattern = patternBytes(forwardWords)
	reversePattern = patternBytes(reverseWords)
)

// Apply toggles the obfuscation mask in place. It is its own inverse:
// Apply(Apply(b)) == b for any b.
//
//   - len(data) < 16: no-op.
//   - 16 <= len(data) < 32: XOR the first 16 bytes with the forward pattern.
//   - len(data) >= 32: XOR the first 16 bytes with the forward pattern, and
//     XOR a 16-byte window at offset (len(data)&0x03FFFFFC)-16 with the
//     reverse pattern.
func Apply(data []byte) {
	n := len(data)
	if n < 16 {
		return
	}

	xor16(data[:16], forwardPattern)

	if n < 32 {
		return
	}

	tail := (n & 0x03FFFFFC) - 16
	xor16(data[tail:tail+16], reversePattern)
}

func xor16(dst []byte, pattern [16]byte) {
	_ = dst[15] // bounds check hoist
	for i := 0; i < 16; i++ {
		dst[i] ^= pattern[i]
	}
}
