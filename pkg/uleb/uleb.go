// Package uleb decodes the variable-length unsigned integers used
// throughout the BLK binary format: base-128 groups where the most
// significant bit of each byte signals continuation.
package uleb

import "github.com/bgrewell/vromfs-kit/pkg/blkerr"

// MaxBytes bounds how many continuation bytes a single value may use before
// a 64-bit accumulator would overflow.
const MaxBytes = 10

// Decode reads a single ULEB128 value from the head of data, returning the
// number of bytes consumed and the decoded value.
//
// It fails with blkerr.ErrEmptyBuffer if data is empty, and with
// blkerr.ErrTruncatedContinuation if every available byte has its
// continuation bit set (the stream ends mid-value).
func Decode(data []byte) (consumed int, value uint64, err error) {
	if len(data) == 0 {
		return 0, 0, blkerr.ErrEmptyBuffer
	}

	var result uint64
	var shift uint
	for i := 0; i < len(data) && i < MaxBytes; i++ {
		b := data[i]
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return i + 1, result, nil
		}
		shift += 7
	}
	return 0, 0, blkerr.ErrTruncatedContinuation
}

// Encode appends the ULEB128 encoding of v to dst and returns the extended
// slice. It is the inverse of Decode.
func Encode(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			dst = append(dst, b|0x80)
		} else {
			dst = append(dst, b)
			return dst
		}
	}
}

// Size returns the number of bytes Encode would produce for v, without
// allocating.
func Size(v uint64) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return n
}
