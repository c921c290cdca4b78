// Package zstdec wraps github.com/klauspost/compress/zstd behind the
// narrow decode surface the codec needs: plain passthrough, and zstd
// decoding with an optional precomputed decoder dictionary. See spec
// section 4.4.
package zstdec

import (
	"fmt"

	"github.com/bgrewell/vromfs-kit/pkg/blkerr"
	"github.com/klauspost/compress/zstd"
)

// Packing selects how a payload was packed, mirroring the three packing
// modes carried in the VROMFS header's packing_info field.
type Packing int

const (
	// Plain payloads are copied through unmodified.
	Plain Packing = iota
	// ObfsNoCheck payloads have already been de-obfuscated by the caller
	// and decode directly, with no trailing digest to verify.
	ObfsNoCheck
	// Obfs payloads have already been de-obfuscated and carry a trailing
	// MD5 digest the caller verifies after decoding.
	Obfs
)

// Dictionary holds raw zstd dictionary bytes (for example the contents of a
// *.dict archive member), wrapped once and shared, immutably, across every
// BLK file in an archive that needs it. No decoded form is kept: each Decode
// call builds a new decoder from the raw bytes.
type Dictionary struct {
	raw []byte
}

// NewDictionary wraps raw zstd dictionary bytes for reuse across decodes.
// The bytes are fed unmodified into the zstd decoder per file; NewDictionary
// only validates that they are non-empty.
func NewDictionary(raw []byte) (*Dictionary, error) {
	if len(raw) == 0 {
		return nil, blkerr.ErrInvalidDict
	}
	return &Dictionary{raw: raw}, nil
}

// Decode decompresses payload according to packing. For Plain, it returns a
// copy of payload. For ObfsNoCheck and Obfs, payload must already have had
// obfuscate.Apply run over it by the caller; Decode only performs the zstd
// step. dict may be nil for non-dictionary streams.
func Decode(packing Packing, payload []byte, dict *Dictionary) ([]byte, error) {
	if packing == Plain {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}

	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if dict != nil {
		opts = append(opts, zstd.WithDecoderDicts(dict.raw))
	}

	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("zstdec: create decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstdec: decode: %w", err)
	}
	return out, nil
}

// DecodeWithDict is a convenience wrapper requiring a dictionary; it fails
// with blkerr.ErrMissingDict when dict is nil, matching the SLIM_ZST_DICT
// BLK kind's hard dependency on a decoder dictionary.
func DecodeWithDict(payload []byte, dict *Dictionary) ([]byte, error) {
	if dict == nil {
		return nil, blkerr.ErrMissingDict
	}
	return Decode(Obfs, payload, dict)
}

// Encode compresses plain into a zstd frame. It exists to support the
// VROMFS/BLK round-trip properties in spec section 8; callers that only
// unpack never need it.
func Encode(plain []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstdec: create encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(plain, nil), nil
}
