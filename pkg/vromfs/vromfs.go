// Package vromfs decodes and encodes the outer VROMFS container: a fixed
// header (simple or extended), an optional obfuscation + zstd compression
// layer, and an optional MD5 digest over the decompressed inner payload.
// See spec section 4.5.
package vromfs

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/bgrewell/vromfs-kit/pkg/blkerr"
	"github.com/bgrewell/vromfs-kit/pkg/logging"
	"github.com/bgrewell/vromfs-kit/pkg/obfuscate"
	"github.com/bgrewell/vromfs-kit/pkg/zstdec"
	"github.com/go-logr/logr"
)

// HeaderKind distinguishes the simple and extended VROMFS header layouts.
type HeaderKind uint32

const (
	// HeaderSimple is the "VRFs" magic, a 16-byte fixed header.
	HeaderSimple HeaderKind = 0x73465256
	// HeaderExtended is the "VRFx" magic, which carries 8 additional bytes.
	HeaderExtended HeaderKind = 0x78465256
)

func (k HeaderKind) String() string {
	switch k {
	case HeaderSimple:
		return "VRFs"
	case HeaderExtended:
		return "VRFx"
	default:
		return fmt.Sprintf("unknown(0x%08x)", uint32(k))
	}
}

// Platform is the informational platform tag carried in the header.
type Platform uint32

const (
	PlatformPC      Platform = 0x00000000
	PlatformIOS     Platform = 0x00000001
	PlatformAndroid Platform = 0x00000002
)

func validPlatform(p Platform) bool {
	switch p {
	case PlatformPC, PlatformIOS, PlatformAndroid:
		return true
	default:
		return false
	}
}

// Packing selects the packing mode carried in the top 6 bits of
// packing_info.
type Packing uint32

const (
	// PackingZstdNoChk is zstd-compressed and obfuscated, with no trailing
	// digest to verify.
	PackingZstdNoChk Packing = 0x10
	// PackingPlain is passed through unmodified: no obfuscation, no
	// compression, no digest.
	PackingPlain Packing = 0x20
	// PackingZstdObfs is zstd-compressed and obfuscated, with a trailing
	// MD5 digest over the decompressed bytes.
	PackingZstdObfs Packing = 0x30
)

// packingLenMask isolates the bottom 26 bits of packing_info, the
// compressed inner length.
const packingLenMask uint32 = 0x03FFFFFF

// Metadata describes the header fields a caller or emitter might need after
// decode: header kind, platform, packing, and (for extended headers) the
// four-component game version.
type Metadata struct {
	Kind     HeaderKind
	Platform Platform
	Packing  Packing
	Version  [4]uint8 // (global, major, minor, patch)
	HasVersion bool
}

// VersionString renders Metadata.Version as "a.b.c.d".
func (m Metadata) VersionString() string {
	return fmt.Sprintf("%d.%d.%d.%d", m.Version[0], m.Version[1], m.Version[2], m.Version[3])
}

// Options configures Decode.
type Options struct {
	logger       logr.Logger
	verifyDigest bool
	dict         *zstdec.Dictionary
}

// Option mutates Options.
type Option func(*Options)

// WithLogger attaches a logger; field-level tracing happens at TRACE verbosity.
func WithLogger(logger logr.Logger) Option {
	return func(o *Options) { o.logger = logger }
}

// WithVerifyDigest enables the outer MD5 check for ZSTD_OBFS-packed inners.
func WithVerifyDigest(verify bool) Option {
	return func(o *Options) { o.verifyDigest = verify }
}

// WithDecoderDictionary supplies a zstd decoder dictionary that Decode hands
// to the zstd step for an obfuscated inner payload. Without one, the payload
// is decoded as a plain zstd stream.
func WithDecoderDictionary(dict *zstdec.Dictionary) Option {
	return func(o *Options) { o.dict = dict }
}

func newOptions(opts []Option) Options {
	o := Options{logger: logr.Discard(), verifyDigest: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Decode parses a VROMFS byte slice, returning the plain inner bytes and the
// header metadata. When the packing is obfuscated, the payload is
// de-obfuscated and zstd-decompressed in the process; for PackingZstdObfs
// with verification requested, a trailing 16-byte MD5 digest is checked
// against the decompressed bytes.
func Decode(data []byte, opts ...Option) ([]byte, Metadata, error) {
	o := newOptions(opts)
	log := logging.NewLogger(o.logger)

	if len(data) < 16 {
		return nil, Metadata{}, fmt.Errorf("vromfs: header truncated: %d bytes", len(data))
	}

	kind := HeaderKind(binary.LittleEndian.Uint32(data[0:4]))
	if kind != HeaderSimple && kind != HeaderExtended {
		return nil, Metadata{}, fmt.Errorf("%w: header kind 0x%08x", blkerr.ErrUnrecognizedHeader, uint32(kind))
	}

	platform := Platform(binary.LittleEndian.Uint32(data[4:8]))
	if !validPlatform(platform) {
		return nil, Metadata{}, fmt.Errorf("vromfs: unrecognized platform tag 0x%08x", uint32(platform))
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[8:12])
	packingInfo := binary.LittleEndian.Uint32(data[12:16])
	packing := Packing(packingInfo >> 26)
	innerLen := packingInfo & packingLenMask

	log.Trace("parsed vromfs header", "kind", kind.String(), "platform", platform, "packing", packing, "innerLen", innerLen)

	meta := Metadata{Kind: kind, Platform: platform, Packing: packing}

	cursor := data[16:]
	if kind == HeaderExtended {
		if len(cursor) < 8 {
			return nil, Metadata{}, fmt.Errorf("vromfs: extended header truncated")
		}
		extSize := binary.LittleEndian.Uint16(cursor[0:2])
		if extSize != 8 {
			return nil, Metadata{}, fmt.Errorf("vromfs: extended_header_size expected 8, got %d", extSize)
		}
		// cursor[2:4] is the unused flags field.
		var rawVersion [4]byte
		copy(rawVersion[:], cursor[4:8])
		// On-disk version bytes are stored reversed: d c b a.
		meta.Version = [4]uint8{rawVersion[3], rawVersion[2], rawVersion[1], rawVersion[0]}
		meta.HasVersion = true
		cursor = cursor[8:]
	}

	innerStart := len(data) - len(cursor)
	var inner []byte
	switch {
	case kind == HeaderExtended && innerLen == 0:
		inner = data[innerStart:]
	case kind == HeaderExtended:
		if innerStart+int(innerLen) > len(data) {
			return nil, Metadata{}, fmt.Errorf("vromfs: inner length %d exceeds buffer", innerLen)
		}
		inner = data[innerStart : innerStart+int(innerLen)]
	case packing == PackingPlain:
		end := innerStart + int(uncompressedSize)
		if end > len(data) {
			return nil, Metadata{}, fmt.Errorf("vromfs: uncompressed_size %d exceeds buffer", uncompressedSize)
		}
		inner = data[innerStart:end]
	default:
		if innerLen == 0 {
			inner = data[innerStart:]
		} else {
			end := innerStart + int(innerLen)
			if end > len(data) {
				return nil, Metadata{}, fmt.Errorf("vromfs: inner length %d exceeds buffer", innerLen)
			}
			inner = data[innerStart:end]
		}
	}

	if packing == PackingPlain {
		out := make([]byte, len(inner))
		copy(out, inner)
		return out, meta, nil
	}

	payload := append([]byte(nil), inner...)
	obfuscate.Apply(payload)

	zstdPacking := zstdec.ObfsNoCheck
	if packing == PackingZstdObfs {
		zstdPacking = zstdec.Obfs
	}
	plain, err := zstdec.Decode(zstdPacking, payload, o.dict)
	if err != nil {
		return nil, meta, fmt.Errorf("vromfs: decompress inner: %w", err)
	}

	if packing == PackingZstdObfs && o.verifyDigest {
		// The trailing 16-byte MD5 sits immediately after the compressed
		// payload, outside of the range we decompressed from.
		digestStart := innerStart + len(inner)
		if digestStart+16 > len(data) {
			return nil, meta, fmt.Errorf("vromfs: missing trailing MD5 digest")
		}
		want := data[digestStart : digestStart+16]
		got := md5.Sum(plain)
		if !bytesEqual(got[:], want) {
			return nil, meta, fmt.Errorf("%w: outer md5", blkerr.ErrDigestMismatch)
		}
	}

	return plain, meta, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Encode produces VROMFS bytes for plain inner content under the requested
// metadata, supporting the round-trip property in spec section 8. Only
// HeaderSimple is written, with PackingPlain, PackingZstdNoChk or
// PackingZstdObfs (the last one followed by the MD5 digest); extended
// headers are decode-only in this implementation since no writer in the
// source tree ever emits them.
func Encode(plain []byte, meta Metadata) ([]byte, error) {
	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], uint32(HeaderSimple))
	binary.LittleEndian.PutUint32(header[4:8], uint32(meta.Platform))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(plain)))

	switch meta.Packing {
	case PackingPlain:
		binary.LittleEndian.PutUint32(header[12:16], uint32(PackingPlain)<<26)
		return append(header, plain...), nil
	case PackingZstdObfs, PackingZstdNoChk:
		packed, err := zstdec.Encode(plain)
		if err != nil {
			return nil, fmt.Errorf("vromfs: compress inner: %w", err)
		}
		obfuscate.Apply(packed)

		if len(packed) > int(packingLenMask) {
			return nil, fmt.Errorf("vromfs: compressed inner too large: %d bytes", len(packed))
		}
		binary.LittleEndian.PutUint32(header[12:16], uint32(meta.Packing)<<26|uint32(len(packed)))

		out := append(header, packed...)
		if meta.Packing == PackingZstdObfs {
			digest := md5.Sum(plain)
			out = append(out, digest[:]...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: packing 0x%x", blkerr.ErrUnknownPacking, uint32(meta.Packing))
	}
}
