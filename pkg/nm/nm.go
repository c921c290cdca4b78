// Package nm implements the shared name map: an owned decompressed name
// table plus its parsed string view, optionally shared across many BLK
// files (spec section 3, "Name map"; section 6, "Name-map file (nm)").
package nm

import (
	"fmt"

	"github.com/bgrewell/vromfs-kit/pkg/strtable"
	"github.com/bgrewell/vromfs-kit/pkg/uleb"
	"github.com/bgrewell/vromfs-kit/pkg/zstdec"
)

// PreambleSize is the length, in bytes, of the fixed header that precedes
// the zstd frame in an external nm file: 8 bytes of names digest followed
// by 32 bytes of dictionary digest.
const PreambleSize = 40

// NameMap is an owned byte buffer (the decompressed names section) plus an
// ordered slice of interned string handles whose positions are the indices
// BLK parameter records reference. It is immutable once constructed and
// safe to share by reference across concurrent BLK parses.
type NameMap struct {
	raw   []byte
	names []strtable.Handle
}

// New builds a NameMap directly from an already-decompressed names section,
// laid out as described in spec section 6: a names_count ULEB, a
// names_data_size ULEB, and names_data_size bytes of null-separated names.
func New(decompressed []byte) (*NameMap, error) {
	n, count, err := uleb.Decode(decompressed)
	if err != nil {
		return nil, fmt.Errorf("nm: decode names_count: %w", err)
	}
	rest := decompressed[n:]

	n2, size, err := uleb.Decode(rest)
	if err != nil {
		return nil, fmt.Errorf("nm: decode names_data_size: %w", err)
	}
	rest = rest[n2:]

	if uint64(len(rest)) < size {
		return nil, fmt.Errorf("nm: names_data_size %d exceeds remaining %d bytes", size, len(rest))
	}
	namesData := rest[:size]

	names := strtable.ParseNames(namesData, int(count))
	buf := make([]byte, len(namesData))
	copy(buf, namesData)

	return &NameMap{raw: buf, names: names}, nil
}

// FromFile parses an external nm file: a 40-byte preamble (names digest +
// dictionary digest, both unused for decoding purposes here) followed by a
// zstd frame whose decoded bytes are the layout New expects.
func FromFile(data []byte) (*NameMap, error) {
	if len(data) < PreambleSize {
		return nil, fmt.Errorf("nm: file too short for preamble: %d bytes", len(data))
	}
	frame := data[PreambleSize:]

	decompressed, err := zstdec.Decode(zstdec.Obfs, frame, nil)
	if err != nil {
		return nil, fmt.Errorf("nm: decompress frame: %w", err)
	}
	return New(decompressed)
}

// NamesDigest returns the 8-byte names digest from an external nm file's
// preamble.
func NamesDigest(fileData []byte) []byte {
	if len(fileData) < 8 {
		return nil
	}
	return fileData[:8]
}

// DictDigest returns the 32-byte dictionary digest from an external nm
// file's preamble.
func DictDigest(fileData []byte) []byte {
	if len(fileData) < PreambleSize {
		return nil
	}
	return fileData[8:PreambleSize]
}

// Len returns the number of names in the map.
func (m *NameMap) Len() int { return len(m.names) }

// At returns the name at index i, as referenced by a BLK name_id.
func (m *NameMap) At(i int) (strtable.Handle, bool) {
	if i < 0 || i >= len(m.names) {
		return "", false
	}
	return m.names[i], true
}

// Names returns the full ordered name slice. The returned slice must not be
// mutated by callers; it is shared.
func (m *NameMap) Names() []strtable.Handle { return m.names }

// RawAt reads a null-terminated string starting at byte offset off within
// the map's owned names buffer. The BLK decoder does not use it: SLIM
// strings with the nm-bit clear are read from the file's own params_data.
func (m *NameMap) RawAt(off uint32) (string, error) {
	if int(off) > len(m.raw) {
		return "", fmt.Errorf("nm: offset %d out of range (len %d)", off, len(m.raw))
	}
	end := int(off)
	for end < len(m.raw) && m.raw[end] != 0 {
		end++
	}
	return string(m.raw[off:end]), nil
}

// WriteNamesSection serializes names back into the layout New parses,
// supporting the round-trip properties in spec section 8.
func WriteNamesSection(names []string) []byte {
	var dataBuf []byte
	for _, s := range names {
		dataBuf = append(dataBuf, s...)
		dataBuf = append(dataBuf, 0)
	}

	out := uleb.Encode(nil, uint64(len(names)))
	out = uleb.Encode(out, uint64(len(dataBuf)))
	out = append(out, dataBuf...)
	return out
}
