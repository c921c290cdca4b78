// Package innerfs decodes and encodes the inner filesystem image carried
// inside a VROMFS container: a flat directory of (path, bytes) entries with
// optional per-file SHA-1 digests. See spec section 4.6.
package innerfs

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"

	"github.com/bgrewell/vromfs-kit/pkg/logging"
	"github.com/go-logr/logr"
)

// nmPrefix is the four-byte prefix the reserved logical path "nm" is stored
// with on disk.
var nmPrefix = []byte{0xFF, 0x3F, 0x6E, 0x6D}

// DigestMode selects whether the names header carries per-file SHA-1
// digests.
type DigestMode byte

const (
	DigestNone    DigestMode = 0x20
	DigestPerFile DigestMode = 0x30
)

// Entry is a single (path, bytes) pair as stored in the inner image.
type Entry struct {
	Path string
	Data []byte
}

// Image is the decoded result of an inner filesystem image: its entries in
// on-disk order, plus any recoverable per-file digest mismatches
// encountered along the way (spec section 4.6: "report a recoverable
// warning ... not a fatal error").
type Image struct {
	Entries  []Entry
	warnings []error
}

// Warnings returns non-fatal per-file digest mismatches collected during
// Decode, in file order.
func (img *Image) Warnings() []error { return img.warnings }

// Options configures Decode.
type Options struct {
	logger   logr.Logger
	validate bool
}

// Option mutates Options.
type Option func(*Options)

// WithLogger attaches a logger.
func WithLogger(logger logr.Logger) Option {
	return func(o *Options) { o.logger = logger }
}

// WithValidate enables per-file SHA-1 verification when digests are present.
func WithValidate(validate bool) Option {
	return func(o *Options) { o.validate = validate }
}

func newOptions(opts []Option) Options {
	o := Options{logger: logr.Discard(), validate: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Decode parses a plain inner image (already de-obfuscated and
// decompressed by the outer vromfs layer) into an ordered list of entries.
func Decode(data []byte, opts ...Option) (*Image, error) {
	o := newOptions(opts)
	log := logging.NewLogger(o.logger)

	if len(data) < 32 {
		return nil, fmt.Errorf("innerfs: image too short: %d bytes", len(data))
	}

	digestMode := DigestMode(data[0])
	// names_offset is the full little-endian u32; its low byte happens to
	// equal the digest-mode flag since the names info table begins right
	// after the fixed header block.
	namesOffsetVal := binary.LittleEndian.Uint32(data[0:4])
	namesCount := binary.LittleEndian.Uint32(data[4:8])
	log.Trace("names header", "digestMode", digestMode, "namesOffset", namesOffsetVal, "namesCount", namesCount)

	dataHeader := data[16:32]
	dataOffset := binary.LittleEndian.Uint32(dataHeader[0:4])
	dataCount := binary.LittleEndian.Uint32(dataHeader[4:8])

	cursor := 32
	var digestBegin, digestEnd uint64
	hasPerFileDigest := false
	if digestMode == DigestPerFile {
		if len(data) < cursor+16 {
			return nil, fmt.Errorf("innerfs: digest header truncated")
		}
		digestEnd = binary.LittleEndian.Uint64(data[cursor : cursor+8])
		digestBegin = binary.LittleEndian.Uint64(data[cursor+8 : cursor+16])
		cursor += 16
		hasPerFileDigest = digestBegin != 0
		log.Trace("digest header", "digestBegin", digestBegin, "digestEnd", digestEnd, "hasPerFileDigest", hasPerFileDigest)
	}

	if uint64(len(data)) < uint64(namesOffsetVal)+uint64(namesCount)*8 {
		return nil, fmt.Errorf("innerfs: names info table out of bounds")
	}
	namesInfo := make([]uint64, namesCount)
	for i := range namesInfo {
		off := int(namesOffsetVal) + i*8
		namesInfo[i] = binary.LittleEndian.Uint64(data[off : off+8])
	}

	if uint64(len(data)) < uint64(dataOffset)+uint64(dataCount)*16 {
		return nil, fmt.Errorf("innerfs: data info table out of bounds")
	}
	type dataRecord struct{ offset, length uint32 }
	dataInfo := make([]dataRecord, dataCount)
	for i := range dataInfo {
		off := int(dataOffset) + i*16
		dataInfo[i].offset = binary.LittleEndian.Uint32(data[off : off+4])
		dataInfo[i].length = binary.LittleEndian.Uint32(data[off+4 : off+8])
	}

	var digests [][20]byte
	if hasPerFileDigest {
		n := (digestEnd - digestBegin) / 20
		digests = make([][20]byte, n)
		for i := range digests {
			off := int(digestBegin) + i*20
			copy(digests[i][:], data[off:off+20])
		}
	}

	img := &Image{Entries: make([]Entry, 0, namesCount)}
	for i, nameStart := range namesInfo {
		if int(nameStart) >= len(data) {
			return nil, fmt.Errorf("innerfs: name offset %d out of range", nameStart)
		}
		end := int(nameStart)
		for end < len(data) && data[end] != 0 {
			end++
		}
		rawName := data[nameStart:end]

		path := string(rawName)
		if bytes.HasPrefix(rawName, nmPrefix) {
			path = "nm"
		}

		var fileData []byte
		if i < len(dataInfo) {
			rec := dataInfo[i]
			if uint64(rec.offset)+uint64(rec.length) > uint64(len(data)) {
				return nil, fmt.Errorf("innerfs: file %q data range out of bounds", path)
			}
			fileData = data[rec.offset : rec.offset+rec.length]
		}

		if o.validate && hasPerFileDigest && i < len(digests) {
			got := sha1.Sum(fileData)
			if got != digests[i] {
				err := fmt.Errorf("innerfs: sha1 mismatch for %q", path)
				img.warnings = append(img.warnings, err)
				log.Error(err, "per-file digest mismatch, continuing", "path", path)
			}
		}

		buf := make([]byte, len(fileData))
		copy(buf, fileData)
		img.Entries = append(img.Entries, Entry{Path: path, Data: buf})
	}

	return img, nil
}

// align16 rounds n up to the next multiple of 16.
func align16(n int) int {
	return (n + 15) &^ 15
}

// Encode serializes entries back into the inner image layout Decode parses,
// computing every offset in a single pass and aligning every region to 16
// bytes. It supports the round-trip property in spec section 8, including
// rewriting the logical "nm" path back to its on-disk prefixed form.
func Encode(entries []Entry, digestMode DigestMode) ([]byte, error) {
	namesCount := uint32(len(entries))
	dataCount := uint32(len(entries))

	namesHeaderSize := 16
	dataHeaderSize := 16
	digestHeaderSize := 0
	if digestMode == DigestPerFile {
		digestHeaderSize = 16
	}

	namesInfoSize := align16(int(namesCount) * 8)
	nameBytes := make([][]byte, len(entries))
	for i, e := range entries {
		raw := []byte(e.Path)
		if e.Path == "nm" {
			raw = append([]byte{}, nmPrefix...)
		}
		nameBytes[i] = append(raw, 0)
	}
	var nameBlob []byte
	nameOffsets := make([]uint64, len(entries))
	base := uint64(namesHeaderSize + dataHeaderSize + digestHeaderSize + namesInfoSize)
	for i, nb := range nameBytes {
		nameOffsets[i] = base + uint64(len(nameBlob))
		nameBlob = append(nameBlob, nb...)
	}
	nameBlobPadded := align16(len(nameBlob))
	nameBlob = append(nameBlob, make([]byte, nameBlobPadded-len(nameBlob))...)

	dataInfoSize := align16(int(dataCount) * 16)
	dataInfoOffset := base + uint64(len(nameBlob))

	var digestBlob []byte
	digestBegin := uint64(0)
	digestEnd := uint64(0)
	if digestMode == DigestPerFile {
		digestBegin = dataInfoOffset + uint64(dataInfoSize)
		for _, e := range entries {
			sum := sha1.Sum(e.Data)
			digestBlob = append(digestBlob, sum[:]...)
		}
		digestEnd = digestBegin + uint64(len(digestBlob))
	}

	fileDataStart := dataInfoOffset + uint64(dataInfoSize)
	if digestMode == DigestPerFile {
		fileDataStart = digestEnd
	}
	fileDataStart = uint64(align16(int(fileDataStart)))

	var fileBlob []byte
	dataRecords := make([][]byte, len(entries))
	cur := fileDataStart
	for i, e := range entries {
		rec := make([]byte, 16)
		binary.LittleEndian.PutUint32(rec[0:4], uint32(cur))
		binary.LittleEndian.PutUint32(rec[4:8], uint32(len(e.Data)))
		dataRecords[i] = rec

		padded := align16(len(e.Data))
		fileBlob = append(fileBlob, e.Data...)
		fileBlob = append(fileBlob, make([]byte, padded-len(e.Data))...)
		cur += uint64(padded)
	}

	out := make([]byte, 0, int(fileDataStart)+len(fileBlob))

	namesHeader := make([]byte, 16)
	binary.LittleEndian.PutUint32(namesHeader[0:4], uint32(namesHeaderSize+dataHeaderSize+digestHeaderSize))
	binary.LittleEndian.PutUint32(namesHeader[4:8], namesCount)
	out = append(out, namesHeader...)

	dataHeader := make([]byte, 16)
	binary.LittleEndian.PutUint32(dataHeader[0:4], uint32(dataInfoOffset))
	binary.LittleEndian.PutUint32(dataHeader[4:8], dataCount)
	out = append(out, dataHeader...)

	if digestMode == DigestPerFile {
		digestHeader := make([]byte, 16)
		binary.LittleEndian.PutUint64(digestHeader[0:8], digestEnd)
		binary.LittleEndian.PutUint64(digestHeader[8:16], digestBegin)
		out = append(out, digestHeader...)
	}

	namesInfo := make([]byte, namesInfoSize)
	for i, off := range nameOffsets {
		binary.LittleEndian.PutUint64(namesInfo[i*8:i*8+8], off)
	}
	out = append(out, namesInfo...)

	out = append(out, nameBlob...)

	dataInfo := make([]byte, dataInfoSize)
	for i, rec := range dataRecords {
		copy(dataInfo[i*16:i*16+16], rec)
	}
	out = append(out, dataInfo...)

	if digestMode == DigestPerFile {
		out = append(out, digestBlob...)
	}

	if pad := int(fileDataStart) - len(out); pad > 0 {
		out = append(out, make([]byte, pad)...)
	}
	out = append(out, fileBlob...)

	return out, nil
}
