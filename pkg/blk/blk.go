// Package blk decodes the BLK nested keyed-record binary format: twelve
// typed scalars/vectors, shared string tables (internal or external), and
// optional zstd compression (including dictionary mode). See spec section
// 4.7.
package blk

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bgrewell/vromfs-kit/pkg/blkerr"
	"github.com/bgrewell/vromfs-kit/pkg/blktree"
	"github.com/bgrewell/vromfs-kit/pkg/logging"
	"github.com/bgrewell/vromfs-kit/pkg/nm"
	"github.com/bgrewell/vromfs-kit/pkg/strtable"
	"github.com/bgrewell/vromfs-kit/pkg/uleb"
	"github.com/bgrewell/vromfs-kit/pkg/zstdec"
	"github.com/go-logr/logr"
)

// Kind is the one-byte marker selecting FAT/SLIM and its compression/dict
// variant, the leading byte of every BLK file.
type Kind byte

const (
	KindBBF          Kind = 0x00
	KindFAT          Kind = 0x01
	KindFATZstd      Kind = 0x02
	KindSlim         Kind = 0x03
	KindSlimZstd     Kind = 0x04
	KindSlimZstdDict Kind = 0x05
)

// IsSlim reports whether kind requires an externally supplied name map.
func (k Kind) IsSlim() bool {
	switch k {
	case KindSlim, KindSlimZstd, KindSlimZstdDict:
		return true
	default:
		return false
	}
}

// IsCompressed reports whether kind's body is zstd-compressed.
func (k Kind) IsCompressed() bool {
	switch k {
	case KindFATZstd, KindSlimZstd, KindSlimZstdDict:
		return true
	default:
		return false
	}
}

// Options configures Decode.
type Options struct {
	logger  logr.Logger
	nameMap *nm.NameMap
	dict    *zstdec.Dictionary
}

// Option mutates Options.
type Option func(*Options)

// WithLogger attaches a logger.
func WithLogger(logger logr.Logger) Option {
	return func(o *Options) { o.logger = logger }
}

// WithNameMap supplies the shared name map a SLIM-kind file needs.
func WithNameMap(m *nm.NameMap) Option {
	return func(o *Options) { o.nameMap = m }
}

// WithDictionary supplies the shared zstd decoder dictionary a
// SLIM_ZST_DICT-kind file needs.
func WithDictionary(d *zstdec.Dictionary) Option {
	return func(o *Options) { o.dict = d }
}

func newOptions(opts []Option) Options {
	o := Options{logger: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Decode parses a full BLK file (leading kind byte included) into a tree
// rooted at "root".
func Decode(data []byte, opts ...Option) (*blktree.Field, error) {
	o := newOptions(opts)
	log := logging.NewLogger(o.logger)

	if len(data) == 0 {
		return nil, &blkerr.UnrecognizedBlkHeader{}
	}

	kind := Kind(data[0])
	switch kind {
	case KindFAT, KindFATZstd, KindSlim, KindSlimZstd, KindSlimZstdDict:
		// recognized
	default:
		return nil, fmt.Errorf("blk: %w", &blkerr.UnrecognizedBlkHeader{Byte: data[0]})
	}

	if kind.IsSlim() && o.nameMap == nil {
		return nil, blkerr.ErrSlimBlkWithoutNm
	}

	body := data[1:]
	if kind.IsCompressed() {
		var dict *zstdec.Dictionary
		if kind == KindSlimZstdDict {
			if o.dict == nil {
				return nil, blkerr.ErrMissingDict
			}
			dict = o.dict
		}

		plain, err := zstdec.Decode(zstdec.Obfs, body, dict)
		if err != nil {
			return nil, fmt.Errorf("blk: decompress body: %w", err)
		}

		if kind == KindFATZstd {
			if len(plain) == 0 || Kind(plain[0]) != KindFAT {
				return nil, fmt.Errorf("blk: fat_zstd: %w", &blkerr.UnrecognizedBlkHeader{})
			}
			plain = plain[1:]
		}
		body = plain
	}

	log.Trace("decoding blk body", "kind", kind, "slim", kind.IsSlim(), "bodyLen", len(body))

	return decodeBody(body, kind, o.nameMap, log)
}

type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) remaining() []byte { return c.data[c.pos:] }

func (c *cursor) readULEB() (uint64, error) {
	n, v, err := uleb.Decode(c.remaining())
	if err != nil {
		return 0, err
	}
	c.pos += n
	return v, nil
}

func (c *cursor) readBytes(n int) ([]byte, error) {
	if c.pos+n > len(c.data) {
		return nil, &blkerr.DataRegionOutOfBounds{Offset: c.pos, Length: n, RegionSize: len(c.data)}
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func decodeBody(body []byte, kind Kind, shared *nm.NameMap, log *logging.Logger) (*blktree.Field, error) {
	c := &cursor{data: body}

	namesCount, err := c.readULEB()
	if err != nil {
		return nil, err
	}

	var names []strtable.Handle
	if kind.IsSlim() {
		// Names come from the shared name map; nothing consumed here.
	} else {
		namesDataSize, err := c.readULEB()
		if err != nil {
			return nil, err
		}
		namesData, err := c.readBytes(int(namesDataSize))
		if err != nil {
			return nil, err
		}
		names = strtable.ParseNames(namesData, int(namesCount))
	}

	blocksCount, err := c.readULEB()
	if err != nil {
		return nil, err
	}
	paramsCount, err := c.readULEB()
	if err != nil {
		return nil, err
	}
	paramsDataSize, err := c.readULEB()
	if err != nil {
		return nil, err
	}
	paramsData, err := c.readBytes(int(paramsDataSize))
	if err != nil {
		return nil, err
	}

	paramsInfoSize := int(paramsCount) * 8
	paramsInfo, err := c.readBytes(paramsInfoSize)
	if err != nil {
		return nil, err
	}

	lookupName := func(id uint32) (string, error) {
		if kind.IsSlim() {
			h, ok := shared.At(int(id))
			if !ok {
				return "", &blkerr.DataRegionOutOfBounds{Offset: int(id), RegionSize: shared.Len()}
			}
			return h.String(), nil
		}
		if int(id) >= len(names) {
			return "", &blkerr.DataRegionOutOfBounds{Offset: int(id), RegionSize: len(names)}
		}
		return names[id].String(), nil
	}

	type param struct {
		name string
		val  blktree.Scalar
	}

	params := make([]param, paramsCount)
	for i := 0; i < int(paramsCount); i++ {
		rec := paramsInfo[i*8 : i*8+8]
		nameID := uint32(rec[0]) | uint32(rec[1])<<8 | uint32(rec[2])<<16
		typ := blktree.ScalarKind(rec[3])
		rawData := rec[4:8]

		name, err := lookupName(nameID)
		if err != nil {
			return nil, err
		}

		val, err := decodeParam(typ, rawData, paramsData, shared, kind)
		if err != nil {
			return nil, err
		}
		params[i] = param{name: name, val: val}
	}

	// block_info: remainder of the buffer.
	type flatBlock struct {
		name             string
		paramCount       int
		childCount       int
		firstChildIndex  int
		fields           []*blktree.Field
		claimed          bool
	}

	var flats []flatBlock
	paramCursor := 0
	for i := 0; i < int(blocksCount); i++ {
		nameID, err := c.readULEB()
		if err != nil {
			return nil, err
		}
		pCount, err := c.readULEB()
		if err != nil {
			return nil, err
		}
		cCount, err := c.readULEB()
		if err != nil {
			return nil, err
		}

		var firstChild uint64
		if cCount > 0 {
			firstChild, err = c.readULEB()
			if err != nil {
				return nil, err
			}
		}

		var blockName string
		if i == 0 && nameID == 0 {
			blockName = "root"
		} else {
			blockName, err = lookupName(uint32(nameID) - 1)
			if err != nil {
				return nil, err
			}
		}

		if paramCursor+int(pCount) > len(params) {
			return nil, blkerr.ErrResidualBlockBuffer
		}
		fields := make([]*blktree.Field, pCount)
		for j := 0; j < int(pCount); j++ {
			p := params[paramCursor+j]
			fields[j] = blktree.NewValue(p.name, p.val)
		}
		paramCursor += int(pCount)

		flats = append(flats, flatBlock{
			name:            blockName,
			paramCount:      int(pCount),
			childCount:      int(cCount),
			firstChildIndex: int(firstChild),
			fields:          fields,
		})
	}

	if len(c.remaining()) != 0 {
		return nil, blkerr.ErrResidualBlockBuffer
	}

	if len(flats) == 0 {
		return nil, blkerr.ErrResidualBlockBuffer
	}

	var build func(idx int) (*blktree.Field, error)
	build = func(idx int) (*blktree.Field, error) {
		if idx < 0 || idx >= len(flats) {
			return nil, blkerr.ErrTakenElementMissing
		}
		fb := &flats[idx]
		if fb.claimed {
			return nil, blkerr.ErrTakenElementMissing
		}
		fb.claimed = true

		node := &blktree.Field{Kind: blktree.NodeStruct, Name: fb.name, Children: fb.fields}

		if fb.childCount > 0 {
			if fb.firstChildIndex+fb.childCount > len(flats) {
				return nil, &blkerr.DataRegionOutOfBounds{
					Offset: fb.firstChildIndex, Length: fb.childCount, RegionSize: len(flats),
				}
			}
			for k := 0; k < fb.childCount; k++ {
				child, err := build(fb.firstChildIndex + k)
				if err != nil {
					return nil, err
				}
				node.Children = append(node.Children, child)
			}
		}

		return node, nil
	}

	root, err := build(0)
	if err != nil {
		return nil, err
	}

	for i := range flats {
		if !flats[i].claimed {
			return nil, blkerr.ErrUnclaimedElements
		}
	}

	log.Trace("decoded blk tree", "blocks", blocksCount, "params", paramsCount)
	return root, nil
}

func decodeParam(typ blktree.ScalarKind, rawData, paramsData []byte, shared *nm.NameMap, kind Kind) (blktree.Scalar, error) {
	inline := binary.LittleEndian.Uint32(rawData)

	readOutOfLine := func(n int) ([]byte, error) {
		off := int(inline)
		if off+n > len(paramsData) {
			return nil, &blkerr.DataRegionOutOfBounds{Offset: off, Length: n, RegionSize: len(paramsData)}
		}
		return paramsData[off : off+n], nil
	}

	switch typ {
	case blktree.KindStr:
		nmBit := inline&0x80000000 != 0
		idx := inline &^ 0x80000000
		if kind.IsSlim() && nmBit {
			h, ok := shared.At(int(idx))
			if !ok {
				return blktree.Scalar{}, &blkerr.DataRegionOutOfBounds{Offset: int(idx), RegionSize: shared.Len()}
			}
			return blktree.Scalar{Kind: typ, Str: h.String()}, nil
		}
		s, err := readNullTerminated(paramsData, int(idx))
		if err != nil {
			return blktree.Scalar{}, err
		}
		return blktree.Scalar{Kind: typ, Str: s}, nil

	case blktree.KindInt:
		return blktree.Scalar{Kind: typ, Int: int32(inline)}, nil

	case blktree.KindFloat:
		return blktree.Scalar{Kind: typ, Float: math.Float32frombits(inline)}, nil

	case blktree.KindFloat2:
		b, err := readOutOfLine(8)
		if err != nil {
			return blktree.Scalar{}, err
		}
		return blktree.Scalar{Kind: typ, Float2: [2]float32{readF32(b, 0), readF32(b, 4)}}, nil

	case blktree.KindFloat3:
		b, err := readOutOfLine(12)
		if err != nil {
			return blktree.Scalar{}, err
		}
		return blktree.Scalar{Kind: typ, Float3: [3]float32{readF32(b, 0), readF32(b, 4), readF32(b, 8)}}, nil

	case blktree.KindFloat4:
		b, err := readOutOfLine(16)
		if err != nil {
			return blktree.Scalar{}, err
		}
		return blktree.Scalar{Kind: typ, Float4: [4]float32{readF32(b, 0), readF32(b, 4), readF32(b, 8), readF32(b, 12)}}, nil

	case blktree.KindInt2:
		b, err := readOutOfLine(8)
		if err != nil {
			return blktree.Scalar{}, err
		}
		return blktree.Scalar{Kind: typ, Int2: [2]int32{readI32(b, 0), readI32(b, 4)}}, nil

	case blktree.KindInt3:
		b, err := readOutOfLine(12)
		if err != nil {
			return blktree.Scalar{}, err
		}
		return blktree.Scalar{Kind: typ, Int3: [3]int32{readI32(b, 0), readI32(b, 4), readI32(b, 8)}}, nil

	case blktree.KindBool:
		return blktree.Scalar{Kind: typ, Bool: rawData[0] != 0}, nil

	case blktree.KindColor:
		return blktree.Scalar{Kind: typ, Color: blktree.Color{
			R: rawData[0], G: rawData[1], B: rawData[2], A: rawData[3],
		}}, nil

	case blktree.KindFloat12:
		b, err := readOutOfLine(48)
		if err != nil {
			return blktree.Scalar{}, err
		}
		var rows [4][3]float32
		for r := 0; r < 4; r++ {
			for col := 0; col < 3; col++ {
				rows[r][col] = readF32(b, (r*3+col)*4)
			}
		}
		return blktree.Scalar{Kind: typ, Float12: rows}, nil

	case blktree.KindLong:
		b, err := readOutOfLine(8)
		if err != nil {
			return blktree.Scalar{}, err
		}
		return blktree.Scalar{Kind: typ, Long: int64(binary.LittleEndian.Uint64(b))}, nil

	default:
		return blktree.Scalar{}, fmt.Errorf("blk: %w: type 0x%02x", blkerr.ErrBadBlkValue, byte(typ))
	}
}

func readF32(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
}

func readI32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off : off+4]))
}

func readNullTerminated(data []byte, off int) (string, error) {
	if off > len(data) {
		return "", &blkerr.DataRegionOutOfBounds{Offset: off, RegionSize: len(data)}
	}
	end := off
	for end < len(data) && data[end] != 0 {
		end++
	}
	return string(data[off:end]), nil
}
