// Package testutil builds synthetic VROMFS/BLK fixtures shared by the
// package test suites, the way the teacher's internal/testing package
// builds ground-truth fixtures for directory-tree assertions.
package testutil

import (
	"encoding/binary"
	"math"

	"github.com/bgrewell/vromfs-kit/pkg/blktree"
	"github.com/bgrewell/vromfs-kit/pkg/innerfs"
	"github.com/bgrewell/vromfs-kit/pkg/uleb"
	"github.com/bgrewell/vromfs-kit/pkg/vromfs"
)

// FatParam is one entry of a hand-built params_info table, paired with its
// optional out-of-line bytes.
type FatParam struct {
	Name    string
	Kind    blktree.ScalarKind
	Inline  uint32 // used when the value fits in the 4-byte data field
	OutData []byte // used when the value is stored out-of-line in params_data
}

// FatBlock is one flat block of a hand-built FAT BLK body.
type FatBlock struct {
	Name       string // "" for root
	Params     []FatParam
	ChildCount int
	FirstChild int
}

// BuildFatBody assembles a FAT BLK body (without the leading kind byte) from
// a flat block list and its distinct name table, byte-for-byte per spec
// section 4.7.
func BuildFatBody(names []string, blocks []FatBlock) []byte {
	nameIndex := make(map[string]int, len(names))
	for i, n := range names {
		nameIndex[n] = i
	}

	var namesData []byte
	for _, n := range names {
		namesData = append(namesData, n...)
		namesData = append(namesData, 0)
	}

	var paramsData []byte
	var paramsInfo []byte
	for _, b := range blocks {
		for _, p := range b.Params {
			var data uint32
			if p.OutData != nil {
				data = uint32(len(paramsData))
				paramsData = append(paramsData, p.OutData...)
			} else {
				data = p.Inline
			}

			nameID := uint32(nameIndex[p.Name])
			rec := make([]byte, 8)
			rec[0] = byte(nameID)
			rec[1] = byte(nameID >> 8)
			rec[2] = byte(nameID >> 16)
			rec[3] = byte(p.Kind)
			binary.LittleEndian.PutUint32(rec[4:], data)
			paramsInfo = append(paramsInfo, rec...)
		}
	}

	var blockInfo []byte
	paramsCount := 0
	for _, b := range blocks {
		var nameID uint64
		if b.Name != "" {
			nameID = uint64(nameIndex[b.Name]) + 1
		}
		blockInfo = uleb.Encode(blockInfo, nameID)
		blockInfo = uleb.Encode(blockInfo, uint64(len(b.Params)))
		blockInfo = uleb.Encode(blockInfo, uint64(b.ChildCount))
		if b.ChildCount > 0 {
			blockInfo = uleb.Encode(blockInfo, uint64(b.FirstChild))
		}
		paramsCount += len(b.Params)
	}

	var out []byte
	out = uleb.Encode(out, uint64(len(names)))
	out = uleb.Encode(out, uint64(len(namesData)))
	out = append(out, namesData...)
	out = uleb.Encode(out, uint64(len(blocks)))
	out = uleb.Encode(out, uint64(paramsCount))
	out = uleb.Encode(out, uint64(len(paramsData)))
	out = append(out, paramsData...)
	out = append(out, paramsInfo...)
	out = append(out, blockInfo...)
	return out
}

// OneIntFieldFatBlk assembles a minimal FAT BLK file (kind byte included)
// for a root holding a single Int field named name with value v.
func OneIntFieldFatBlk(name string, v int32) []byte {
	body := BuildFatBody([]string{name}, []FatBlock{
		{Params: []FatParam{{Name: name, Kind: blktree.KindInt, Inline: uint32(v)}}},
	})
	return append([]byte{0x01}, body...) // KindFAT
}

// F32LE encodes v as little-endian IEEE-754 bytes.
func F32LE(v float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}

// I32LE encodes v as little-endian two's-complement bytes.
func I32LE(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// Concat flattens chunks into a single byte slice.
func Concat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// BuildArchive wraps entries into a plain-packed VROMFS archive using meta,
// ready to hand to unpacker.Construct or vromfs.Decode.
func BuildArchive(entries []innerfs.Entry, meta vromfs.Metadata) ([]byte, error) {
	plain, err := innerfs.Encode(entries, innerfs.DigestNone)
	if err != nil {
		return nil, err
	}
	return vromfs.Encode(plain, meta)
}
