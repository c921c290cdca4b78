// Package dxpgrp enumerates the null-terminated name tables carried by DXP
// and GRP sibling formats: fixed-offset magic, file count, and name list,
// with no general-purpose content decoding. See spec section 6.
package dxpgrp

import (
	"bytes"
	"fmt"
)

const (
	dxpMagic      = "DxP2"
	dxpMinLen     = 0x48
	dxpCountOff   = 0x08
	dxpNamesStart = 0x48

	grpMagic      = "GRP2"
	grpMinLen     = 0x40
	grpCountOff   = 0x14
	grpNamesStart = 0x40
)

// ParseDXP enumerates the names stored in a DXP-format blob. An empty input
// yields an empty, error-free result.
func ParseDXP(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return parseNamed(data, dxpMagic, dxpMinLen, dxpCountOff, dxpNamesStart)
}

// ParseGRP enumerates the names stored in a GRP-format blob.
func ParseGRP(data []byte) ([]string, error) {
	return parseNamed(data, grpMagic, grpMinLen, grpCountOff, grpNamesStart)
}

func parseNamed(data []byte, magic string, minLen, countOff, namesStart int) ([]string, error) {
	if len(data) < minLen {
		return nil, fmt.Errorf("dxpgrp: file too short: %d bytes, need at least %d", len(data), minLen)
	}
	if string(data[:4]) != magic {
		return nil, fmt.Errorf("dxpgrp: unrecognized header: found %q, want %q", data[:4], magic)
	}

	if countOff+4 > len(data) {
		return nil, fmt.Errorf("dxpgrp: file count field out of bounds at offset 0x%x", countOff)
	}
	count := int(uint32(data[countOff]) | uint32(data[countOff+1])<<8 | uint32(data[countOff+2])<<16 | uint32(data[countOff+3])<<24)

	names := make([]string, 0, count)
	ptr := namesStart
	for i := 0; i < count; i++ {
		if ptr > len(data) {
			return nil, fmt.Errorf("dxpgrp: name %d starts out of bounds at offset %d", i, ptr)
		}
		end := bytes.IndexByte(data[ptr:], 0)
		if end < 0 {
			return nil, fmt.Errorf("dxpgrp: name %d is not null-terminated", i)
		}
		names = append(names, string(data[ptr:ptr+end]))
		ptr += end + 1
	}
	return names, nil
}
