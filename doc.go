// Package vromfskit is a codec toolkit for the VROMFS container format and
// the BLK nested keyed-record format it carries. It decodes the outer
// container (header parsing, de-obfuscation, zstd decompression, digest
// verification), the inner filesystem image it wraps, and the BLK trees
// found inside, then emits them as JSON or BLK text.
//
// The composition root is pkg/unpacker, which wires together pkg/vromfs
// (outer container), pkg/innerfs (inner container), pkg/blk (BLK decoder),
// pkg/blktree (tree model and post-processors), and pkg/blkemit (emitters).
package vromfskit
