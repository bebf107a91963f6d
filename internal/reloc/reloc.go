// Package reloc rewrites a PE image's base-relocation directory, per
// spec.md §4.7: blocks targeting a dropped section are discarded, and
// byte-identical blocks are deduplicated. The block-walking style
// mirrors peview's own section-table walk: a flat byte slice read with
// encoding/binary rather than a mapped struct.
package reloc

import (
	"bytes"
	"encoding/binary"
)

const blockHeaderSize = 8

// Rewrite walks raw (the original .reloc section contents) and returns
// the deduplicated buffer to use in the output, keeping only blocks
// for which sectionByRVA reports true when given the block's
// VirtualAddress.
//
// sectionByRVA should return true iff rva falls inside a section the
// PE Writer is keeping.
func Rewrite(raw []byte, sectionByRVA func(rva uint32) bool) []byte {
	var out []byte
	var accepted [][]byte

	off := 0
	for off+blockHeaderSize <= len(raw) {
		blockRVA := binary.LittleEndian.Uint32(raw[off : off+4])
		blockSize := binary.LittleEndian.Uint32(raw[off+4 : off+8])
		if blockSize < blockHeaderSize || uint64(off)+uint64(blockSize) > uint64(len(raw)) {
			break
		}
		block := raw[off : off+int(blockSize)]

		if sectionByRVA(blockRVA) && !containsBlock(accepted, block) {
			accepted = append(accepted, block)
			out = append(out, block...)
		}

		off += int(blockSize)
	}

	return out
}

func containsBlock(blocks [][]byte, candidate []byte) bool {
	for _, b := range blocks {
		if bytes.Equal(b, candidate) {
			return true
		}
	}
	return false
}
