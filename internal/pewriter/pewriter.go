// Package pewriter rebuilds a PE32+ image per spec.md §4.8: it strips
// debug sections, writes a replaced relocation section, appends a new
// `.rossym` section, optionally preserves the COFF long-name string
// table, and recomputes the 16-bit folded PE checksum. The header-copy
// and section-walk style follows peview's own reader, grounded on the
// teacher's pe_writer.go and codegen_pe_writer.go.
package pewriter

import (
	"bytes"
	"encoding/binary"

	"github.com/xyproto/rsym/internal/peview"
	"github.com/xyproto/rsym/internal/reloc"
	"github.com/xyproto/rsym/internal/rsymerr"
	"github.com/xyproto/rsym/internal/safebuf"
)

const (
	sectionHdrLen = 40
	fileHdrLen    = 20
	rossymName    = ".rossym"

	lineNumsStripped  = 0x0004
	localSymsStripped = 0x0008
	debugStripped     = 0x0200

	charRead        = 0x40000000
	charDiscardable = 0x02000000
	charLnkRemove   = 0x00000800
	charNoLoad      = 0x00000002 // IMAGE_SCN_TYPE_NOLOAD
)

// Options configures a single rewrite.
type Options struct {
	RossymPayload []byte // nil/empty means no .rossym section is appended
}

// Write rebuilds v's image into a fresh byte slice, applying Options.
func Write(v *peview.View, opts Options) ([]byte, error) {
	raw := v.RawBytes()

	startOfRawData, err := computeStartOfRawData(v)
	if err != nil {
		return nil, err
	}

	header := make([]byte, startOfRawData)
	copy(header, raw[:min(startOfRawData, uint32(len(raw)))])

	fileHdrOff := findFileHeaderOffset(raw)
	optOff := fileHdrOff + fileHdrLen
	sizeOfOptHeader := binary.LittleEndian.Uint16(raw[fileHdrOff+16 : fileHdrOff+18])
	sectTableOff := optOff + uint32(sizeOfOptHeader)

	// Clear symbol-table pointer, symbol count, checksum, and the
	// stripped-debug characteristics flags in the copied header.
	binary.LittleEndian.PutUint32(header[fileHdrOff+8:fileHdrOff+12], 0)
	binary.LittleEndian.PutUint32(header[fileHdrOff+12:fileHdrOff+16], 0)
	chars := binary.LittleEndian.Uint16(header[fileHdrOff+18 : fileHdrOff+20])
	chars &^= lineNumsStripped | localSymsStripped | debugStripped
	binary.LittleEndian.PutUint16(header[fileHdrOff+18:fileHdrOff+20], chars)
	checksumOff := optOff + 64
	binary.LittleEndian.PutUint32(header[checksumOff:checksumOff+4], 0)

	relocDirOff := optOff + 112 + peview.DirBaseReloc*8

	type keptSection struct {
		sh      peview.SectionHeader
		name    string
		data    []byte
		isReloc bool
	}

	var kept []keptSection
	sizeOfImage := uint32(0)
	sectionAlign := v.Optional.SectionAlignment
	relocIndex := -1
	keptUsedLongName := false

	for i := range v.Sections {
		sh := v.Sections[i]
		name := v.SectionName(&sh)
		if peview.IsDebugSection(name) {
			continue
		}
		isReloc := name == ".reloc"
		data := v.SectionData(&sh)
		if v.UsesLongName(&sh) {
			keptUsedLongName = true
		}

		// The new header keeps a "/<n>" name as-is so it still indexes the
		// preserved long-name string table.
		hdrName := name
		if v.UsesLongName(&sh) {
			hdrName = string(bytes.TrimRight(sh.Name[:], "\x00"))
		}
		ks := keptSection{sh: sh, name: hdrName, data: data, isReloc: isReloc}
		kept = append(kept, ks)

		end := roundUp(sh.VirtualAddress+sh.VirtualSize, sectionAlign)
		if end > sizeOfImage {
			sizeOfImage = end
		}
		if isReloc {
			relocIndex = len(kept) - 1
		}
	}

	// Relocation dedup: drop blocks whose target section was stripped.
	if relocIndex >= 0 {
		sectionPresent := func(rva uint32) bool {
			for _, ks := range kept {
				if rva >= ks.sh.VirtualAddress && rva < ks.sh.VirtualAddress+ks.sh.VirtualSize {
					return true
				}
			}
			return false
		}
		newReloc := reloc.Rewrite(kept[relocIndex].data, sectionPresent)
		kept[relocIndex].data = newReloc
		kept[relocIndex].sh.VirtualSize = uint32(len(newReloc))
		kept[relocIndex].sh.SizeOfRawData = roundUp(uint32(len(newReloc)), v.Optional.FileAlignment)

		if relocIndex == len(kept)-1 {
			end := roundUp(kept[relocIndex].sh.VirtualAddress+kept[relocIndex].sh.VirtualSize, sectionAlign)
			sizeOfImage = end
			for idx, ks := range kept {
				if idx == relocIndex {
					continue
				}
				e := roundUp(ks.sh.VirtualAddress+ks.sh.VirtualSize, sectionAlign)
				if e > sizeOfImage {
					sizeOfImage = e
				}
			}
			if end > sizeOfImage {
				sizeOfImage = end
			}
		}

		binary.LittleEndian.PutUint32(header[relocDirOff+4:relocDirOff+8], uint32(len(newReloc)))
	}

	// Append .rossym if a payload exists.
	if len(opts.RossymPayload) > 0 {
		rva := sizeOfImage
		rawSize := roundUp(uint32(len(opts.RossymPayload)), v.Optional.FileAlignment)
		sh := peview.SectionHeader{
			VirtualAddress:  rva,
			VirtualSize:     uint32(len(opts.RossymPayload)),
			SizeOfRawData:   rawSize,
			Characteristics: charRead | charDiscardable | charLnkRemove | charNoLoad,
		}
		kept = append(kept, keptSection{sh: sh, name: rossymName, data: opts.RossymPayload})
		sizeOfImage = roundUp(rva+sh.VirtualSize, sectionAlign)
	}

	binary.LittleEndian.PutUint16(header[fileHdrOff+2:fileHdrOff+4], uint16(len(kept)))
	binary.LittleEndian.PutUint32(header[optOff+56:optOff+60], sizeOfImage)

	// Fresh section table and raw-data placement.
	rawOff := startOfRawData
	for i := range kept {
		ks := &kept[i]
		hOff := sectTableOff + uint32(i)*sectionHdrLen
		writeSectionHeader(header, hOff, ks.name, ks.sh, rawOff)
		ks.sh.PointerToRawData = rawOff
		rawOff += ks.sh.SizeOfRawData
	}

	var longNames []byte
	if keptUsedLongName {
		longNames = v.LongNameTable()
	}
	var longNamesOff uint32
	if longNames != nil {
		longNamesOff = rawOff
		binary.LittleEndian.PutUint32(header[fileHdrOff+8:fileHdrOff+12], longNamesOff)
		binary.LittleEndian.PutUint32(header[fileHdrOff+12:fileHdrOff+16], 0)
		rawOff += roundUp(uint32(len(longNames)), v.Optional.FileAlignment)
	}

	out := make([]byte, rawOff)
	copy(out, header)

	for i := range kept {
		ks := &kept[i]
		if ks.sh.PointerToRawData == 0 {
			continue
		}
		copy(out[ks.sh.PointerToRawData:], ks.data)
	}
	if longNames != nil {
		copy(out[longNamesOff:], longNames)
	}

	sum := checksum(out, checksumOff)
	binary.LittleEndian.PutUint32(out[checksumOff:checksumOff+4], sum)

	// The section table and raw data above are built through direct,
	// randomly-ordered offset writes (section placement isn't
	// sequential), so the commit guard only wraps the finished image:
	// once sealed here any further Write to the SafeBuffer panics. The
	// returned slice is the buffer's own backing storage and is not
	// itself write-protected.
	sb := safebuf.NewSafeBuffer("pe-image")
	sb.Write(out)
	sb.Commit()
	return sb.Bytes(), nil
}

// computeStartOfRawData finds the minimum PointerToRawData across kept
// (non-debug) sections with a nonzero value.
func computeStartOfRawData(v *peview.View) (uint32, error) {
	var lowest uint32
	found := false
	for i := range v.Sections {
		sh := &v.Sections[i]
		name := v.SectionName(sh)
		if peview.IsDebugSection(name) || sh.PointerToRawData == 0 {
			continue
		}
		if !found || sh.PointerToRawData < lowest {
			lowest = sh.PointerToRawData
			found = true
		}
	}
	if !found {
		return 0, rsymerr.New(rsymerr.BadDebug, "no non-debug section with raw data found")
	}
	return lowest, nil
}

func findFileHeaderOffset(raw []byte) uint32 {
	peOffset := binary.LittleEndian.Uint32(raw[0x3C:0x40])
	return peOffset + 4
}

func writeSectionHeader(header []byte, hOff uint32, name string, sh peview.SectionHeader, rawOff uint32) {
	var nameBytes [8]byte
	n := []byte(name)
	if len(n) > 8 {
		n = n[:8]
	}
	copy(nameBytes[:], n)
	copy(header[hOff:hOff+8], nameBytes[:])
	binary.LittleEndian.PutUint32(header[hOff+8:hOff+12], sh.VirtualSize)
	binary.LittleEndian.PutUint32(header[hOff+12:hOff+16], sh.VirtualAddress)
	binary.LittleEndian.PutUint32(header[hOff+16:hOff+20], sh.SizeOfRawData)
	binary.LittleEndian.PutUint32(header[hOff+20:hOff+24], rawOff)
	binary.LittleEndian.PutUint32(header[hOff+24:hOff+28], 0) // PointerToRelocations: not rewritten, matches original
	binary.LittleEndian.PutUint32(header[hOff+28:hOff+32], 0) // PointerToLinenumbers cleared
	binary.LittleEndian.PutUint16(header[hOff+32:hOff+34], 0)
	binary.LittleEndian.PutUint16(header[hOff+34:hOff+36], 0) // NumberOfLinenumbers cleared
	binary.LittleEndian.PutUint32(header[hOff+36:hOff+40], sh.Characteristics)
}

func roundUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}

// checksum implements the standard PE folded checksum: 16-bit
// little-endian words summed with end-around carry, header checksum
// field treated as zero, plus the total file length.
func checksum(data []byte, checksumOff uint32) uint32 {
	var c uint32
	for i := 0; i+1 < len(data); i += 2 {
		if uint32(i) == checksumOff || uint32(i) == checksumOff+2 {
			continue
		}
		word := uint32(binary.LittleEndian.Uint16(data[i : i+2]))
		c += word
		c = (c & 0xFFFF) + (c >> 16)
	}
	if len(data)%2 != 0 {
		word := uint32(data[len(data)-1])
		c += word
		c = (c & 0xFFFF) + (c >> 16)
	}
	c += uint32(len(data))
	return c
}
