// Package peview provides a read-only structured view over a PE/PE32+
// image: DOS/file/optional headers, the section table, RVA-to-section
// lookup, long section-name resolution through the COFF string table,
// and the special blobs (.stab, .stabstr, COFF symbols) later pipeline
// stages need. It never mutates the underlying bytes.
//
// The header structs and the seek-and-binary.Read parsing style are
// grounded directly on the teacher's own pe_reader.go (xyproto/c67),
// extended with the FileHeader fields (PointerToSymbolTable,
// NumberOfSymbols) and COFF string-table access spec.md §3 needs but
// the teacher's export-focused reader never touched.
package peview

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/xyproto/rsym/internal/rsymerr"
)

const (
	dosMagic      = 0x5A4D // "MZ"
	peSignature   = 0x00004550
	peOptMagic32  = 0x010B
	peOptMagic64  = 0x020B
	elfMagic0     = 0x7F
	dataDirCount  = 16
	sectionHdrLen = 40
	coffSymLen    = 18
)

// Data directory indices used by this tool.
const (
	DirBaseReloc = 5
)

// FileHeader mirrors the COFF file header embedded in a PE image.
type FileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// DataDirectory is one entry of the optional header's directory array.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// OptionalHeader64 is the PE32+ optional header. rsym only supports
// PE32+ input per spec.md's implicit target (a kernel debugger on
// 64-bit Windows); a PE32 image is reported as NotPE.
type OptionalHeader64 struct {
	Magic                   uint16
	MajorLinkerVersion      uint8
	MinorLinkerVersion      uint8
	SizeOfCode              uint32
	SizeOfInitializedData   uint32
	SizeOfUninitializedData uint32
	AddressOfEntryPoint     uint32
	BaseOfCode              uint32
	ImageBase               uint64
	SectionAlignment        uint32
	FileAlignment           uint32
	MajorOSVersion          uint16
	MinorOSVersion          uint16
	MajorImageVersion       uint16
	MinorImageVersion       uint16
	MajorSubsystemVersion   uint16
	MinorSubsystemVersion   uint16
	Win32VersionValue       uint32
	SizeOfImage             uint32
	SizeOfHeaders           uint32
	CheckSum                uint32
	Subsystem               uint16
	DllCharacteristics      uint16
	SizeOfStackReserve      uint64
	SizeOfStackCommit       uint64
	SizeOfHeapReserve       uint64
	SizeOfHeapCommit        uint64
	LoaderFlags             uint32
	NumberOfRvaAndSizes     uint32
	DataDirectory           [dataDirCount]DataDirectory
}

// SectionHeader is a single 40-byte PE section header entry.
type SectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

// View is the parsed, read-only structure over an input PE image.
type View struct {
	raw       []byte
	peOffset  uint32
	File      FileHeader
	Optional  OptionalHeader64
	Sections  []SectionHeader
	longNames []byte // COFF string table tail, if present (after symbol table)
}

// IsELF reports whether raw begins with the ELF magic, per spec.md §6.
func IsELF(raw []byte) bool {
	return len(raw) >= 4 && raw[0] == elfMagic0 && raw[1] == 'E' && raw[2] == 'L' && raw[3] == 'F'
}

// Open parses raw as a PE32+ image. Callers must check IsELF first;
// Open returns NotPE for anything that isn't a well-formed MZ/PE32+
// image, including a PE32 (32-bit) image.
func Open(raw []byte) (*View, error) {
	if len(raw) < 0x40 {
		return nil, rsymerr.New(rsymerr.NotPE, "input too small to contain a DOS header")
	}
	var magic uint16
	r := bytes.NewReader(raw)
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil || magic != dosMagic {
		return nil, rsymerr.New(rsymerr.NotPE, "missing MZ magic")
	}

	if len(raw) < 0x40 {
		return nil, rsymerr.New(rsymerr.NotPE, "truncated DOS header")
	}
	peOffset := binary.LittleEndian.Uint32(raw[0x3C:0x40])
	if uint64(peOffset)+4+20 > uint64(len(raw)) {
		return nil, rsymerr.New(rsymerr.NotPE, "e_lfanew out of range")
	}

	sig := binary.LittleEndian.Uint32(raw[peOffset : peOffset+4])
	if sig != peSignature {
		return nil, rsymerr.New(rsymerr.NotPE, "missing PE signature")
	}

	v := &View{raw: raw, peOffset: peOffset}

	fhOff := peOffset + 4
	if err := binary.Read(bytes.NewReader(raw[fhOff:]), binary.LittleEndian, &v.File); err != nil {
		return nil, rsymerr.Wrap(rsymerr.NotPE, err, "reading COFF file header")
	}

	optOff := fhOff + 20
	if v.File.SizeOfOptionalHeader == 0 {
		return nil, rsymerr.New(rsymerr.NotPE, "no optional header")
	}
	if uint64(optOff)+2 > uint64(len(raw)) {
		return nil, rsymerr.New(rsymerr.NotPE, "truncated optional header")
	}
	optMagic := binary.LittleEndian.Uint16(raw[optOff : optOff+2])
	switch optMagic {
	case peOptMagic64:
		if err := binary.Read(bytes.NewReader(raw[optOff:]), binary.LittleEndian, &v.Optional); err != nil {
			return nil, rsymerr.Wrap(rsymerr.NotPE, err, "reading PE32+ optional header")
		}
	case peOptMagic32:
		return nil, rsymerr.New(rsymerr.NotPE, "PE32 (32-bit) images are not supported, only PE32+")
	default:
		return nil, rsymerr.New(rsymerr.NotPE, "unknown optional header magic 0x%04x", optMagic)
	}

	sectOff := optOff + uint32(v.File.SizeOfOptionalHeader)
	v.Sections = make([]SectionHeader, v.File.NumberOfSections)
	for i := range v.Sections {
		off := sectOff + uint32(i)*sectionHdrLen
		if uint64(off)+sectionHdrLen > uint64(len(raw)) {
			return nil, rsymerr.New(rsymerr.NotPE, "section header %d out of range", i)
		}
		if err := binary.Read(bytes.NewReader(raw[off:off+sectionHdrLen]), binary.LittleEndian, &v.Sections[i]); err != nil {
			return nil, rsymerr.Wrap(rsymerr.NotPE, err, "reading section header %d", i)
		}
	}

	if v.File.PointerToSymbolTable != 0 && v.File.NumberOfSymbols != 0 {
		strTabOff := v.File.PointerToSymbolTable + v.File.NumberOfSymbols*coffSymLen
		if uint64(strTabOff)+4 <= uint64(len(raw)) {
			strTabLen := binary.LittleEndian.Uint32(raw[strTabOff : strTabOff+4])
			end := uint64(strTabOff) + uint64(strTabLen)
			if strTabLen >= 4 && end <= uint64(len(raw)) {
				v.longNames = raw[strTabOff:end]
			}
		}
	}

	return v, nil
}

// ImageBase returns the optional header's image base.
func (v *View) ImageBase() uint64 { return v.Optional.ImageBase }

// RawBytes returns the full input image, unmodified.
func (v *View) RawBytes() []byte { return v.raw }

// HasCOFFSymbols reports whether the file header points at a non-empty
// COFF symbol table.
func (v *View) HasCOFFSymbols() bool {
	return v.File.PointerToSymbolTable != 0 && v.File.NumberOfSymbols != 0
}

// COFFSymbolBytes returns the raw COFF symbol table region (18 bytes
// per entry, NumberOfSymbols entries) and the trailing long-name string
// table that follows it, if any.
func (v *View) COFFSymbolBytes() (symbols, strings []byte) {
	if !v.HasCOFFSymbols() {
		return nil, nil
	}
	start := v.File.PointerToSymbolTable
	length := v.File.NumberOfSymbols * coffSymLen
	if uint64(start)+uint64(length) > uint64(len(v.raw)) {
		return nil, nil
	}
	return v.raw[start : start+length], v.longNames
}

// LongNameTable returns the raw COFF long-name string table tail, or
// nil if the image carries none.
func (v *View) LongNameTable() []byte { return v.longNames }

// SectionName resolves a section header's Name field, following the
// "/<digits>" indirection into the COFF long-name string table when
// the 8-byte inline name starts with a slash.
func (v *View) SectionName(sh *SectionHeader) string {
	name := nullTrim(sh.Name[:])
	if len(name) > 1 && name[0] == '/' {
		var off uint32
		if _, err := fmt.Sscanf(name[1:], "%d", &off); err == nil && v.longNames != nil {
			if uint64(off) < uint64(len(v.longNames)) {
				return nullTrim(v.longNames[off:])
			}
		}
	}
	return name
}

// UsesLongName reports whether sh's raw 8-byte Name field is itself a
// "/<digits>" indirection into the COFF long-name string table, i.e.
// whether resolving this section's name actually required that table.
func (v *View) UsesLongName(sh *SectionHeader) bool {
	raw := nullTrim(sh.Name[:])
	return len(raw) > 1 && raw[0] == '/'
}

// SectionData returns the raw on-disk bytes of a section.
func (v *View) SectionData(sh *SectionHeader) []byte {
	if sh.PointerToRawData == 0 || sh.SizeOfRawData == 0 {
		return nil
	}
	start := uint64(sh.PointerToRawData)
	end := start + uint64(sh.SizeOfRawData)
	if end > uint64(len(v.raw)) {
		end = uint64(len(v.raw))
	}
	if start > end {
		return nil
	}
	return v.raw[start:end]
}

// FindSection returns the first section whose resolved name equals
// name, or nil.
func (v *View) FindSection(name string) *SectionHeader {
	for i := range v.Sections {
		if v.SectionName(&v.Sections[i]) == name {
			return &v.Sections[i]
		}
	}
	return nil
}

// SectionByRVA returns the section containing rva, or nil.
func (v *View) SectionByRVA(rva uint32) *SectionHeader {
	for i := range v.Sections {
		sh := &v.Sections[i]
		if rva >= sh.VirtualAddress && rva < sh.VirtualAddress+sh.VirtualSize {
			return sh
		}
	}
	return nil
}

// IsDebugSection reports whether name is one the PE Writer strips:
// anything starting with ".stab" or ".debug_".
func IsDebugSection(name string) bool {
	return hasPrefix(name, ".stab") || hasPrefix(name, ".debug_")
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func nullTrim(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimRight(b, " "))
}
