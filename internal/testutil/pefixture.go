// Package testutil builds small, byte-exact PE32+ fixtures for tests
// across the rsym packages, so each package's test file doesn't grow
// its own copy of the same header-packing logic.
package testutil

import "encoding/binary"

const (
	DOSHeaderSize   = 64
	DOSStubSize     = 128
	PESignatureSize = 4
	FileHeaderSize  = 20
	OptHeaderSize   = 240
	SectionHdrSize  = 40
	SectionAlign    = 0x1000
	FileAlign       = 0x200

	dosMagic     = 0x5A4D
	peSignature  = 0x00004550
	peOptMagic64 = 0x020B
)

// Section describes one section to place in a fixture image.
type Section struct {
	Name            string
	Data            []byte
	Characteristics uint32
}

// Builder assembles a minimal but structurally valid PE32+ image.
type Builder struct {
	ImageBase uint64
	Sections  []Section
}

// AlignUp rounds v up to the next multiple of align.
func AlignUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}

// Build returns the raw bytes of the assembled image.
func (b *Builder) Build() []byte {
	n := len(b.Sections)
	headerSize := AlignUp(uint32(DOSHeaderSize+DOSStubSize+PESignatureSize+FileHeaderSize+OptHeaderSize+n*SectionHdrSize), FileAlign)

	out := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(out[0:2], dosMagic)
	binary.LittleEndian.PutUint32(out[0x3C:0x40], DOSHeaderSize+DOSStubSize)

	peOff := uint32(DOSHeaderSize + DOSStubSize)
	binary.LittleEndian.PutUint32(out[peOff:peOff+4], peSignature)

	fhOff := peOff + PESignatureSize
	binary.LittleEndian.PutUint16(out[fhOff:fhOff+2], 0x8664)
	binary.LittleEndian.PutUint16(out[fhOff+2:fhOff+4], uint16(n))
	binary.LittleEndian.PutUint16(out[fhOff+16:fhOff+18], OptHeaderSize)
	binary.LittleEndian.PutUint16(out[fhOff+18:fhOff+20], 0x0022)

	optOff := fhOff + FileHeaderSize
	binary.LittleEndian.PutUint16(out[optOff:optOff+2], peOptMagic64)
	binary.LittleEndian.PutUint64(out[optOff+24:optOff+32], b.ImageBase)
	binary.LittleEndian.PutUint32(out[optOff+32:optOff+36], SectionAlign)
	binary.LittleEndian.PutUint32(out[optOff+36:optOff+40], FileAlign)
	binary.LittleEndian.PutUint32(out[optOff+108:optOff+112], 16)

	sectOff := optOff + OptHeaderSize
	rva := uint32(SectionAlign)
	rawOff := headerSize

	for i, s := range b.Sections {
		rawSize := AlignUp(uint32(len(s.Data)), FileAlign)

		hOff := sectOff + uint32(i)*SectionHdrSize
		nameBytes := []byte(s.Name)
		if len(nameBytes) > 8 {
			nameBytes = nameBytes[:8]
		}
		copy(out[hOff:hOff+8], nameBytes)
		binary.LittleEndian.PutUint32(out[hOff+8:hOff+12], uint32(len(s.Data)))
		binary.LittleEndian.PutUint32(out[hOff+12:hOff+16], rva)
		binary.LittleEndian.PutUint32(out[hOff+16:hOff+20], rawSize)
		binary.LittleEndian.PutUint32(out[hOff+20:hOff+24], rawOff)
		chars := s.Characteristics
		if chars == 0 {
			chars = 0x60000020
		}
		binary.LittleEndian.PutUint32(out[hOff+36:hOff+40], chars)

		out = growTo(out, rawOff+rawSize)
		copy(out[rawOff:], s.Data)

		rva += AlignUp(uint32(len(s.Data)), SectionAlign)
		rawOff += rawSize
	}
	return out
}

func growTo(b []byte, size uint32) []byte {
	if uint32(len(b)) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}
