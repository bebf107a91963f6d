// Package coffsym decodes the COFF symbol table embedded in a PE image
// into uniform symbol records, per spec.md §4.3. The fixed 18-byte
// record layout and the short-name/string-table-offset union mirror
// how the teacher's pe_reader.go treats the PE section table: a flat
// byte slice read with encoding/binary rather than a mapped struct.
package coffsym

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/xyproto/rsym/internal/peview"
	"github.com/xyproto/rsym/internal/rsymerr"
	"github.com/xyproto/rsym/internal/strpool"
	"github.com/xyproto/rsym/internal/symrec"
)

const recordSize = 18

// Storage classes and type bits this decoder cares about.
const (
	classExternal = 2
	dtFunctionBit = 0x20 // (type & 0xF0) == DT_FCN<<4 marks a function
)

type rawSymbol struct {
	Name       [8]byte
	Value      uint32
	SectionNum int16
	Type       uint16
	StorClass  uint8
	NumAux     uint8
}

// Decode walks symbols (NumberOfSymbols * 18 raw bytes) alongside the
// COFF long-name string table and the image's section headers, and
// returns one record per function or externally-visible symbol. When
// verbose is set, a C_EXT symbol that isn't a function still produces
// a record (matching the original tool's behavior) but is called out
// on stderr so it can be told apart from a genuine function symbol.
func Decode(symbols, strtab []byte, sections []peview.SectionHeader, pool *strpool.Pool, verbose bool) ([]symrec.Record, error) {
	var out []symrec.Record

	for off := 0; off+recordSize <= len(symbols); {
		var raw rawSymbol
		raw.Name = [8]byte(symbols[off : off+8])
		raw.Value = binary.LittleEndian.Uint32(symbols[off+8 : off+12])
		raw.SectionNum = int16(binary.LittleEndian.Uint16(symbols[off+12 : off+14]))
		raw.Type = binary.LittleEndian.Uint16(symbols[off+14 : off+16])
		raw.StorClass = symbols[off+16]
		raw.NumAux = symbols[off+17]

		isFunc := raw.Type&0xF0 == dtFunctionBit
		isExternal := raw.StorClass == classExternal
		if !isFunc && !isExternal {
			off += recordSize * (1 + int(raw.NumAux))
			continue
		}

		var address uint32
		if raw.SectionNum > 0 {
			idx := int(raw.SectionNum) - 1
			if idx >= len(sections) {
				return nil, rsymerr.New(rsymerr.BadDebug, "COFF symbol at offset %d references out-of-range section %d", off, raw.SectionNum)
			}
			address = raw.Value + sections[idx].VirtualAddress
		} else {
			address = raw.Value
		}

		name, err := symbolName(raw.Name, strtab)
		if err != nil {
			return nil, err
		}
		name = demangle(name)

		if verbose && isExternal && !isFunc {
			fmt.Fprintf(os.Stderr, "rsym: COFF symbol %q is C_EXT (class %d) but not a function\n", name, raw.StorClass)
		}

		out = append(out, symrec.Record{
			Address:        address,
			FunctionOffset: uint32(pool.Intern(name)),
		})

		off += recordSize * (1 + int(raw.NumAux))
	}

	symrec.Sort(out)
	return out, nil
}

// symbolName resolves a raw 8-byte name field: an inline NUL-padded
// name, or (if the first 4 bytes are zero) an offset into strtab.
func symbolName(raw [8]byte, strtab []byte) (string, error) {
	if raw[0] == 0 && raw[1] == 0 && raw[2] == 0 && raw[3] == 0 {
		offset := binary.LittleEndian.Uint32(raw[4:8])
		if uint64(offset) >= uint64(len(strtab)) {
			return "", rsymerr.New(rsymerr.BadDebug, "COFF string table offset %d out of range (len %d)", offset, len(strtab))
		}
		end := offset
		for end < uint32(len(strtab)) && strtab[end] != 0 {
			end++
		}
		return string(strtab[offset:end]), nil
	}
	end := 8
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end]), nil
}

// demangle strips an "@N" stdcall decoration suffix and a single
// leading '_' or '@' cdecl/fastcall marker.
func demangle(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '@' {
			name = name[:i]
			break
		}
	}
	if len(name) > 0 && (name[0] == '_' || name[0] == '@') {
		name = name[1:]
	}
	return name
}
