// Package stabs decodes the classic stabs/stabstr section pair into
// uniform symbol records, per spec.md §4.2. Record layout and field
// parsing follow the same encoding/binary-over-a-byte-slice style the
// teacher's pe_reader.go uses for fixed-layout structures.
package stabs

import (
	"encoding/binary"
	"strings"

	"github.com/xyproto/rsym/internal/rsymerr"
	"github.com/xyproto/rsym/internal/strpool"
	"github.com/xyproto/rsym/internal/symrec"
)

const recordSize = 12

// stabs n_type values this decoder understands.
const (
	nSO    = 0x64
	nSOL   = 0x84
	nBINCL = 0x82
	nFUN   = 0x24
	nSLINE = 0x44
)

const maxNameLen = 255

type rawRecord struct {
	Strx  uint32
	Type  uint8
	Other uint8
	Desc  uint16
	Value uint32
}

// decoder holds the single mutable "current record" cursor the walk
// advances as it crosses address boundaries, flushing the completed
// record to out each time the address moves.
type decoder struct {
	out   []symrec.Record
	cur   symrec.Record
	has   bool
	fname uint32
	fn    uint32
}

func (d *decoder) flush() {
	if d.has {
		d.out = append(d.out, d.cur)
	}
}

// advance ensures the current record covers address, flushing the
// previous one first if the address actually changed. The caller then
// mutates whichever field the stabs record type governs.
func (d *decoder) advance(address uint32) {
	if d.has && d.cur.Address == address {
		return
	}
	d.flush()
	d.cur = symrec.Record{Address: address, FileOffset: d.fname, FunctionOffset: d.fn}
	d.has = true
}

// Decode walks stabBlob (an array of 12-byte stabs records) indexed by
// stabstrBlob, interning every file and function name into pool, and
// returns symbol records sorted per symrec.Sort.
func Decode(stabBlob, stabstrBlob []byte, imageBase uint64, pool *strpool.Pool) ([]symrec.Record, error) {
	if len(stabBlob)%recordSize != 0 {
		return nil, rsymerr.New(rsymerr.BadDebug, "stabs section size %d is not a multiple of %d", len(stabBlob), recordSize)
	}

	d := &decoder{}
	var lastFunctionAddress uint32

	for off := 0; off+recordSize <= len(stabBlob); off += recordSize {
		rec := rawRecord{
			Strx:  binary.LittleEndian.Uint32(stabBlob[off : off+4]),
			Type:  stabBlob[off+4],
			Other: stabBlob[off+5],
			Desc:  binary.LittleEndian.Uint16(stabBlob[off+6 : off+8]),
			Value: binary.LittleEndian.Uint32(stabBlob[off+8 : off+12]),
		}

		var address uint32
		if lastFunctionAddress == 0 {
			address = rec.Value - uint32(imageBase)
		} else {
			address = lastFunctionAddress + rec.Value
		}

		name, err := readStabString(stabstrBlob, rec.Strx)
		if err != nil {
			return nil, err
		}

		switch rec.Type {
		case nSO, nSOL, nBINCL:
			if name == "" || strings.HasSuffix(name, "/") || strings.HasSuffix(name, `\`) {
				continue
			}
			if rec.Value < uint32(imageBase) {
				continue
			}
			d.advance(address)
			d.fname = uint32(pool.Intern(name))
			d.cur.FileOffset = d.fname

		case nFUN:
			if rec.Desc == 0 || rec.Value < uint32(imageBase) {
				lastFunctionAddress = 0
				continue
			}
			name = beforeColon(name)
			if len(name) > maxNameLen {
				return nil, rsymerr.New(rsymerr.BadDebug, "function name %q exceeds %d bytes", name, maxNameLen)
			}
			d.advance(address)
			d.fn = uint32(pool.Intern(name))
			d.cur.FunctionOffset = d.fn
			d.cur.SourceLine = 0
			lastFunctionAddress = address

		case nSLINE:
			d.advance(address)
			d.cur.SourceLine = uint32(rec.Desc)

		default:
			// skip
		}
	}
	d.flush()

	symrec.Sort(d.out)
	return d.out, nil
}

// beforeColon returns the part of s before the first ':', which strips
// the stabs type descriptor suffix that follows a function name.
func beforeColon(s string) string {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i]
	}
	return s
}

func readStabString(stabstr []byte, strx uint32) (string, error) {
	if strx == 0 {
		return "", nil
	}
	if uint64(strx) >= uint64(len(stabstr)) {
		return "", rsymerr.New(rsymerr.BadDebug, "stabstr offset %d out of range (len %d)", strx, len(stabstr))
	}
	end := strx
	for end < uint32(len(stabstr)) && stabstr[end] != 0 {
		end++
		if end-strx > maxNameLen+1 {
			return "", rsymerr.New(rsymerr.BadDebug, "stabstr entry at %d exceeds %d bytes", strx, maxNameLen)
		}
	}
	return string(stabstr[strx:end]), nil
}
