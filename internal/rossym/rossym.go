// Package rossym serializes the merged symbol records and string pool
// into the on-disk ".rossym" payload format described in spec.md §3/§6:
// a 16-byte header, N 16-byte symbol records, then the string pool.
package rossym

import (
	"encoding/binary"

	"github.com/xyproto/rsym/internal/safebuf"
	"github.com/xyproto/rsym/internal/strpool"
	"github.com/xyproto/rsym/internal/symrec"
)

const (
	headerSize    = 16
	recordSize    = 16
	symbolsOffset = headerSize
)

// Build returns the serialized payload for recs and pool. It counts
// only records actually present in recs — an empty recs slice yields an
// empty symbol array rather than a spurious terminal record (see
// DESIGN.md's resolution of spec.md §9's first open question).
func Build(recs []symrec.Record, pool *strpool.Pool) []byte {
	symbolsLength := uint32(len(recs) * recordSize)
	stringsOffset := symbolsOffset + symbolsLength
	strBytes := pool.Bytes()
	stringsLength := uint32(len(strBytes))

	// Every field below is written exactly once, strictly in order, so
	// the payload is assembled through a SafeBuffer rather than an
	// offset-indexed slice: Commit() guarantees nothing appends to it
	// after the trailing string pool bytes go in.
	sb := safebuf.NewSafeBuffer("rossym-payload")
	writeUint32(sb, symbolsOffset)
	writeUint32(sb, symbolsLength)
	writeUint32(sb, stringsOffset)
	writeUint32(sb, stringsLength)

	for _, r := range recs {
		writeUint32(sb, r.Address)
		writeUint32(sb, r.FileOffset)
		writeUint32(sb, r.FunctionOffset)
		writeUint32(sb, r.SourceLine)
	}

	sb.Write(strBytes)
	sb.Commit()
	return sb.Bytes()
}

func writeUint32(sb *safebuf.SafeBuffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	sb.Write(buf[:])
}
