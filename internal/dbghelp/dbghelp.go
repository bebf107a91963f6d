// Package dbghelp adapts an external line iterator and symbol resolver
// into uniform symbol records, per spec.md §4.4. It is the fallback
// path used when a module carries no stabs section.
//
// Both collaborators are external black boxes per spec.md §6: the line
// iterator yields (address, file, line, module base) in any order, and
// the resolver maps an address to a containing function name or "not
// found". Staging interned strings behind a packed (bucket, index) id
// and only flattening them into the shared pool in a second pass
// mirrors strpool's own bucket-and-chain layout, reused here for a
// transient, resolver-agnostic scratch table.
package dbghelp

import (
	"strings"

	"github.com/xyproto/rsym/internal/strpool"
	"github.com/xyproto/rsym/internal/symrec"
)

const bucketCount = 1024

// LineEntry is one record yielded by an external line iterator.
type LineEntry struct {
	Address    uint64
	FileName   string
	Line       uint32
	ModuleBase uint64
}

// LineIterator yields every known (address, file, line) tuple for a
// module. Order is not guaranteed.
type LineIterator interface {
	Next() (LineEntry, bool)
}

// SymbolResolver maps an address to the name of its containing
// function.
type SymbolResolver interface {
	Resolve(address uint64) (name string, ok bool)
}

// stage is a transient string table used only during a single Run,
// keyed the same way strpool is (DJB hash into a fixed bucket count)
// but storing a packed (bucket<<10)|index id instead of a byte offset,
// since the final offsets aren't known until the strings are copied
// into the shared pool.
type stage struct {
	buckets [bucketCount][]string
}

func djbHash(s string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(s); i++ {
		h = 33*h + uint32(s[i])
	}
	return h
}

func (s *stage) intern(str string) uint32 {
	b := djbHash(str) % bucketCount
	for i, existing := range s.buckets[b] {
		if existing == str {
			return pack(b, uint32(i))
		}
	}
	idx := uint32(len(s.buckets[b]))
	s.buckets[b] = append(s.buckets[b], str)
	return pack(b, idx)
}

func (s *stage) resolve(packed uint32) string {
	b, idx := unpack(packed)
	return s.buckets[b][idx]
}

func pack(bucket, index uint32) uint32   { return (bucket << 10) | (index & 0x3FF) }
func unpack(packed uint32) (b, i uint32) { return packed >> 10, packed & 0x3FF }

type pendingRecord struct {
	address uint32
	fileID  uint32
	funcID  uint32
	line    uint32
}

// Probe opens a candidate path read-only and reports whether it
// exists, used by the path-chop heuristic. Tests pass a fake;
// pipeline.Run substitutes a probe that always reports false when its
// Options carry none.
type Probe func(path string) bool

// Run drains it, resolving each address via resolver and computing the
// path-chop prefix against sourcePath on the first file path that
// contains a separator, then interns every trimmed path and resolved
// function name into pool, returning sorted symbol records.
func Run(it LineIterator, resolver SymbolResolver, sourcePath string, probe Probe, pool *strpool.Pool) []symrec.Record {
	st := &stage{}
	var pending []pendingRecord
	var chop string
	chopComputed := false

	for {
		entry, ok := it.Next()
		if !ok {
			break
		}

		if !chopComputed && containsSeparator(entry.FileName) {
			chop = computeChop(entry.FileName, sourcePath, probe)
			chopComputed = true
		}

		trimmed := entry.FileName
		if chopComputed {
			trimmed = strings.TrimPrefix(trimmed, chop)
		}
		fileID := st.intern(trimmed)

		funcName, ok := resolver.Resolve(entry.Address)
		if !ok {
			continue
		}
		funcID := st.intern(funcName)

		pending = append(pending, pendingRecord{
			address: uint32(entry.Address - entry.ModuleBase),
			fileID:  fileID,
			funcID:  funcID,
			line:    entry.Line,
		})
	}

	out := make([]symrec.Record, len(pending))
	for i, p := range pending {
		out[i] = symrec.Record{
			Address:        p.address,
			FileOffset:     uint32(pool.Intern(st.resolve(p.fileID))),
			FunctionOffset: uint32(pool.Intern(st.resolve(p.funcID))),
			SourceLine:     p.line,
		}
	}

	symrec.Sort(out)
	return out
}

func containsSeparator(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// computeChop implements the path-chop heuristic: walk right-to-left
// through filePath's separators, trying <sourcePath>/<suffix> for each
// increasingly long suffix until one opens. If none do, chop is the
// filename up to the first separator.
func computeChop(filePath, sourcePath string, probe Probe) string {
	seps := separatorIndices(filePath)
	if len(seps) == 0 {
		return ""
	}

	for i := len(seps) - 1; i >= 0; i-- {
		suffix := filePath[seps[i]+1:]
		candidate := sourcePath + "/" + suffix
		if probe(candidate) {
			return filePath[:seps[i]+1]
		}
	}
	return filePath[:seps[0]+1]
}

func separatorIndices(s string) []int {
	var out []int
	for i := 0; i < len(s); i++ {
		if s[i] == '/' || s[i] == '\\' {
			out = append(out, i)
		}
	}
	return out
}
