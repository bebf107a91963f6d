// Package merge fuses a sorted array of line-granularity symbol records
// (from stabs or the DbgHelp adapter) with a sorted array of COFF
// function records, per spec.md §4.5. COFF only wins when it names a
// function stabs never declared; everywhere else stabs is authoritative.
package merge

import "github.com/xyproto/rsym/internal/symrec"

const maxAddress = ^uint32(0)

// Merge combines a (stabs or dbghelp) record array with a COFF record
// array into one sorted array. Every A record that stabs left nameless
// (FunctionOffset == 0) may adopt the name of the first not-yet-consumed
// COFF record whose address falls inside its region — the span up to
// the next A record's address, or to the end of the address space for
// the last one. A COFF record never consumed this way survives as its
// own record if both its address and its name are non-zero.
func Merge(a, c []symrec.Record) []symrec.Record {
	out := collapseRuns(a)
	consumed := make([]bool, len(c))

	ci := 0
	for i := range out {
		if out[i].FunctionOffset != 0 {
			continue
		}
		regionEnd := maxAddress
		if i+1 < len(out) {
			regionEnd = out[i+1].Address
		}
		for ci < len(c) && c[ci].Address < out[i].Address {
			ci++
		}
		if ci < len(c) && c[ci].Address < regionEnd && c[ci].FunctionOffset != 0 && !consumed[ci] {
			out[i].FunctionOffset = c[ci].FunctionOffset
			consumed[ci] = true
		}
	}

	for idx, rec := range c {
		if consumed[idx] {
			continue
		}
		if rec.Address != 0 && rec.FunctionOffset != 0 {
			out = append(out, rec)
		}
	}

	symrec.Sort(out)
	return dedupAdjacent(out)
}

// dedupAdjacent drops a record that is a byte-for-byte repeat of its
// immediate predecessor, per spec.md §3's "no two adjacent records
// share all four fields" invariant.
func dedupAdjacent(recs []symrec.Record) []symrec.Record {
	if len(recs) < 2 {
		return recs
	}
	out := recs[:1]
	for _, r := range recs[1:] {
		if !symrec.Equal(out[len(out)-1], r) {
			out = append(out, r)
		}
	}
	return out
}

// collapseRuns merges consecutive records sharing the same Address: the
// first of a run is the base, later ones fill in whatever fields the
// base left at 0.
func collapseRuns(a []symrec.Record) []symrec.Record {
	var out []symrec.Record
	for i := 0; i < len(a); {
		base := a[i]
		j := i + 1
		for j < len(a) && a[j].Address == base.Address {
			if base.FileOffset == 0 {
				base.FileOffset = a[j].FileOffset
			}
			if base.FunctionOffset == 0 {
				base.FunctionOffset = a[j].FunctionOffset
			}
			if base.SourceLine == 0 {
				base.SourceLine = a[j].SourceLine
			}
			j++
		}
		out = append(out, base)
		i = j
	}
	return out
}
