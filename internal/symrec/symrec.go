// Package symrec defines the uniform Symbol Record every decoder emits
// and the ordering used to sort the final .rossym table.
package symrec

import "sort"

// Record is the fixed-layout tuple spec.md §3 describes: an RVA plus
// two string-pool offsets and a 1-based source line. FileOffset and
// FunctionOffset of 0 mean "unknown"; SourceLine of 0 means "none".
type Record struct {
	Address        uint32
	FileOffset     uint32
	FunctionOffset uint32
	SourceLine     uint32
}

// Less implements the §4.6 compare function: ascending by Address, and
// among records sharing an Address, a record with no SourceLine sorts
// before one with a line number. All other ties compare equal — the
// sort need not be stable beyond that.
func Less(a, b Record) bool {
	if a.Address != b.Address {
		return a.Address < b.Address
	}
	aHasLine := a.SourceLine != 0
	bHasLine := b.SourceLine != 0
	if aHasLine != bHasLine {
		return !aHasLine
	}
	return false
}

// Sort orders recs in place per Less. Go's sort.Slice is not required
// to be stable and none of the invariants in spec.md §3 need it to be.
func Sort(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return Less(recs[i], recs[j]) })
}

// Equal reports whether two records are identical in all four fields,
// used by the merger to collapse duplicate adjacent records.
func Equal(a, b Record) bool {
	return a == b
}
