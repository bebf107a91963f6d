package dbghelp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyproto/rsym/internal/strpool"
)

type fakeIterator struct {
	entries []LineEntry
	pos     int
}

func (f *fakeIterator) Next() (LineEntry, bool) {
	if f.pos >= len(f.entries) {
		return LineEntry{}, false
	}
	e := f.entries[f.pos]
	f.pos++
	return e, true
}

type fakeResolver struct {
	names map[uint64]string
}

func (f *fakeResolver) Resolve(address uint64) (string, bool) {
	name, ok := f.names[address]
	return name, ok
}

func alwaysFalse(string) bool { return false }

func TestRunResolvesAndInterns(t *testing.T) {
	it := &fakeIterator{entries: []LineEntry{
		{Address: 0x401010, FileName: "main.c", Line: 5, ModuleBase: 0x400000},
		{Address: 0x401020, FileName: "main.c", Line: 6, ModuleBase: 0x400000},
	}}
	resolver := &fakeResolver{names: map[uint64]string{
		0x401010: "entry",
		0x401020: "entry",
	}}

	pool := strpool.New()
	recs := Run(it, resolver, "/src", alwaysFalse, pool)

	require.Len(t, recs, 2)
	assert.Equal(t, uint32(0x1010), recs[0].Address)
	assert.Equal(t, "main.c", pool.Get(int(recs[0].FileOffset)))
	assert.Equal(t, "entry", pool.Get(int(recs[0].FunctionOffset)))
}

func TestRunDiscardsUnresolvedAddresses(t *testing.T) {
	it := &fakeIterator{entries: []LineEntry{
		{Address: 0x401010, FileName: "main.c", Line: 5, ModuleBase: 0x400000},
	}}
	resolver := &fakeResolver{names: map[uint64]string{}}

	pool := strpool.New()
	recs := Run(it, resolver, "/src", alwaysFalse, pool)
	assert.Empty(t, recs)
}

func TestComputeChopFallsBackToFirstSeparator(t *testing.T) {
	chop := computeChop("a/b/c/main.c", "/src", alwaysFalse)
	assert.Equal(t, "a/", chop)
}

func TestComputeChopUsesFirstSuccessfulProbe(t *testing.T) {
	probe := func(path string) bool {
		return path == "/src/c/main.c"
	}
	chop := computeChop("a/b/c/main.c", "/src", probe)
	assert.Equal(t, "a/b/", chop)
}

func TestComputeChopNoSeparatorYieldsEmptyChop(t *testing.T) {
	chop := computeChop("main.c", "/src", alwaysFalse)
	assert.Equal(t, "", chop)
}

func TestRunAppliesChopToAllSubsequentPaths(t *testing.T) {
	it := &fakeIterator{entries: []LineEntry{
		{Address: 0x401000, FileName: "a/b/c/main.c", Line: 1, ModuleBase: 0x400000},
		{Address: 0x401004, FileName: "a/b/other.c", Line: 2, ModuleBase: 0x400000},
	}}
	resolver := &fakeResolver{names: map[uint64]string{
		0x401000: "f1",
		0x401004: "f2",
	}}
	probe := func(path string) bool { return path == "/src/c/main.c" }

	pool := strpool.New()
	recs := Run(it, resolver, "/src", probe, pool)

	require.Len(t, recs, 2)
	names := map[string]bool{}
	for _, r := range recs {
		names[pool.Get(int(r.FileOffset))] = true
	}
	assert.True(t, names["c/main.c"])
	assert.True(t, names["other.c"])
}

func TestStagePackUnpackRoundTrips(t *testing.T) {
	s := &stage{}
	id1 := s.intern("foo")
	id2 := s.intern("bar")
	id3 := s.intern("foo")

	assert.Equal(t, id1, id3)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, "foo", s.resolve(id1))
	assert.Equal(t, "bar", s.resolve(id2))
}
