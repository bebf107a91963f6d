package coffsym

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyproto/rsym/internal/peview"
	"github.com/xyproto/rsym/internal/strpool"
)

func putSymbol(buf []byte, off int, name [8]byte, value uint32, section int16, typ uint16, class, numAux uint8) {
	copy(buf[off:off+8], name[:])
	binary.LittleEndian.PutUint32(buf[off+8:off+12], value)
	binary.LittleEndian.PutUint16(buf[off+12:off+14], uint16(section))
	binary.LittleEndian.PutUint16(buf[off+14:off+16], typ)
	buf[off+16] = class
	buf[off+17] = numAux
}

func inlineName(s string) [8]byte {
	var out [8]byte
	copy(out[:], s)
	return out
}

func indirectName(offset uint32) [8]byte {
	var out [8]byte
	binary.LittleEndian.PutUint32(out[4:8], offset)
	return out
}

func TestDecodeInlineFunctionName(t *testing.T) {
	buf := make([]byte, recordSize)
	putSymbol(buf, 0, inlineName("_main@4"), 0x10, 1, dtFunctionBit, 0, 0)

	sections := []peview.SectionHeader{{VirtualAddress: 0x1000}}
	pool := strpool.New()
	recs, err := Decode(buf, nil, sections, pool, false)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint32(0x1010), recs[0].Address)
	assert.Equal(t, "main", pool.Get(int(recs[0].FunctionOffset)))
}

func TestDecodeIndirectNameViaStringTable(t *testing.T) {
	strtab := append([]byte{0, 0, 0, 0}, []byte("long_external_name\x00")...)
	buf := make([]byte, recordSize)
	putSymbol(buf, 0, indirectName(4), 0, 0, 0, classExternal, 0)

	pool := strpool.New()
	recs, err := Decode(buf, strtab, nil, pool, false)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint32(0), recs[0].Address)
	assert.Equal(t, "long_external_name", pool.Get(int(recs[0].FunctionOffset)))
}

func TestDecodeSkipsNonFunctionNonExternal(t *testing.T) {
	buf := make([]byte, recordSize)
	putSymbol(buf, 0, inlineName("local"), 0, 0, 0, 3 /* C_STAT */, 0)

	pool := strpool.New()
	recs, err := Decode(buf, nil, nil, pool, false)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDecodeSkipsAuxiliaryRecords(t *testing.T) {
	buf := make([]byte, recordSize*3)
	putSymbol(buf, 0, inlineName("foo"), 0, 0, dtFunctionBit, 0, 1)
	// one aux record at offset recordSize, skipped entirely
	putSymbol(buf, recordSize*2, inlineName("bar"), 0x20, 0, dtFunctionBit, 0, 0)

	pool := strpool.New()
	recs, err := Decode(buf, nil, nil, pool, false)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "foo", pool.Get(int(recs[0].FunctionOffset)))
	assert.Equal(t, "bar", pool.Get(int(recs[1].FunctionOffset)))
}

func TestDecodeRejectsOutOfRangeSection(t *testing.T) {
	buf := make([]byte, recordSize)
	putSymbol(buf, 0, inlineName("oops"), 0, 5, dtFunctionBit, 0, 0)

	pool := strpool.New()
	_, err := Decode(buf, nil, nil, pool, false)
	require.Error(t, err)
}

func TestDecodeVerboseStillEmitsRecordForNonFunctionExternal(t *testing.T) {
	buf := make([]byte, recordSize)
	putSymbol(buf, 0, inlineName("g_counter"), 0x20, 0, 0, classExternal, 0)

	pool := strpool.New()
	recs, err := Decode(buf, nil, nil, pool, true)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "g_counter", pool.Get(int(recs[0].FunctionOffset)))
}

func TestDemangleStripsStdcallAndLeadingMarker(t *testing.T) {
	assert.Equal(t, "main", demangle("_main@4"))
	assert.Equal(t, "Foo", demangle("@Foo@8"))
	assert.Equal(t, "plainname", demangle("plainname"))
	assert.Equal(t, "name", demangle("_name"))
}
