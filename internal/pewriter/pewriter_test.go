package pewriter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyproto/rsym/internal/peview"
	"github.com/xyproto/rsym/internal/testutil"
)

func buildView(t *testing.T, sections []testutil.Section, imageBase uint64) *peview.View {
	t.Helper()
	b := &testutil.Builder{ImageBase: imageBase, Sections: sections}
	raw := b.Build()
	v, err := peview.Open(raw)
	require.NoError(t, err)
	return v
}

func TestWriteStripsDebugSections(t *testing.T) {
	v := buildView(t, []testutil.Section{
		{Name: ".text", Data: make([]byte, 16)},
		{Name: ".debug_info", Data: make([]byte, 16)},
	}, 0x400000)

	out, err := Write(v, Options{})
	require.NoError(t, err)

	ov, err := peview.Open(out)
	require.NoError(t, err)
	assert.Nil(t, ov.FindSection(".debug_info"))
	assert.NotNil(t, ov.FindSection(".text"))
}

func TestWriteNoRossymWhenPayloadEmpty(t *testing.T) {
	v := buildView(t, []testutil.Section{
		{Name: ".text", Data: make([]byte, 16)},
	}, 0x400000)

	out, err := Write(v, Options{})
	require.NoError(t, err)

	ov, err := peview.Open(out)
	require.NoError(t, err)
	assert.Nil(t, ov.FindSection(".rossym"))
	assert.Len(t, ov.Sections, 1)
}

func TestWriteAppendsRossymSection(t *testing.T) {
	v := buildView(t, []testutil.Section{
		{Name: ".text", Data: make([]byte, 16)},
		{Name: ".data", Data: make([]byte, 16)},
	}, 0x400000)

	payload := []byte("fake-rossym-payload-bytes-000000")
	out, err := Write(v, Options{RossymPayload: payload})
	require.NoError(t, err)

	ov, err := peview.Open(out)
	require.NoError(t, err)
	sh := ov.FindSection(".rossym")
	require.NotNil(t, sh)
	assert.Equal(t, uint32(len(payload)), sh.VirtualSize)
	data := ov.SectionData(sh)
	require.GreaterOrEqual(t, len(data), len(payload))
	assert.Equal(t, payload, data[:len(payload)])
}

func TestWriteChecksumIsSelfConsistent(t *testing.T) {
	v := buildView(t, []testutil.Section{
		{Name: ".text", Data: make([]byte, 16)},
		{Name: ".data", Data: make([]byte, 16)},
	}, 0x400000)

	out, err := Write(v, Options{})
	require.NoError(t, err)

	ov, err := peview.Open(out)
	require.NoError(t, err)
	storedChecksum := ov.Optional.CheckSum

	tmp := append([]byte(nil), out...)
	fileHdrOff := findFileHeaderOffset(tmp)
	optOff := fileHdrOff + fileHdrLen
	checksumOff := optOff + 64
	binary.LittleEndian.PutUint32(tmp[checksumOff:checksumOff+4], 0)

	recomputed := checksum(tmp, checksumOff)
	assert.Equal(t, recomputed, storedChecksum)
}

// appendLongNameTable appends one placeholder COFF symbol (so the file
// header's symbol table pointer is non-zero) followed by a long-name
// string table whose first entry sits at offset 4, mirroring how a
// real linker lays the table out after the symbol records.
func appendLongNameTable(raw []byte, longName string) []byte {
	peOffset := binary.LittleEndian.Uint32(raw[0x3C:0x40])
	fileHdrOff := peOffset + 4
	symTabOff := uint32(len(raw))
	binary.LittleEndian.PutUint32(raw[fileHdrOff+8:fileHdrOff+12], symTabOff)
	binary.LittleEndian.PutUint32(raw[fileHdrOff+12:fileHdrOff+16], 1)

	sym := make([]byte, 18)
	out := append(raw, sym...)

	table := append([]byte(longName), 0)
	size := uint32(4 + len(table))
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, size)
	out = append(out, header...)
	out = append(out, table...)
	return out
}

func TestWriteKeepsLongNameTableWhenKeptSectionUsesIt(t *testing.T) {
	v := buildView(t, []testutil.Section{
		{Name: ".text", Data: make([]byte, 16)},
		{Name: "/4", Data: make([]byte, 16)},
	}, 0x400000)
	raw := appendLongNameTable(v.RawBytes(), "a_very_long_section_name")
	v, err := peview.Open(raw)
	require.NoError(t, err)

	out, err := Write(v, Options{})
	require.NoError(t, err)

	ov, err := peview.Open(out)
	require.NoError(t, err)
	require.NotZero(t, ov.File.PointerToSymbolTable)
	// NumberOfSymbols is 0: PointerToSymbolTable here points straight at
	// the preserved long-name table, not at any symbol records.
	assert.Zero(t, ov.File.NumberOfSymbols)
	tail := out[ov.File.PointerToSymbolTable:]
	assert.Contains(t, string(tail), "a_very_long_section_name")
}

func TestWriteDropsLongNameTableWhenUnused(t *testing.T) {
	v := buildView(t, []testutil.Section{
		{Name: ".text", Data: make([]byte, 16)},
		{Name: ".data", Data: make([]byte, 16)},
	}, 0x400000)
	raw := appendLongNameTable(v.RawBytes(), "a_very_long_section_name")
	v, err := peview.Open(raw)
	require.NoError(t, err)
	require.NotNil(t, v.LongNameTable(), "fixture must carry a long-name table for this test to be meaningful")

	out, err := Write(v, Options{})
	require.NoError(t, err)

	ov, err := peview.Open(out)
	require.NoError(t, err)
	assert.Zero(t, ov.File.PointerToSymbolTable)
	assert.Zero(t, ov.File.NumberOfSymbols)
}

func TestWriteDedupesRelocationBlocks(t *testing.T) {
	relocBlock := make([]byte, 16)
	binary.LittleEndian.PutUint32(relocBlock[0:4], 0x1000) // page RVA, inside .text (first section VA)
	binary.LittleEndian.PutUint32(relocBlock[4:8], 16)
	relocData := append(append([]byte{}, relocBlock...), relocBlock...)

	v := buildView(t, []testutil.Section{
		{Name: ".text", Data: make([]byte, 0x1000)},
		{Name: ".reloc", Data: relocData},
	}, 0x400000)

	out, err := Write(v, Options{})
	require.NoError(t, err)

	ov, err := peview.Open(out)
	require.NoError(t, err)
	sh := ov.FindSection(".reloc")
	require.NotNil(t, sh)
	assert.Equal(t, uint32(16), sh.VirtualSize)
}
