package relocate

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/sidforge/internal/memory"
)

// createTestCode returns size zero bytes with data copied to the offset.
func createTestCode(size, offset int, data ...byte) []byte {
	code := make([]byte, size)
	copy(code[offset:], data)
	return code
}

func TestRelocatePointerAtEveryOffset(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		source uint16
		dest   uint16
	}{
		{"odd offset down", 1, 0x1000, 0x0E00},
		{"even offset down", 2, 0x1000, 0x0E00},
		{"odd offset up", 3, 0x1000, 0x2345},
		{"last word", 6, 0x1000, 0xC000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := createTestCode(8, tt.offset, byte(tt.source), byte(tt.source>>8))
			original := append([]byte(nil), code...)

			res, err := Relocate(code, tt.source, tt.dest, Options{})
			assert.NoError(t, err)
			assert.Equal(t, original, code)
			assert.Len(t, res.Patches, 1)

			p := res.Patches[0]
			assert.Equal(t, tt.source+uint16(tt.offset), p.Address)
			assert.Equal(t, tt.dest, p.Relocated)
			assert.Equal(t, WidthWord, p.Width)
			assert.Equal(t, byte(tt.dest), res.Code[tt.offset])
			assert.Equal(t, byte(tt.dest>>8), res.Code[tt.offset+1])
		})
	}
}

func TestRelocateOddOffsetBytes(t *testing.T) {
	code := []byte{0xEA, 0x00, 0x10, 0xEA}
	res, err := Relocate(code, 0x1000, 0x0E00, Options{})
	assert.NoError(t, err)
	assert.Equal(t, []byte{0xEA, 0x00, 0x0E, 0xEA}, res.Code)
	assert.Equal(t, -0x200, res.Delta)
}

func TestRelocateTraceResolvesOverlap(t *testing.T) {
	// STA $1010, RTS: the opcode and the operand low byte form $108D
	code := createTestCode(0x100, 0, 0x8D, 0x10, 0x10, 0x60)

	_, err := Relocate(code, 0x1000, 0x0E00, Options{})
	assert.True(t, errors.Is(err, ErrOverlap))

	res, err := Relocate(code, 0x1000, 0x0E00, Options{EntryPoints: []uint16{0x1000}})
	assert.NoError(t, err)
	assert.Len(t, res.Patches, 1)
	assert.Equal(t, uint16(0x1001), res.Patches[0].Address)
	assert.Equal(t, []byte{0x8D, 0x10, 0x0E, 0x60}, res.Code[:4])
}

func TestRelocateTraceSkipsImmediates(t *testing.T) {
	// LDA #$08, BPL *+2, JMP $1000: the immediate and the branch opcode form $1008
	code := createTestCode(0x20, 0, 0xA9, 0x08, 0x10, 0x00, 0x4C, 0x00, 0x10)

	res, err := Relocate(code, 0x1000, 0x2000, Options{})
	assert.NoError(t, err)
	assert.Len(t, res.Patches, 2)

	res, err = Relocate(code, 0x1000, 0x2000, Options{EntryPoints: []uint16{0x1000}})
	assert.NoError(t, err)
	assert.Len(t, res.Patches, 1)
	assert.Equal(t, uint16(0x1005), res.Patches[0].Address)
	assert.Equal(t, []byte{0xA9, 0x08, 0x10, 0x00, 0x4C, 0x00, 0x20}, res.Code[:7])
}

func TestRelocatePointerTables(t *testing.T) {
	code := createTestCode(0x40, 0x10,
		0x20, 0x30, // low bytes
		0x10, 0x10, // high bytes
	)
	opts := Options{
		PointerTables: []PointerTable{{Low: 0x1010, High: 0x1012, Count: 2}},
	}

	res, err := Relocate(code, 0x1000, 0x0E00, opts)
	assert.NoError(t, err)
	assert.Len(t, res.Patches, 2)
	assert.Equal(t, WidthSplit, res.Patches[0].Width)
	assert.Equal(t, uint16(0x0E30), res.Patches[1].Relocated)
	assert.Equal(t, []byte{0x20, 0x30, 0x0E, 0x0E}, res.Code[0x10:0x14])
}

func TestRelocateRegionLength(t *testing.T) {
	// the pointer targets a variable after the code
	code := []byte{0xEA, 0x08, 0x10, 0xEA}

	res, err := Relocate(code, 0x1000, 0x2000, Options{})
	assert.NoError(t, err)
	assert.Len(t, res.Patches, 0)

	res, err = Relocate(code, 0x1000, 0x2000, Options{RegionLength: 0x10})
	assert.NoError(t, err)
	assert.Len(t, res.Patches, 1)
	assert.Equal(t, []byte{0xEA, 0x08, 0x20, 0xEA}, res.Code)
}

func TestRelocateErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		dest uint16
		opts Options
		err  error
	}{
		{"destination overflow", createTestCode(0x40, 0), 0xFFF0, Options{}, ErrOverflow},
		{"pointer overflow", createTestCode(0x40, 0, 0x70, 0x10), 0xFFC0, Options{RegionLength: 0x80,
			PointerTables: []PointerTable{{Low: 0x1000, High: 0x1001, Count: 1}}}, ErrOverflow},
		{"table outside code", createTestCode(0x40, 0), 0x2000, Options{
			PointerTables: []PointerTable{{Low: 0x1030, High: 0x1040, Count: 1}}}, ErrOutsideRegion},
		{"table pointer outside region", createTestCode(0x40, 0, 0x00, 0x20), 0x2000, Options{
			PointerTables: []PointerTable{{Low: 0x1000, High: 0x1001, Count: 1}}}, ErrOutsideRegion},
		{"scan range outside", createTestCode(0x40, 0), 0x2000, Options{
			ScanRanges: []Range{{Start: 0x1000, End: 0x1080}}}, ErrOutsideRegion},
		{"entry point outside", createTestCode(0x40, 0), 0x2000, Options{
			EntryPoints: []uint16{0x0800}}, ErrOutsideRegion},
		{"overlap", createTestCode(0x40, 0, 0x10, 0x10, 0x10), 0x2000, Options{}, ErrOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := append([]byte(nil), tt.code...)
			res, err := Relocate(tt.code, 0x1000, tt.dest, tt.opts)
			assert.True(t, errors.Is(err, tt.err))
			assert.Nil(t, res)
			assert.Equal(t, original, tt.code)

			var relocErr *Error
			assert.True(t, errors.As(err, &relocErr))
		})
	}
}

func TestRelocateImage(t *testing.T) {
	img, err := memory.New(0x1000, []byte{0x4C, 0x03, 0x10, 0x60})
	assert.NoError(t, err)

	out, res, err := RelocateImage(img, 0x8000, Options{EntryPoints: []uint16{0x1000}})
	assert.NoError(t, err)
	assert.Len(t, res.Patches, 1)
	assert.Equal(t, uint16(0x8000), out.LoadAddress)
	assert.Equal(t, []byte{0x4C, 0x03, 0x80, 0x60}, out.Bytes())
	assert.Equal(t, byte(0x10), img.Byte(0x1002))
}
