package assembler

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestAssemble(t *testing.T) {
	source := `
sid = $D400
init:   LDX #$18
        LDA #$00
loop:   STA sid,X   ; clear all registers
        DEX
        BPL loop
        LDA #$0F
        STA sid+$18
        RTS
play:   JMP (vector)
vector: .word init
        .byte <play, >play, 1
`
	prog, err := Assemble(0x1000, source, nil)
	assert.NoError(t, err)

	expected := []byte{
		0xa2, 0x18,
		0xa9, 0x00,
		0x9d, 0x00, 0xd4,
		0xca,
		0x10, 0xfa,
		0xa9, 0x0f,
		0x8d, 0x18, 0xd4,
		0x60,
		0x6c, 0x13, 0x10,
		0x00, 0x10,
		0x10, 0x10, 0x01,
	}
	assert.Equal(t, expected, prog.Code)
	assert.Equal(t, uint16(0x1000+len(expected)), prog.End())

	play, ok := prog.Symbol("PLAY")
	assert.True(t, ok)
	assert.Equal(t, uint16(0x1010), play)
}

func TestZeroPageSelection(t *testing.T) {
	source := `
frame = $F0
        LDA frame
        INC later
        LDA (frame),Y
        LDX frame,Y
`
	prog, err := Assemble(0x2000, source, map[string]uint16{"later": 0xF1})
	assert.NoError(t, err)
	assert.Equal(t, []byte{0xa5, 0xf0, 0xe6, 0xf1, 0xb1, 0xf0, 0xb6, 0xf0}, prog.Code)

	// forward references are assembled with absolute addressing
	prog, err = Assemble(0x2000, "LDA var\nvar = $10", nil)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0xad, 0x10, 0x00}, prog.Code)
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		err    string
	}{
		{"unknown symbol", "JMP nowhere", "unknown symbol"},
		{"unknown mnemonic", "FOO $10", "no matching instruction"},
		{"invalid mode", "STA #$10", "no matching instruction"},
		{"duplicate label", "a1: NOP\na1: NOP", "duplicate symbol"},
		{"branch range", "BNE far\n.byte " + repeat("0,", 200) + "0\nfar: RTS", "out of range"},
		{"immediate too large", "LDA #$1234", "immediate value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(0x1000, tt.source, nil)
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

func repeat(s string, n int) string {
	var out string
	for range n {
		out += s
	}
	return out
}
