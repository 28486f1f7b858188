package driver

import (
	"fmt"

	"github.com/retroenv/sidforge/internal/assembler"
	"github.com/retroenv/sidforge/internal/music"
	"github.com/retroenv/sidforge/internal/player"
)

// DefaultBase is the address the builtin driver is assembled for.
const DefaultBase = 0x1000

// builtinSource is the placeholder register stream driver. Every frame it steps
// through the first 32 rows of the instrument and wave tables and writes them
// to voice 1, voices 2 and 3 stay silent.
const builtinSource = `
init:   LDA #$0F
        STA $D418
        LDA #$00
        STA frame
        RTS

play:   INC frame
        LDA frame
        AND #$1F
        TAX
        JSR voice
        RTS

voice:  LDA instAD,X
        STA $D405
        LDA instSR,X
        STA $D406
        LDA waveForm,X
        STA $D404
        LDA waveNote,X
        CLC
        ADC #$20
        STA $D401
        RTS
`

const (
	builtinCodeSize    = 0x100
	builtinFrameOffset = 0xF0
	builtinDataOffset  = 0x706
)

// builtinTables is the table layout of the builtin driver, it matches the
// layout that the player database knows for driver 11.
var builtinTables = map[music.TableKind]TableSpec{
	music.TableInstruments: {Offset: player.SF2Driver11Layout[music.TableInstruments], Columns: 6, Rows: music.MaxInstruments},
	music.TableCommands:    {Offset: player.SF2Driver11Layout[music.TableCommands], Columns: 3, Rows: music.MaxCommands},
	music.TableWave:        {Offset: player.SF2Driver11Layout[music.TableWave], Columns: 2, Rows: music.MaxWaveEntries},
	music.TablePulse:       {Offset: player.SF2Driver11Layout[music.TablePulse], Columns: 4, Rows: music.MaxPulseEntries},
	music.TableFilter:      {Offset: player.SF2Driver11Layout[music.TableFilter], Columns: 4, Rows: music.MaxFilterEntries},
	music.TableOrderLists:  {Offset: player.SF2Driver11Layout[music.TableOrderLists], Columns: 2, Rows: music.Voices},
	music.TableSequences:   {Offset: player.SF2Driver11Layout[music.TableSequences], Columns: 2, Rows: music.MaxSequences},
}

// Builtin provides the placeholder driver that is compiled into the program.
type Builtin struct {
	Base uint16 // defaults to DefaultBase
}

// Template assembles the builtin driver.
func (b Builtin) Template(name string) (*Template, error) {
	if name != DefaultName {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownDriver, name)
	}
	base := b.Base
	if base == 0 {
		base = DefaultBase
	}

	instruments := builtinTables[music.TableInstruments]
	wave := builtinTables[music.TableWave]
	symbols := map[string]uint16{
		"frame":    base + builtinFrameOffset,
		"instAD":   base + instruments.Offset,
		"instSR":   base + instruments.Offset + uint16(instruments.Rows),
		"waveForm": base + wave.Offset,
		"waveNote": base + wave.Offset + uint16(wave.Rows),
	}
	prog, err := assembler.Assemble(base, builtinSource, symbols)
	if err != nil {
		return nil, fmt.Errorf("assembling builtin driver: %w", err)
	}
	if len(prog.Code) > builtinFrameOffset {
		return nil, fmt.Errorf("builtin driver code of %d bytes overlaps its variables", len(prog.Code))
	}

	code := make([]byte, builtinDataOffset)
	copy(code, prog.Code)
	init, _ := prog.Symbol("init")
	play, _ := prog.Symbol("play")

	tables := make(map[music.TableKind]TableSpec, len(builtinTables))
	for kind, spec := range builtinTables {
		tables[kind] = spec
	}

	tpl := &Template{
		Name:       DefaultName,
		Base:       base,
		Code:       code,
		CodeSize:   builtinCodeSize,
		Init:       init,
		Play:       play,
		Tables:     tables,
		DataOffset: builtinDataOffset,
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return tpl, nil
}
