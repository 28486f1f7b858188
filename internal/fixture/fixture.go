// Package fixture builds small complete tunes in the source encoding. The tunes
// contain a working play routine with the code fingerprints of NewPlayer v21 and
// are used by tests of the conversion stages.
package fixture

import (
	"fmt"

	"github.com/retroenv/sidforge/internal/assembler"
	"github.com/retroenv/sidforge/internal/convert"
	"github.com/retroenv/sidforge/internal/memory"
	"github.com/retroenv/sidforge/internal/music"
	"github.com/retroenv/sidforge/internal/player"
	"github.com/retroenv/sidforge/internal/psid"
)

// LoadAddress is the default load address of built tunes.
const LoadAddress = 0x1000

// SequencePointerStride is the distance between the low and high byte tables of
// the sequence pointers.
const SequencePointerStride = 0x80

// Tune is a built source tune.
type Tune struct {
	Image *memory.Image
	Init  uint16
	Play  uint16
}

// playerSource is a minimal play routine. It only sets up one voice but uses
// the table access code of NewPlayer v21.
const playerSource = `
init:    LDX #$18
         LDA #$00
clear:   STA $D400,X
         DEX
         BPL clear
         STA counter
         LDA #$0F
         STA $D418
         RTS

play:    INC counter
         LDX #$00
         LDY instruments+3       ; pulse index x4
         LDA pulse,Y
         STA $D402,X
         LDA pulse+1,Y
         STA $D403,X
         LDA instruments+2       ; wave row
         ASL A
         TAY
         LDA wave+1,Y
         CMP #$7F
         BNE setwave
         LDA wave,Y
         LDA #$41
setwave: STA $D404
         LDA instruments
         STA $D405
         LDA instruments+1
         STA $D406
         LDA seq0
         CMP #$A0
         BCC note
         AND #$1F
note:    CLC
         ADC counter
         STA $D401
         RTS

counter: .byte 0
`

// SourceTables returns a small song in the source encoding where every table
// row is referenced.
func SourceTables() *music.Tables {
	const carry = music.Carry
	ev := func(instrument, command, note, duration byte) music.SequenceEvent {
		return music.SequenceEvent{Instrument: instrument, Command: command, Note: note, Duration: duration}
	}

	return &music.Tables{
		Encoding: music.EncodingSource,
		Instruments: []music.Instrument{
			{AttackDecay: 0x09, SustainRelease: 0xa0, WaveIndex: 0, PulseIndex: 0, FilterIndex: 0,
				Flags: music.FlagHardRestart | music.FlagFilterEnable},
			{AttackDecay: 0x22, SustainRelease: 0x6a, WaveIndex: 2, PulseIndex: 4, FilterIndex: music.EndMarker},
		},
		Wave: []music.WaveEntry{
			{Waveform: 0x41, Note: 0x00},
			{Waveform: music.WaveJump, Note: 0},
			{Waveform: 0x21, Note: 0x0c},
			{Waveform: music.WaveJump, Note: 2},
		},
		Pulse: []music.PulseEvent{
			{ValueLo: 0x00, ValueHi: 0x08, Duration: 0x20, Next: 4},
			{ValueLo: 0x40, ValueHi: 0x00, Duration: 0x10, Next: music.EndMarker},
		},
		Filter: []music.FilterEvent{
			{ValueLo: 0x00, ValueHi: 0x40, Duration: 0x10, Next: 4},
			{ValueLo: 0x02, ValueHi: 0x00, Duration: 0x85, Next: music.EndMarker},
		},
		SuperCommands: []music.SuperCommand{
			{Command: 0x0b, Param: 6},
			{Command: 0x02, Param: 0x37},
		},
		Sequences: []music.Sequence{
			{
				ev(0, 0, 0x30, 3),
				ev(carry, carry, 0x32, carry),
				ev(1, 1, 0x24, 2),
				ev(carry, carry, music.NoteRest, carry),
			},
			{
				ev(1, carry, 0x18, 7),
				ev(carry, carry, 0x1a, carry),
			},
		},
		OrderLists: [music.Voices]music.OrderList{
			{Entries: []music.OrderEntry{{Sequence: 0}, {Sequence: 0}, {Transpose: 2, Sequence: 1}}},
			{Entries: []music.OrderEntry{{Sequence: 1}}},
			{Entries: []music.OrderEntry{{Transpose: -3, Sequence: 1}}},
		},
	}
}

// Build places the player and the tables at the layout offsets relative to the
// load address. Packed order lists and sequences follow the last table.
func Build(load uint16, layout player.Layout, tables *music.Tables) (*Tune, error) {
	if tables.Encoding != music.EncodingSource {
		return nil, fmt.Errorf("unexpected encoding %s", tables.Encoding)
	}

	img := &memory.Image{LoadAddress: load}
	write := func(offset uint16, data []byte) error {
		return img.Write(load+offset, data)
	}

	var instruments, wave, pulse, filter, commands []byte
	for _, inst := range tables.Instruments {
		instruments = append(instruments, inst.Row()...)
	}
	wave = convert.EncodeWave(tables.Wave, music.EncodingSource)
	for _, row := range tables.Pulse {
		pulse = append(pulse, row.Row()...)
	}
	for _, row := range tables.Filter {
		filter = append(filter, row.Row()...)
	}
	for _, cmd := range tables.SuperCommands {
		commands = append(commands, cmd.Row()...)
	}

	sizes := map[music.TableKind]int{
		music.TableInstruments: len(instruments),
		music.TableWave:        len(wave),
		music.TablePulse:       len(pulse),
		music.TableFilter:      len(filter),
		music.TableCommands:    len(commands),
		music.TableOrderLists:  2 * music.Voices,
		music.TableSequences:   2 * SequencePointerStride,
	}
	var dataOffset uint16
	for kind, offset := range layout {
		dataOffset = max(dataOffset, offset+uint16(sizes[kind]))
	}

	// packed data
	cursor := load + dataOffset
	var orderPointers [music.Voices]uint16
	for i, ol := range tables.OrderLists {
		b, err := ol.Encode(music.EncodingSource)
		if err != nil {
			return nil, fmt.Errorf("encoding order list %d: %w", i, err)
		}
		orderPointers[i] = cursor
		if err := img.Write(cursor, b); err != nil {
			return nil, err
		}
		cursor += uint16(len(b))
	}
	seqPointers := make([]uint16, len(tables.Sequences))
	for i, seq := range tables.Sequences {
		b, err := convert.EncodeSequence(seq, music.EncodingSource)
		if err != nil {
			return nil, fmt.Errorf("encoding sequence %d: %w", i, err)
		}
		seqPointers[i] = cursor
		if err := img.Write(cursor, b); err != nil {
			return nil, err
		}
		cursor += uint16(len(b))
	}

	for kind, data := range map[music.TableKind][]byte{
		music.TableInstruments: instruments,
		music.TableWave:        wave,
		music.TablePulse:       pulse,
		music.TableFilter:      filter,
		music.TableCommands:    commands,
	} {
		offset, ok := layout[kind]
		if !ok || len(data) == 0 {
			continue
		}
		if err := write(offset, data); err != nil {
			return nil, err
		}
	}

	if offset, ok := layout[music.TableOrderLists]; ok {
		for i, p := range orderPointers {
			img.SetByte(load+offset+uint16(i), byte(p))
			img.SetByte(load+offset+music.Voices+uint16(i), byte(p>>8))
		}
	}
	if offset, ok := layout[music.TableSequences]; ok {
		for i, p := range seqPointers {
			img.SetByte(load+offset+uint16(i), byte(p))
			img.SetByte(load+offset+SequencePointerStride+uint16(i), byte(p>>8))
		}
	}

	symbols := map[string]uint16{
		"instruments": load + layout[music.TableInstruments],
		"wave":        load + layout[music.TableWave],
		"pulse":       load + layout[music.TablePulse],
		"seq0":        load + dataOffset,
	}
	if len(seqPointers) > 0 {
		symbols["seq0"] = seqPointers[0]
	}
	prog, err := assembler.Assemble(load, playerSource, symbols)
	if err != nil {
		return nil, fmt.Errorf("assembling player: %w", err)
	}
	if err := img.Write(load, prog.Code); err != nil {
		return nil, err
	}
	play, _ := prog.Symbol("play")

	return &Tune{
		Image: img,
		Init:  load,
		Play:  play,
	}, nil
}

// PSID builds a complete PSID file of the tables with the NewPlayer v21 layout.
func PSID(tables *music.Tables) ([]byte, error) {
	tune, err := Build(LoadAddress, player.LaxityLayout, tables)
	if err != nil {
		return nil, err
	}

	h := psid.Header{
		Version:     2,
		LoadAddress: LoadAddress,
		InitAddress: tune.Init,
		PlayAddress: tune.Play,
		Songs:       1,
		StartSong:   1,
		Title:       "Fixture",
		Author:      "sidforge",
		Copyright:   "2024",
		Flags:       psid.FlagClockPAL | psid.FlagModel6581,
	}
	return psid.Build(h, tune.Image.Bytes())
}
