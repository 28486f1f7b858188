package convert

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/music"
)

func TestTransposeWave(t *testing.T) {
	dst, err := TransposeWaveToTarget([]byte{0x41, 0x00})
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x41}, dst)

	// rows (note, waveform): (00, 41) (0C, 21) (00, 7F)
	src := []byte{0x00, 0x41, 0x0c, 0x21, 0x00, 0x7f}
	dst, err = TransposeWaveToTarget(src)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x21, 0x7f, 0x00, 0x0c, 0x00}, dst)

	back, err := TransposeWaveToSource(dst, 3)
	assert.NoError(t, err)
	assert.Equal(t, src, back)

	_, err = TransposeWaveToTarget([]byte{0x41})
	assert.Error(t, err)
	_, err = TransposeWaveToSource([]byte{0x41}, 1)
	assert.Error(t, err)
}

func TestWaveCodec(t *testing.T) {
	rows := []music.WaveEntry{{Waveform: 0x41, Note: 0x00}, {Waveform: music.WaveJump, Note: 0x00}}

	src := EncodeWave(rows, music.EncodingSource)
	assert.Equal(t, []byte{0x00, 0x41, 0x00, 0x7f}, src)
	tgt := EncodeWave(rows, music.EncodingTarget)
	assert.Equal(t, []byte{0x41, 0x7f, 0x00, 0x00}, tgt)

	decoded, err := DecodeWave(src, music.EncodingSource)
	assert.NoError(t, err)
	assert.Equal(t, rows, decoded)
	decoded, err = DecodeWave(tgt, music.EncodingTarget)
	assert.NoError(t, err)
	assert.Equal(t, rows, decoded)
}

func TestWaveProgram(t *testing.T) {
	wave := []music.WaveEntry{
		{Waveform: music.WaveJump, Note: 2},
		{Waveform: music.WaveJump, Note: 0},
		{Waveform: 0x81, Note: 0},
		{Waveform: music.WaveJump, Note: 3}, // jumps to itself
		{Waveform: 0x41, Note: 0},
		{Waveform: 0x40, Note: 0},
	}
	p := &waveProgram{wave: wave, row: -1}

	p.start(1)
	assert.Equal(t, []byte{0x81, 0x81, 0x81}, p.step(3))

	p.start(4)
	assert.Equal(t, []byte{0x41, 0x40, 0x40}, p.step(3))

	p.start(9)
	assert.Equal(t, []byte{0x40}, p.step(1))
}

func TestScaleIndex(t *testing.T) {
	tests := []struct {
		index    byte
		expected byte
		err      error
	}{
		{0x00, 0x00, nil},
		{0x08, 0x02, nil},
		{0xfc, 0x3f, nil},
		{music.EndMarker, music.EndMarker, nil},
		{0x06, 0, ErrIndexMisaligned},
	}
	for _, tt := range tests {
		got, err := ScaleIndexToTarget(tt.index)
		if tt.err != nil {
			assert.True(t, errors.Is(err, tt.err))
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.expected, got)

		back, err := ScaleIndexToSource(got)
		assert.NoError(t, err)
		assert.Equal(t, tt.index, back)
	}

	_, err := ScaleIndexToSource(64)
	assert.True(t, errors.Is(err, music.ErrValueRange))
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		source   music.SuperCommand
		expected music.Command
	}{
		{"slide up", music.SuperCommand{Command: 0x00, Param: 0x20}, music.Command{Type: music.CommandSlide, Param1: 0x00, Param2: 0x20}},
		{"slide down", music.SuperCommand{Command: 0x01, Param: 0x20}, music.Command{Type: music.CommandSlide, Param1: 0x80, Param2: 0x20}},
		{"vibrato", music.SuperCommand{Command: 0x02, Param: 0x37}, music.Command{Type: music.CommandVibrato, Param1: 0x07, Param2: 0x03}},
		{"arpeggio", music.SuperCommand{Command: 0x04, Param: 0x37}, music.Command{Type: music.CommandArpeggio, Param1: 0x03, Param2: 0x07}},
		{"adsr", music.SuperCommand{Command: 0x06, Param: 0x09}, music.Command{Type: music.CommandADSRNote, Param1: 0x09}},
		{"volume", music.SuperCommand{Command: 0x0c, Param: 0x0f}, music.Command{Type: music.CommandVolume, Param2: 0x0f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := DecomposeCommand(tt.source)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, cmd)

			sc, err := ComposeCommand(cmd)
			assert.NoError(t, err)
			assert.Equal(t, tt.source, sc)
		})
	}

	_, err := DecomposeCommand(music.SuperCommand{Command: 0x20})
	assert.ErrorContains(t, err, "unknown source command")

	_, err = ComposeCommand(music.Command{Type: music.CommandVibrato, Param1: 0x10})
	assert.ErrorContains(t, err, "can not be represented")

	cmds, warnings := DecomposeCommands([]music.SuperCommand{{Command: 0x0b, Param: 6}, {Command: 0x30}})
	assert.Len(t, cmds, 2)
	assert.Equal(t, noopCommand, cmds[1])
	assert.Equal(t, 1, warnings.Count(diag.KindDroppedCommand))
}

func TestInferGates(t *testing.T) {
	frames := []VoiceFrame{
		{Waveform: 0x41}, // gate on
		{Waveform: 0x41}, // held
		{Waveform: 0x40}, // gate off
		{Waveform: 0x41}, // gate on
		{Waveform: 0x21}, // class change with gate set
		{Waveform: 0x20}, // gate off
		{Waveform: 0x20},
	}
	expected := []music.Gate{
		music.GateOn, music.GateNone, music.GateOff, music.GateOn,
		music.GateOn, music.GateOff, music.GateNone,
	}

	gates := InferGates(frames)
	assert.Equal(t, expected, gates)

	// feeding the result back as explicit markers must not add markers
	explicit := make([]VoiceFrame, len(frames))
	for i, f := range frames {
		explicit[i] = VoiceFrame{Waveform: f.Waveform, Marker: gates[i]}
	}
	assert.Equal(t, expected, InferGates(explicit))

	// explicit markers win over the waveform bit
	marked := []VoiceFrame{
		{Waveform: 0x40, Marker: music.GateOn},
		{Waveform: 0x41},
		{Waveform: 0x41, Marker: music.GateOff},
	}
	assert.Equal(t, []music.Gate{music.GateOn, music.GateNone, music.GateOff}, InferGates(marked))
}

func event(instrument, command, note, duration byte) music.SequenceEvent {
	return music.SequenceEvent{Instrument: instrument, Command: command, Note: note, Duration: duration}
}

const carry = music.Carry

func TestSequenceCodecSource(t *testing.T) {
	data := []byte{0x83, 0xa1, 0xc2, 0x30, 0x31, 0x82, 0x00, 0x7f}
	expected := music.Sequence{
		event(1, 2, 0x30, 3),
		event(carry, carry, 0x31, carry),
		event(carry, carry, 0x00, 2),
	}

	seq, n, err := DecodeSequence(append(data, 0x99), music.EncodingSource)
	assert.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, expected, seq)

	encoded, err := EncodeSequence(seq, music.EncodingSource)
	assert.NoError(t, err)
	assert.Equal(t, data, encoded)

	resolved := ResolveSequence(seq)
	assert.Equal(t, event(1, 2, 0x00, 2), resolved[2])
}

func TestSequenceCodecTarget(t *testing.T) {
	data := []byte{0x81, 0xa0, 0xfe, 0x7e, 0x60, 0x7d, 0x60, 0x7f}
	seq, _, err := DecodeSequence(data, music.EncodingTarget)
	assert.NoError(t, err)
	assert.Len(t, seq, 2)
	assert.Equal(t, byte(0x3e), seq[0].Command)
	assert.Equal(t, music.GateOn, seq[0].Gate)
	assert.Equal(t, music.GateOff, seq[1].Gate)

	encoded, err := EncodeSequence(seq, music.EncodingTarget)
	assert.NoError(t, err)
	assert.Equal(t, data, encoded)
}

func TestSequenceCanonicalEncoding(t *testing.T) {
	seq := music.Sequence{
		event(1, carry, 0x30, 2),
		event(1, carry, 0x31, 2), // repeats the state
	}
	encoded, err := EncodeSequence(seq, music.EncodingSource)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x82, 0xa1, 0x30, 0x31, 0x7f}, encoded)
}

func TestSequenceErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		enc  music.Encoding
		err  error
	}{
		{"unterminated", []byte{0x30, 0x31}, music.EncodingSource, music.ErrUnterminated},
		{"duplicate instrument", []byte{0xa0, 0xa1, 0x30, 0x7f}, music.EncodingSource, music.ErrInvalidByte},
		{"gate in source", []byte{0x7e, 0x30, 0x7f}, music.EncodingSource, music.ErrInvalidByte},
		{"high note in source", []byte{0x60, 0x7f}, music.EncodingSource, music.ErrInvalidByte},
		{"source command range", []byte{0xe0, 0x30, 0x7f}, music.EncodingSource, music.ErrInvalidByte},
		{"dangling prefix", []byte{0x30, 0x85, 0x7f}, music.EncodingSource, music.ErrInvalidByte},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeSequence(tt.data, tt.enc)
			assert.True(t, errors.Is(err, tt.err))
		})
	}

	_, err := EncodeSequence(music.Sequence{{Instrument: carry, Command: carry, Duration: carry, Note: 0x30, Gate: music.GateOn}}, music.EncodingSource)
	assert.True(t, errors.Is(err, music.ErrValueRange))
	_, err = EncodeSequence(music.Sequence{event(40, carry, 0x30, carry)}, music.EncodingTarget)
	assert.True(t, errors.Is(err, music.ErrValueRange))
}

func createSourceTables() *music.Tables {
	tables := &music.Tables{
		Encoding: music.EncodingSource,
		Tempo:    6,
		Instruments: []music.Instrument{
			{AttackDecay: 0x09, SustainRelease: 0xa0, WaveIndex: 0, PulseIndex: 4, FilterIndex: 0},
			{AttackDecay: 0x00, SustainRelease: 0xf8, WaveIndex: 2, PulseIndex: 0, FilterIndex: music.EndMarker, Flags: music.FlagHardRestart},
		},
		Wave: []music.WaveEntry{
			{Waveform: 0x41, Note: 0x00},
			{Waveform: music.WaveJump, Note: 0},
			{Waveform: 0x21, Note: 0x0c},
			{Waveform: music.WaveJump, Note: 2},
		},
		Pulse: []music.PulseEvent{
			{ValueLo: 0x00, ValueHi: 0x08, Duration: 0x10, Next: 4},
			{ValueLo: 0x40, ValueHi: 0x00, Duration: 0x20, Next: music.EndMarker},
		},
		Filter: []music.FilterEvent{
			{ValueLo: 0x00, ValueHi: 0x40, Duration: 0x10, Next: 4},
			{ValueLo: 0x02, ValueHi: 0x00, Duration: 0x85, Next: music.EndMarker},
		},
		SuperCommands: []music.SuperCommand{
			{Command: 0x02, Param: 0x37},
			{Command: 0x0c, Param: 0x0f},
			{Command: 0x20, Param: 0x00},
		},
		Sequences: []music.Sequence{
			{
				event(0, 0, 0x30, 3),
				event(carry, carry, 0x32, carry),
				event(1, carry, 0x30, carry),
				event(carry, carry, music.NoteRest, carry),
			},
		},
	}
	for i := range tables.OrderLists {
		tables.OrderLists[i] = music.OrderList{Entries: []music.OrderEntry{{Transpose: int8(i), Sequence: 0}}}
	}
	return tables
}

func TestToTarget(t *testing.T) {
	src := createSourceTables()

	dst, warnings, err := ToTarget(src)
	assert.NoError(t, err)
	assert.Equal(t, music.EncodingTarget, dst.Encoding)

	assert.Equal(t, byte(1), dst.Instruments[0].PulseIndex)
	assert.Equal(t, byte(music.EndMarker), dst.Instruments[1].FilterIndex)
	assert.Equal(t, byte(1), dst.Pulse[0].Next)
	assert.Equal(t, music.FilterEvent{ValueLo: 0x00, ValueHi: 0x4a, Duration: 5, Next: music.EndMarker}, dst.Filter[1])
	assert.Equal(t, music.Command{Type: music.CommandVibrato, Param1: 0x07, Param2: 0x03}, dst.Commands[0])

	gates := []music.Gate{music.GateOn, music.GateNone, music.GateOn, music.GateNone}
	for i, e := range dst.Sequences[0] {
		assert.Equal(t, gates[i], e.Gate)
	}

	assert.True(t, warnings.Has(diag.KindApproximateFilter))
	assert.Equal(t, 1, warnings.Count(diag.KindDroppedCommand))

	// source tables are not modified
	assert.Equal(t, byte(4), src.Instruments[0].PulseIndex)
	assert.Equal(t, music.GateNone, src.Sequences[0][0].Gate)
}

func TestRoundTrip(t *testing.T) {
	dst, _, err := ToTarget(createSourceTables())
	assert.NoError(t, err)

	src, _, err := ToSource(dst)
	assert.NoError(t, err)
	assert.Equal(t, music.EncodingSource, src.Encoding)

	again, warnings, err := ToTarget(src)
	assert.NoError(t, err)
	assert.Equal(t, *dst, *again)
	assert.Equal(t, 0, warnings.Count(diag.KindDroppedCommand))

	// hand written gates: the gate on is carried by the waveform, the gate off
	// on a rest is not and gets reported
	dst.Sequences = append(dst.Sequences, music.Sequence{
		{Instrument: 0, Command: carry, Note: 0x30, Duration: carry, Gate: music.GateOn},
		{Instrument: carry, Command: carry, Note: music.NoteRest, Duration: carry, Gate: music.GateOff},
	})
	src, warnings, err = ToSource(dst)
	assert.NoError(t, err)
	assert.Equal(t, 1, warnings.Count(diag.KindDroppedGate))
	assert.Equal(t, music.GateNone, src.Sequences[1][0].Gate)

	again, _, err = ToTarget(src)
	assert.NoError(t, err)
	assert.Equal(t, music.GateOn, again.Sequences[1][0].Gate)
	assert.Equal(t, music.GateNone, again.Sequences[1][1].Gate)
}

func TestSequenceGatesAcrossSequences(t *testing.T) {
	tables := &music.Tables{
		Encoding: music.EncodingSource,
		Tempo:    1,
		Instruments: []music.Instrument{
			{WaveIndex: 0}, // sustained
			{WaveIndex: 2}, // released by the wave program after one frame
		},
		Wave: []music.WaveEntry{
			{Waveform: 0x41},
			{Waveform: music.WaveJump, Note: 0},
			{Waveform: 0x41},
			{Waveform: 0x40},
			{Waveform: music.WaveJump, Note: 4},
		},
		Sequences: []music.Sequence{
			{event(0, carry, 0x30, 1)},
			{event(0, carry, 0x30, 1)},
			{event(1, carry, 0x30, 1)},
			{event(1, carry, 0x30, 1)},
		},
	}
	tables.OrderLists[0] = music.OrderList{Entries: []music.OrderEntry{{Sequence: 0}, {Sequence: 1}}}
	tables.OrderLists[1] = music.OrderList{Entries: []music.OrderEntry{{Sequence: 2}, {Sequence: 3}}}
	tables.OrderLists[2] = music.OrderList{Entries: []music.OrderEntry{{Sequence: 0}, {Sequence: 1}}}

	gates, warnings := SequenceGates(tables)
	assert.True(t, warnings.Empty())
	assert.Equal(t, [][]music.Gate{
		{music.GateOn},
		{music.GateNone}, // tied to the note of sequence 0
		{music.GateOn},
		{music.GateOn}, // the wave program released the previous note
	}, gates)

	// sequence 1 starting a voice needs its own gate on
	tables.OrderLists[2] = music.OrderList{Entries: []music.OrderEntry{{Sequence: 1}}}
	gates, warnings = SequenceGates(tables)
	assert.Equal(t, music.GateNone, gates[1][0])
	assert.True(t, warnings.Has(diag.KindFallback))
}

func TestConversionErrors(t *testing.T) {
	src := createSourceTables()
	src.Instruments[0].PulseIndex = 6
	_, _, err := ToTarget(src)
	assert.True(t, errors.Is(err, ErrIndexMisaligned))

	_, _, err = ToSource(createSourceTables())
	assert.ErrorContains(t, err, "unexpected table encoding")

	dst, _, err := ToTarget(createSourceTables())
	assert.NoError(t, err)
	dst.Sequences[0][0].Note = 0x68
	_, _, err = ToSource(dst)
	assert.True(t, errors.Is(err, music.ErrValueRange))

	src = createSourceTables()
	src.Wave[1].Note = 10
	_, _, err = ToTarget(src)
	assert.True(t, errors.Is(err, music.ErrValueRange))
}
