package convert

import (
	"slices"

	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/music"
	"github.com/retroenv/sidforge/internal/sid"
)

const waveformClassMask = 0xF0

// VoiceFrame is the waveform state of one event of a voice. A frame with a
// marker already carries an explicit gate and is passed through unchanged.
type VoiceFrame struct {
	Waveform byte   // waveform of the first frame of the event
	Played   []byte // waveforms of the following frames of the event
	Marker   music.Gate
}

// gateState is the gate bit and waveform class a voice carries from one
// event to the next.
type gateState struct {
	gate  bool
	class byte
}

// InferGates derives explicit gate markers from the gate bit of the waveform
// stream. A gate on marker is emitted when the gate bit goes from 0 to 1 or
// when the waveform class changes while the gate is set, a gate off marker
// when the gate bit goes from 1 to 0. Explicit markers update the state and
// are kept, so the inference is idempotent on explicit streams.
func InferGates(frames []VoiceFrame) []music.Gate {
	var state gateState
	return state.infer(frames)
}

func (s *gateState) infer(frames []VoiceFrame) []music.Gate {
	gates := make([]music.Gate, len(frames))

	for i, f := range frames {
		if f.Marker != music.GateNone {
			gates[i] = f.Marker
			s.gate = f.Marker == music.GateOn
			s.class = f.Waveform & waveformClassMask
			continue
		}

		bit := f.Waveform&sid.GateBit != 0
		cls := f.Waveform & waveformClassMask
		switch {
		case bit && (!s.gate || cls != s.class):
			gates[i] = music.GateOn
		case !bit && s.gate:
			gates[i] = music.GateOff
		}
		s.gate = bit
		s.class = cls

		// the wave program keeps running while the event plays, the next event
		// starts from the waveform it ended with
		if n := len(f.Played); n > 0 {
			last := f.Played[n-1]
			s.gate = last&sid.GateBit != 0
			s.class = last & waveformClassMask
		}
	}
	return gates
}

// waveProgram is the position of a voice in the wave table.
type waveProgram struct {
	wave     []music.WaveEntry
	row      int // next row to play, -1 once the program holds its waveform
	waveform byte
}

// start restarts the program at the row.
func (p *waveProgram) start(row int) {
	p.row = row
}

// step plays the given number of frames and returns their waveforms. Jump rows
// take no frame, a program that runs off the table or into a jump cycle holds
// its last waveform.
func (p *waveProgram) step(frames int) []byte {
	played := make([]byte, 0, frames)
	for range frames {
		if p.row >= 0 {
			p.advance()
		}
		played = append(played, p.waveform)
	}
	return played
}

func (p *waveProgram) advance() {
	next := func(i int) (int, bool) {
		if i < 0 || i >= len(p.wave) || !p.wave[i].IsJump() {
			return 0, false
		}
		return int(p.wave[i].Note), true
	}

	for _, i := range music.FollowChain(next, p.row, music.MaxWaveEntries) {
		if i >= len(p.wave) {
			break
		}
		if !p.wave[i].IsJump() {
			p.waveform = p.wave[i].Waveform
			p.row = i + 1
			if p.row >= len(p.wave) {
				p.row = -1
			}
			return
		}
	}
	p.row = -1
}

// eventFrames returns the number of player frames an event lasts.
func eventFrames(duration, tempo byte) int {
	rows := 1
	if duration != music.Carry {
		rows += int(duration)
	}
	return rows * max(int(tempo), 1)
}

// voiceFrames builds the waveform stream of a sequence played by a voice whose
// wave program is in the given state. Notes restart the wave program of their
// instrument, rests let the running program continue.
func voiceFrames(seq music.Sequence, tables *music.Tables, program *waveProgram) []VoiceFrame {
	frames := make([]VoiceFrame, len(seq))

	for i, e := range ResolveSequence(seq) {
		if e.Note != music.NoteRest && int(e.Instrument) < len(tables.Instruments) {
			program.start(int(tables.Instruments[e.Instrument].WaveIndex))
		}

		played := program.step(eventFrames(e.Duration, tables.Tempo))
		frames[i] = VoiceFrame{
			Waveform: played[0],
			Played:   played[1:],
		}
	}
	return frames
}

// SequenceGates infers the gate markers of all sequences of source tables.
// Every voice walks its order list once and carries its gate state and wave
// program from one sequence to the next, so notes that are tied across a
// sequence boundary do not get a new gate on marker. A sequence that is
// played with different gates at different positions keeps the gates of its
// first use and a warning is returned.
func SequenceGates(tables *music.Tables) ([][]music.Gate, diag.List) {
	var warnings diag.List
	gates := make([][]music.Gate, len(tables.Sequences))

	for voice, ol := range tables.OrderLists {
		var state gateState
		program := &waveProgram{wave: tables.Wave, row: -1}

		for _, entry := range ol.Entries {
			idx := int(entry.Sequence)
			if idx >= len(tables.Sequences) {
				continue
			}

			inferred := state.infer(voiceFrames(tables.Sequences[idx], tables, program))
			switch {
			case gates[idx] == nil:
				gates[idx] = inferred
			case !slices.Equal(gates[idx], inferred):
				warnings.Add(diag.KindFallback, "sequences",
					"voice %d plays sequence %d with different gates than its first use, keeping the first", voice+1, idx)
			}
		}
	}

	for idx, seq := range tables.Sequences {
		if gates[idx] != nil {
			continue
		}
		var state gateState
		program := &waveProgram{wave: tables.Wave, row: -1}
		gates[idx] = state.infer(voiceFrames(seq, tables, program))
	}
	return gates, warnings
}
