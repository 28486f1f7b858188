package convert

import (
	"fmt"

	"github.com/retroenv/sidforge/internal/music"
)

// Packed sequence bytes shared by both encodings.
const (
	seqEnd           = 0x7F
	seqDurationBase  = 0x80
	seqDurationMax   = 0x9F
	seqInstrBase     = 0xA0
	seqInstrMax      = 0xBF
	seqCommandBase   = 0xC0
	seqGateOff       = 0x7D // target only
	seqGateOn        = 0x7E // target only
	sourceCommandMax = 0xDF
	targetCommandMax = 0xFF
)

// carryState is the per sequence state that Carry values refer to.
type carryState struct {
	instrument byte
	command    byte
	duration   byte
}

func newCarryState() carryState {
	return carryState{
		instrument: music.Carry,
		command:    music.Carry,
		duration:   music.Carry,
	}
}

// apply updates the state with the explicit fields of the event and returns the
// event with all Carry fields resolved. Fields that were never set stay Carry.
func (s *carryState) apply(e music.SequenceEvent) music.SequenceEvent {
	if e.Instrument != music.Carry {
		s.instrument = e.Instrument
	}
	if e.Command != music.Carry {
		s.command = e.Command
	}
	if e.Duration != music.Carry {
		s.duration = e.Duration
	}
	e.Instrument = s.instrument
	e.Command = s.command
	e.Duration = s.duration
	return e
}

// ResolveSequence returns the events with all Carry fields replaced by the value
// they refer to.
func ResolveSequence(seq music.Sequence) music.Sequence {
	state := newCarryState()
	resolved := make(music.Sequence, len(seq))
	for i, e := range seq {
		resolved[i] = state.apply(e)
	}
	return resolved
}

// DecodeSequence decodes a packed sequence and returns it with the number of
// bytes consumed.
func DecodeSequence(data []byte, enc music.Encoding) (music.Sequence, int, error) {
	maxNote, maxCommand := byte(music.MaxNoteOld), byte(sourceCommandMax)
	if enc == music.EncodingTarget {
		maxNote, maxCommand = music.MaxNote, targetCommandMax
	}

	var seq music.Sequence
	event := pendingEvent()

	for i := 0; i < len(data); i++ {
		b := data[i]

		switch {
		case b == seqEnd:
			if event != pendingEvent() {
				return seq, i + 1, fmt.Errorf("%w: sequence ends inside an event at %d", music.ErrInvalidByte, i)
			}
			return seq, i + 1, nil

		case b <= maxNote:
			event.Note = b
			seq = append(seq, event)
			if len(seq) > music.MaxSequenceEvents {
				return seq, i, fmt.Errorf("%w: more than %d events", music.ErrValueRange, music.MaxSequenceEvents)
			}
			event = pendingEvent()

		case enc == music.EncodingTarget && (b == seqGateOn || b == seqGateOff):
			if event.Gate != music.GateNone {
				return seq, i, fmt.Errorf("%w: duplicate gate at %d", music.ErrInvalidByte, i)
			}
			event.Gate = music.GateOn
			if b == seqGateOff {
				event.Gate = music.GateOff
			}

		case b >= seqDurationBase && b <= seqDurationMax:
			if event.Duration != music.Carry {
				return seq, i, fmt.Errorf("%w: duplicate duration at %d", music.ErrInvalidByte, i)
			}
			event.Duration = b - seqDurationBase

		case b >= seqInstrBase && b <= seqInstrMax:
			if event.Instrument != music.Carry {
				return seq, i, fmt.Errorf("%w: duplicate instrument at %d", music.ErrInvalidByte, i)
			}
			event.Instrument = b - seqInstrBase

		case b >= seqCommandBase && b <= maxCommand:
			if event.Command != music.Carry {
				return seq, i, fmt.Errorf("%w: duplicate command at %d", music.ErrInvalidByte, i)
			}
			event.Command = b - seqCommandBase

		default:
			return seq, i, fmt.Errorf("%w: $%02X at %d in %s sequence", music.ErrInvalidByte, b, i, enc)
		}
	}
	return seq, len(data), music.ErrUnterminated
}

func pendingEvent() music.SequenceEvent {
	return music.SequenceEvent{
		Instrument: music.Carry,
		Command:    music.Carry,
		Duration:   music.Carry,
	}
}

// EncodeSequence packs a sequence. Explicit values that repeat the current state
// are omitted, the output is the canonical packed form.
func EncodeSequence(seq music.Sequence, enc music.Encoding) ([]byte, error) {
	maxNote, maxCommand := byte(music.MaxNoteOld), byte(music.MaxSourceCommands-1)
	if enc == music.EncodingTarget {
		maxNote, maxCommand = music.MaxNote, music.MaxCommands-1
	}

	buf := make([]byte, 0, 2*len(seq)+1)
	state := newCarryState()

	for i, e := range seq {
		if e.Duration != music.Carry && e.Duration != state.duration {
			if e.Duration > music.MaxDuration {
				return nil, fmt.Errorf("%w: duration %d in event %d", music.ErrValueRange, e.Duration, i)
			}
			buf = append(buf, seqDurationBase+e.Duration)
		}
		if e.Instrument != music.Carry && e.Instrument != state.instrument {
			if e.Instrument >= music.MaxInstruments {
				return nil, fmt.Errorf("%w: instrument %d in event %d", music.ErrValueRange, e.Instrument, i)
			}
			buf = append(buf, seqInstrBase+e.Instrument)
		}
		if e.Command != music.Carry && e.Command != state.command {
			if e.Command > maxCommand {
				return nil, fmt.Errorf("%w: command %d in event %d", music.ErrValueRange, e.Command, i)
			}
			buf = append(buf, seqCommandBase+e.Command)
		}

		switch e.Gate {
		case music.GateNone:
		case music.GateOn, music.GateOff:
			if enc != music.EncodingTarget {
				return nil, fmt.Errorf("%w: gate marker in event %d of %s sequence", music.ErrValueRange, i, enc)
			}
			b := byte(seqGateOn)
			if e.Gate == music.GateOff {
				b = seqGateOff
			}
			buf = append(buf, b)
		}

		if e.Note > maxNote {
			return nil, fmt.Errorf("%w: note $%02X in event %d", music.ErrValueRange, e.Note, i)
		}
		buf = append(buf, e.Note)
		state.apply(e)
	}

	buf = append(buf, seqEnd)
	return buf, nil
}
