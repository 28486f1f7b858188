package music

import "github.com/retroenv/retrogolib/set"

// Instrument flags.
const (
	FlagHardRestart  byte = 0x80
	FlagFilterEnable byte = 0x40
	FlagOscReset     byte = 0x10
)

// Instrument is one row of the instrument table. Index fields hold encoding
// specific raw values, pulse and filter indices are multiplied by 4 in the
// source encoding.
type Instrument struct {
	AttackDecay    byte
	SustainRelease byte
	WaveIndex      byte
	PulseIndex     byte
	FilterIndex    byte
	Flags          byte
}

// WaveJump in the waveform field marks a jump row, the note field then holds
// the row index to continue at.
const WaveJump = 0x7F

// WaveEntry is one row of the wave table.
type WaveEntry struct {
	Waveform byte
	Note     byte // note offset, values of $80 and above are absolute notes
}

// IsJump returns whether the row is a loop marker.
func (w WaveEntry) IsJump() bool {
	return w.Waveform == WaveJump
}

// EndMarker in a next index field terminates a pulse or filter chain.
const EndMarker = 0xFF

// PulseEvent is one row of the pulse table.
type PulseEvent struct {
	ValueLo  byte
	ValueHi  byte // pulse width high nibble or delta
	Duration byte
	Next     byte // next row, EndMarker terminates
}

// FilterEvent is one row of the filter table.
type FilterEvent struct {
	ValueLo  byte // cutoff low bits or sweep delta
	ValueHi  byte // cutoff high byte
	Duration byte
	Next     byte
}

// CommandType is the type of a target command record.
type CommandType byte

// Target command types.
const (
	CommandSlide CommandType = iota
	CommandVibrato
	CommandPortamento
	CommandArpeggio
	CommandFretSlide
	CommandADSRNote
	CommandADSRPersist
	CommandFilterProgram
	CommandWaveProgram
	CommandPulseProgram
	CommandTempo
	CommandVolume
)

var commandNames = [...]string{
	"slide", "vibrato", "portamento", "arpeggio", "fret slide", "adsr note",
	"adsr persist", "filter program", "wave program", "pulse program", "tempo", "volume",
}

func (c CommandType) String() string {
	if int(c) < len(commandNames) {
		return commandNames[c]
	}
	return "unknown"
}

// Command is a three byte target command record with one logical parameter per field.
type Command struct {
	Type   CommandType
	Param1 byte
	Param2 byte
}

// SuperCommand is a two byte source command whose parameter byte may pack two
// logical parameters into its nibbles.
type SuperCommand struct {
	Command byte
	Param   byte
}

// Carry in an event field means the value of the previous event of the same
// sequence is kept.
const Carry = 0xFF

// Note values with special meaning.
const (
	NoteRest    = 0x00
	MaxNote     = 0x6F
	MaxNoteOld  = 0x5F // highest note of the source encoding
	MaxDuration = 0x1F
)

// Gate is an explicit gate marker of the target encoding.
type Gate byte

const (
	GateNone Gate = iota
	GateOn
	GateOff
)

func (g Gate) String() string {
	switch g {
	case GateOn:
		return "+++"
	case GateOff:
		return "---"
	default:
		return ""
	}
}

// SequenceEvent is one decoded sequence event. Instrument, Command and Duration
// use Carry when the packed data did not specify them.
type SequenceEvent struct {
	Instrument byte
	Command    byte
	Note       byte
	Duration   byte
	Gate       Gate // only used by the target encoding
}

// Sequence is a decoded pattern.
type Sequence []SequenceEvent

// OrderEntry is one entry of a voice order list.
type OrderEntry struct {
	Transpose int8
	Sequence  byte
}

// OrderList is the sequence order of one voice.
type OrderList struct {
	Entries []OrderEntry
	Loop    int // entry index playback continues at after the last entry
}

// FollowChain walks a linked chain of table rows from start. next returns the
// following row and false when the chain ends. The walk stops at the end of the
// chain, when a row is visited twice or after limit steps, whatever comes first,
// and returns the visited rows in order.
func FollowChain(next func(i int) (int, bool), start, limit int) []int {
	visited := set.New[int]()
	var chain []int

	for i := start; len(chain) < limit; {
		if visited.Contains(i) {
			break
		}
		visited.Add(i)
		chain = append(chain, i)

		n, ok := next(i)
		if !ok {
			break
		}
		i = n
	}
	return chain
}
