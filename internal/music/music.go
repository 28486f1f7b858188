// Package music contains the table model of a song that is shared by the source
// and target encodings.
package music

import "fmt"

// Encoding selects the byte level conventions of table values.
type Encoding int

const (
	// EncodingSource stores pulse and filter indices multiplied by 4 and uses the
	// interleaved wave table layout.
	EncodingSource Encoding = iota + 1
	// EncodingTarget stores direct indices, column major tables and explicit gate markers.
	EncodingTarget
)

func (e Encoding) String() string {
	switch e {
	case EncodingSource:
		return "source"
	case EncodingTarget:
		return "target"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// TableKind identifies a table type.
type TableKind int

const (
	TableInstruments TableKind = iota
	TableWave
	TablePulse
	TableFilter
	TableCommands
	TableSequences
	TableOrderLists
)

// TableKinds lists all table kinds in extraction order.
var TableKinds = []TableKind{
	TableInstruments, TableWave, TablePulse, TableFilter,
	TableCommands, TableSequences, TableOrderLists,
}

var tableNames = [...]string{"instruments", "wave", "pulse", "filter", "commands", "sequences", "orderlists"}

func (k TableKind) String() string {
	if k >= 0 && int(k) < len(tableNames) {
		return tableNames[k]
	}
	return fmt.Sprintf("table(%d)", int(k))
}

// Table capacities.
const (
	MaxInstruments       = 32
	MaxInstrumentsLegacy = 8
	MaxWaveEntries       = 128
	MaxPulseEntries      = 64
	MaxFilterEntries     = 64
	MaxSourceCommands    = 32
	MaxCommands          = 64
	MaxSequences         = 128
	MaxSequenceEvents    = 256
	MaxOrderListEntries  = 255
	Voices               = 3
)

// Capacity returns the maximum number of entries of a table kind, which is also
// the bound for following chains in it.
func Capacity(kind TableKind) int {
	switch kind {
	case TableInstruments:
		return MaxInstruments
	case TableWave:
		return MaxWaveEntries
	case TablePulse:
		return MaxPulseEntries
	case TableFilter:
		return MaxFilterEntries
	case TableCommands:
		return MaxCommands
	case TableSequences:
		return MaxSequences
	case TableOrderLists:
		return MaxOrderListEntries
	default:
		return 0
	}
}

// Tables is the complete table set of a song in one encoding.
type Tables struct {
	Encoding Encoding

	Instruments   []Instrument
	Wave          []WaveEntry
	Pulse         []PulseEvent
	Filter        []FilterEvent
	SuperCommands []SuperCommand // source encoding
	Commands      []Command      // target encoding
	Sequences     []Sequence
	OrderLists    [Voices]OrderList

	Tempo byte
}

// Clone returns a deep copy of the tables.
func (t *Tables) Clone() *Tables {
	c := *t
	c.Instruments = append([]Instrument(nil), t.Instruments...)
	c.Wave = append([]WaveEntry(nil), t.Wave...)
	c.Pulse = append([]PulseEvent(nil), t.Pulse...)
	c.Filter = append([]FilterEvent(nil), t.Filter...)
	c.SuperCommands = append([]SuperCommand(nil), t.SuperCommands...)
	c.Commands = append([]Command(nil), t.Commands...)
	c.Sequences = make([]Sequence, len(t.Sequences))
	for i, seq := range t.Sequences {
		c.Sequences[i] = append(Sequence(nil), seq...)
	}
	for i, ol := range t.OrderLists {
		c.OrderLists[i] = OrderList{
			Entries: append([]OrderEntry(nil), ol.Entries...),
			Loop:    ol.Loop,
		}
	}
	return &c
}

// Empty returns whether no entries exist for the table kind.
func (t *Tables) Empty(kind TableKind) bool {
	switch kind {
	case TableInstruments:
		return len(t.Instruments) == 0
	case TableWave:
		return len(t.Wave) == 0
	case TablePulse:
		return len(t.Pulse) == 0
	case TableFilter:
		return len(t.Filter) == 0
	case TableCommands:
		return len(t.SuperCommands) == 0 && len(t.Commands) == 0
	case TableSequences:
		return len(t.Sequences) == 0
	case TableOrderLists:
		for _, ol := range t.OrderLists {
			if len(ol.Entries) > 0 {
				return false
			}
		}
		return true
	default:
		return true
	}
}
