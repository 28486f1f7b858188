package music

// Row sizes of the source encoding tables.
const (
	InstrumentRowSize   = 8
	PulseRowSize        = 4
	FilterRowSize       = 4
	SuperCommandRowSize = 2
)

// ParseInstrumentRow decodes an 8 byte source instrument row:
// AD, SR, wave index, pulse index, filter index, flags and two unused bytes.
func ParseInstrumentRow(b []byte) Instrument {
	return Instrument{
		AttackDecay:    b[0],
		SustainRelease: b[1],
		WaveIndex:      b[2],
		PulseIndex:     b[3],
		FilterIndex:    b[4],
		Flags:          b[5],
	}
}

// Row returns the source row of the instrument.
func (i Instrument) Row() []byte {
	return []byte{i.AttackDecay, i.SustainRelease, i.WaveIndex, i.PulseIndex, i.FilterIndex, i.Flags, 0, 0}
}

// Columns returns the instrument as the column values of the target encoding.
func (i Instrument) Columns() []byte {
	return []byte{i.AttackDecay, i.SustainRelease, i.Flags, i.FilterIndex, i.PulseIndex, i.WaveIndex}
}

// InstrumentFromColumns is the inverse of Instrument.Columns.
func InstrumentFromColumns(c []byte) Instrument {
	return Instrument{
		AttackDecay:    c[0],
		SustainRelease: c[1],
		Flags:          c[2],
		FilterIndex:    c[3],
		PulseIndex:     c[4],
		WaveIndex:      c[5],
	}
}

// ParsePulseRow decodes a 4 byte pulse row.
func ParsePulseRow(b []byte) PulseEvent {
	return PulseEvent{ValueLo: b[0], ValueHi: b[1], Duration: b[2], Next: b[3]}
}

// Row returns the 4 byte row of the pulse event.
func (p PulseEvent) Row() []byte {
	return []byte{p.ValueLo, p.ValueHi, p.Duration, p.Next}
}

// ParseFilterRow decodes a 4 byte filter row.
func ParseFilterRow(b []byte) FilterEvent {
	return FilterEvent{ValueLo: b[0], ValueHi: b[1], Duration: b[2], Next: b[3]}
}

// Row returns the 4 byte row of the filter event.
func (f FilterEvent) Row() []byte {
	return []byte{f.ValueLo, f.ValueHi, f.Duration, f.Next}
}

// ParseSuperCommandRow decodes a 2 byte source command row.
func ParseSuperCommandRow(b []byte) SuperCommand {
	return SuperCommand{Command: b[0], Param: b[1]}
}

// Row returns the 2 byte row of the command.
func (c SuperCommand) Row() []byte {
	return []byte{c.Command, c.Param}
}

// Columns returns the command as the column values of the target encoding.
func (c Command) Columns() []byte {
	return []byte{byte(c.Type), c.Param1, c.Param2}
}

// CommandFromColumns is the inverse of Command.Columns.
func CommandFromColumns(c []byte) Command {
	return Command{Type: CommandType(c[0]), Param1: c[1], Param2: c[2]}
}
