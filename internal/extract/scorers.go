package extract

import (
	"slices"

	"github.com/retroenv/retrogolib/set"
	"github.com/retroenv/sidforge/internal/convert"
	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/music"
)

// Upper bounds of packed data that is passed to the decoders.
const (
	maxPackedOrderList = 2*music.MaxOrderListEntries + 2
	maxPackedSequence  = 4*music.MaxSequenceEvents + 1
)

const knownInstrumentFlags = music.FlagHardRestart | music.FlagFilterEnable | music.FlagOscReset

func (e *extractor) pointer(lo, hi uint16) uint16 {
	return uint16(e.img.Byte(lo)) | uint16(e.img.Byte(hi))<<8
}

// scoreOrderLists rates three low bytes followed by three high bytes of order
// list pointers.
func (e *extractor) scoreOrderLists(address uint16) (Score, any) {
	var s Score
	var lists [music.Voices]music.OrderList
	if !e.readable(address, 2*music.Voices) {
		return s, lists
	}

	for v := range music.Voices {
		ptr := e.pointer(address+uint16(v), address+music.Voices+uint16(v))
		loaded := e.img.Loaded(ptr)
		s.check(loaded, "voice %d pointer $%04X", v, ptr)

		var ol music.OrderList
		decoded := false
		if loaded {
			var err error
			ol, _, err = music.DecodeOrderList(e.tail(ptr, maxPackedOrderList), music.EncodingSource)
			decoded = err == nil
		}
		s.check(decoded, "voice %d order list decodes", v)
		s.check(decoded && len(ol.Entries) > 0, "voice %d order list has entries", v)
		if decoded {
			lists[v] = ol
		}
	}
	return s, lists
}

// sequenceScorer rates split low and high byte tables of sequence pointers.
func (e *extractor) sequenceScorer(count int) scorer {
	return func(address uint16) (Score, any) {
		var s Score
		if !e.readable(address, SequencePointerStride+count) {
			return s, nil
		}

		sequences := make([]music.Sequence, count)
		for i := range count {
			ptr := e.pointer(address+uint16(i), address+SequencePointerStride+uint16(i))
			loaded := e.img.Loaded(ptr)
			s.check(loaded, "sequence %d pointer $%04X", i, ptr)

			var seq music.Sequence
			decoded := false
			if loaded {
				var err error
				seq, _, err = convert.DecodeSequence(e.tail(ptr, maxPackedSequence), music.EncodingSource)
				decoded = err == nil
			}
			s.check(decoded, "sequence %d decodes", i)
			s.check(decoded && len(seq) > 0, "sequence %d has events", i)
			if decoded {
				sequences[i] = seq
			}
		}
		return s, sequences
	}
}

func validScaledIndex(index byte, capacity int) bool {
	return index == music.EndMarker || (index%convert.IndexScale == 0 && int(index)/convert.IndexScale < capacity)
}

func (e *extractor) instrumentScorer(count int) scorer {
	return func(address uint16) (Score, any) {
		var s Score
		size := count * music.InstrumentRowSize
		if !e.readable(address, size) {
			return s, nil
		}

		data := e.img.Slice(address, size)
		instruments := make([]music.Instrument, count)
		for i := range instruments {
			row := data[i*music.InstrumentRowSize : (i+1)*music.InstrumentRowSize]
			inst := music.ParseInstrumentRow(row)

			s.check(inst.AttackDecay|inst.SustainRelease != 0, "instrument %d envelope", i)
			s.check(inst.WaveIndex < music.MaxWaveEntries, "instrument %d wave index", i)
			s.check(validScaledIndex(inst.PulseIndex, music.MaxPulseEntries), "instrument %d pulse index", i)
			s.check(validScaledIndex(inst.FilterIndex, music.MaxFilterEntries), "instrument %d filter index", i)
			s.check(inst.Flags&^knownInstrumentFlags == 0 && row[6] == 0 && row[7] == 0, "instrument %d flags", i)
			instruments[i] = inst
		}
		return s, instruments
	}
}

func (e *extractor) commandScorer(count int) scorer {
	return func(address uint16) (Score, any) {
		var s Score
		size := count * music.SuperCommandRowSize
		if !e.readable(address, size) {
			return s, nil
		}

		data := e.img.Slice(address, size)
		commands := make([]music.SuperCommand, count)
		for i := range commands {
			cmd := music.ParseSuperCommandRow(data[i*music.SuperCommandRowSize:])
			_, err := convert.DecomposeCommand(cmd)
			s.check(err == nil, "command %d known", i)
			s.check(cmd != music.SuperCommand{}, "command %d set", i)
			commands[i] = cmd
		}
		return s, commands
	}
}

// row returns the bytes of a table row if it is inside the loaded range.
func (e *extractor) row(base uint16, index, size, capacity int) ([]byte, bool) {
	if index < 0 || index >= capacity {
		return nil, false
	}
	address := int(base) + index*size
	if address+size > int(e.img.LoadAddress)+e.img.Size {
		return nil, false
	}
	return e.img.Slice(uint16(address), size), true
}

// Wave note column values: relative notes up to MaxNoteOld, absolute notes
// from $80 on.
const (
	absoluteNoteBase = 0x80
	absoluteNoteMax  = absoluteNoteBase + music.MaxNoteOld
)

func validWaveRow(row music.WaveEntry) bool {
	if row.IsJump() {
		return int(row.Note) < music.MaxWaveEntries
	}
	waveform := row.Waveform&0xF0 != 0 || row.Waveform&0x08 != 0
	note := row.Note <= music.MaxNoteOld || (row.Note >= absoluteNoteBase && row.Note <= absoluteNoteMax)
	return waveform && note
}

// waveScorer follows the wave programs of all instruments through interleaved
// (note, waveform) rows.
func (e *extractor) waveScorer(starts []int) scorer {
	return func(address uint16) (Score, any) {
		var s Score
		if !e.img.Loaded(address) {
			return s, nil
		}

		rowAt := func(i int) (music.WaveEntry, bool) {
			b, ok := e.row(address, i, 2, music.MaxWaveEntries)
			if !ok {
				return music.WaveEntry{}, false
			}
			return music.WaveEntry{Note: b[0], Waveform: b[1]}, true
		}
		next := func(i int) (int, bool) {
			row, ok := rowAt(i)
			switch {
			case !ok:
				return 0, false
			case row.IsJump():
				return int(row.Note), true
			default:
				return i + 1, true
			}
		}

		rows := 0
		for _, start := range starts {
			chain := music.FollowChain(next, start, music.MaxWaveEntries)
			for _, i := range chain {
				row, ok := rowAt(i)
				s.check(ok, "wave row %d readable", i)
				s.check(ok && validWaveRow(row), "wave row %d waveform", i)
				if ok {
					rows = max(rows, i+1)
				}
			}
			last, ok := rowAt(chain[len(chain)-1])
			s.check(ok && last.IsJump(), "wave program %d loops", start)
		}

		wave, err := convert.DecodeWave(e.img.Slice(address, 2*rows), music.EncodingSource)
		if err != nil {
			return Score{}, nil
		}
		return s, wave
	}
}

type durationCheck func(duration byte) bool

func pulseDuration(duration byte) bool {
	return duration != 0
}

func filterDuration(duration byte) bool {
	return duration&0x7F != 0
}

// eventScorer follows the pulse or filter programs of all instruments through
// 4 byte rows linked by pre multiplied next indices.
func (e *extractor) eventScorer(starts []int, duration durationCheck) scorer {
	const rowSize = 4
	capacity := music.MaxPulseEntries // same as MaxFilterEntries

	return func(address uint16) (Score, any) {
		var s Score
		if !e.img.Loaded(address) {
			return s, nil
		}

		next := func(i int) (int, bool) {
			b, ok := e.row(address, i, rowSize, capacity)
			if !ok || b[3] == music.EndMarker || !validScaledIndex(b[3], capacity) {
				return 0, false
			}
			return int(b[3]) / convert.IndexScale, true
		}

		rows := 0
		for _, start := range starts {
			for _, i := range music.FollowChain(next, start, capacity) {
				b, ok := e.row(address, i, rowSize, capacity)
				s.check(ok && validScaledIndex(b[3], capacity), "row %d next index", i)
				s.check(ok && duration(b[2]), "row %d duration", i)
				if ok {
					rows = max(rows, i+1)
				}
			}
		}

		data := e.img.Slice(address, rows*rowSize)
		out := make([][]byte, rows)
		for i := range out {
			out[i] = data[i*rowSize : (i+1)*rowSize]
		}
		return s, out
	}
}

func toPulse(rows [][]byte) []music.PulseEvent {
	out := make([]music.PulseEvent, len(rows))
	for i, row := range rows {
		out[i] = music.ParsePulseRow(row)
	}
	return out
}

func toFilter(rows [][]byte) []music.FilterEvent {
	out := make([]music.FilterEvent, len(rows))
	for i, row := range rows {
		out[i] = music.ParseFilterRow(row)
	}
	return out
}

// chainStarts collects the distinct entry rows of the wave, pulse and filter
// programs of the instruments.
func (e *extractor) chainStarts(instruments []music.Instrument) (wave, pulse, filter []int) {
	collect := func(kind music.TableKind, indices []byte, scaled bool) []int {
		seen := set.New[int]()
		var starts []int
		for i, index := range indices {
			if scaled && index == music.EndMarker {
				continue
			}
			row := int(index)
			if scaled {
				if index%convert.IndexScale != 0 {
					e.result.Warnings.Add(diag.KindTableNotFound, kind.String(),
						"instrument %d index $%02X is not a multiple of %d", i, index, convert.IndexScale)
					continue
				}
				row /= convert.IndexScale
			}
			if seen.Contains(row) {
				continue
			}
			seen.Add(row)
			starts = append(starts, row)
		}
		slices.Sort(starts)
		return starts
	}

	waveIndices := make([]byte, len(instruments))
	pulseIndices := make([]byte, len(instruments))
	filterIndices := make([]byte, len(instruments))
	for i, inst := range instruments {
		waveIndices[i] = inst.WaveIndex
		pulseIndices[i] = inst.PulseIndex
		filterIndices[i] = inst.FilterIndex
	}

	return collect(music.TableWave, waveIndices, false),
		collect(music.TablePulse, pulseIndices, true),
		collect(music.TableFilter, filterIndices, true)
}
