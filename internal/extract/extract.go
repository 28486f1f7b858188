// Package extract locates the music tables of a source encoded player in a
// memory image.
//
// Every table type has an independent scorer that rates a candidate address by
// a list of plausibility checks. The layout of a matched player is tried first,
// otherwise all addresses of a bounded window are scored and the best candidate
// at or above the threshold of the table type is accepted. Equal scores are
// resolved to the lowest address.
package extract

import (
	"fmt"
	"math"

	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/memory"
	"github.com/retroenv/sidforge/internal/music"
	"github.com/retroenv/sidforge/internal/player"
)

// Acceptance thresholds as ratio of passed checks.
const (
	OrderListThreshold  = 0.9
	SequenceThreshold   = 0.9
	InstrumentThreshold = 0.8
	WaveThreshold       = 0.8
	PulseThreshold      = 0.75
	FilterThreshold     = 0.75
	CommandThreshold    = 0.75
)

// ScanWindow is the maximum number of bytes after the load address that are
// scanned for a table.
const ScanWindow = 0x4000

// SequencePointerStride is the distance between the low and high byte tables
// of the sequence pointers.
const SequencePointerStride = 0x80

// Score is the result of rating a candidate address.
type Score struct {
	Points int
	Max    int
	Checks []string // passed checks
}

// Ratio returns the share of passed checks.
func (s Score) Ratio() float64 {
	if s.Max == 0 {
		return 0
	}
	return float64(s.Points) / float64(s.Max)
}

func (s *Score) check(ok bool, format string, args ...any) {
	s.Max++
	if ok {
		s.Points++
		s.Checks = append(s.Checks, fmt.Sprintf(format, args...))
	}
}

// Location is the accepted address of a table.
type Location struct {
	Address  uint16
	Score    Score
	FromHint bool
}

// Result contains the extracted tables in the source encoding. Tables that
// were not found are empty and reported as warnings.
type Result struct {
	Tables    *music.Tables
	Locations map[music.TableKind]Location
	Warnings  diag.List
}

// Found returns whether a table was located.
func (r *Result) Found(kind music.TableKind) bool {
	_, ok := r.Locations[kind]
	return ok
}

func threshold(kind music.TableKind) float64 {
	switch kind {
	case music.TableOrderLists:
		return OrderListThreshold
	case music.TableSequences:
		return SequenceThreshold
	case music.TableInstruments:
		return InstrumentThreshold
	case music.TableWave:
		return WaveThreshold
	case music.TablePulse:
		return PulseThreshold
	case music.TableFilter:
		return FilterThreshold
	case music.TableCommands:
		return CommandThreshold
	default:
		return math.Inf(1)
	}
}

// scorer rates a candidate address and decodes the table found there.
type scorer func(address uint16) (Score, any)

type extractor struct {
	img    *memory.Image
	layout player.Layout
	result *Result
}

// FindTables extracts all tables of the image. The layout of the hint is tried
// first for every table. Order lists are located first as they define which
// sequences exist, sequences define the used instruments and commands and the
// instruments define the entry points of the wave, pulse and filter tables.
func FindTables(img *memory.Image, hint player.Match) *Result {
	e := &extractor{
		img:    img,
		layout: hint.Layout(),
		result: &Result{
			Tables:    &music.Tables{Encoding: music.EncodingSource},
			Locations: make(map[music.TableKind]Location),
		},
	}
	tables := e.result.Tables

	if v, ok := e.find(music.TableOrderLists, e.scoreOrderLists); ok {
		tables.OrderLists = v.([music.Voices]music.OrderList)
	}

	seqCount := sequenceCount(tables.OrderLists)
	if e.required(music.TableSequences, seqCount) {
		if v, ok := e.find(music.TableSequences, e.sequenceScorer(seqCount)); ok {
			tables.Sequences = v.([]music.Sequence)
			for i, seq := range tables.Sequences {
				if len(seq) == 0 {
					e.result.Warnings.Add(diag.KindTableNotFound, music.TableSequences.String(),
						"sequence %d could not be decoded", i)
				}
			}
		}
	}

	instrumentCount, commandCount := referencedCounts(tables.Sequences)
	if e.required(music.TableInstruments, instrumentCount) {
		if v, ok := e.find(music.TableInstruments, e.instrumentScorer(instrumentCount)); ok {
			tables.Instruments = v.([]music.Instrument)
		}
	}
	if e.required(music.TableCommands, commandCount) {
		if v, ok := e.find(music.TableCommands, e.commandScorer(commandCount)); ok {
			tables.SuperCommands = v.([]music.SuperCommand)
		}
	}

	waveStarts, pulseStarts, filterStarts := e.chainStarts(tables.Instruments)
	if e.required(music.TableWave, len(waveStarts)) {
		if v, ok := e.find(music.TableWave, e.waveScorer(waveStarts)); ok {
			tables.Wave = v.([]music.WaveEntry)
		}
	}
	if e.required(music.TablePulse, len(pulseStarts)) {
		if v, ok := e.find(music.TablePulse, e.eventScorer(pulseStarts, pulseDuration)); ok {
			tables.Pulse = toPulse(v.([][]byte))
		}
	}
	if e.required(music.TableFilter, len(filterStarts)) {
		if v, ok := e.find(music.TableFilter, e.eventScorer(filterStarts, filterDuration)); ok {
			tables.Filter = toFilter(v.([][]byte))
		}
	}

	return e.result
}

// required reports tables that can not be searched because nothing references
// them. Unreferenced pulse, filter and command tables are not an error.
func (e *extractor) required(kind music.TableKind, references int) bool {
	if references > 0 {
		return true
	}
	switch kind {
	case music.TablePulse, music.TableFilter, music.TableCommands:
		return false
	default:
		e.result.Warnings.Add(diag.KindTableNotFound, kind.String(), "no references to the table found")
		return false
	}
}

// find tries the layout hint and falls back to scanning the window.
func (e *extractor) find(kind music.TableKind, score scorer) (any, bool) {
	limit := threshold(kind)

	if offset, ok := e.layout[kind]; ok {
		address := e.img.LoadAddress + offset
		s, v := score(address)
		if s.Ratio() >= limit {
			e.result.Locations[kind] = Location{Address: address, Score: s, FromHint: true}
			return v, true
		}
	}

	var (
		best      Score
		bestValue any
		bestAddr  uint16
		found     bool
	)
	start := int(e.img.LoadAddress)
	end := min(int(e.img.LoadAddress)+e.img.Size, start+ScanWindow)
	for addr := start; addr < end; addr++ {
		s, v := score(uint16(addr))
		if s.Ratio() < limit || (found && s.Ratio() <= best.Ratio()) {
			continue
		}
		best, bestValue, bestAddr, found = s, v, uint16(addr), true
		if s.Points == s.Max {
			break
		}
	}

	if !found {
		e.result.Warnings.Add(diag.KindTableNotFound, kind.String(),
			"no candidate reached the threshold %.2f", limit)
		return nil, false
	}
	e.result.Locations[kind] = Location{Address: bestAddr, Score: best}
	return bestValue, true
}

// readable returns whether length bytes at the address are inside the loaded range.
func (e *extractor) readable(address uint16, length int) bool {
	if length <= 0 {
		return e.img.Loaded(address)
	}
	end := int(address) + length
	return e.img.Loaded(address) && end <= int(e.img.LoadAddress)+e.img.Size
}

// tail returns the loaded bytes from the address on, at most limit bytes.
func (e *extractor) tail(address uint16, limit int) []byte {
	if !e.img.Loaded(address) {
		return nil
	}
	remaining := int(e.img.LoadAddress) + e.img.Size - int(address)
	return e.img.Slice(address, min(remaining, limit))
}

func sequenceCount(orderLists [music.Voices]music.OrderList) int {
	count := 0
	for _, ol := range orderLists {
		for _, entry := range ol.Entries {
			count = max(count, int(entry.Sequence)+1)
		}
	}
	return count
}

func referencedCounts(sequences []music.Sequence) (instruments, commands int) {
	for _, seq := range sequences {
		for _, ev := range seq {
			if ev.Instrument != music.Carry {
				instruments = max(instruments, int(ev.Instrument)+1)
			}
			if ev.Command != music.Carry {
				commands = max(commands, int(ev.Command)+1)
			}
		}
	}
	return instruments, commands
}
