// Package convert maps song tables between the source and the target encoding.
// All conversions are pure functions that return new tables.
package convert

import (
	"errors"
	"fmt"

	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/music"
)

var errEncoding = errors.New("unexpected table encoding")

// ToTarget converts source encoded tables to the target encoding.
func ToTarget(src *music.Tables) (*music.Tables, diag.List, error) {
	if src.Encoding != music.EncodingSource {
		return nil, nil, fmt.Errorf("%w: %s, expected %s", errEncoding, src.Encoding, music.EncodingSource)
	}

	var warnings diag.List
	dst := &music.Tables{
		Encoding: music.EncodingTarget,
		Tempo:    src.Tempo,
	}

	var err error
	if dst.Instruments, err = convertInstruments(src.Instruments, ScaleIndexToTarget); err != nil {
		return nil, nil, fmt.Errorf("converting instruments: %w", err)
	}
	if err := validateWave(src.Wave); err != nil {
		return nil, nil, fmt.Errorf("converting wave table: %w", err)
	}
	dst.Wave = append([]music.WaveEntry(nil), src.Wave...)

	if dst.Pulse, err = convertPulse(src.Pulse, ScaleIndexToTarget); err != nil {
		return nil, nil, fmt.Errorf("converting pulse table: %w", err)
	}
	if dst.Filter, err = convertFilterToTarget(src.Filter, &warnings); err != nil {
		return nil, nil, fmt.Errorf("converting filter table: %w", err)
	}

	if len(src.SuperCommands) > music.MaxSourceCommands {
		return nil, nil, fmt.Errorf("%w: %d commands", music.ErrValueRange, len(src.SuperCommands))
	}
	commands, cmdWarnings := DecomposeCommands(src.SuperCommands)
	dst.Commands = commands
	warnings.Append(cmdWarnings)

	gates, gateWarnings := SequenceGates(src)
	warnings.Append(gateWarnings)

	dst.Sequences = make([]music.Sequence, len(src.Sequences))
	for i, seq := range src.Sequences {
		out := make(music.Sequence, len(seq))
		for j, e := range seq {
			e.Gate = gates[i][j]
			out[j] = e
		}
		dst.Sequences[i] = out
	}

	for i, ol := range src.OrderLists {
		dst.OrderLists[i] = copyOrderList(ol)
	}
	return dst, warnings, nil
}

// ToSource converts target encoded tables to the source encoding. The source
// encoding derives gates from the waveform, every marker that the waveform
// stream of the converted tables does not reproduce is reported as dropped.
func ToSource(dst *music.Tables) (*music.Tables, diag.List, error) {
	if dst.Encoding != music.EncodingTarget {
		return nil, nil, fmt.Errorf("%w: %s, expected %s", errEncoding, dst.Encoding, music.EncodingTarget)
	}

	var warnings diag.List
	src := &music.Tables{
		Encoding: music.EncodingSource,
		Tempo:    dst.Tempo,
	}

	var err error
	if src.Instruments, err = convertInstruments(dst.Instruments, ScaleIndexToSource); err != nil {
		return nil, nil, fmt.Errorf("converting instruments: %w", err)
	}
	if err := validateWave(dst.Wave); err != nil {
		return nil, nil, fmt.Errorf("converting wave table: %w", err)
	}
	src.Wave = append([]music.WaveEntry(nil), dst.Wave...)

	if src.Pulse, err = convertPulse(dst.Pulse, ScaleIndexToSource); err != nil {
		return nil, nil, fmt.Errorf("converting pulse table: %w", err)
	}
	if src.Filter, err = convertFilterToSource(dst.Filter); err != nil {
		return nil, nil, fmt.Errorf("converting filter table: %w", err)
	}

	if len(dst.Commands) > music.MaxSourceCommands {
		return nil, nil, fmt.Errorf("%w: %d commands", music.ErrValueRange, len(dst.Commands))
	}
	commands, cmdWarnings := ComposeCommands(dst.Commands)
	src.SuperCommands = commands
	warnings.Append(cmdWarnings)

	src.Sequences = make([]music.Sequence, len(dst.Sequences))
	for i, seq := range dst.Sequences {
		out := make(music.Sequence, len(seq))
		for j, e := range seq {
			if e.Note > music.MaxNoteOld {
				return nil, nil, fmt.Errorf("sequence %d event %d: %w: note $%02X", i, j, music.ErrValueRange, e.Note)
			}
			if e.Command != music.Carry && e.Command >= music.MaxSourceCommands {
				return nil, nil, fmt.Errorf("sequence %d event %d: %w: command %d", i, j, music.ErrValueRange, e.Command)
			}
			e.Gate = music.GateNone
			out[j] = e
		}
		src.Sequences[i] = out
	}

	for i, ol := range dst.OrderLists {
		src.OrderLists[i] = copyOrderList(ol)
	}

	inferred, _ := SequenceGates(src)
	for i, seq := range dst.Sequences {
		for j, e := range seq {
			if e.Gate != music.GateNone && inferred[i][j] != e.Gate {
				warnings.Add(diag.KindDroppedGate, "sequences",
					"sequence %d event %d: gate marker %s is not represented by the waveform", i, j, e.Gate)
			}
		}
	}
	return src, warnings, nil
}

func copyOrderList(ol music.OrderList) music.OrderList {
	return music.OrderList{
		Entries: append([]music.OrderEntry(nil), ol.Entries...),
		Loop:    ol.Loop,
	}
}
