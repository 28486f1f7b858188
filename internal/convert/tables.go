package convert

import (
	"errors"
	"fmt"

	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/music"
)

// IndexScale is the factor the source encoding multiplies pulse and filter
// indices with.
const IndexScale = 4

// ErrIndexMisaligned is returned for a source index that is not a multiple of
// IndexScale, which means that a table boundary was detected wrong.
var ErrIndexMisaligned = errors.New("index is not a multiple of 4")

// ScaleIndexToTarget converts a pre multiplied source index to a direct index.
// The end marker is kept.
func ScaleIndexToTarget(index byte) (byte, error) {
	if index == music.EndMarker {
		return index, nil
	}
	if index%IndexScale != 0 {
		return 0, fmt.Errorf("%w: $%02X", ErrIndexMisaligned, index)
	}
	return index / IndexScale, nil
}

// ScaleIndexToSource converts a direct index to a pre multiplied source index.
func ScaleIndexToSource(index byte) (byte, error) {
	if index == music.EndMarker {
		return index, nil
	}
	scaled := int(index) * IndexScale
	if scaled >= music.EndMarker {
		return 0, fmt.Errorf("%w: index %d can not be scaled", music.ErrValueRange, index)
	}
	return byte(scaled), nil
}

type scaleFunc func(byte) (byte, error)

func convertInstruments(instruments []music.Instrument, scale scaleFunc) ([]music.Instrument, error) {
	if len(instruments) > music.MaxInstruments {
		return nil, fmt.Errorf("%w: %d instruments", music.ErrValueRange, len(instruments))
	}

	out := make([]music.Instrument, len(instruments))
	for i, inst := range instruments {
		pulse, err := scale(inst.PulseIndex)
		if err != nil {
			return nil, fmt.Errorf("instrument %d pulse index: %w", i, err)
		}
		filter, err := scale(inst.FilterIndex)
		if err != nil {
			return nil, fmt.Errorf("instrument %d filter index: %w", i, err)
		}
		inst.PulseIndex = pulse
		inst.FilterIndex = filter
		out[i] = inst
	}
	return out, nil
}

func convertPulse(pulse []music.PulseEvent, scale scaleFunc) ([]music.PulseEvent, error) {
	if len(pulse) > music.MaxPulseEntries {
		return nil, fmt.Errorf("%w: %d pulse rows", music.ErrValueRange, len(pulse))
	}

	out := make([]music.PulseEvent, len(pulse))
	for i, ev := range pulse {
		next, err := scale(ev.Next)
		if err != nil {
			return nil, fmt.Errorf("pulse row %d: %w", i, err)
		}
		ev.Next = next
		out[i] = ev
	}
	return out, nil
}

// Filter rows of the source encoding with bit 7 of the duration set are sweeps
// that add the signed ValueLo to the cutoff high byte every frame.
const filterSweep = 0x80

// convertFilterToTarget converts source filter rows. The target driver only knows
// rows that set the cutoff, sweeps are replaced by a row that holds the end value
// of the sweep for the sweep duration. This loses the animation and is always
// reported as approximate.
func convertFilterToTarget(filter []music.FilterEvent, warnings *diag.List) ([]music.FilterEvent, error) {
	if len(filter) > music.MaxFilterEntries {
		return nil, fmt.Errorf("%w: %d filter rows", music.ErrValueRange, len(filter))
	}
	if len(filter) == 0 {
		return nil, nil
	}

	out := make([]music.FilterEvent, len(filter))
	var cutoffLo, cutoffHi byte
	sweeps := 0

	for i, ev := range filter {
		next, err := ScaleIndexToTarget(ev.Next)
		if err != nil {
			return nil, fmt.Errorf("filter row %d: %w", i, err)
		}

		if ev.Duration&filterSweep == 0 {
			cutoffLo, cutoffHi = ev.ValueLo, ev.ValueHi
			ev.Next = next
			out[i] = ev
			continue
		}

		sweeps++
		frames := int(ev.Duration &^ filterSweep)
		end := int(cutoffHi) + int(int8(ev.ValueLo))*frames
		end = min(max(end, 0), 0xFF)
		cutoffHi = byte(end)
		out[i] = music.FilterEvent{
			ValueLo:  cutoffLo,
			ValueHi:  cutoffHi,
			Duration: byte(frames),
			Next:     next,
		}
	}

	warnings.Add(diag.KindApproximateFilter, music.TableFilter.String(),
		"filter table converted approximately, %d of %d rows were sweeps", sweeps, len(filter))
	return out, nil
}

func convertFilterToSource(filter []music.FilterEvent) ([]music.FilterEvent, error) {
	if len(filter) > music.MaxFilterEntries {
		return nil, fmt.Errorf("%w: %d filter rows", music.ErrValueRange, len(filter))
	}
	if len(filter) == 0 {
		return nil, nil
	}

	out := make([]music.FilterEvent, len(filter))
	for i, ev := range filter {
		if ev.Duration&filterSweep != 0 {
			return nil, fmt.Errorf("%w: filter row %d duration %d", music.ErrValueRange, i, ev.Duration)
		}
		next, err := ScaleIndexToSource(ev.Next)
		if err != nil {
			return nil, fmt.Errorf("filter row %d: %w", i, err)
		}
		ev.Next = next
		out[i] = ev
	}
	return out, nil
}
