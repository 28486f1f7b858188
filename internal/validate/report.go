package validate

import (
	"errors"
	"fmt"

	"github.com/retroenv/sidforge/internal/sid"
)

// Category weights of the overall score.
const (
	WeightFrame    = 0.40
	WeightVoice    = 0.30
	WeightRegister = 0.20
	WeightFilter   = 0.10
)

// ErrNoCommonRegisters is the cause of an inconclusive comparison of traces
// that do not write any register in the same frame.
var ErrNoCommonRegisters = errors.New("no SID register is written in the same frame of both traces")

// Status of a comparison.
type Status int

const (
	StatusComplete Status = iota
	StatusInconclusive
)

func (s Status) String() string {
	if s == StatusInconclusive {
		return "inconclusive"
	}
	return "complete"
}

// Ratio counts matching samples of a category.
type Ratio struct {
	Matches int
	Samples int
}

// Value returns the share of matching samples. A category without samples
// has nothing that could mismatch and scores 1, CompareTraces marks a report
// without any register sample as inconclusive.
func (r Ratio) Value() float64 {
	if r.Samples == 0 {
		return 1
	}
	return float64(r.Matches) / float64(r.Samples)
}

func (r *Ratio) add(match bool) {
	r.Samples++
	if match {
		r.Matches++
	}
}

func (r Ratio) String() string {
	return fmt.Sprintf("%.2f%% (%d/%d)", 100*r.Value(), r.Matches, r.Samples)
}

// Report is the result of a comparison. All ratios only count registers
// that were written in the same frame of both traces.
type Report struct {
	Status Status
	Err    error // cause of an inconclusive comparison

	Frames     int // compared frames
	FrameCount [2]int

	Frame    Ratio
	Voice    Ratio
	Register Ratio
	Filter   Ratio

	Voices    [sid.Voices]Ratio
	Registers [sid.Registers]Ratio

	// Coverage counts the registers written by either trace per frame, the
	// matches are the ones written by both and thus compared.
	Coverage Ratio

	Overall float64
}

// CompareTraces compares two traces frame by frame. Only registers present
// in both snapshots of a frame are compared:
//   - a frame matches if all of its common registers match
//   - a voice of a frame matches if all of its common registers match
//   - every common register is a register sample, filter registers are also
//     counted as filter samples
//
// Frames or voices without common registers are no samples. Without any
// register sample the report is inconclusive.
func CompareTraces(a, b sid.Trace) Report {
	r := Report{
		Frames:     min(len(a), len(b)),
		FrameCount: [2]int{len(a), len(b)},
	}

	for i := range r.Frames {
		common := a[i].Common(b[i])
		for reg := range sid.Registers {
			if a[i].Has(reg) || b[i].Has(reg) {
				r.Coverage.add(common&(1<<uint(reg)) != 0)
			}
		}
		if common == 0 {
			continue
		}

		frameMatch := true
		var voiceSeen, voiceMismatch [sid.Voices]bool

		for reg := range sid.Registers {
			if common&(1<<uint(reg)) == 0 {
				continue
			}
			match := a[i].Registers[reg] == b[i].Registers[reg]
			frameMatch = frameMatch && match

			r.Register.add(match)
			r.Registers[reg].add(match)
			if sid.IsFilter(reg) {
				r.Filter.add(match)
				continue
			}
			v := sid.Voice(reg)
			voiceSeen[v] = true
			voiceMismatch[v] = voiceMismatch[v] || !match
		}

		r.Frame.add(frameMatch)
		for v := range sid.Voices {
			if voiceSeen[v] {
				r.Voice.add(!voiceMismatch[v])
				r.Voices[v].add(!voiceMismatch[v])
			}
		}
	}

	r.Overall = WeightFrame*r.Frame.Value() +
		WeightVoice*r.Voice.Value() +
		WeightRegister*r.Register.Value() +
		WeightFilter*r.Filter.Value()

	if r.Register.Samples == 0 {
		r.Status = StatusInconclusive
		r.Err = ErrNoCommonRegisters
	}
	return r
}
