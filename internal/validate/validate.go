// Package validate compares the SID register traces of an original and a
// converted tune.
package validate

import (
	"fmt"

	"github.com/retroenv/sidforge/internal/cpu"
	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/memory"
	"github.com/retroenv/sidforge/internal/sid"
)

const (
	// DefaultFrames is the number of play calls compared, 10 seconds of PAL playback.
	DefaultFrames = 500
	// DefaultMaxInstructions is the instruction budget of one init or play call.
	DefaultMaxInstructions = 100000
	// DefaultThreshold is the overall score below which a warning is reported.
	DefaultThreshold = 0.99
)

// Target is a tune that can be played.
type Target struct {
	Image   *memory.Image
	Init    uint16
	Play    uint16
	Subtune byte // zero based, passed to init in the accumulator
}

// TraceSource produces a frame trace of a tune.
type TraceSource interface {
	Trace(img *memory.Image, init, play uint16, subtune byte, frames int) (sid.Trace, error)
}

// EmulatorSource traces a tune with the built in CPU emulator.
type EmulatorSource struct {
	MaxInstructions int    // per call, defaults to DefaultMaxInstructions
	ExitAddress     uint16 // optional address that ends a call, like $EA31
}

// Trace calls init once and then play for every frame. The image is not
// modified.
func (s EmulatorSource) Trace(img *memory.Image, init, play uint16, subtune byte, frames int) (sid.Trace, error) {
	budget := s.MaxInstructions
	if budget <= 0 {
		budget = DefaultMaxInstructions
	}

	c := cpu.New(img.Clone())
	c.ExitAddress = s.ExitAddress
	if _, err := c.Call(init, subtune, budget); err != nil {
		return nil, fmt.Errorf("calling init: %w", err)
	}

	trace := make(sid.Trace, 0, frames)
	for frame := range frames {
		snap, err := c.Call(play, 0, budget)
		if err != nil {
			return trace, fmt.Errorf("calling play in frame %d: %w", frame, err)
		}
		trace = append(trace, snap)
	}
	return trace, nil
}

// Validator compares tunes using a trace source.
type Validator struct {
	source TraceSource
}

// New returns a validator that uses the given trace source.
func New(source TraceSource) *Validator {
	return &Validator{source: source}
}

// Compare traces both tunes and compares them. If either trace fails the
// report is inconclusive and carries the error.
func (v *Validator) Compare(original, converted Target, frames int) Report {
	a, err := v.source.Trace(original.Image, original.Init, original.Play, original.Subtune, frames)
	if err != nil {
		return Report{Status: StatusInconclusive, Err: fmt.Errorf("tracing original: %w", err)}
	}
	b, err := v.source.Trace(converted.Image, converted.Init, converted.Play, converted.Subtune, frames)
	if err != nil {
		return Report{Status: StatusInconclusive, Err: fmt.Errorf("tracing converted: %w", err)}
	}
	return CompareTraces(a, b)
}

// Compare compares two tunes with the built in emulator.
func Compare(original, converted Target, frames int) Report {
	return New(EmulatorSource{}).Compare(original, converted, frames)
}

// CrossCheck traces a tune with the built in and the reference emulator and
// compares both traces. A report below a perfect score or an inconclusive
// one points at an emulation difference.
func CrossCheck(target Target, frames int) Report {
	a, err := EmulatorSource{}.Trace(target.Image, target.Init, target.Play, target.Subtune, frames)
	if err != nil {
		return Report{Status: StatusInconclusive, Err: fmt.Errorf("tracing with built in emulator: %w", err)}
	}
	b, err := ReferenceSource{}.Trace(target.Image, target.Init, target.Play, target.Subtune, frames)
	if err != nil {
		return Report{Status: StatusInconclusive, Err: fmt.Errorf("tracing with reference emulator: %w", err)}
	}
	return CompareTraces(a, b)
}

// CheckCrossCheck returns a warning if the emulators disagree about a tune.
func CheckCrossCheck(name string, r Report) diag.List {
	var warnings diag.List
	switch {
	case r.Status == StatusInconclusive:
		warnings.Add(diag.KindEmulatorMismatch, "", "%s: %v", name, r.Err)
	case r.Overall < 1:
		warnings.Add(diag.KindEmulatorMismatch, "", "%s: reference emulator trace matches %.2f%%",
			name, 100*r.Overall)
	}
	return warnings
}

// Check returns the warnings for a report: an inconclusive report or an
// overall score below the threshold.
func Check(r Report, threshold float64) diag.List {
	var warnings diag.List
	switch {
	case r.Status == StatusInconclusive:
		warnings.Add(diag.KindValidationInconclusive, "", "%v", r.Err)
	case r.Overall < threshold:
		warnings.Add(diag.KindAccuracyBelowThreshold, "", "accuracy %.2f%% is below %.2f%%",
			100*r.Overall, 100*threshold)
	}
	return warnings
}
