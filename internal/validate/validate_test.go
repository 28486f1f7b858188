package validate

import (
	"errors"
	"math"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sidforge/internal/cpu"
	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/fixture"
	"github.com/retroenv/sidforge/internal/memory"
	"github.com/retroenv/sidforge/internal/player"
	"github.com/retroenv/sidforge/internal/sid"
)

func snapshot(values map[int]byte) sid.Snapshot {
	var s sid.Snapshot
	for reg, v := range values {
		s.Set(reg, v)
	}
	return s
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCompareTracesWeights(t *testing.T) {
	v2Control := sid.VoiceRegister(1, sid.Control)
	a := sid.Trace{
		snapshot(map[int]byte{sid.FreqHi: 0x10, v2Control: 0x41}),
		snapshot(map[int]byte{sid.ModeVolume: 0x0F}),
	}
	b := sid.Trace{
		snapshot(map[int]byte{sid.FreqHi: 0x10, v2Control: 0x40}),
		snapshot(map[int]byte{sid.ModeVolume: 0x0F, sid.FreqLo: 0x22}),
	}

	r := CompareTraces(a, b)
	assert.Equal(t, StatusComplete, r.Status)
	assert.Equal(t, 2, r.Frames)
	assert.Equal(t, Ratio{Matches: 1, Samples: 2}, r.Frame)
	assert.Equal(t, Ratio{Matches: 1, Samples: 2}, r.Voice)
	assert.Equal(t, Ratio{Matches: 2, Samples: 3}, r.Register)
	assert.Equal(t, Ratio{Matches: 1, Samples: 1}, r.Filter)
	assert.Equal(t, Ratio{Matches: 0, Samples: 1}, r.Voices[1])
	assert.Equal(t, Ratio{}, r.Registers[sid.FreqLo])
	assert.Equal(t, Ratio{Matches: 3, Samples: 4}, r.Coverage)

	want := 0.4*0.5 + 0.3*0.5 + 0.2*2/3 + 0.1*1
	assert.True(t, almostEqual(want, r.Overall))
}

func TestCompareTracesWithoutCommonRegisters(t *testing.T) {
	a := sid.Trace{snapshot(map[int]byte{sid.FreqLo: 1})}
	b := sid.Trace{snapshot(map[int]byte{sid.FreqHi: 2}), snapshot(nil)}

	r := CompareTraces(a, b)
	assert.Equal(t, 1, r.Frames)
	assert.Equal(t, [2]int{1, 2}, r.FrameCount)
	assert.Equal(t, 0, r.Register.Samples)
	assert.Equal(t, Ratio{Matches: 0, Samples: 2}, r.Coverage)
	assert.True(t, almostEqual(1, r.Overall))
	assert.Equal(t, StatusInconclusive, r.Status)
	assert.True(t, errors.Is(r.Err, ErrNoCommonRegisters))
	assert.True(t, Check(r, DefaultThreshold).Has(diag.KindValidationInconclusive))

	// a converted tune that stays silent is not a perfect match
	r = CompareTraces(a, sid.Trace{snapshot(nil)})
	assert.Equal(t, StatusInconclusive, r.Status)
}

// generateTrace returns a pseudo random sparse trace.
func generateTrace(seed uint32, frames int) sid.Trace {
	trace := make(sid.Trace, frames)
	for i := range trace {
		for reg := range sid.Registers {
			seed = seed*1664525 + 1013904223
			if seed>>28 < 5 {
				trace[i].Set(reg, byte(seed>>20)&3)
			}
		}
	}
	return trace
}

func TestSparseAccuracyMonotonic(t *testing.T) {
	for seed := uint32(1); seed <= 20; seed++ {
		a := generateTrace(seed, 8)
		b := generateTrace(seed*7919, 8)
		base := CompareTraces(a, b).Overall

		for frame := range a {
			for reg := range sid.Registers {
				switch {
				case !a[frame].Has(reg) && !b[frame].Has(reg):
					// an identical register in both frames never lowers the score
					a2, b2 := cloneTrace(a), cloneTrace(b)
					a2[frame].Set(reg, 0x55)
					b2[frame].Set(reg, 0x55)
					assert.True(t, CompareTraces(a2, b2).Overall >= base-1e-12)

				case a[frame].Has(reg) != b[frame].Has(reg):
					// a register of only one side was never compared
					a2, b2 := cloneTrace(a), cloneTrace(b)
					a2[frame].Clear(reg)
					b2[frame].Clear(reg)
					assert.True(t, almostEqual(base, CompareTraces(a2, b2).Overall))
				}
			}
		}
	}
}

func cloneTrace(t sid.Trace) sid.Trace {
	return append(sid.Trace(nil), t...)
}

func createTestTarget(t *testing.T) Target {
	t.Helper()
	tune, err := fixture.Build(fixture.LoadAddress, player.LaxityLayout, fixture.SourceTables())
	assert.NoError(t, err)
	return Target{Image: tune.Image, Init: tune.Init, Play: tune.Play}
}

func TestCompareSameTune(t *testing.T) {
	target := createTestTarget(t)
	original := target.Image.Bytes()

	r := Compare(target, target, 50)
	assert.Equal(t, StatusComplete, r.Status)
	assert.Equal(t, 50, r.Frames)
	assert.True(t, almostEqual(1, r.Overall))
	assert.True(t, r.Register.Samples > 0)
	assert.Equal(t, original, target.Image.Bytes())
	assert.True(t, Check(r, DefaultThreshold).Empty())
}

func TestCompareInconclusive(t *testing.T) {
	target := createTestTarget(t)
	broken := target
	broken.Play = 0x0000

	r := Compare(target, broken, 10)
	assert.Equal(t, StatusInconclusive, r.Status)
	assert.True(t, cpu.IsFault(r.Err, cpu.InvalidTarget))

	warnings := Check(r, DefaultThreshold)
	assert.True(t, warnings.Has(diag.KindValidationInconclusive))
	assert.False(t, warnings.Has(diag.KindAccuracyBelowThreshold))
}

func TestCheckThreshold(t *testing.T) {
	r := Report{Overall: 0.5}
	warnings := Check(r, DefaultThreshold)
	assert.Equal(t, 1, warnings.Count(diag.KindAccuracyBelowThreshold))
	assert.True(t, Check(r, 0.5).Empty())
}

func TestReferenceSource(t *testing.T) {
	target := createTestTarget(t)

	emulated, err := EmulatorSource{}.Trace(target.Image, target.Init, target.Play, 0, 20)
	assert.NoError(t, err)
	reference, err := ReferenceSource{}.Trace(target.Image, target.Init, target.Play, 0, 20)
	assert.NoError(t, err)

	assert.Len(t, reference, 20)
	r := CompareTraces(emulated, reference)
	assert.True(t, almostEqual(1, r.Overall))
	assert.True(t, r.Register.Samples > 0)

	v := New(ReferenceSource{})
	assert.True(t, almostEqual(1, v.Compare(target, target, 5).Overall))
}

func TestReferenceSourceBudget(t *testing.T) {
	target := createTestTarget(t)
	// JMP to itself
	target.Image.SetByte(0x1F00, 0x4C)
	target.Image.SetWord(0x1F01, 0x1F00)

	_, err := ReferenceSource{MaxInstructions: 100}.Trace(target.Image, 0x1F00, target.Play, 0, 1)
	assert.True(t, cpu.IsFault(err, cpu.RunawayExecution))

	var fault *cpu.Fault
	assert.True(t, errors.As(err, &fault))
	assert.Equal(t, 100, fault.Counter)
}

func TestReferenceSourceJumpToZero(t *testing.T) {
	img, err := memory.New(0x1000, []byte{
		0x8d, 0x18, 0xd4, // STA $D418
		0x4c, 0x00, 0x00, // JMP $0000
		0x60, // RTS
	})
	assert.NoError(t, err)
	target := Target{Image: img, Init: 0x1000, Play: 0x1000}

	_, err = ReferenceSource{}.Trace(img, target.Init, target.Play, 0, 1)
	assert.True(t, cpu.IsFault(err, cpu.InvalidTarget))
	var fault *cpu.Fault
	assert.True(t, errors.As(err, &fault))
	assert.Equal(t, uint16(0x1003), fault.PC)

	r := New(ReferenceSource{}).Compare(target, target, 1)
	assert.Equal(t, StatusInconclusive, r.Status)

	r = CrossCheck(target, 1)
	assert.Equal(t, StatusInconclusive, r.Status)
	assert.True(t, CheckCrossCheck("tune", r).Has(diag.KindEmulatorMismatch))
}

func TestReferenceSourceStackReturn(t *testing.T) {
	// pushes a return address and RTS to it, the call ends with the final RTS
	img, err := memory.New(0x1000, []byte{
		0xa9, 0x10, // LDA #$10
		0x48,       // PHA
		0xa9, 0x08, // LDA #$08
		0x48,       // PHA
		0x60,       // RTS -> $1009
		0x00, 0x00, // padding
		0xa9, 0x0f, // $1009: LDA #$0F
		0x8d, 0x18, 0xd4, // STA $D418
		0x60, // RTS
	})
	assert.NoError(t, err)

	trace, err := ReferenceSource{}.Trace(img, 0x1000, 0x1000, 0, 2)
	assert.NoError(t, err)
	assert.Len(t, trace, 2)
	v, ok := trace[1].Get(sid.ModeVolume)
	assert.True(t, ok)
	assert.Equal(t, byte(0x0f), v)
}

func TestReferenceSourceUndocumentedOpcode(t *testing.T) {
	img, err := memory.New(0x1000, []byte{0xa7, 0x10, 0x60}) // LAX $10
	assert.NoError(t, err)

	_, err = ReferenceSource{}.Trace(img, 0x1000, 0x1000, 0, 1)
	assert.True(t, cpu.IsFault(err, cpu.UnsupportedOpcode))
}

func TestCrossCheck(t *testing.T) {
	target := createTestTarget(t)
	r := CrossCheck(target, 20)
	assert.Equal(t, StatusComplete, r.Status)
	assert.True(t, CheckCrossCheck("tune", r).Empty())
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(log.NewTestLogger(t))
	target := createTestTarget(t)

	sink.Report("test.sid", Compare(target, target, 5))
	sink.Report("broken.sid", Report{Status: StatusInconclusive, Err: errors.New("fault")})
}
