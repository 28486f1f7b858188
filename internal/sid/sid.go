// Package sid models the logical register state of the SID sound chip as it is
// captured once per emulated frame.
package sid

import "fmt"

// Register layout of the SID chip.
const (
	BaseAddress  = 0xD400
	MirrorEnd    = 0xD7FF // the chip is mirrored every 32 bytes up to this address
	mirrorStride = 0x20

	Voices          = 3
	VoiceRegisters  = 7
	FilterRegisters = 4
	Registers       = Voices*VoiceRegisters + FilterRegisters // 25
)

// Voice register offsets relative to the voice base.
const (
	FreqLo = iota
	FreqHi
	PulseLo
	PulseHi
	Control
	AttackDecay
	SustainRelease
)

// Filter and volume register indices.
const (
	FilterCutoffLo  = 21
	FilterCutoffHi  = 22
	ResonanceFilter = 23
	ModeVolume      = 24
)

// GateBit is the gate bit of the voice control register.
const GateBit = 0x01

var voiceRegisterNames = [VoiceRegisters]string{"FREQLO", "FREQHI", "PWLO", "PWHI", "CTRL", "AD", "SR"}

var filterRegisterNames = [FilterRegisters]string{"FCLO", "FCHI", "RESFILT", "MODEVOL"}

// RegisterForAddress maps a CPU address to a SID register index. Writes to the
// mirrored chip area are mapped to the base registers, the unused registers
// at offsets 25-31 of each mirror are reported as not a register.
func RegisterForAddress(address uint16) (int, bool) {
	if address < BaseAddress || address > MirrorEnd {
		return 0, false
	}
	reg := int(address-BaseAddress) % mirrorStride
	if reg >= Registers {
		return 0, false
	}
	return reg, true
}

// VoiceRegister returns the register index of a voice register.
func VoiceRegister(voice, offset int) int {
	return voice*VoiceRegisters + offset
}

// Voice returns the voice number of a register or -1 for filter registers.
func Voice(reg int) int {
	if reg < 0 || reg >= Voices*VoiceRegisters {
		return -1
	}
	return reg / VoiceRegisters
}

// IsFilter returns whether the register is one of the filter/volume registers.
func IsFilter(reg int) bool {
	return reg >= Voices*VoiceRegisters && reg < Registers
}

// RegisterName returns a short display name like "V2 CTRL".
func RegisterName(reg int) string {
	switch {
	case reg < 0 || reg >= Registers:
		return fmt.Sprintf("REG%d", reg)
	case IsFilter(reg):
		return filterRegisterNames[reg-Voices*VoiceRegisters]
	default:
		return fmt.Sprintf("V%d %s", reg/VoiceRegisters+1, voiceRegisterNames[reg%VoiceRegisters])
	}
}

// Snapshot is the sparse logical register state of one frame. Only registers that
// were written during the frame are marked as present.
type Snapshot struct {
	Registers [Registers]byte
	Present   uint32 // bit n set if register n was written
	Writes    int    // total number of register writes in the frame
}

// Set records a register write, a later write in the same frame overwrites the value.
func (s *Snapshot) Set(reg int, value byte) {
	if reg < 0 || reg >= Registers {
		return
	}
	s.Registers[reg] = value
	s.Present |= 1 << uint(reg)
	s.Writes++
}

// Get returns the value of a register and whether it was written.
func (s Snapshot) Get(reg int) (byte, bool) {
	if !s.Has(reg) {
		return 0, false
	}
	return s.Registers[reg], true
}

// Has returns whether the register was written in this frame.
func (s Snapshot) Has(reg int) bool {
	if reg < 0 || reg >= Registers {
		return false
	}
	return s.Present&(1<<uint(reg)) != 0
}

// Clear removes a register from the snapshot.
func (s *Snapshot) Clear(reg int) {
	if reg < 0 || reg >= Registers {
		return
	}
	s.Registers[reg] = 0
	s.Present &^= 1 << uint(reg)
}

// Count returns the number of present registers.
func (s Snapshot) Count() int {
	n := 0
	for p := s.Present; p != 0; p &= p - 1 {
		n++
	}
	return n
}

// Common returns the bit mask of registers present in both snapshots.
func (s Snapshot) Common(other Snapshot) uint32 {
	return s.Present & other.Present
}

// Trace is a sequence of frame snapshots.
type Trace []Snapshot

// Writes returns the total number of register writes in the trace.
func (t Trace) Writes() int {
	n := 0
	for _, s := range t {
		n += s.Writes
	}
	return n
}
