package validate

import (
	"fmt"

	go6502 "github.com/beevik/go6502/cpu"
	"github.com/retroenv/sidforge/internal/cpu"
	"github.com/retroenv/sidforge/internal/memory"
	"github.com/retroenv/sidforge/internal/sid"
)

const (
	// callReturn is the address the RTS of a called routine continues at. It
	// only ends the call when the stack is back at its level before the call.
	callReturn = 0xFFFF
	callSP     = 0xFD

	unusedOpcode = "???"
)

// ReferenceSource traces a tune with an independent third party 6502
// emulator, it is used to cross check the built in emulator. Undocumented
// opcodes are not implemented by it and fault.
type ReferenceSource struct {
	MaxInstructions int    // per call, defaults to DefaultMaxInstructions
	ExitAddress     uint16 // optional address that ends a call
}

// referenceMemory is the flat memory of the reference CPU that records SID
// register writes and the addresses written by the program.
type referenceMemory struct {
	img      *memory.Image
	data     [memory.Size]byte
	written  [memory.Size / 8]byte
	snapshot sid.Snapshot
}

func (m *referenceMemory) Byte(addr uint16) byte {
	return m.data[addr]
}

func (m *referenceMemory) LoadByte(addr uint16) byte {
	return m.data[addr]
}

func (m *referenceMemory) LoadBytes(addr uint16, b []byte) {
	for i := range b {
		b[i] = m.data[addr+uint16(i)]
	}
}

func (m *referenceMemory) LoadAddress(addr uint16) uint16 {
	return uint16(m.data[addr]) | uint16(m.data[addr+1])<<8
}

func (m *referenceMemory) StoreByte(addr uint16, v byte) {
	m.data[addr] = v
	m.written[addr>>3] |= 1 << (addr & 7)
	if reg, ok := sid.RegisterForAddress(addr); ok {
		m.snapshot.Set(reg, v)
	}
}

func (m *referenceMemory) StoreBytes(addr uint16, b []byte) {
	for i, v := range b {
		m.StoreByte(addr+uint16(i), v)
	}
}

func (m *referenceMemory) StoreAddress(addr uint16, v uint16) {
	m.StoreByte(addr, byte(v))
	m.StoreByte(addr+1, byte(v>>8))
}

func (m *referenceMemory) mapped(addr uint16) bool {
	return m.img.Loaded(addr) || m.written[addr>>3]&(1<<(addr&7)) != 0
}

// Trace calls init once and then play for every frame.
func (s ReferenceSource) Trace(img *memory.Image, init, play uint16, subtune byte, frames int) (sid.Trace, error) {
	budget := s.MaxInstructions
	if budget <= 0 {
		budget = DefaultMaxInstructions
	}

	mem := &referenceMemory{img: img, data: img.Data}
	mem.data[0x01] = 0x37
	c := go6502.NewCPU(go6502.NMOS, mem)

	if _, err := s.call(c, mem, init, subtune, budget); err != nil {
		return nil, fmt.Errorf("calling init: %w", err)
	}

	trace := make(sid.Trace, 0, frames)
	for frame := range frames {
		snap, err := s.call(c, mem, play, 0, budget)
		if err != nil {
			return trace, fmt.Errorf("calling play in frame %d: %w", frame, err)
		}
		trace = append(trace, snap)
	}
	return trace, nil
}

func (s ReferenceSource) call(c *go6502.CPU, mem *referenceMemory, entry uint16, a byte, budget int) (sid.Snapshot, error) {
	mem.snapshot = sid.Snapshot{}
	if entry == 0 || !mem.mapped(entry) {
		return mem.snapshot, &cpu.Fault{Kind: cpu.InvalidTarget, Target: entry}
	}

	c.Reg.A, c.Reg.X, c.Reg.Y = a, 0, 0
	c.Reg.SP = callSP
	ret := uint16(callReturn - 1)
	mem.StoreByte(0x0100+callSP+2, byte(ret>>8))
	mem.StoreByte(0x0100+callSP+1, byte(ret))
	c.SetPC(entry)

	for n := 0; ; n++ {
		pc := c.Reg.PC
		if s.ExitAddress != 0 && pc == s.ExitAddress {
			return mem.snapshot, nil
		}
		if n >= budget {
			return mem.snapshot, &cpu.Fault{Kind: cpu.RunawayExecution, PC: pc, Counter: n}
		}

		d := cpu.Decode(mem, pc)
		inst := d.Instruction
		switch {
		case inst.Class == cpu.Jam:
			return mem.snapshot, &cpu.Fault{Kind: cpu.IllegalOpcode, PC: pc, Opcode: inst.Opcode, Name: inst.Name, Counter: n}
		case c.InstSet.Lookup(inst.Opcode).Name == unusedOpcode:
			return mem.snapshot, &cpu.Fault{Kind: cpu.UnsupportedOpcode, PC: pc, Opcode: inst.Opcode, Name: inst.Name, Counter: n}
		}

		c.Step()

		if inst.Flow == cpu.FlowNext {
			continue
		}
		target := c.Reg.PC
		if inst.Flow == cpu.FlowReturn && target == callReturn && c.Reg.SP == callSP+2 {
			return mem.snapshot, nil
		}
		if target == 0 || (!mem.mapped(target) && target != s.ExitAddress) {
			return mem.snapshot, &cpu.Fault{Kind: cpu.InvalidTarget, PC: pc, Target: target, Counter: n + 1}
		}
	}
}
