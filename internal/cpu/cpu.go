// Package cpu runs 6502/6510 player code on the retrogolib NMOS core and records
// SID register writes per emulated frame.
package cpu

import (
	"fmt"

	"github.com/retroenv/retrogolib/arch/cpu/cpu6502"
	"github.com/retroenv/sidforge/internal/memory"
	"github.com/retroenv/sidforge/internal/sid"
)

// Status register flags.
const (
	FlagC byte = 1 << 0 // carry
	FlagZ byte = 1 << 1 // zero
	FlagI byte = 1 << 2 // interrupt disable
	FlagD byte = 1 << 3 // decimal mode
	FlagB byte = 1 << 4 // break, only exists on the stack
	FlagU byte = 1 << 5 // unused, always set
	FlagV byte = 1 << 6 // overflow
	FlagN byte = 1 << 7 // negative
)

// State is the execution state of the CPU.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateDecoding
	StateExecuting
	StateHalted
)

var stateNames = [...]string{"idle", "fetching", "decoding", "executing", "halted"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

const (
	// processorPort is the 6510 on-chip I/O port that controls the memory configuration.
	processorPort = 0x01
	// defaultProcessorPort maps BASIC, KERNAL and I/O like the C64 does after reset.
	defaultProcessorPort = 0x37
)

// CPU is a 6502/6510 CPU operating on a memory image. The registers are copied
// into the emulation core before each instruction and back afterwards, so
// callers can set them freely between steps.
type CPU struct {
	A, X, Y byte
	SP      byte
	PC      uint16
	P       byte

	Cycles uint64 // total executed cycles

	// ExitAddress halts a run when the program counter reaches it, for example
	// the KERNAL IRQ exit $EA31 that IRQ based play routines jump to.
	ExitAddress uint16

	// OnStep is called before an instruction is executed if set.
	OnStep func(pc uint16, inst *Instruction)

	core *cpu6502.CPU
	bus  *bus

	state    State
	entrySP  byte
	returned bool
	fault    *Fault
	counter  int // instructions executed in the current run
}

// bus connects the emulation core to the memory image and records the
// addresses written by the program and all SID register writes.
type bus struct {
	mem      *memory.Image
	written  [memory.Size / 8]byte
	snapshot sid.Snapshot
}

func (b *bus) Read(address uint16) uint8 {
	return b.mem.Data[address]
}

func (b *bus) Write(address uint16, value uint8) {
	b.mem.Data[address] = value
	b.written[address>>3] |= 1 << (address & 7)

	if reg, ok := sid.RegisterForAddress(address); ok {
		b.snapshot.Set(reg, value)
	}
}

// New returns a CPU operating on the given image. The CPU modifies the image, callers
// that need to keep the original pass a clone.
func New(img *memory.Image) *CPU {
	b := &bus{mem: img}
	// NewMemory only fails for a nil memory.
	mem, _ := cpu6502.NewMemory(b)

	c := &CPU{
		bus: b,
	}
	c.core = cpu6502.New(mem,
		cpu6502.WithVariant(cpu6502.Variant6510),
		cpu6502.WithTracing(),
		cpu6502.WithPreExecutionHook(func(*cpu6502.CPU, *cpu6502.Instruction, ...any) {
			c.state = StateExecuting
		}),
	)
	c.Reset()
	return c
}

// Reset resets the registers to their power on state and points the program
// counter to the start of the loaded data.
func (c *CPU) Reset() {
	c.core.Reset()
	c.A, c.X, c.Y = 0, 0, 0
	c.SP = cpu6502.InitialStack
	c.P = c.core.GetFlags()
	c.PC = c.bus.mem.LoadAddress
	c.Cycles = 0
	c.state = StateIdle
	c.fault = nil
	c.returned = false
	c.bus.mem.Data[processorPort] = defaultProcessorPort
}

// State returns the current execution state.
func (c *CPU) State() State {
	return c.state
}

// Memory returns the image the CPU operates on.
func (c *CPU) Memory() *memory.Image {
	return c.bus.mem
}

// Snapshot returns the SID register writes of the current run.
func (c *CPU) Snapshot() sid.Snapshot {
	return c.bus.snapshot
}

// Mapped returns whether the address contains loaded data or was written by the
// program, which is the condition for being a sensible control flow target.
func (c *CPU) Mapped(address uint16) bool {
	if c.bus.mem.Loaded(address) {
		return true
	}
	return c.bus.written[address>>3]&(1<<(address&7)) != 0
}

// Run executes the code at the entry address until the subroutine returns, the exit
// address is reached or the instruction budget is exhausted. All SID register writes of
// the run are returned as one frame snapshot.
func (c *CPU) Run(entry uint16, maxInstructions int) (sid.Snapshot, error) {
	c.bus.snapshot = sid.Snapshot{}
	c.entrySP = c.SP
	c.returned = false
	c.fault = nil
	c.counter = 0
	c.state = StateIdle

	if err := c.checkTarget(c.PC, entry); err != nil {
		return c.bus.snapshot, err
	}
	c.PC = entry

	for {
		if c.ExitAddress != 0 && c.PC == c.ExitAddress {
			c.state = StateHalted
			return c.bus.snapshot, nil
		}
		if c.counter >= maxInstructions {
			return c.bus.snapshot, c.raise(&Fault{
				Kind: RunawayExecution,
				PC:   c.PC,
			})
		}

		pc := c.PC
		inst := Lookup(c.bus.mem.Data[pc])
		if _, err := c.Step(); err != nil {
			return c.bus.snapshot, err
		}

		// a return that pulls more than the run pushed leaves the called routine,
		// stack tricks that push their own return address stay inside the run
		if inst.Flow == FlowReturn && int8(c.SP-c.entrySP) > 0 {
			c.SP = c.entrySP
			c.returned = true
			c.state = StateHalted
			return c.bus.snapshot, nil
		}
		if inst.Flow != FlowNext {
			if err := c.checkTarget(pc, c.PC); err != nil {
				return c.bus.snapshot, err
			}
		}
	}
}

// Call sets the accumulator and runs the subroutine at the entry address. The
// X and Y registers are cleared like siddump style players expect.
func (c *CPU) Call(entry uint16, a byte, maxInstructions int) (sid.Snapshot, error) {
	c.A = a
	c.X = 0
	c.Y = 0
	return c.Run(entry, maxInstructions)
}

// Step executes one instruction and returns the number of cycles it took.
func (c *CPU) Step() (int, error) {
	if c.state == StateHalted && (c.fault != nil || c.returned) {
		return 0, ErrHalted
	}

	c.state = StateFetching
	pc := c.PC
	opcode := c.bus.mem.Data[pc]

	c.state = StateDecoding
	inst := Lookup(opcode)
	if c.OnStep != nil {
		c.OnStep(pc, inst)
	}

	// the core treats jams as no operation and executes unstable opcodes with
	// one fixed behavior, both are faults for player code
	switch inst.Class {
	case Jam:
		return 0, c.raise(&Fault{Kind: IllegalOpcode, PC: pc, Opcode: opcode, Name: inst.Name})
	case Unsupported:
		return 0, c.raise(&Fault{Kind: UnsupportedOpcode, PC: pc, Opcode: opcode, Name: inst.Name})
	}

	c.load()
	before := c.core.Cycles()
	if err := c.core.Step(); err != nil {
		return 0, c.raise(&Fault{
			Kind:   IllegalOpcode,
			PC:     pc,
			Opcode: opcode,
			Name:   inst.Name,
			Err:    fmt.Errorf("executing instruction: %w", err),
		})
	}
	c.store()
	c.counter++

	cycles := int(c.core.Cycles() - before)
	c.Cycles += uint64(cycles)
	c.state = StateIdle
	return cycles, nil
}

// load copies the registers into the emulation core.
func (c *CPU) load() {
	c.core.A, c.core.X, c.core.Y = c.A, c.X, c.Y
	c.core.SP = c.SP
	c.core.PC = c.PC
	c.core.Flags = cpu6502.Flags{
		C: c.P & FlagC,
		Z: c.P & FlagZ >> 1,
		I: c.P & FlagI >> 2,
		D: c.P & FlagD >> 3,
		B: c.P & FlagB >> 4,
		U: 1,
		V: c.P & FlagV >> 6,
		N: c.P & FlagN >> 7,
	}
}

// store copies the registers of the emulation core back.
func (c *CPU) store() {
	c.A, c.X, c.Y = c.core.A, c.core.X, c.core.Y
	c.SP = c.core.SP
	c.PC = c.core.PC
	c.P = c.core.GetFlags() | FlagU
}

func (c *CPU) raise(f *Fault) error {
	f.Counter = c.counter
	c.fault = f
	c.state = StateHalted
	return f
}

// checkTarget validates the destination of a control transfer made by the
// instruction at pc.
func (c *CPU) checkTarget(pc, target uint16) error {
	if target == 0 || (!c.Mapped(target) && target != c.ExitAddress) {
		return c.raise(&Fault{Kind: InvalidTarget, PC: pc, Target: target})
	}
	return nil
}
