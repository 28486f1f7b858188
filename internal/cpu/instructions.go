package cpu

import (
	"strings"

	"github.com/retroenv/retrogolib/arch/cpu/cpu6502"
)

// Mode describes a memory addressing mode.
type Mode byte

// All addressing modes of the 6502.
const (
	IMP Mode = iota // Implied
	ACC             // Accumulator
	IMM             // Immediate
	ZPG             // Zero Page
	ZPX             // Zero Page,X
	ZPY             // Zero Page,Y
	ABS             // Absolute
	ABX             // Absolute,X
	ABY             // Absolute,Y
	IND             // (Indirect)
	IDX             // (Indirect,X)
	IDY             // (Indirect),Y
	REL             // Relative
)

var modeNames = [...]string{"IMP", "ACC", "IMM", "ZPG", "ZPX", "ZPY", "ABS", "ABX", "ABY", "IND", "IDX", "IDY", "REL"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "???"
}

// Absolute returns whether the mode uses a 16 bit address operand.
func (m Mode) Absolute() bool {
	return m == ABS || m == ABX || m == ABY || m == IND
}

// Length returns the combined size of opcode and operand in bytes.
func (m Mode) Length() byte {
	switch m {
	case IMP, ACC:
		return 1
	case ABS, ABX, ABY, IND:
		return 3
	default:
		return 2
	}
}

var modes = map[cpu6502.AddressingMode]Mode{
	cpu6502.ImpliedAddressing:     IMP,
	cpu6502.AccumulatorAddressing: ACC,
	cpu6502.ImmediateAddressing:   IMM,
	cpu6502.ZeroPageAddressing:    ZPG,
	cpu6502.ZeroPageXAddressing:   ZPX,
	cpu6502.ZeroPageYAddressing:   ZPY,
	cpu6502.AbsoluteAddressing:    ABS,
	cpu6502.AbsoluteXAddressing:   ABX,
	cpu6502.AbsoluteYAddressing:   ABY,
	cpu6502.IndirectAddressing:    IND,
	cpu6502.IndirectXAddressing:   IDX,
	cpu6502.IndirectYAddressing:   IDY,
	cpu6502.RelativeAddressing:    REL,
}

// Class classifies how the emulator handles an opcode.
type Class byte

const (
	Official     Class = iota // documented instruction
	Undocumented              // undocumented instruction with stable, emulated behavior
	Unsupported               // undocumented instruction with unstable behavior, execution faults
	Jam                       // opcode that locks up the CPU, execution faults
)

// unstable lists the undocumented instructions whose result depends on the
// chip revision or on analog effects. Executing them faults.
var unstable = map[string]struct{}{
	cpu6502.AneName: {},
	cpu6502.LxaName: {},
	cpu6502.LasName: {},
	cpu6502.TasName: {},
	cpu6502.ShaName: {},
	cpu6502.ShxName: {},
	cpu6502.ShyName: {},
}

// Flow describes how an instruction changes the program flow. It is used by
// code tracers that need to find all reachable instructions.
type Flow byte

const (
	FlowNext     Flow = iota // execution continues with the next instruction
	FlowBranch               // conditional relative branch
	FlowJump                 // unconditional absolute jump
	FlowIndirect             // indirect jump, destination unknown without emulation
	FlowCall                 // subroutine call
	FlowReturn               // return from subroutine or interrupt
	FlowHalt                 // BRK or jam, no statically known successor
)

// An Instruction describes a CPU instruction, including its name, its addressing
// mode, its opcode value, its size and its CPU cycle cost.
type Instruction struct {
	Name       string // all-caps name of the instruction
	Mode       Mode   // addressing mode
	Opcode     byte   // opcode value
	Length     byte   // combined size of opcode and operand in bytes
	Cycles     byte   // base number of CPU cycles
	PageCycles byte   // additional cycles if a page boundary is crossed
	Class      Class
	Flow       Flow
}

// Official returns whether the opcode is a documented instruction.
func (i *Instruction) Official() bool {
	return i.Class == Official
}

var instructions = newInstructionTable()

// newInstructionTable derives the instruction table from the NMOS opcode
// table of the emulator core.
func newInstructionTable() *[256]Instruction {
	var table [256]Instruction

	for i, op := range cpu6502.Opcodes {
		mode, ok := modes[op.Addressing]
		if !ok || op.Instruction == nil {
			panic("unsupported opcode definition")
		}

		inst := &table[i]
		inst.Name = strings.ToUpper(op.Instruction.Name)
		inst.Mode = mode
		inst.Opcode = byte(i)
		inst.Length = mode.Length()
		inst.Cycles = op.Timing
		if op.PageCrossCycle {
			inst.PageCycles = 1
		}
		inst.Class = classOf(op.Instruction)
		inst.Flow = flowOf(op.Instruction.Name, mode)
	}
	return &table
}

func classOf(ins *cpu6502.Instruction) Class {
	if ins == cpu6502.KilInst {
		return Jam
	}
	if _, ok := unstable[ins.Name]; ok {
		return Unsupported
	}
	if ins.Unofficial {
		return Undocumented
	}
	return Official
}

func flowOf(name string, mode Mode) Flow {
	switch {
	case name == cpu6502.KilName || name == cpu6502.BrkName:
		return FlowHalt
	case mode == REL:
		return FlowBranch
	case name == cpu6502.JmpName && mode == IND:
		return FlowIndirect
	case name == cpu6502.JmpName:
		return FlowJump
	case name == cpu6502.JsrName:
		return FlowCall
	case name == cpu6502.RtsName, name == cpu6502.RtiName:
		return FlowReturn
	default:
		return FlowNext
	}
}

// Lookup returns the instruction for an opcode. All 256 opcodes are defined.
func Lookup(opcode byte) *Instruction {
	return &instructions[opcode]
}

// Decoded is an instruction decoded at a specific address.
type Decoded struct {
	Address     uint16
	Instruction *Instruction
	Operand     uint16 // raw operand, byte operands are zero extended
}

// Reader provides read access to memory for decoding.
type Reader interface {
	Byte(address uint16) byte
}

// Decode decodes the instruction at the given address without executing it.
func Decode(mem Reader, address uint16) Decoded {
	inst := Lookup(mem.Byte(address))
	d := Decoded{
		Address:     address,
		Instruction: inst,
	}

	switch inst.Length {
	case 2:
		d.Operand = uint16(mem.Byte(address + 1))
	case 3:
		d.Operand = uint16(mem.Byte(address+1)) | uint16(mem.Byte(address+2))<<8
	}
	return d
}

// Target returns the statically known destination of a branch, jump or call.
func (d Decoded) Target() (uint16, bool) {
	switch d.Instruction.Flow {
	case FlowBranch:
		next := d.Address + 2
		return uint16(int32(next) + int32(int8(d.Operand))), true
	case FlowJump, FlowCall:
		return d.Operand, true
	default:
		return 0, false
	}
}

// Next returns the address of the following instruction.
func (d Decoded) Next() uint16 {
	return d.Address + uint16(d.Instruction.Length)
}
