package cpu

import (
	"errors"
	"fmt"
)

// ErrHalted is returned from Step when the CPU has halted.
var ErrHalted = errors.New("CPU halted")

// FaultKind classifies an emulation fault.
type FaultKind int

const (
	// RunawayExecution means the instruction budget of a run was exceeded.
	RunawayExecution FaultKind = iota + 1
	// InvalidTarget means control was transferred to $0000 or to an address
	// without a mapped instruction stream.
	InvalidTarget
	// IllegalOpcode means a KIL opcode was executed or the emulation core
	// rejected the instruction.
	IllegalOpcode
	// UnsupportedOpcode means an unstable undocumented opcode was executed.
	UnsupportedOpcode
)

func (k FaultKind) String() string {
	switch k {
	case RunawayExecution:
		return "runaway execution"
	case InvalidTarget:
		return "invalid target"
	case IllegalOpcode:
		return "illegal opcode"
	case UnsupportedOpcode:
		return "unsupported opcode"
	default:
		return fmt.Sprintf("fault(%d)", int(k))
	}
}

// Fault is an emulation fault. It is fatal for the emulation run that raised it.
type Fault struct {
	Kind    FaultKind
	PC      uint16 // address of the faulting instruction
	Target  uint16 // destination for InvalidTarget faults
	Opcode  byte
	Name    string // instruction name for opcode faults
	Counter int    // executed instructions of the run
	Err     error  // error of the emulation core, if any
}

func (f *Fault) Error() string {
	switch f.Kind {
	case InvalidTarget:
		return fmt.Sprintf("emulation fault: %s $%04X at $%04X", f.Kind, f.Target, f.PC)
	case IllegalOpcode, UnsupportedOpcode:
		if f.Err != nil {
			return fmt.Sprintf("emulation fault: %s $%02X (%s) at $%04X: %v", f.Kind, f.Opcode, f.Name, f.PC, f.Err)
		}
		return fmt.Sprintf("emulation fault: %s $%02X (%s) at $%04X", f.Kind, f.Opcode, f.Name, f.PC)
	case RunawayExecution:
		return fmt.Sprintf("emulation fault: %s after %d instructions at $%04X", f.Kind, f.Counter, f.PC)
	default:
		return fmt.Sprintf("emulation fault: %s at $%04X", f.Kind, f.PC)
	}
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// IsFault returns whether the error is an emulation fault of the given kind.
func IsFault(err error, kind FaultKind) bool {
	var f *Fault
	if !errors.As(err, &f) {
		return false
	}
	return f.Kind == kind
}
