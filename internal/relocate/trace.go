package relocate

import (
	"github.com/retroenv/retrogolib/set"
	"github.com/retroenv/sidforge/internal/cpu"
)

// trace is the result of following the program flow from the entry points.
type trace struct {
	opcodes  set.Set[uint16] // first byte of every reached instruction
	operands set.Set[uint16] // first byte of absolute operands
	other    set.Set[uint16] // operand bytes that are no pointers
}

// traceCode follows all statically known flow from the entry points. Bytes
// that are not reached stay unclassified and are scanned as data.
func (r *relocator) traceCode(entryPoints []uint16) (*trace, error) {
	t := &trace{
		opcodes:  set.New[uint16](),
		operands: set.New[uint16](),
		other:    set.New[uint16](),
	}

	addressesToParse := make([]uint16, 0, len(entryPoints))
	addressesToParseAdded := set.New[uint16]()
	queue := func(address uint16) {
		if !r.inCode(int(address)) || addressesToParseAdded.Contains(address) {
			return
		}
		addressesToParseAdded.Add(address)
		addressesToParse = append(addressesToParse, address)
	}

	for _, entry := range entryPoints {
		if !r.inCode(int(entry)) {
			return nil, &Error{Address: entry, Err: ErrOutsideRegion}
		}
		queue(entry)
	}

	for len(addressesToParse) > 0 {
		address := addressesToParse[0]
		addressesToParse = addressesToParse[1:]

		for r.inCode(int(address)) && !t.opcodes.Contains(address) {
			d := cpu.Decode(r, address)
			inst := d.Instruction
			if inst.Class == cpu.Jam || !r.inCode(int(address)+int(inst.Length)-1) {
				break
			}

			t.opcodes.Add(address)
			switch {
			case inst.Mode.Absolute():
				t.operands.Add(address + 1)
				t.other.Add(address + 2)
			case inst.Length > 1:
				t.other.Add(address + 1)
			}

			if target, ok := d.Target(); ok {
				queue(target)
			}
			if inst.Flow == cpu.FlowJump || inst.Flow == cpu.FlowIndirect ||
				inst.Flow == cpu.FlowReturn || inst.Flow == cpu.FlowHalt {
				break
			}
			address = d.Next()
		}
	}
	return t, nil
}

// operand returns whether an absolute operand starts at the address.
func (t *trace) operand(address uint16) bool {
	return t.operands.Contains(address)
}

// pointerCandidate returns whether a word pointer can start at the address.
// Absolute operands are candidates, instruction bytes are not, untraced bytes
// are treated as data.
func (t *trace) pointerCandidate(address uint16) bool {
	if t.operands.Contains(address) {
		return true
	}
	return !t.code(address) && !t.code(address+1)
}

func (t *trace) code(address uint16) bool {
	return t.opcodes.Contains(address) || t.operands.Contains(address) || t.other.Contains(address)
}
