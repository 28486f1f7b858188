// Package relocate moves 6502 code and data to a new base address by patching
// every absolute pointer into the moved region.
package relocate

import (
	"errors"
	"fmt"
	"slices"

	"github.com/retroenv/retrogolib/set"
	"github.com/retroenv/sidforge/internal/memory"
)

var (
	// ErrOutsideRegion is returned for a pointer or patch location that is not
	// inside the relocated region.
	ErrOutsideRegion = errors.New("outside of the relocated region")
	// ErrOverlap is returned when two pointers share a byte and the code trace
	// can not decide which one is real.
	ErrOverlap = errors.New("overlapping pointers")
	// ErrOverflow is returned when relocated code or pointers do not fit into
	// the address space.
	ErrOverflow = errors.New("relocation exceeds the address space")
)

// Error describes a failed relocation at an address of the source region.
type Error struct {
	Address uint16
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("relocation at $%04X: %v", e.Address, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Width is the storage format of a patched pointer.
type Width int

const (
	// WidthWord is a little endian word at Address.
	WidthWord Width = iota + 1
	// WidthSplit stores the low byte at Address and the high byte at HighAddress.
	WidthSplit
)

// Patch is a pointer that gets a new value.
type Patch struct {
	Address     uint16 // source address of the low byte
	HighAddress uint16 // source address of the high byte
	Original    uint16
	Relocated   uint16
	Width       Width
}

// Range is an address range [Start, End) of the source region.
type Range struct {
	Start uint16
	End   uint16
}

// PointerTable is a table of pointers that stores low and high bytes in
// separate arrays.
type PointerTable struct {
	Low   uint16
	High  uint16
	Count int
}

// Options control which bytes are treated as pointers.
type Options struct {
	// ScanRanges are scanned byte by byte for word pointers, all of the code
	// is scanned if no range is given.
	ScanRanges []Range
	// PointerTables are patched entry by entry and excluded from the scan.
	PointerTables []PointerTable
	// EntryPoints enable the code trace that resolves ambiguous candidates.
	EntryPoints []uint16
	// RegionLength is the length of the region pointers have to point into,
	// it defaults to the code length.
	RegionLength int
}

// Result is the relocated code with the applied patches.
type Result struct {
	Code    []byte
	Patches []Patch
	Delta   int
}

// Relocate moves code from sourceBase to destBase. All patches are collected
// and validated first, the source is never modified and no patch is applied
// if any of them fails.
func Relocate(code []byte, sourceBase, destBase uint16, opts Options) (*Result, error) {
	if int(sourceBase)+len(code) > memory.Size {
		return nil, &Error{Address: sourceBase, Err: fmt.Errorf("%w: source of %d bytes", ErrOverflow, len(code))}
	}
	if int(destBase)+len(code) > memory.Size {
		return nil, &Error{Address: sourceBase, Err: fmt.Errorf("%w: destination $%04X with %d bytes", ErrOverflow, destBase, len(code))}
	}

	r := &relocator{
		code:       code,
		sourceBase: sourceBase,
		delta:      int(destBase) - int(sourceBase),
		regionEnd:  int(sourceBase) + len(code),
		patched:    set.New[uint16](),
		excluded:   set.New[uint16](),
	}
	if opts.RegionLength > 0 {
		r.regionEnd = int(sourceBase) + opts.RegionLength
	}

	if err := r.addPointerTables(opts.PointerTables); err != nil {
		return nil, err
	}

	var tr *trace
	if len(opts.EntryPoints) > 0 {
		var err error
		if tr, err = r.traceCode(opts.EntryPoints); err != nil {
			return nil, err
		}
	}

	ranges := opts.ScanRanges
	if len(ranges) == 0 {
		ranges = []Range{{Start: sourceBase, End: uint16(r.regionCodeEnd())}}
	}
	if err := r.scan(ranges, tr); err != nil {
		return nil, err
	}

	return r.apply(), nil
}

// RelocateImage relocates the loaded range of an image and returns a new image
// that contains the relocated code at destBase.
func RelocateImage(img *memory.Image, destBase uint16, opts Options) (*memory.Image, *Result, error) {
	res, err := Relocate(img.Bytes(), img.LoadAddress, destBase, opts)
	if err != nil {
		return nil, nil, err
	}
	out, err := memory.New(destBase, res.Code)
	if err != nil {
		return nil, nil, fmt.Errorf("creating relocated image: %w", err)
	}
	return out, res, nil
}

type relocator struct {
	code       []byte
	sourceBase uint16
	delta      int
	regionEnd  int

	patches  []Patch
	patched  set.Set[uint16] // source addresses of all patched bytes
	excluded set.Set[uint16] // bytes that are not scanned
}

func (r *relocator) regionCodeEnd() int {
	return int(r.sourceBase) + len(r.code)
}

func (r *relocator) inCode(address int) bool {
	return address >= int(r.sourceBase) && address < r.regionCodeEnd()
}

func (r *relocator) inRegion(value uint16) bool {
	return int(value) >= int(r.sourceBase) && int(value) < r.regionEnd
}

func (r *relocator) byteAt(address uint16) byte {
	return r.code[address-r.sourceBase]
}

// Byte implements cpu.Reader for the tracer, bytes outside of the code read as 0.
func (r *relocator) Byte(address uint16) byte {
	if !r.inCode(int(address)) {
		return 0
	}
	return r.byteAt(address)
}

func (r *relocator) addPointerTables(tables []PointerTable) error {
	for _, t := range tables {
		for i := range t.Count {
			lo := int(t.Low) + i
			hi := int(t.High) + i
			if !r.inCode(lo) || !r.inCode(hi) {
				return &Error{Address: uint16(lo), Err: fmt.Errorf("%w: pointer table entry %d", ErrOutsideRegion, i)}
			}

			p := Patch{
				Address:     uint16(lo),
				HighAddress: uint16(hi),
				Original:    uint16(r.byteAt(uint16(lo))) | uint16(r.byteAt(uint16(hi)))<<8,
				Width:       WidthSplit,
			}
			if !r.inRegion(p.Original) {
				return &Error{Address: p.Address, Err: fmt.Errorf("%w: table pointer $%04X", ErrOutsideRegion, p.Original)}
			}
			if err := r.add(p); err != nil {
				return err
			}
			r.excluded.Add(p.Address)
			r.excluded.Add(p.HighAddress)
		}
	}
	return nil
}

// scan checks every offset of the ranges for a word pointer into the region.
func (r *relocator) scan(ranges []Range, tr *trace) error {
	for _, rng := range ranges {
		if !r.inCode(int(rng.Start)) || int(rng.End) > r.regionCodeEnd() || rng.End < rng.Start {
			return &Error{Address: rng.Start, Err: fmt.Errorf("%w: scan range $%04X-$%04X", ErrOutsideRegion, rng.Start, rng.End)}
		}

		var pending *Patch
		for address := int(rng.Start); address+1 < int(rng.End); address++ {
			a := uint16(address)
			if r.excluded.Contains(a) || r.excluded.Contains(a+1) {
				continue
			}
			if tr != nil && !tr.pointerCandidate(a) {
				continue
			}

			value := uint16(r.byteAt(a)) | uint16(r.byteAt(a+1))<<8
			if !r.inRegion(value) {
				continue
			}

			candidate := Patch{Address: a, HighAddress: a + 1, Original: value, Width: WidthWord}
			if pending != nil && pending.Address+1 == a {
				// candidates share a byte, the trace keeps operands over raw data
				switch {
				case tr != nil && tr.operand(pending.Address):
					continue
				case tr != nil && tr.operand(a):
					pending = &candidate
					continue
				default:
					return &Error{Address: pending.Address, Err: fmt.Errorf("%w: $%04X and $%04X", ErrOverlap, pending.Address, a)}
				}
			}

			if pending != nil {
				if err := r.add(*pending); err != nil {
					return err
				}
			}
			pending = &candidate
		}
		if pending != nil {
			if err := r.add(*pending); err != nil {
				return err
			}
		}
	}
	return nil
}

// add validates a patch and records it.
func (r *relocator) add(p Patch) error {
	relocated := int(p.Original) + r.delta
	if relocated < 0 || relocated >= memory.Size {
		return &Error{Address: p.Address, Err: fmt.Errorf("%w: pointer $%04X", ErrOverflow, p.Original)}
	}
	p.Relocated = uint16(relocated)

	for _, address := range []uint16{p.Address, p.HighAddress} {
		if r.patched.Contains(address) {
			return &Error{Address: address, Err: fmt.Errorf("%w: byte patched twice", ErrOverlap)}
		}
	}
	r.patched.Add(p.Address)
	r.patched.Add(p.HighAddress)
	r.patches = append(r.patches, p)
	return nil
}

// apply writes all patches to a copy of the code.
func (r *relocator) apply() *Result {
	out := make([]byte, len(r.code))
	copy(out, r.code)

	for _, p := range r.patches {
		out[p.Address-r.sourceBase] = byte(p.Relocated)
		out[p.HighAddress-r.sourceBase] = byte(p.Relocated >> 8)
	}

	patches := slices.Clone(r.patches)
	slices.SortFunc(patches, func(a, b Patch) int {
		return int(a.Address) - int(b.Address)
	})
	return &Result{
		Code:    out,
		Patches: patches,
		Delta:   r.delta,
	}
}
