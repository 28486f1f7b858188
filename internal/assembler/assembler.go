// Package assembler implements a small two pass 6502 assembler that is used to
// build driver and player code from source text.
package assembler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/retroenv/sidforge/internal/cpu"
)

var (
	errSyntax          = errors.New("syntax error")
	errUnknownSymbol   = errors.New("unknown symbol")
	errDuplicateSymbol = errors.New("duplicate symbol")
	errNoInstruction   = errors.New("no matching instruction")
	errBranchRange     = errors.New("branch target out of range")
)

// Program is the result of an assembly.
type Program struct {
	Origin  uint16
	Code    []byte
	Symbols map[string]uint16 // labels and definitions
}

// End returns the first address after the code.
func (p *Program) End() uint16 {
	return p.Origin + uint16(len(p.Code))
}

// Symbol returns the value of a label or definition.
func (p *Program) Symbol(name string) (uint16, bool) {
	v, ok := p.Symbols[strings.ToLower(name)]
	return v, ok
}

type opcodeKey struct {
	name string
	mode cpu.Mode
}

var opcodes = buildOpcodeMap()

func buildOpcodeMap() map[opcodeKey]byte {
	m := make(map[opcodeKey]byte)
	for i := range 256 {
		inst := cpu.Lookup(byte(i))
		if inst.Official() {
			m[opcodeKey{inst.Name, inst.Mode}] = inst.Opcode
		}
	}
	return m
}

// statement is one parsed source line that emits bytes.
type statement struct {
	line    int
	address uint16
	name    string   // mnemonic, empty for data
	mode    cpu.Mode // mode selected in the first pass
	expr    string   // operand expression
	data    []string // .byte expressions
	size    int
}

type assembler struct {
	origin     uint16
	symbols    map[string]uint16
	statements []*statement
}

// Assemble assembles the source at the origin address. Predefined symbols can
// be passed to reference addresses outside of the source.
//
// The syntax supports labels ending with a colon, "name = expr" definitions,
// .byte and .word directives, the standard addressing mode notations and
// expressions of symbols and numbers joined by + and -. A < or > prefix on
// an immediate operand selects the low or high byte.
func Assemble(origin uint16, source string, predefined map[string]uint16) (*Program, error) {
	a := &assembler{
		origin:  origin,
		symbols: make(map[string]uint16, len(predefined)),
	}
	for name, value := range predefined {
		a.symbols[strings.ToLower(name)] = value
	}

	if err := a.parse(source); err != nil {
		return nil, err
	}

	code := make([]byte, 0, int(a.pc()-origin))
	for _, st := range a.statements {
		b, err := a.encode(st)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", st.line, err)
		}
		code = append(code, b...)
	}

	return &Program{
		Origin:  origin,
		Code:    code,
		Symbols: a.symbols,
	}, nil
}

func (a *assembler) pc() uint16 {
	if len(a.statements) == 0 {
		return a.origin
	}
	last := a.statements[len(a.statements)-1]
	return last.address + uint16(last.size)
}

// parse is the first pass, it assigns addresses to all statements and
// defines all labels.
func (a *assembler) parse(source string) error {
	for i, line := range strings.Split(source, "\n") {
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(strings.ReplaceAll(line, "\t", " "))

		if err := a.parseLine(i+1, line); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return nil
}

func (a *assembler) parseLine(number int, line string) error {
	if idx := strings.IndexByte(line, ':'); idx > 0 && isIdentifier(line[:idx]) {
		if err := a.define(line[:idx], a.pc()); err != nil {
			return err
		}
		line = strings.TrimSpace(line[idx+1:])
	}
	if line == "" {
		return nil
	}

	if name, expr, ok := strings.Cut(line, "="); ok {
		name = strings.TrimSpace(name)
		if !isIdentifier(name) {
			return fmt.Errorf("%w: invalid symbol name '%s'", errSyntax, name)
		}
		value, err := a.evaluate(strings.TrimSpace(expr))
		if err != nil {
			return err
		}
		return a.define(name, value)
	}

	mnemonic, operand, _ := strings.Cut(line, " ")
	mnemonic = strings.ToUpper(mnemonic)
	operand = strings.ReplaceAll(strings.TrimSpace(operand), " ", "")

	st := &statement{line: number, address: a.pc()}
	switch mnemonic {
	case ".BYTE":
		st.data = strings.Split(operand, ",")
		st.size = len(st.data)
	case ".WORD":
		st.data = strings.Split(operand, ",")
		st.size = 2 * len(st.data)
		st.name = mnemonic
	default:
		mode, expr, err := a.selectMode(mnemonic, operand)
		if err != nil {
			return err
		}
		st.name = mnemonic
		st.mode = mode
		st.expr = expr
		st.size = operandSize(mode) + 1
	}

	a.statements = append(a.statements, st)
	return nil
}

func (a *assembler) define(name string, value uint16) error {
	key := strings.ToLower(name)
	if _, ok := a.symbols[key]; ok {
		return fmt.Errorf("%w '%s'", errDuplicateSymbol, name)
	}
	a.symbols[key] = value
	return nil
}

// selectMode determines the addressing mode of an instruction. Zero page
// modes are only selected for operands that are known in the first pass.
func (a *assembler) selectMode(name, operand string) (cpu.Mode, string, error) {
	upper := strings.ToUpper(operand)
	var candidates []cpu.Mode
	expr := operand

	switch {
	case operand == "" || upper == "A":
		candidates = []cpu.Mode{cpu.IMP, cpu.ACC}
		expr = ""
	case strings.HasPrefix(operand, "#"):
		candidates = []cpu.Mode{cpu.IMM}
		expr = operand[1:]
	case strings.HasPrefix(upper, "(") && strings.HasSuffix(upper, ",X)"):
		candidates = []cpu.Mode{cpu.IDX}
		expr = operand[1 : len(operand)-3]
	case strings.HasPrefix(upper, "(") && strings.HasSuffix(upper, "),Y"):
		candidates = []cpu.Mode{cpu.IDY}
		expr = operand[1 : len(operand)-3]
	case strings.HasPrefix(upper, "(") && strings.HasSuffix(upper, ")"):
		candidates = []cpu.Mode{cpu.IND}
		expr = operand[1 : len(operand)-1]
	case strings.HasSuffix(upper, ",X"):
		candidates = []cpu.Mode{cpu.ZPX, cpu.ABX}
		expr = operand[:len(operand)-2]
	case strings.HasSuffix(upper, ",Y"):
		candidates = []cpu.Mode{cpu.ZPY, cpu.ABY}
		expr = operand[:len(operand)-2]
	default:
		candidates = []cpu.Mode{cpu.REL, cpu.ZPG, cpu.ABS}
	}

	for _, mode := range candidates {
		if _, ok := opcodes[opcodeKey{name, mode}]; !ok {
			continue
		}
		if mode == cpu.ZPG || mode == cpu.ZPX || mode == cpu.ZPY {
			value, err := a.evaluate(expr)
			if err != nil || value > 0xFF {
				continue
			}
		}
		return mode, expr, nil
	}
	return 0, "", fmt.Errorf("%w: %s %s", errNoInstruction, name, operand)
}

func operandSize(mode cpu.Mode) int {
	switch mode {
	case cpu.IMP, cpu.ACC:
		return 0
	case cpu.ABS, cpu.ABX, cpu.ABY, cpu.IND:
		return 2
	default:
		return 1
	}
}

// encode is the second pass, all symbols are known now.
func (a *assembler) encode(st *statement) ([]byte, error) {
	if st.data != nil {
		return a.encodeData(st)
	}

	opcode := opcodes[opcodeKey{st.name, st.mode}]
	b := []byte{opcode}
	if st.mode == cpu.IMP || st.mode == cpu.ACC {
		return b, nil
	}

	expr := st.expr
	var selector byte
	if st.mode == cpu.IMM && expr != "" && (expr[0] == '<' || expr[0] == '>') {
		selector, expr = expr[0], expr[1:]
	}
	value, err := a.evaluate(expr)
	if err != nil {
		return nil, err
	}

	switch st.mode {
	case cpu.REL:
		offset := int(value) - int(st.address+2)
		if offset < -128 || offset > 127 {
			return nil, fmt.Errorf("%w: $%04X", errBranchRange, value)
		}
		return append(b, byte(int8(offset))), nil

	case cpu.IMM:
		switch selector {
		case '<':
			value &= 0xFF
		case '>':
			value >>= 8
		}
		if value > 0xFF {
			return nil, fmt.Errorf("%w: immediate value $%X", errSyntax, value)
		}
		return append(b, byte(value)), nil

	default:
		if operandSize(st.mode) == 1 {
			return append(b, byte(value)), nil
		}
		return append(b, byte(value), byte(value>>8)), nil
	}
}

func (a *assembler) encodeData(st *statement) ([]byte, error) {
	b := make([]byte, 0, st.size)
	for _, expr := range st.data {
		var selector byte
		if expr != "" && (expr[0] == '<' || expr[0] == '>') {
			selector, expr = expr[0], expr[1:]
		}
		value, err := a.evaluate(expr)
		if err != nil {
			return nil, err
		}
		switch {
		case st.name == ".WORD":
			b = append(b, byte(value), byte(value>>8))
		case selector == '>':
			b = append(b, byte(value>>8))
		case selector == '<' || value <= 0xFF:
			b = append(b, byte(value))
		default:
			return nil, fmt.Errorf("%w: byte value $%X", errSyntax, value)
		}
	}
	return b, nil
}

// evaluate computes an expression of terms joined by + and -.
func (a *assembler) evaluate(expr string) (uint16, error) {
	if expr == "" {
		return 0, fmt.Errorf("%w: missing operand", errSyntax)
	}

	var result int
	sign := 1
	start := 0
	for i := 0; i <= len(expr); i++ {
		if i < len(expr) && (expr[i] != '+' && expr[i] != '-' || i == start) {
			continue
		}
		term, err := a.term(expr[start:i])
		if err != nil {
			return 0, err
		}
		result += sign * term
		if i < len(expr) && expr[i] == '-' {
			sign = -1
		} else {
			sign = 1
		}
		start = i + 1
	}
	return uint16(result), nil
}

func (a *assembler) term(s string) (int, error) {
	switch {
	case s == "":
		return 0, fmt.Errorf("%w: empty term", errSyntax)
	case s[0] == '$':
		v, err := strconv.ParseUint(s[1:], 16, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid number '%s'", errSyntax, s)
		}
		return int(v), nil
	case s[0] >= '0' && s[0] <= '9':
		v, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid number '%s'", errSyntax, s)
		}
		return int(v), nil
	}

	v, ok := a.symbols[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("%w '%s'", errUnknownSymbol, s)
	}
	return int(v), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
