// Package driver provides the target driver templates that converted songs
// are assembled into.
//
// The builtin driver is a minimal placeholder with the table layout of SID
// Factory II driver 11. Its play routine does not interpret order lists or
// sequences, it streams the first 32 instrument and wave rows to voice 1 so
// that assembled files play and can be traced. Real driver binaries are
// loaded from a driver directory with the same table layout.
package driver

import (
	"errors"
	"fmt"

	"github.com/retroenv/sidforge/internal/music"
	"github.com/retroenv/sidforge/internal/player"
)

// DefaultName is the name of the driver that is used if none is configured.
const DefaultName = "driver11"

// ErrUnknownDriver is returned by providers for unknown driver names.
var ErrUnknownDriver = errors.New("unknown driver")

// TableSpec describes a column major table of a driver.
type TableSpec struct {
	Offset  uint16 `json:"offset"` // relative to the driver base
	Columns int    `json:"columns"`
	Rows    int    `json:"rows"`
}

// Size returns the number of bytes of the table.
func (s TableSpec) Size() int {
	return s.Columns * s.Rows
}

// Template is a driver binary with its table layout.
type Template struct {
	Name       string
	Base       uint16 // address the code is assembled for
	Code       []byte // code and empty table space, loaded at Base
	CodeSize   int    // executable code at Base, the table space follows
	Init       uint16
	Play       uint16
	Tables     map[music.TableKind]TableSpec
	DataOffset uint16 // first byte of the free space for packed data, relative to Base
}

// Provider returns driver templates by name.
type Provider interface {
	Template(name string) (*Template, error)
}

// Layout returns the table offsets as a player layout.
func (t *Template) Layout() player.Layout {
	layout := make(player.Layout, len(t.Tables))
	for kind, spec := range t.Tables {
		layout[kind] = spec.Offset
	}
	return layout
}

// Validate checks that the template contains all tables, that they fit into
// the code and that the entry points are inside the code.
func (t *Template) Validate() error {
	if t.CodeSize <= 0 || t.CodeSize > len(t.Code) {
		return fmt.Errorf("driver %s: invalid code size %d", t.Name, t.CodeSize)
	}
	end := int(t.Base) + t.CodeSize
	for _, addr := range []uint16{t.Init, t.Play} {
		if int(addr) < int(t.Base) || int(addr) >= end {
			return fmt.Errorf("driver %s: entry point $%04X outside of the code", t.Name, addr)
		}
	}
	if int(t.Base)+int(t.DataOffset) > 0xFFFF {
		return fmt.Errorf("driver %s: data offset $%04X exceeds the address space", t.Name, t.DataOffset)
	}

	for _, kind := range music.TableKinds {
		spec, ok := t.Tables[kind]
		if !ok {
			return fmt.Errorf("driver %s: missing %s table", t.Name, kind)
		}
		if kind == music.TableOrderLists || kind == music.TableSequences {
			continue // pointer tables, checked by the assembler
		}
		if spec.Rows < music.Capacity(kind) && kind != music.TableCommands {
			return fmt.Errorf("driver %s: %s table has %d rows, %d required", t.Name, kind, spec.Rows, music.Capacity(kind))
		}
		if int(spec.Offset) < t.CodeSize || int(spec.Offset)+spec.Size() > len(t.Code) {
			return fmt.Errorf("driver %s: %s table at $%04X does not fit", t.Name, kind, spec.Offset)
		}
	}
	if int(t.DataOffset) < len(t.Code) {
		return fmt.Errorf("driver %s: data offset $%04X overlaps the driver", t.Name, t.DataOffset)
	}
	return nil
}
