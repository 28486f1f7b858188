package driver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/retroenv/sidforge/internal/music"
)

// Directory provides drivers stored as files in a directory. A driver consists
// of <name>.prg, the code prefixed with its 2 byte load address, and
// <name>.json that describes the entry points and tables.
type Directory struct {
	Path string
}

// layoutFile is the sidecar description of a driver. All offsets are relative
// to the load address of the code.
type layoutFile struct {
	CodeSize   int                  `json:"code_size"`
	Init       uint16               `json:"init"`
	Play       uint16               `json:"play"`
	DataOffset uint16               `json:"data_offset"`
	Tables     map[string]TableSpec `json:"tables"`
}

// Template loads the named driver from the directory.
func (d Directory) Template(name string) (*Template, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownDriver, name)
	}

	prg, err := os.ReadFile(filepath.Join(d.Path, name+".prg"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w '%s'", ErrUnknownDriver, name)
		}
		return nil, fmt.Errorf("reading driver code: %w", err)
	}
	if len(prg) < 3 {
		return nil, fmt.Errorf("driver %s: code file too short", name)
	}

	data, err := os.ReadFile(filepath.Join(d.Path, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("reading driver layout: %w", err)
	}
	var layout layoutFile
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("decoding driver layout: %w", err)
	}

	base := uint16(prg[0]) | uint16(prg[1])<<8
	tpl := &Template{
		Name:       name,
		Base:       base,
		Code:       prg[2:],
		CodeSize:   layout.CodeSize,
		Init:       base + layout.Init,
		Play:       base + layout.Play,
		Tables:     make(map[music.TableKind]TableSpec, len(layout.Tables)),
		DataOffset: layout.DataOffset,
	}
	if int(tpl.DataOffset) > len(tpl.Code) {
		tpl.Code = append(tpl.Code, make([]byte, int(tpl.DataOffset)-len(tpl.Code))...)
	}

	for key, spec := range layout.Tables {
		kind, ok := tableKindByName(key)
		if !ok {
			return nil, fmt.Errorf("driver %s: unknown table '%s'", name, key)
		}
		tpl.Tables[kind] = spec
	}

	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return tpl, nil
}

func tableKindByName(name string) (music.TableKind, bool) {
	for _, kind := range music.TableKinds {
		if kind.String() == name {
			return kind, true
		}
	}
	return 0, false
}

// Chain returns a provider that asks each provider in order and returns the
// first template found.
func Chain(providers ...Provider) Provider {
	return chain(providers)
}

type chain []Provider

func (c chain) Template(name string) (*Template, error) {
	for _, p := range c {
		tpl, err := p.Template(name)
		if err == nil {
			return tpl, nil
		}
		if !errors.Is(err, ErrUnknownDriver) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w '%s'", ErrUnknownDriver, name)
}
