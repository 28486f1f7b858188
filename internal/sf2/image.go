package sf2

import (
	"fmt"

	"github.com/retroenv/sidforge/internal/driver"
	"github.com/retroenv/sidforge/internal/memory"
	"github.com/retroenv/sidforge/internal/music"
)

// FromImage wraps an image that already contains a driver with target encoded
// tables at its load address, like a tune that was exported from an editor.
// The image does not store how many table rows are used, trailing rows that
// only contain zeros are treated as unused.
func FromImage(tpl *driver.Template, img *memory.Image, common Common, meta Metadata) (*File, error) {
	base := img.LoadAddress
	f := &File{
		Descriptor: Descriptor{
			Type:     DriverType,
			Name:     tpl.Name,
			Base:     base,
			Size:     uint16(img.Size),
			CodeSize: uint16(tpl.CodeSize),
		},
		Common:            common,
		InstrumentColumns: []string{"AD", "SR", "Flags", "Filter", "Pulse", "Wave"},
		Image:             img.Clone(),
	}

	for _, ct := range columnTables {
		spec := tpl.Tables[ct.kind]
		if spec.Columns != ct.width {
			return nil, fmt.Errorf("driver %s: %s table has %d columns, %d expected",
				tpl.Name, ct.kind, spec.Columns, ct.width)
		}
		desc := TableDescriptor{
			Type:    ct.typ,
			ID:      byte(ct.kind),
			Name:    ct.kind.String(),
			Layout:  LayoutColumnMajor,
			Address: base + spec.Offset,
			Columns: byte(spec.Columns),
			Rows:    uint16(spec.Rows),
		}
		if !img.Loaded(desc.Address) || !img.Loaded(desc.Address+uint16(spec.Size()-1)) {
			return nil, fmt.Errorf("%w: %s table at $%04X outside of the image", music.ErrValueRange, ct.kind, desc.Address)
		}
		desc.Used = usedRows(img, desc)
		f.Tables = append(f.Tables, desc)
	}

	orderSpec := tpl.Tables[music.TableOrderLists]
	seqSpec := tpl.Tables[music.TableSequences]
	f.Music = MusicData{
		Voices:            music.Voices,
		OrderListPointers: base + orderSpec.Offset,
		SequencePointers:  base + seqSpec.Offset,
		SequenceStride:    byte(seqSpec.Rows),
		Title:             meta.Title,
		Author:            meta.Author,
		Copyright:         meta.Copyright,
	}

	// sequences are packed after the driver, the first pointer that does not
	// point there ends the table
	dataStart := int(base) + int(tpl.DataOffset)
	for i := range seqSpec.Rows {
		address := pointer(img, f.Music.SequencePointers, seqSpec.Rows, i)
		if int(address) < dataStart || !img.Loaded(address) {
			break
		}
		f.Music.Sequences++
	}
	return f, nil
}

func usedRows(img *memory.Image, desc TableDescriptor) uint16 {
	for row := int(desc.Rows) - 1; row >= 0; row-- {
		for column := range int(desc.Columns) {
			if img.Byte(desc.Cell(row, column)) != 0 {
				return uint16(row + 1)
			}
		}
	}
	return 0
}

// Move returns a copy of the file that describes the relocated image. All
// header addresses are shifted by the distance between the old and the new
// load address, the image is expected to have its pointers patched already.
func (f *File) Move(img *memory.Image) *File {
	delta := img.LoadAddress - f.Descriptor.Base
	shift := func(address uint16) uint16 {
		return address + delta
	}

	moved := *f
	moved.Image = img
	moved.Descriptor.Base = img.LoadAddress
	moved.Common = Common{Init: shift(f.Common.Init), Play: shift(f.Common.Play)}

	moved.Tables = make([]TableDescriptor, len(f.Tables))
	for i, t := range f.Tables {
		t.Address = shift(t.Address)
		moved.Tables[i] = t
	}
	moved.Music.OrderListPointers = shift(f.Music.OrderListPointers)
	moved.Music.SequencePointers = shift(f.Music.SequencePointers)
	moved.Extra = append([]Block(nil), f.Extra...)
	moved.InstrumentColumns = append([]string(nil), f.InstrumentColumns...)
	return &moved
}
