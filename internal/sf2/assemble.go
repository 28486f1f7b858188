package sf2

import (
	"fmt"

	"github.com/retroenv/sidforge/internal/convert"
	"github.com/retroenv/sidforge/internal/driver"
	"github.com/retroenv/sidforge/internal/memory"
	"github.com/retroenv/sidforge/internal/music"
)

// DriverType is the descriptor type of drivers with column major tables.
const DriverType = 0x11

// Metadata is the song information stored with the music data.
type Metadata struct {
	Title     string
	Author    string
	Copyright string
}

// columnTable maps a table kind to its rows of column values.
type columnTable struct {
	kind  music.TableKind
	typ   TableType
	width int
	rows  func(t *music.Tables) [][]byte
	set   func(t *music.Tables, rows [][]byte)
}

var columnTables = []columnTable{
	{
		kind: music.TableInstruments, typ: TableTypeInstruments, width: 6,
		rows: func(t *music.Tables) [][]byte {
			return collect(t.Instruments, music.Instrument.Columns)
		},
		set: func(t *music.Tables, rows [][]byte) {
			t.Instruments = convertRows(rows, music.InstrumentFromColumns)
		},
	},
	{
		kind: music.TableCommands, typ: TableTypeCommands, width: 3,
		rows: func(t *music.Tables) [][]byte {
			return collect(t.Commands, music.Command.Columns)
		},
		set: func(t *music.Tables, rows [][]byte) {
			t.Commands = convertRows(rows, music.CommandFromColumns)
		},
	},
	{
		kind: music.TableWave, typ: TableTypeGeneric, width: 2,
		rows: func(t *music.Tables) [][]byte {
			return collect(t.Wave, func(w music.WaveEntry) []byte { return []byte{w.Waveform, w.Note} })
		},
		set: func(t *music.Tables, rows [][]byte) {
			t.Wave = convertRows(rows, func(c []byte) music.WaveEntry {
				return music.WaveEntry{Waveform: c[0], Note: c[1]}
			})
		},
	},
	{
		kind: music.TablePulse, typ: TableTypeGeneric, width: music.PulseRowSize,
		rows: func(t *music.Tables) [][]byte {
			return collect(t.Pulse, music.PulseEvent.Row)
		},
		set: func(t *music.Tables, rows [][]byte) {
			t.Pulse = convertRows(rows, music.ParsePulseRow)
		},
	},
	{
		kind: music.TableFilter, typ: TableTypeGeneric, width: music.FilterRowSize,
		rows: func(t *music.Tables) [][]byte {
			return collect(t.Filter, music.FilterEvent.Row)
		},
		set: func(t *music.Tables, rows [][]byte) {
			t.Filter = convertRows(rows, music.ParseFilterRow)
		},
	},
}

func collect[T any](records []T, columns func(T) []byte) [][]byte {
	rows := make([][]byte, len(records))
	for i, r := range records {
		rows[i] = columns(r)
	}
	return rows
}

func convertRows[T any](rows [][]byte, parse func([]byte) T) []T {
	if len(rows) == 0 {
		return nil
	}
	records := make([]T, len(rows))
	for i, row := range rows {
		records[i] = parse(row)
	}
	return records
}

// Assemble places the target encoded tables into the driver. The column
// tables are written at the template addresses, order lists and sequences
// are packed into the free space after the driver.
func Assemble(tpl *driver.Template, tables *music.Tables, meta Metadata) (*File, error) {
	if tables.Encoding != music.EncodingTarget {
		return nil, fmt.Errorf("unexpected table encoding %s", tables.Encoding)
	}
	if err := tpl.Validate(); err != nil {
		return nil, fmt.Errorf("validating driver: %w", err)
	}

	img, err := memory.New(tpl.Base, tpl.Code)
	if err != nil {
		return nil, fmt.Errorf("loading driver: %w", err)
	}

	f := &File{
		Descriptor: Descriptor{
			Type:     DriverType,
			Name:     tpl.Name,
			Base:     tpl.Base,
			CodeSize: uint16(tpl.CodeSize),
		},
		Common:            Common{Init: tpl.Init, Play: tpl.Play},
		InstrumentColumns: []string{"AD", "SR", "Flags", "Filter", "Pulse", "Wave"},
		Image:             img,
	}

	for _, ct := range columnTables {
		desc, err := writeColumnTable(img, tpl, ct, ct.rows(tables))
		if err != nil {
			return nil, err
		}
		f.Tables = append(f.Tables, desc)
	}

	data, err := packSongData(img, tpl, tables)
	if err != nil {
		return nil, err
	}
	data.Title = meta.Title
	data.Author = meta.Author
	data.Copyright = meta.Copyright
	f.Music = data

	f.Descriptor.Size = uint16(img.End() - tpl.Base)
	return f, nil
}

func writeColumnTable(img *memory.Image, tpl *driver.Template, ct columnTable, rows [][]byte) (TableDescriptor, error) {
	spec := tpl.Tables[ct.kind]
	if spec.Columns != ct.width {
		return TableDescriptor{}, fmt.Errorf("driver %s: %s table has %d columns, %d expected",
			tpl.Name, ct.kind, spec.Columns, ct.width)
	}
	if len(rows) > spec.Rows {
		return TableDescriptor{}, fmt.Errorf("%w: %d %s rows, driver supports %d",
			music.ErrValueRange, len(rows), ct.kind, spec.Rows)
	}

	desc := TableDescriptor{
		Type:    ct.typ,
		ID:      byte(ct.kind),
		Name:    ct.kind.String(),
		Layout:  LayoutColumnMajor,
		Address: tpl.Base + spec.Offset,
		Columns: byte(spec.Columns),
		Rows:    uint16(spec.Rows),
		Used:    uint16(len(rows)),
	}
	for r, row := range rows {
		for c, value := range row {
			img.SetByte(desc.Cell(r, c), value)
		}
	}
	return desc, nil
}

func packSongData(img *memory.Image, tpl *driver.Template, tables *music.Tables) (MusicData, error) {
	orderSpec := tpl.Tables[music.TableOrderLists]
	seqSpec := tpl.Tables[music.TableSequences]
	if len(tables.Sequences) > seqSpec.Rows || seqSpec.Rows > 0xFF {
		return MusicData{}, fmt.Errorf("%w: %d sequences, driver supports %d",
			music.ErrValueRange, len(tables.Sequences), seqSpec.Rows)
	}

	data := MusicData{
		Voices:            music.Voices,
		OrderListPointers: tpl.Base + orderSpec.Offset,
		SequencePointers:  tpl.Base + seqSpec.Offset,
		SequenceStride:    byte(seqSpec.Rows),
		Sequences:         byte(len(tables.Sequences)),
		Tempo:             tables.Tempo,
	}

	cursor := tpl.Base + tpl.DataOffset
	place := func(b []byte) (uint16, error) {
		address := cursor
		if err := img.Write(address, b); err != nil {
			return 0, fmt.Errorf("packing song data: %w", err)
		}
		cursor += uint16(len(b))
		return address, nil
	}

	for i, ol := range tables.OrderLists {
		b, err := ol.Encode(music.EncodingTarget)
		if err != nil {
			return MusicData{}, fmt.Errorf("encoding order list %d: %w", i, err)
		}
		address, err := place(b)
		if err != nil {
			return MusicData{}, err
		}
		img.SetByte(data.OrderListPointers+uint16(i), byte(address))
		img.SetByte(data.OrderListPointers+music.Voices+uint16(i), byte(address>>8))
	}

	for i, seq := range tables.Sequences {
		b, err := convert.EncodeSequence(seq, music.EncodingTarget)
		if err != nil {
			return MusicData{}, fmt.Errorf("encoding sequence %d: %w", i, err)
		}
		address, err := place(b)
		if err != nil {
			return MusicData{}, err
		}
		img.SetByte(data.SequencePointers+uint16(i), byte(address))
		img.SetByte(data.SequencePointers+uint16(data.SequenceStride)+uint16(i), byte(address>>8))
	}
	return data, nil
}

// ReadTables decodes the target encoded tables of a file.
func ReadTables(f *File) (*music.Tables, error) {
	tables := &music.Tables{
		Encoding: music.EncodingTarget,
		Tempo:    f.Music.Tempo,
	}

	for _, ct := range columnTables {
		desc, ok := f.Table(byte(ct.kind))
		if !ok {
			continue
		}
		if int(desc.Columns) != ct.width {
			return nil, fmt.Errorf("%w: %s table has %d columns", music.ErrValueRange, ct.kind, desc.Columns)
		}
		if desc.Used > desc.Rows {
			return nil, fmt.Errorf("%w: %s table uses %d of %d rows", music.ErrValueRange, ct.kind, desc.Used, desc.Rows)
		}

		rows := make([][]byte, desc.Used)
		for r := range rows {
			row := make([]byte, desc.Columns)
			for c := range row {
				row[c] = f.Image.Byte(desc.Cell(r, c))
			}
			rows[r] = row
		}
		ct.set(tables, rows)
	}

	m := f.Music
	if m.Voices != music.Voices {
		return nil, fmt.Errorf("%w: %d voices", music.ErrValueRange, m.Voices)
	}
	for i := range music.Voices {
		address := pointer(f.Image, m.OrderListPointers, music.Voices, i)
		data, err := songData(f.Image, address)
		if err != nil {
			return nil, fmt.Errorf("order list %d: %w", i, err)
		}
		ol, _, err := music.DecodeOrderList(data, music.EncodingTarget)
		if err != nil {
			return nil, fmt.Errorf("decoding order list %d: %w", i, err)
		}
		tables.OrderLists[i] = ol
	}

	for i := range int(m.Sequences) {
		address := pointer(f.Image, m.SequencePointers, int(m.SequenceStride), i)
		data, err := songData(f.Image, address)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		seq, _, err := convert.DecodeSequence(data, music.EncodingTarget)
		if err != nil {
			return nil, fmt.Errorf("decoding sequence %d: %w", i, err)
		}
		tables.Sequences = append(tables.Sequences, seq)
	}
	return tables, nil
}

// pointer reads entry i of a split pointer table.
func pointer(img *memory.Image, table uint16, stride, i int) uint16 {
	lo := img.Byte(table + uint16(i))
	hi := img.Byte(table + uint16(stride) + uint16(i))
	return uint16(lo) | uint16(hi)<<8
}

func songData(img *memory.Image, address uint16) ([]byte, error) {
	if !img.Loaded(address) {
		return nil, fmt.Errorf("%w: pointer $%04X outside of the file", music.ErrValueRange, address)
	}
	return img.Slice(address, int(img.End())-int(address)), nil
}
