// Package sf2 reads and writes SID Factory II song files and assembles them
// from a driver template and converted tables.
package sf2

import (
	"errors"
	"fmt"

	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/memory"
)

// Magic is the word that follows the load address of every file.
const Magic = 0x1337

// Header block IDs.
const (
	BlockDescriptor               byte = 1
	BlockDriverCommon             byte = 2
	BlockDriverTables             byte = 3
	BlockInstrumentDescriptor     byte = 4
	BlockMusicData                byte = 5
	BlockColorRules               byte = 6
	BlockInsertDeleteRules        byte = 7
	BlockActionRules              byte = 8
	BlockInstrumentDataDescriptor byte = 9
	BlockEnd                      byte = 0xFF
)

var (
	// ErrInvalidMagic is returned for files without the magic word.
	ErrInvalidMagic = fmt.Errorf("%w: missing SF2 magic", diag.ErrFormat)
	// ErrTruncated is returned when the header ends before the end block.
	ErrTruncated = fmt.Errorf("%w: truncated SF2 header", diag.ErrFormat)
	// ErrMissingBlock is returned when a required header block is missing.
	ErrMissingBlock = fmt.Errorf("%w: missing SF2 header block", diag.ErrFormat)

	errBlockSize = errors.New("block payload exceeds 255 bytes")
)

// Block is a raw header block.
type Block struct {
	ID   byte
	Data []byte
}

// Descriptor describes the driver and the memory range it occupies.
type Descriptor struct {
	Type     byte
	Name     string
	Base     uint16 // address of the driver code
	Size     uint16 // bytes from Base including tables and packed data
	CodeSize uint16 // executable code at Base
}

// Common holds the driver entry points.
type Common struct {
	Init uint16
	Play uint16
}

// TableType classifies a table for editors.
type TableType byte

const (
	TableTypeGeneric     TableType = 0x00
	TableTypeInstruments TableType = 0x80
	TableTypeCommands    TableType = 0x81
)

// TableLayout is the byte order of a table.
type TableLayout byte

const (
	LayoutRowMajor    TableLayout = 0
	LayoutColumnMajor TableLayout = 1
)

// TableDescriptor describes one table of the driver.
type TableDescriptor struct {
	Type    TableType
	ID      byte
	Name    string
	Layout  TableLayout
	Address uint16
	Columns byte
	Rows    uint16 // capacity
	Used    uint16 // rows that hold song data
}

// Cell returns the address of a table cell.
func (t TableDescriptor) Cell(row, column int) uint16 {
	if t.Layout == LayoutRowMajor {
		return t.Address + uint16(row*int(t.Columns)+column)
	}
	return t.Address + uint16(column*int(t.Rows)+row)
}

// MusicData describes where the song data is found.
type MusicData struct {
	Voices            byte
	OrderListPointers uint16 // low bytes, the high bytes follow after Voices bytes
	SequencePointers  uint16 // low bytes, the high bytes follow after SequenceStride bytes
	SequenceStride    byte
	Sequences         byte
	Tempo             byte

	Title     string
	Author    string
	Copyright string
}

// File is a parsed SF2 file.
type File struct {
	Descriptor        Descriptor
	Common            Common
	Tables            []TableDescriptor
	InstrumentColumns []string
	Music             MusicData
	Extra             []Block // blocks without a decoder, kept in file order

	Image *memory.Image // driver, tables and packed data loaded at Descriptor.Base
}

// Table returns the descriptor of the table with the ID.
func (f *File) Table(id byte) (TableDescriptor, bool) {
	for _, t := range f.Tables {
		if t.ID == id {
			return t, true
		}
	}
	return TableDescriptor{}, false
}

// Parse parses an SF2 file that starts with its load address.
func Parse(data []byte) (*File, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	load := uint16(data[0]) | uint16(data[1])<<8
	if uint16(data[2])|uint16(data[3])<<8 != Magic {
		return nil, ErrInvalidMagic
	}

	f := &File{}
	seen := map[byte]bool{}
	pos := 4
	for {
		if pos >= len(data) {
			return nil, ErrTruncated
		}
		id := data[pos]
		if id == BlockEnd {
			pos++
			break
		}
		if pos+2 > len(data) || pos+2+int(data[pos+1]) > len(data) {
			return nil, fmt.Errorf("%w: block %d", ErrTruncated, id)
		}
		payload := data[pos+2 : pos+2+int(data[pos+1])]
		pos += 2 + len(payload)

		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate block %d", diag.ErrFormat, id)
		}
		seen[id] = true
		if err := f.decodeBlock(id, payload); err != nil {
			return nil, fmt.Errorf("decoding block %d: %w", id, err)
		}
	}

	for _, id := range []byte{BlockDescriptor, BlockDriverCommon, BlockDriverTables, BlockMusicData} {
		if !seen[id] {
			return nil, fmt.Errorf("%w: %d", ErrMissingBlock, id)
		}
	}

	headerEnd := int(load) + pos - 2
	if headerEnd != int(f.Descriptor.Base) {
		return nil, fmt.Errorf("%w: driver base $%04X does not follow the header end $%04X",
			diag.ErrFormat, f.Descriptor.Base, headerEnd)
	}
	if len(data)-pos < int(f.Descriptor.Size) {
		return nil, fmt.Errorf("%w: driver data of %d bytes, %d expected",
			ErrTruncated, len(data)-pos, f.Descriptor.Size)
	}

	img, err := memory.New(f.Descriptor.Base, data[pos:pos+int(f.Descriptor.Size)])
	if err != nil {
		return nil, fmt.Errorf("loading driver: %w", err)
	}
	f.Image = img
	return f, nil
}

// Marshal encodes the file including its load address. The load address is
// chosen so that the header ends at the driver base.
func (f *File) Marshal() ([]byte, error) {
	header := []byte{byte(Magic & 0xFF), byte(Magic >> 8)}

	tables, err := encodeTables(f.Tables)
	if err != nil {
		return nil, err
	}
	blocks := []Block{
		{ID: BlockDescriptor, Data: f.Descriptor.encode()},
		{ID: BlockDriverCommon, Data: f.Common.encode()},
		{ID: BlockDriverTables, Data: tables},
	}
	if len(f.InstrumentColumns) > 0 {
		blocks = append(blocks, Block{ID: BlockInstrumentDescriptor, Data: encodeStrings(f.InstrumentColumns...)})
	}
	blocks = append(blocks, Block{ID: BlockMusicData, Data: f.Music.encode()})
	blocks = append(blocks, f.Extra...)

	for _, b := range blocks {
		if len(b.Data) > 0xFF {
			return nil, fmt.Errorf("block %d: %w", b.ID, errBlockSize)
		}
		header = append(header, b.ID, byte(len(b.Data)))
		header = append(header, b.Data...)
	}
	header = append(header, BlockEnd)

	if len(header) > int(f.Descriptor.Base) {
		return nil, fmt.Errorf("header of %d bytes does not fit below the driver base $%04X",
			len(header), f.Descriptor.Base)
	}
	load := f.Descriptor.Base - uint16(len(header))

	out := make([]byte, 0, 2+len(header)+int(f.Descriptor.Size))
	out = append(out, byte(load), byte(load>>8))
	out = append(out, header...)
	out = append(out, f.Image.Slice(f.Descriptor.Base, int(f.Descriptor.Size))...)
	return out, nil
}

func (f *File) decodeBlock(id byte, payload []byte) error {
	r := &reader{data: payload}
	switch id {
	case BlockDescriptor:
		f.Descriptor = Descriptor{
			Type:     r.readByte(),
			Base:     r.readWord(),
			Size:     r.readWord(),
			CodeSize: r.readWord(),
			Name:     r.readString(),
		}

	case BlockDriverCommon:
		f.Common = Common{Init: r.readWord(), Play: r.readWord()}

	case BlockDriverTables:
		count := int(r.readByte())
		f.Tables = make([]TableDescriptor, 0, count)
		for range count {
			f.Tables = append(f.Tables, TableDescriptor{
				Type:    TableType(r.readByte()),
				ID:      r.readByte(),
				Name:    r.readPrefixedString(),
				Address: r.readWord(),
				Columns: r.readByte(),
				Rows:    r.readWord(),
				Layout:  TableLayout(r.readByte()),
				Used:    r.readWord(),
			})
		}

	case BlockInstrumentDescriptor:
		for len(r.data) > r.pos && r.err == nil {
			f.InstrumentColumns = append(f.InstrumentColumns, r.readString())
		}

	case BlockMusicData:
		f.Music = MusicData{
			Voices:            r.readByte(),
			OrderListPointers: r.readWord(),
			SequencePointers:  r.readWord(),
			SequenceStride:    r.readByte(),
			Sequences:         r.readByte(),
			Tempo:             r.readByte(),
			Title:             r.readString(),
			Author:            r.readString(),
			Copyright:         r.readString(),
		}

	default:
		f.Extra = append(f.Extra, Block{ID: id, Data: append([]byte(nil), payload...)})
	}
	return r.err
}

func (d Descriptor) encode() []byte {
	b := []byte{d.Type}
	b = appendWord(b, d.Base)
	b = appendWord(b, d.Size)
	b = appendWord(b, d.CodeSize)
	return append(b, encodeStrings(d.Name)...)
}

func (c Common) encode() []byte {
	return appendWord(appendWord(nil, c.Init), c.Play)
}

// encodeTables encodes the table descriptors. Each entry holds the type, the
// ID, the length prefixed name, the address, the column and row counts and the
// layout, followed by the number of used rows.
func encodeTables(tables []TableDescriptor) ([]byte, error) {
	if len(tables) > 0xFF {
		return nil, fmt.Errorf("%d table descriptors: %w", len(tables), errBlockSize)
	}

	b := []byte{byte(len(tables))}
	for _, t := range tables {
		if len(t.Name) > 0xFF {
			return nil, fmt.Errorf("table %d name of %d bytes: %w", t.ID, len(t.Name), errBlockSize)
		}
		b = append(b, byte(t.Type), t.ID, byte(len(t.Name)))
		b = append(b, t.Name...)
		b = appendWord(b, t.Address)
		b = append(b, t.Columns)
		b = appendWord(b, t.Rows)
		b = append(b, byte(t.Layout))
		b = appendWord(b, t.Used)
	}
	return b, nil
}

func (m MusicData) encode() []byte {
	b := []byte{m.Voices}
	b = appendWord(b, m.OrderListPointers)
	b = appendWord(b, m.SequencePointers)
	b = append(b, m.SequenceStride, m.Sequences, m.Tempo)
	return append(b, encodeStrings(m.Title, m.Author, m.Copyright)...)
}

func appendWord(b []byte, w uint16) []byte {
	return append(b, byte(w), byte(w>>8))
}

func encodeStrings(s ...string) []byte {
	var b []byte
	for _, str := range s {
		b = append(b, str...)
		b = append(b, 0)
	}
	return b
}

// reader decodes block payloads, the first read past the end sets err.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) readByte() byte {
	if r.pos >= len(r.data) {
		if r.err == nil {
			r.err = fmt.Errorf("%w: block payload too short", ErrTruncated)
		}
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *reader) readWord() uint16 {
	lo := r.readByte()
	return uint16(lo) | uint16(r.readByte())<<8
}

func (r *reader) readPrefixedString() string {
	n := int(r.readByte())
	if r.err != nil {
		return ""
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: name of %d bytes", ErrTruncated, n)
		return ""
	}
	s := string(r.data[r.pos : r.pos+n])
	r.pos += n
	return s
}

func (r *reader) readString() string {
	start := r.pos
	for r.pos < len(r.data) {
		if r.data[r.pos] == 0 {
			s := string(r.data[start:r.pos])
			r.pos++
			return s
		}
		r.pos++
	}
	if r.err == nil {
		r.err = fmt.Errorf("%w: unterminated string", ErrTruncated)
	}
	return ""
}
