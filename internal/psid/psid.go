// Package psid implements parsing and serialization of PSID and RSID music files.
package psid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/memory"
)

// Magic tags of the two accepted file variants.
const (
	MagicPSID = "PSID"
	MagicRSID = "RSID"
)

// Header sizes. Version 1 files end the header after the copyright string.
const (
	HeaderSizeV1 = 0x76
	HeaderSize   = 0x7C

	stringLength = 32
)

// Header field offsets.
const (
	offsetVersion    = 0x04
	offsetDataOffset = 0x06
	offsetLoad       = 0x08
	offsetInit       = 0x0A
	offsetPlay       = 0x0C
	offsetSongs      = 0x0E
	offsetStartSong  = 0x10
	offsetSpeed      = 0x12
	offsetTitle      = 0x16
	offsetAuthor     = 0x36
	offsetCopyright  = 0x56
	offsetFlags      = 0x76
	offsetStartPage  = 0x78
	offsetPageLength = 0x79
	offsetSecondSID  = 0x7A
	offsetThirdSID   = 0x7B
)

// Flag bits of the version 2+ header.
const (
	FlagMUS       uint16 = 1 << 0 // Compute!'s Sidplayer data
	FlagBasic     uint16 = 1 << 1 // RSID: C64 BASIC flag, PSID: PlaySID specific
	FlagClockPAL  uint16 = 1 << 2
	FlagClockNTSC uint16 = 1 << 3
	FlagModel6581 uint16 = 1 << 4
	FlagModel8580 uint16 = 1 << 5
)

const (
	maxSongs              = 256
	minVersion            = 1
	maxVersion            = 4
	firstRSIDVersion      = 2
	embeddedAddressLength = 2
)

var (
	// ErrInvalidMagic is returned for files that do not start with a PSID or RSID tag.
	ErrInvalidMagic = fmt.Errorf("%w: invalid magic", diag.ErrFormat)
	// ErrUnsupportedVersion is returned for unknown header versions.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", diag.ErrFormat)
	// ErrTruncated is returned when the file ends inside the header or before the data.
	ErrTruncated = fmt.Errorf("%w: truncated file", diag.ErrFormat)
	// ErrInvalidDataOffset is returned for a data offset that does not match the version.
	ErrInvalidDataOffset = fmt.Errorf("%w: invalid data offset", diag.ErrFormat)

	errStringTooLong = errors.New("string exceeds 32 bytes")
)

// FormatError describes the header field that rejected a file.
type FormatError struct {
	Field string
	Value int
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s $%X", e.Err, e.Field, e.Value)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Header is the decoded PSID/RSID file header.
type Header struct {
	Magic       string
	Version     uint16
	DataOffset  uint16
	LoadAddress uint16 // effective load address, resolved from the data if the header declares 0
	InitAddress uint16
	PlayAddress uint16
	Songs       uint16
	StartSong   uint16
	Speed       uint32
	Title       string
	Author      string
	Copyright   string

	// version 2+ fields
	Flags      uint16
	StartPage  byte
	PageLength byte
	SecondSID  byte // middle address byte, $42 means $D420
	ThirdSID   byte

	// EmbeddedLoad is set when the load address is stored in the first two data bytes.
	EmbeddedLoad bool
}

// File is a parsed PSID/RSID file.
type File struct {
	Header   Header
	Payload  []byte // C64 data without the embedded load address
	Warnings diag.List
}

// RSID returns whether the file requires a real C64 environment.
func (h Header) RSID() bool {
	return h.Magic == MagicRSID
}

// SIDAddress converts a middle address byte of the header to a SID base address.
func SIDAddress(b byte) uint16 {
	if b == 0 {
		return 0
	}
	return 0xD000 | uint16(b)<<4
}

// Parse parses a PSID or RSID file. Bad magic, version or truncated data are
// fatal and returned as errors wrapping diag.ErrFormat, suspicious but usable
// header values are reported as warnings.
func Parse(data []byte) (*File, error) {
	if len(data) < HeaderSizeV1 {
		return nil, &FormatError{Field: "length", Value: len(data), Err: ErrTruncated}
	}

	magic := string(data[:4])
	if magic != MagicPSID && magic != MagicRSID {
		return nil, fmt.Errorf("%w %q", ErrInvalidMagic, magic)
	}

	h := Header{
		Magic:       magic,
		Version:     binary.BigEndian.Uint16(data[offsetVersion:]),
		DataOffset:  binary.BigEndian.Uint16(data[offsetDataOffset:]),
		LoadAddress: binary.BigEndian.Uint16(data[offsetLoad:]),
		InitAddress: binary.BigEndian.Uint16(data[offsetInit:]),
		PlayAddress: binary.BigEndian.Uint16(data[offsetPlay:]),
		Songs:       binary.BigEndian.Uint16(data[offsetSongs:]),
		StartSong:   binary.BigEndian.Uint16(data[offsetStartSong:]),
		Speed:       binary.BigEndian.Uint32(data[offsetSpeed:]),
		Title:       decodeString(data[offsetTitle : offsetTitle+stringLength]),
		Author:      decodeString(data[offsetAuthor : offsetAuthor+stringLength]),
		Copyright:   decodeString(data[offsetCopyright : offsetCopyright+stringLength]),
	}

	if h.Version < minVersion || h.Version > maxVersion {
		return nil, &FormatError{Field: "version", Value: int(h.Version), Err: ErrUnsupportedVersion}
	}
	if h.RSID() && h.Version < firstRSIDVersion {
		return nil, &FormatError{Field: "RSID version", Value: int(h.Version), Err: ErrUnsupportedVersion}
	}

	expectedOffset := uint16(HeaderSize)
	if h.Version == 1 {
		expectedOffset = HeaderSizeV1
	}
	if h.DataOffset != expectedOffset {
		return nil, &FormatError{Field: "data offset", Value: int(h.DataOffset), Err: ErrInvalidDataOffset}
	}
	if len(data) < int(h.DataOffset) {
		return nil, &FormatError{Field: "length", Value: len(data), Err: ErrTruncated}
	}

	if h.Version >= 2 {
		h.Flags = binary.BigEndian.Uint16(data[offsetFlags:])
		h.StartPage = data[offsetStartPage]
		h.PageLength = data[offsetPageLength]
		h.SecondSID = data[offsetSecondSID]
		h.ThirdSID = data[offsetThirdSID]
	}

	payload := data[h.DataOffset:]
	if h.LoadAddress == 0 {
		if len(payload) < embeddedAddressLength {
			return nil, &FormatError{Field: "embedded load address", Value: len(payload), Err: ErrTruncated}
		}
		h.LoadAddress = binary.LittleEndian.Uint16(payload)
		h.EmbeddedLoad = true
		payload = payload[embeddedAddressLength:]
	}

	f := &File{
		Header:  h,
		Payload: bytes.Clone(payload),
	}
	f.validate()
	return f, nil
}

// validate reports header values that are unusual but do not prevent a conversion.
func (f *File) validate() {
	h := &f.Header

	if len(f.Payload) == 0 {
		f.Warnings.Add(diag.KindHeader, "", "file contains no C64 data")
	}
	if int(h.LoadAddress)+len(f.Payload) > memory.Size {
		f.Warnings.Add(diag.KindHeader, "", "data at $%04X with %d bytes exceeds the address space",
			h.LoadAddress, len(f.Payload))
	}
	if h.Songs == 0 || h.Songs > maxSongs {
		f.Warnings.Add(diag.KindHeader, "", "song count %d out of range", h.Songs)
	}
	if h.StartSong == 0 || h.StartSong > h.Songs {
		f.Warnings.Add(diag.KindHeader, "", "start song %d out of range", h.StartSong)
	}
	if h.RSID() && h.PlayAddress != 0 {
		f.Warnings.Add(diag.KindHeader, "", "RSID file declares play address $%04X", h.PlayAddress)
	}

	end := int(h.LoadAddress) + len(f.Payload)
	if h.InitAddress != 0 && (int(h.InitAddress) < int(h.LoadAddress) || int(h.InitAddress) >= end) {
		f.Warnings.Add(diag.KindHeader, "", "init address $%04X outside of loaded data", h.InitAddress)
	}
	if h.PlayAddress != 0 && (int(h.PlayAddress) < int(h.LoadAddress) || int(h.PlayAddress) >= end) {
		f.Warnings.Add(diag.KindHeader, "", "play address $%04X outside of loaded data", h.PlayAddress)
	}
}

// InitAddress returns the effective init address, which defaults to the load address.
func (f *File) InitAddress() uint16 {
	if f.Header.InitAddress == 0 {
		return f.Header.LoadAddress
	}
	return f.Header.InitAddress
}

// Subtune returns the zero based index of the start song for the init accumulator.
func (f *File) Subtune() byte {
	if f.Header.StartSong == 0 {
		return 0
	}
	return byte(f.Header.StartSong - 1)
}

// Image returns a memory image with the payload placed at the load address.
func (f *File) Image() (*memory.Image, error) {
	img, err := memory.New(f.Header.LoadAddress, f.Payload)
	if err != nil {
		return nil, fmt.Errorf("creating memory image: %w", err)
	}
	return img, nil
}

// MarshalBinary serializes the header. The data offset and the magic are derived
// from the version and RSID state, version 1 headers are written without the
// version 2 fields.
func (h Header) MarshalBinary() ([]byte, error) {
	if h.Version < minVersion || h.Version > maxVersion {
		return nil, &FormatError{Field: "version", Value: int(h.Version), Err: ErrUnsupportedVersion}
	}
	magic := h.Magic
	if magic == "" {
		magic = MagicPSID
	}
	if magic != MagicPSID && magic != MagicRSID {
		return nil, fmt.Errorf("%w %q", ErrInvalidMagic, magic)
	}

	size := HeaderSize
	if h.Version == 1 {
		size = HeaderSizeV1
	}
	buf := make([]byte, size)
	copy(buf, magic)
	binary.BigEndian.PutUint16(buf[offsetVersion:], h.Version)
	binary.BigEndian.PutUint16(buf[offsetDataOffset:], uint16(size))
	if !h.EmbeddedLoad {
		binary.BigEndian.PutUint16(buf[offsetLoad:], h.LoadAddress)
	}
	binary.BigEndian.PutUint16(buf[offsetInit:], h.InitAddress)
	binary.BigEndian.PutUint16(buf[offsetPlay:], h.PlayAddress)
	binary.BigEndian.PutUint16(buf[offsetSongs:], h.Songs)
	binary.BigEndian.PutUint16(buf[offsetStartSong:], h.StartSong)
	binary.BigEndian.PutUint32(buf[offsetSpeed:], h.Speed)

	fields := []struct {
		offset int
		name   string
		value  string
	}{
		{offsetTitle, "title", h.Title},
		{offsetAuthor, "author", h.Author},
		{offsetCopyright, "copyright", h.Copyright},
	}
	for _, field := range fields {
		if err := encodeString(buf[field.offset:field.offset+stringLength], field.value); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", field.name, err)
		}
	}

	if h.Version >= 2 {
		binary.BigEndian.PutUint16(buf[offsetFlags:], h.Flags)
		buf[offsetStartPage] = h.StartPage
		buf[offsetPageLength] = h.PageLength
		buf[offsetSecondSID] = h.SecondSID
		buf[offsetThirdSID] = h.ThirdSID
	}
	return buf, nil
}

// Build serializes a complete file from a header and the C64 data that is loaded
// at the header load address.
func Build(h Header, payload []byte) ([]byte, error) {
	if int(h.LoadAddress)+len(payload) > memory.Size {
		return nil, fmt.Errorf("%w: $%04X + %d bytes", memory.ErrOutOfRange, h.LoadAddress, len(payload))
	}

	header, err := h.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	buf := make([]byte, 0, len(header)+embeddedAddressLength+len(payload))
	buf = append(buf, header...)
	if h.EmbeddedLoad {
		buf = binary.LittleEndian.AppendUint16(buf, h.LoadAddress)
	}
	buf = append(buf, payload...)
	return buf, nil
}

// decodeString converts a zero padded Latin-1 field to a string.
func decodeString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// encodeString writes a string as zero padded Latin-1. Characters outside of
// Latin-1 are replaced by '?'.
func encodeString(dst []byte, s string) error {
	i := 0
	for _, r := range s {
		if i == len(dst) {
			return fmt.Errorf("%w: %q", errStringTooLong, s)
		}
		if r > 0xFF {
			r = '?'
		}
		dst[i] = byte(r)
		i++
	}
	return nil
}
