package psid

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/sidforge/internal/diag"
)

// createTestFile returns a raw version 2 PSID file with the given addresses and data.
func createTestFile(load, init, play uint16, data ...byte) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, "PSID")
	buf[0x05] = 2
	buf[0x07] = HeaderSize
	buf[0x08], buf[0x09] = byte(load>>8), byte(load)
	buf[0x0a], buf[0x0b] = byte(init>>8), byte(init)
	buf[0x0c], buf[0x0d] = byte(play>>8), byte(play)
	buf[0x0f] = 1 // songs
	buf[0x11] = 1 // start song
	copy(buf[0x16:], "Test Tune")
	copy(buf[0x36:], "Tester")
	copy(buf[0x56:], "2024 Test")
	buf[0x77] = 0x14 // PAL, 6581
	return append(buf, data...)
}

func TestParse(t *testing.T) {
	data := createTestFile(0x1000, 0x1000, 0x1003, 0x4c, 0x06, 0x10, 0x4c, 0x07, 0x10, 0x60, 0x60)

	f, err := Parse(data)
	assert.NoError(t, err)
	assert.True(t, f.Warnings.Empty())

	h := f.Header
	assert.Equal(t, MagicPSID, h.Magic)
	assert.Equal(t, uint16(2), h.Version)
	assert.Equal(t, uint16(0x1000), h.LoadAddress)
	assert.Equal(t, uint16(0x1000), h.InitAddress)
	assert.Equal(t, uint16(0x1003), h.PlayAddress)
	assert.Equal(t, uint16(1), h.Songs)
	assert.Equal(t, "Test Tune", h.Title)
	assert.Equal(t, "Tester", h.Author)
	assert.Equal(t, "2024 Test", h.Copyright)
	assert.Equal(t, FlagClockPAL|FlagModel6581, h.Flags)
	assert.False(t, h.EmbeddedLoad)
	assert.Len(t, f.Payload, 8)
	assert.Equal(t, byte(0), f.Subtune())
}

func TestParseEmbeddedLoadAddress(t *testing.T) {
	data := createTestFile(0, 0, 0x1003, 0x00, 0x10, 0x60, 0x60, 0x60, 0x60)

	f, err := Parse(data)
	assert.NoError(t, err)
	assert.True(t, f.Header.EmbeddedLoad)
	assert.Equal(t, uint16(0x1000), f.Header.LoadAddress)
	assert.Equal(t, uint16(0x1000), f.InitAddress())
	assert.Len(t, f.Payload, 4)

	img, err := f.Image()
	assert.NoError(t, err)
	assert.Equal(t, byte(0x60), img.Byte(0x1000))
	assert.True(t, img.Loaded(0x1003))
	assert.False(t, img.Loaded(0x1004))
}

func TestParseErrors(t *testing.T) {
	valid := createTestFile(0x1000, 0x1000, 0x1003, 0x60, 0x60, 0x60, 0x60)

	tests := []struct {
		name   string
		modify func([]byte) []byte
		err    error
	}{
		{"truncated header", func(b []byte) []byte { return b[:0x40] }, ErrTruncated},
		{"invalid magic", func(b []byte) []byte { copy(b, "MSID"); return b }, ErrInvalidMagic},
		{"version 0", func(b []byte) []byte { b[0x05] = 0; return b }, ErrUnsupportedVersion},
		{"version 5", func(b []byte) []byte { b[0x05] = 5; return b }, ErrUnsupportedVersion},
		{"rsid version 1", func(b []byte) []byte {
			copy(b, "RSID")
			b[0x05] = 1
			return b
		}, ErrUnsupportedVersion},
		{"data offset", func(b []byte) []byte { b[0x07] = 0x80; return b }, ErrInvalidDataOffset},
		{"missing embedded address", func(b []byte) []byte {
			b[0x08], b[0x09] = 0, 0
			return b[:HeaderSize+1]
		}, ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte(nil), valid...)
			_, err := Parse(tt.modify(data))
			assert.Error(t, err)
			assert.True(t, errors.Is(err, tt.err))
			assert.True(t, errors.Is(err, diag.ErrFormat))
		})
	}
}

func TestParseWarnings(t *testing.T) {
	data := createTestFile(0x1000, 0x2000, 0x1003, 0x60, 0x60, 0x60, 0x60)
	data[0x11] = 3 // start song beyond song count

	f, err := Parse(data)
	assert.NoError(t, err)
	assert.Equal(t, 2, f.Warnings.Count(diag.KindHeader))
}

func TestParseVersion1(t *testing.T) {
	data := createTestFile(0x1000, 0x1000, 0x1003, 0x60, 0x60, 0x60, 0x60)
	v1 := append([]byte(nil), data[:HeaderSizeV1]...)
	v1[0x05] = 1
	v1[0x07] = HeaderSizeV1
	v1 = append(v1, data[HeaderSize:]...)

	f, err := Parse(v1)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0), f.Header.Flags)
	assert.Len(t, f.Payload, 4)
}

func TestBuild(t *testing.T) {
	data := createTestFile(0x1000, 0x1000, 0x1003, 0x4c, 0x06, 0x10, 0x60)
	f, err := Parse(data)
	assert.NoError(t, err)

	out, err := Build(f.Header, f.Payload)
	assert.NoError(t, err)
	assert.Equal(t, data, out)

	f.Header.EmbeddedLoad = true
	out, err = Build(f.Header, f.Payload)
	assert.NoError(t, err)
	assert.Equal(t, byte(0), out[0x08])
	assert.Equal(t, byte(0), out[0x09])
	assert.Equal(t, []byte{0x00, 0x10}, out[HeaderSize:HeaderSize+2])

	reparsed, err := Parse(out)
	assert.NoError(t, err)
	assert.Equal(t, f.Payload, reparsed.Payload)
	assert.Equal(t, uint16(0x1000), reparsed.Header.LoadAddress)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(Header{Version: 7}, nil)
	assert.ErrorContains(t, err, "unsupported version")

	_, err = Build(Header{Version: 2, Title: "a title that is longer than thirty-two bytes"}, nil)
	assert.ErrorContains(t, err, "encoding title")

	_, err = Build(Header{Version: 2, LoadAddress: 0xfff0}, make([]byte, 0x20))
	assert.Error(t, err)
}

func TestLatin1Strings(t *testing.T) {
	h := Header{Version: 2, LoadAddress: 0x1000, Author: "Jürgen Ü"}
	out, err := Build(h, []byte{0x60})
	assert.NoError(t, err)
	assert.Equal(t, byte(0xfc), out[0x37])

	f, err := Parse(out)
	assert.NoError(t, err)
	assert.Equal(t, "Jürgen Ü", f.Header.Author)
}

func TestSIDAddress(t *testing.T) {
	assert.Equal(t, uint16(0xd420), SIDAddress(0x42))
	assert.Equal(t, uint16(0), SIDAddress(0))
}
