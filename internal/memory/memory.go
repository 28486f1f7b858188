// Package memory implements the flat 64KB C64 memory image that all conversion stages
// operate on.
package memory

import (
	"errors"
	"fmt"
)

// Size is the size of the addressable 6510 memory.
const Size = 0x10000

// ErrOutOfRange is returned when loaded data does not fit into the address space.
var ErrOutOfRange = errors.New("data exceeds 64KB address space")

// Image is a 64KB memory image with the address range that was loaded from a file.
// An image is owned by one pipeline stage at a time, stages that transform memory
// return a new image instead of modifying the one they received.
type Image struct {
	Data        [Size]byte
	LoadAddress uint16
	Size        int // number of bytes loaded at LoadAddress
}

// New returns a new image with data placed at the load address.
func New(loadAddress uint16, data []byte) (*Image, error) {
	if int(loadAddress)+len(data) > Size {
		return nil, fmt.Errorf("%w: $%04X + %d bytes", ErrOutOfRange, loadAddress, len(data))
	}

	img := &Image{
		LoadAddress: loadAddress,
		Size:        len(data),
	}
	copy(img.Data[loadAddress:], data)
	return img, nil
}

// Clone returns an independent copy of the image.
func (img *Image) Clone() *Image {
	c := *img
	return &c
}

// Byte returns the byte at the given address.
func (img *Image) Byte(address uint16) byte {
	return img.Data[address]
}

// Word returns the little endian word at the given address, the high byte is read
// from the next address with wrap around at $FFFF.
func (img *Image) Word(address uint16) uint16 {
	return uint16(img.Data[address]) | uint16(img.Data[address+1])<<8
}

// SetByte writes a byte.
func (img *Image) SetByte(address uint16, value byte) {
	img.Data[address] = value
}

// SetWord writes a little endian word.
func (img *Image) SetWord(address, value uint16) {
	img.Data[address] = byte(value)
	img.Data[address+1] = byte(value >> 8)
}

// Write copies data to the given address and extends the loaded range if the
// data ends after it.
func (img *Image) Write(address uint16, data []byte) error {
	end := int(address) + len(data)
	if end > Size {
		return fmt.Errorf("%w: $%04X + %d bytes", ErrOutOfRange, address, len(data))
	}
	copy(img.Data[address:], data)

	if img.Size == 0 {
		img.LoadAddress = address
		img.Size = len(data)
		return nil
	}
	if address < img.LoadAddress {
		img.Size += int(img.LoadAddress - address)
		img.LoadAddress = address
	}
	if end > int(img.LoadAddress)+img.Size {
		img.Size = end - int(img.LoadAddress)
	}
	return nil
}

// Slice returns a copy of length bytes starting at the given address.
func (img *Image) Slice(address uint16, length int) []byte {
	if int(address)+length > Size {
		length = Size - int(address)
	}
	if length <= 0 {
		return nil
	}
	b := make([]byte, length)
	copy(b, img.Data[address:int(address)+length])
	return b
}

// Bytes returns a copy of the loaded range.
func (img *Image) Bytes() []byte {
	return img.Slice(img.LoadAddress, img.Size)
}

// Loaded returns whether the address is inside the loaded range.
func (img *Image) Loaded(address uint16) bool {
	return int(address) >= int(img.LoadAddress) && int(address) < int(img.LoadAddress)+img.Size
}

// End returns the first address after the loaded range, clamped to $FFFF.
func (img *Image) End() uint16 {
	end := int(img.LoadAddress) + img.Size
	if end >= Size {
		return 0xFFFF
	}
	return uint16(end)
}
