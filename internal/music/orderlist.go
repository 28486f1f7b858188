package music

import (
	"errors"
	"fmt"
)

// Packed order list bytes.
const (
	orderListEnd = 0xFF

	sourceTransposeBase = 0xB0 // source transpose byte is $B0 + transpose, $A0-$BF
	sourceTransposeMin  = 0xA0
	sourceTransposeMax  = 0xBF

	targetTransposeBase = 0xA0 // target transpose byte is $A0 + transpose, $80-$BF
	targetTransposeMin  = 0x80
	targetTransposeMax  = 0xBF

	maxSequenceIndex = 0x7F
)

var (
	// ErrUnterminated is returned for packed data without an end marker.
	ErrUnterminated = errors.New("missing end marker")
	// ErrInvalidByte is returned for a packed byte that has no meaning in its position.
	ErrInvalidByte = errors.New("invalid packed byte")
	// ErrValueRange is returned when a value can not be represented in an encoding.
	ErrValueRange = errors.New("value out of range")
)

// DecodeOrderList decodes a packed order list and returns it with the number of
// bytes consumed. The source encoding stores a transpose byte only when the
// transpose changes, the target encoding stores a transpose byte for every entry.
func DecodeOrderList(data []byte, enc Encoding) (OrderList, int, error) {
	var ol OrderList
	var transpose int8
	explicit := false

	for i := 0; i < len(data); i++ {
		b := data[i]

		switch {
		case b == orderListEnd:
			if i+1 >= len(data) {
				return ol, i + 1, fmt.Errorf("reading loop index: %w", ErrUnterminated)
			}
			ol.Loop = int(data[i+1])
			if ol.Loop >= len(ol.Entries) && len(ol.Entries) > 0 {
				return ol, i + 2, fmt.Errorf("%w: loop index %d of %d entries", ErrValueRange, ol.Loop, len(ol.Entries))
			}
			return ol, i + 2, nil

		case b <= maxSequenceIndex:
			if enc == EncodingTarget && !explicit {
				return ol, i, fmt.Errorf("%w: $%02X at %d without transpose", ErrInvalidByte, b, i)
			}
			ol.Entries = append(ol.Entries, OrderEntry{Transpose: transpose, Sequence: b})
			explicit = false
			if len(ol.Entries) > MaxOrderListEntries {
				return ol, i, fmt.Errorf("%w: more than %d entries", ErrValueRange, MaxOrderListEntries)
			}

		case enc == EncodingSource && b >= sourceTransposeMin && b <= sourceTransposeMax:
			transpose = int8(int(b) - sourceTransposeBase)

		case enc == EncodingTarget && b >= targetTransposeMin && b <= targetTransposeMax:
			transpose = int8(int(b) - targetTransposeBase)
			explicit = true

		default:
			return ol, i, fmt.Errorf("%w: $%02X at %d", ErrInvalidByte, b, i)
		}
	}
	return ol, len(data), ErrUnterminated
}

// Encode packs the order list.
func (ol OrderList) Encode(enc Encoding) ([]byte, error) {
	buf := make([]byte, 0, 2*len(ol.Entries)+2)
	var transpose int8

	for i, e := range ol.Entries {
		if e.Sequence > maxSequenceIndex {
			return nil, fmt.Errorf("%w: sequence %d in entry %d", ErrValueRange, e.Sequence, i)
		}

		switch enc {
		case EncodingSource:
			if e.Transpose != transpose {
				t := int(e.Transpose) + sourceTransposeBase
				if t < sourceTransposeMin || t > sourceTransposeMax {
					return nil, fmt.Errorf("%w: transpose %d in entry %d", ErrValueRange, e.Transpose, i)
				}
				buf = append(buf, byte(t))
				transpose = e.Transpose
			}

		case EncodingTarget:
			t := int(e.Transpose) + targetTransposeBase
			if t < targetTransposeMin || t > targetTransposeMax {
				return nil, fmt.Errorf("%w: transpose %d in entry %d", ErrValueRange, e.Transpose, i)
			}
			buf = append(buf, byte(t))

		default:
			return nil, fmt.Errorf("unsupported encoding %s", enc)
		}

		buf = append(buf, e.Sequence)
	}

	if ol.Loop < 0 || (ol.Loop >= len(ol.Entries) && len(ol.Entries) > 0) {
		return nil, fmt.Errorf("%w: loop index %d of %d entries", ErrValueRange, ol.Loop, len(ol.Entries))
	}
	buf = append(buf, orderListEnd, byte(ol.Loop))
	return buf, nil
}
