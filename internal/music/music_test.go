package music

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestFollowChain(t *testing.T) {
	// 0 -> 1 -> 2 -> end
	linear := []int{1, 2, -1}
	// 0 -> 1 -> 2 -> 0
	cyclic := []int{1, 2, 0}
	// 0 -> 1 -> 2 -> ... -> 99 -> end
	long := make([]int, 100)
	for i := range long {
		long[i] = i + 1
	}
	long[99] = -1

	next := func(table []int) func(int) (int, bool) {
		return func(i int) (int, bool) {
			if i < 0 || i >= len(table) || table[i] < 0 {
				return 0, false
			}
			return table[i], true
		}
	}

	tests := []struct {
		name     string
		table    []int
		start    int
		limit    int
		expected []int
	}{
		{"linear", linear, 0, 64, []int{0, 1, 2}},
		{"cyclic", cyclic, 1, 64, []int{1, 2, 0}},
		{"bounded", long, 0, 5, []int{0, 1, 2, 3, 4}},
		{"zero limit", linear, 0, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := FollowChain(next(tt.table), tt.start, tt.limit)
			assert.Equal(t, tt.expected, chain)
		})
	}
}

func TestOrderListSource(t *testing.T) {
	ol := OrderList{
		Entries: []OrderEntry{
			{Transpose: 0, Sequence: 1},
			{Transpose: 0, Sequence: 2},
			{Transpose: -5, Sequence: 1},
			{Transpose: 12, Sequence: 3},
		},
		Loop: 1,
	}

	data, err := ol.Encode(EncodingSource)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0xab, 0x01, 0xbc, 0x03, 0xff, 0x01}, data)

	decoded, n, err := DecodeOrderList(append(data, 0x55), EncodingSource)
	assert.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, ol, decoded)
}

func TestOrderListTarget(t *testing.T) {
	ol := OrderList{
		Entries: []OrderEntry{
			{Transpose: 0, Sequence: 4},
			{Transpose: -32, Sequence: 5},
			{Transpose: 31, Sequence: 0},
		},
	}

	data, err := ol.Encode(EncodingTarget)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0xa0, 0x04, 0x80, 0x05, 0xbf, 0x00, 0xff, 0x00}, data)

	decoded, _, err := DecodeOrderList(data, EncodingTarget)
	assert.NoError(t, err)
	assert.Equal(t, ol, decoded)
}

func TestOrderListErrors(t *testing.T) {
	_, err := OrderList{Entries: []OrderEntry{{Transpose: 20, Sequence: 1}}}.Encode(EncodingSource)
	assert.True(t, errors.Is(err, ErrValueRange))

	_, err = OrderList{Entries: []OrderEntry{{Sequence: 0x80}}}.Encode(EncodingTarget)
	assert.True(t, errors.Is(err, ErrValueRange))

	_, _, err = DecodeOrderList([]byte{0x01, 0x02}, EncodingSource)
	assert.True(t, errors.Is(err, ErrUnterminated))

	_, _, err = DecodeOrderList([]byte{0x01, 0xff, 0x00}, EncodingTarget)
	assert.True(t, errors.Is(err, ErrInvalidByte))

	_, _, err = DecodeOrderList([]byte{0x01, 0xff, 0x04}, EncodingSource)
	assert.True(t, errors.Is(err, ErrValueRange))

	_, _, err = DecodeOrderList([]byte{0xc0, 0xff, 0x00}, EncodingSource)
	assert.True(t, errors.Is(err, ErrInvalidByte))
}

func TestTablesClone(t *testing.T) {
	tables := &Tables{
		Encoding:    EncodingTarget,
		Instruments: []Instrument{{AttackDecay: 0x09}},
		Sequences:   []Sequence{{{Note: 0x30, Instrument: Carry, Command: Carry, Duration: 3}}},
	}
	tables.OrderLists[0] = OrderList{Entries: []OrderEntry{{Sequence: 0}}}

	c := tables.Clone()
	c.Instruments[0].AttackDecay = 0x0a
	c.Sequences[0][0].Note = 0x31
	c.OrderLists[0].Entries[0].Sequence = 1

	assert.Equal(t, byte(0x09), tables.Instruments[0].AttackDecay)
	assert.Equal(t, byte(0x30), tables.Sequences[0][0].Note)
	assert.Equal(t, byte(0), tables.OrderLists[0].Entries[0].Sequence)

	assert.False(t, tables.Empty(TableInstruments))
	assert.True(t, tables.Empty(TableWave))
	assert.False(t, tables.Empty(TableOrderLists))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "pulse", TablePulse.String())
	assert.Equal(t, "vibrato", CommandVibrato.String())
	assert.Equal(t, "target", EncodingTarget.String())
	assert.Equal(t, MaxPulseEntries, Capacity(TablePulse))
}
