package convert

import (
	"errors"
	"fmt"

	"github.com/retroenv/sidforge/internal/music"
)

var errOddLength = errors.New("interleaved wave data has an odd length")

// TransposeWaveToTarget converts interleaved source rows of (note, waveform)
// byte pairs into the target layout: a waveform column followed by a note column
// with the row count as offset between them.
func TransposeWaveToTarget(src []byte) ([]byte, error) {
	if len(src)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", errOddLength, len(src))
	}

	rows := len(src) / 2
	dst := make([]byte, len(src))
	for i := range rows {
		note, waveform := src[2*i], src[2*i+1]
		dst[i] = waveform
		dst[rows+i] = note
	}
	return dst, nil
}

// TransposeWaveToSource converts the two column target layout with the given
// number of rows back into interleaved (note, waveform) rows.
func TransposeWaveToSource(dst []byte, rows int) ([]byte, error) {
	if len(dst) < 2*rows {
		return nil, fmt.Errorf("wave columns of %d rows need %d bytes, got %d", rows, 2*rows, len(dst))
	}

	src := make([]byte, 2*rows)
	for i := range rows {
		src[2*i] = dst[rows+i]
		src[2*i+1] = dst[i]
	}
	return src, nil
}

// DecodeWave decodes wave rows. Source data is interleaved, target data is
// expected in the two column layout.
func DecodeWave(data []byte, enc music.Encoding) ([]music.WaveEntry, error) {
	interleaved := data
	if enc == music.EncodingTarget {
		var err error
		interleaved, err = TransposeWaveToSource(data, len(data)/2)
		if err != nil {
			return nil, err
		}
	}
	if len(interleaved)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", errOddLength, len(interleaved))
	}

	rows := make([]music.WaveEntry, len(interleaved)/2)
	for i := range rows {
		rows[i] = music.WaveEntry{
			Note:     interleaved[2*i],
			Waveform: interleaved[2*i+1],
		}
	}
	return rows, nil
}

// EncodeWave encodes wave rows in the layout of the encoding.
func EncodeWave(rows []music.WaveEntry, enc music.Encoding) []byte {
	interleaved := make([]byte, 2*len(rows))
	for i, row := range rows {
		interleaved[2*i] = row.Note
		interleaved[2*i+1] = row.Waveform
	}
	if enc != music.EncodingTarget {
		return interleaved
	}

	// the length is even, the transpose can not fail
	dst, _ := TransposeWaveToTarget(interleaved)
	return dst
}

func validateWave(wave []music.WaveEntry) error {
	if len(wave) > music.MaxWaveEntries {
		return fmt.Errorf("%w: %d wave rows", music.ErrValueRange, len(wave))
	}
	for i, row := range wave {
		if row.IsJump() && int(row.Note) >= len(wave) {
			return fmt.Errorf("%w: wave row %d jumps to %d of %d rows", music.ErrValueRange, i, row.Note, len(wave))
		}
	}
	return nil
}
