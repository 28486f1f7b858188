package writer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/sidforge/internal/sid"
)

func TestFormatFrame(t *testing.T) {
	var snap sid.Snapshot
	snap.Set(sid.FreqLo, 0x34)
	snap.Set(sid.FreqHi, 0x12)
	snap.Set(sid.VoiceRegister(1, sid.Control), 0x41)
	snap.Set(sid.FilterCutoffHi, 0x80)
	snap.Set(sid.ModeVolume, 0x0F)

	line := FormatFrame(7, snap)
	assert.Equal(t, len(header), len(line))
	assert.True(t, strings.HasPrefix(line, "|     7 | 1234 .... .. .. ..   |"))
	assert.Contains(t, line, "| .... .... 41 .. ..   |")
	assert.True(t, strings.HasSuffix(line, "| 80.. .. 0F  |"))
}

func TestWrite(t *testing.T) {
	trace := make(sid.Trace, 5)
	trace[2].Set(sid.Control, 0x11)

	var buf bytes.Buffer
	w := New(&buf, Options{FirstFrame: 10, BlockSize: 2})
	assert.NoError(t, w.Write(trace))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	// header, 5 frames, 2 block separators and the closing separator
	assert.Len(t, lines, 3+5+2+1)
	assert.Equal(t, separator, lines[0])
	assert.True(t, strings.HasPrefix(lines[3], "|    10 |"))
	assert.Equal(t, separator, lines[5])
	assert.Contains(t, lines[6], "| .... .... 11 .. ..   |")
	assert.Equal(t, separator, lines[len(lines)-1])
	for _, line := range lines {
		assert.Equal(t, len(separator), len(line))
	}
}
