// Package writer implements the text output of SID register traces.
package writer

import (
	"fmt"
	"io"
	"strings"

	"github.com/retroenv/sidforge/internal/sid"
)

const (
	separator = "+-------+----------------------+----------------------+----------------------+-------------+"
	header    = "| Frame | Freq Puls WF AD SR   | Freq Puls WF AD SR   | Freq Puls WF AD SR   | FCut RF MV  |"
)

// Options of the writer.
type Options struct {
	FirstFrame int // frame number of the first trace entry
	BlockSize  int // frames between separator lines, 0 disables them
}

// Writer writes traces in a siddump like table. Registers that were not
// written in a frame are shown as dots.
type Writer struct {
	options Options
	writer  io.Writer
}

// New creates a new writer.
func New(writer io.Writer, options Options) *Writer {
	return &Writer{
		options: options,
		writer:  writer,
	}
}

// Write writes the table header and one line per frame.
func (w Writer) Write(trace sid.Trace) error {
	if err := w.writeLines(separator, header, separator); err != nil {
		return err
	}

	for i, snap := range trace {
		if w.options.BlockSize > 0 && i > 0 && i%w.options.BlockSize == 0 {
			if err := w.writeLines(separator); err != nil {
				return err
			}
		}
		if err := w.writeLines(FormatFrame(w.options.FirstFrame+i, snap)); err != nil {
			return err
		}
	}
	return w.writeLines(separator)
}

func (w Writer) writeLines(lines ...string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w.writer, line); err != nil {
			return fmt.Errorf("writing line: %w", err)
		}
	}
	return nil
}

// FormatFrame returns the table line of one frame.
func FormatFrame(frame int, snap sid.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "| %5d |", frame)

	for voice := range sid.Voices {
		reg := func(offset int) int {
			return sid.VoiceRegister(voice, offset)
		}
		sb.WriteByte(' ')
		sb.WriteString(word(snap, reg(sid.FreqHi), reg(sid.FreqLo)))
		sb.WriteByte(' ')
		sb.WriteString(word(snap, reg(sid.PulseHi), reg(sid.PulseLo)))
		sb.WriteByte(' ')
		sb.WriteString(value(snap, reg(sid.Control)))
		sb.WriteByte(' ')
		sb.WriteString(value(snap, reg(sid.AttackDecay)))
		sb.WriteByte(' ')
		sb.WriteString(value(snap, reg(sid.SustainRelease)))
		sb.WriteString("   |")
	}

	sb.WriteByte(' ')
	sb.WriteString(word(snap, sid.FilterCutoffHi, sid.FilterCutoffLo))
	sb.WriteByte(' ')
	sb.WriteString(value(snap, sid.ResonanceFilter))
	sb.WriteByte(' ')
	sb.WriteString(value(snap, sid.ModeVolume))
	sb.WriteString("  |")
	return sb.String()
}

// word formats a register pair, a half written pair shows the missing byte
// as dots.
func word(snap sid.Snapshot, hi, lo int) string {
	return value(snap, hi) + value(snap, lo)
}

func value(snap sid.Snapshot, reg int) string {
	v, ok := snap.Get(reg)
	if !ok {
		return ".."
	}
	return fmt.Sprintf("%02X", v)
}
