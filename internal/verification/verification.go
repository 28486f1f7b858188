// Package verification verifies that a generated output file parses back into
// the data it was generated from.
package verification

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sidforge/internal/music"
	"github.com/retroenv/sidforge/internal/psid"
	"github.com/retroenv/sidforge/internal/sf2"
)

var errTablesMismatch = errors.New("tables mismatch")

// VerifyDecoded verifies that an SF2 output contains the converted tables and
// that writing the parsed file recreates the exact output.
func VerifyDecoded(logger *log.Logger, output []byte, tables *music.Tables) error {
	f, err := sf2.Parse(output)
	if err != nil {
		return fmt.Errorf("parsing SF2 output: %w", err)
	}

	read, err := sf2.ReadTables(f)
	if err != nil {
		return fmt.Errorf("reading tables: %w", err)
	}
	if err := compareTables(logger, tables, read); err != nil {
		return err
	}

	again, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("writing SF2 file: %w", err)
	}
	if err := checkBufferEqual(logger, output, again); err != nil {
		return fmt.Errorf("SF2 file mismatch: %w", err)
	}
	return nil
}

// VerifyRepacked verifies that a PSID output has the expected header and that
// building it again recreates the exact output.
func VerifyRepacked(logger *log.Logger, output []byte, header psid.Header) error {
	f, err := psid.Parse(output)
	if err != nil {
		return fmt.Errorf("parsing PSID output: %w", err)
	}

	got := f.Header
	if got.LoadAddress != header.LoadAddress {
		return fmt.Errorf("load address mismatch, expected $%04X but got $%04X", header.LoadAddress, got.LoadAddress)
	}
	if got.InitAddress != header.InitAddress {
		return fmt.Errorf("init address mismatch, expected $%04X but got $%04X", header.InitAddress, got.InitAddress)
	}
	if got.PlayAddress != header.PlayAddress {
		return fmt.Errorf("play address mismatch, expected $%04X but got $%04X", header.PlayAddress, got.PlayAddress)
	}

	again, err := psid.Build(got, f.Payload)
	if err != nil {
		return fmt.Errorf("writing PSID file: %w", err)
	}
	if err := checkBufferEqual(logger, output, again); err != nil {
		return fmt.Errorf("PSID file mismatch: %w", err)
	}
	return nil
}

func compareTables(logger *log.Logger, expected, got *music.Tables) error {
	if reflect.DeepEqual(expected, got) {
		return nil
	}

	checks := []struct {
		kind music.TableKind
		a, b any
	}{
		{music.TableInstruments, expected.Instruments, got.Instruments},
		{music.TableWave, expected.Wave, got.Wave},
		{music.TablePulse, expected.Pulse, got.Pulse},
		{music.TableFilter, expected.Filter, got.Filter},
		{music.TableCommands, expected.Commands, got.Commands},
		{music.TableSequences, expected.Sequences, got.Sequences},
		{music.TableOrderLists, expected.OrderLists, got.OrderLists},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.a, c.b) {
			logger.Error("Table mismatch", log.Stringer("table", c.kind))
		}
	}
	return errTablesMismatch
}

func checkBufferEqual(logger *log.Logger, input, output []byte) error {
	if len(input) != len(output) {
		return fmt.Errorf("mismatched lengths, %d != %d", len(input), len(output))
	}

	var diffs uint64
	for i := range input {
		if input[i] == output[i] {
			continue
		}

		diffs++
		if diffs < 10 {
			logger.Error("Offset mismatch",
				log.Hex("offset", i),
				log.Hex("expected", input[i]),
				log.Hex("got", output[i]))
		}
	}
	if diffs == 0 {
		return nil
	}
	return fmt.Errorf("%d offset mismatches", diffs)
}
