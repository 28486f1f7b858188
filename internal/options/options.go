// Package options contains the program options.
package options

import (
	"fmt"
	"strings"
)

// Mode selects what is done with an input file.
type Mode string

const (
	ModeAuto     Mode = "auto"     // decode PSID files, repack SF2 files
	ModeDecode   Mode = "decode"   // PSID to SF2
	ModeRepack   Mode = "repack"   // SF2 to PSID
	ModeValidate Mode = "validate" // compare the input against another tune
	ModeTrace    Mode = "trace"    // write the SID register trace
)

// Modes lists all valid modes.
var Modes = []Mode{ModeAuto, ModeDecode, ModeRepack, ModeValidate, ModeTrace}

// ParseMode returns the mode for a case insensitive name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(s))
	for _, valid := range Modes {
		if m == valid {
			return m, nil
		}
	}

	names := make([]string, len(Modes))
	for i, valid := range Modes {
		names[i] = string(valid)
	}
	return "", fmt.Errorf("unsupported mode: %s. Valid options: %s", s, strings.Join(names, ", "))
}

// Parameters contains file path options.
type Parameters struct {
	Input   string `flag:"i" usage:"input SID or SF2 file"`
	Output  string `flag:"o" usage:"output file (default: derived from the input name)"`
	Compare string `flag:"compare" usage:"tune that the input is compared against in validate mode"`
	Drivers string `flag:"drivers" usage:"directory with additional driver templates"`
	Batch   string `flag:"batch" usage:"batch process files matching pattern (e.g. *.sid)"`
}

// Flags contains behavior options.
type Flags struct {
	Mode    string `flag:"mode" usage:"auto, decode, repack, validate or trace" default:"auto"`
	Workers int    `flag:"workers" usage:"parallel batch workers" default:"4"`
	Verify  bool   `flag:"verify" usage:"verify output by parsing it again and comparing it to the conversion"`
	Debug   bool   `flag:"debug" usage:"enable debug logging"`
	Quiet   bool   `flag:"q" usage:"quiet mode"`
}

// ConversionFlags contains conversion and validation options.
type ConversionFlags struct {
	Driver    string  `flag:"driver" usage:"driver template name" default:"driver11"`
	Base      string  `flag:"base" usage:"destination address of repacked tunes" default:"$1000"`
	Subtune   int     `flag:"subtune" usage:"1 based subtune, 0 uses the start song"`
	Frames    int     `flag:"frames" usage:"frames to emulate for validation and traces" default:"500"`
	Threshold float64 `flag:"threshold" usage:"accuracy below which a warning is reported" default:"0.99"`
	Validate  bool    `flag:"validate" usage:"validate repacked tunes against the SF2 input"`
	Reference bool    `flag:"reference" usage:"cross check emulation with the reference emulator"`
}

// Program options of the converter.
type Program struct {
	Parameters
	Flags
	ConversionFlags
}

// Conversion defines options to control the conversion pipeline.
type Conversion struct {
	Mode      Mode
	Driver    string // driver template for decoded tunes
	Base      uint16 // destination address of repacked tunes, 0 keeps the address
	Subtune   int    // 1 based, 0 uses the start song of the file
	Frames    int
	Threshold float64
	Validate  bool // validate repacked tunes
	Reference bool // cross check the built in emulator with the reference emulator
	Verify    bool // parse the output again and compare it
}

// NewConversion returns a new options instance with default options.
func NewConversion() Conversion {
	return Conversion{
		Mode:      ModeAuto,
		Driver:    "driver11",
		Base:      0x1000,
		Frames:    500,
		Threshold: 0.99,
	}
}
