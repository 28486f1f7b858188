// Package cli handles command line interface logic
package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/retroenv/sidforge/internal/fileprocessor"
	"github.com/retroenv/sidforge/internal/options"
)

// ParseFlags parses command line flags and returns program and conversion options
func ParseFlags() (options.Program, options.Conversion, error) {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	var opts options.Program
	readOptionFlags(flags, &opts)

	err := flags.Parse(os.Args[1:])
	args := flags.Args()
	if err != nil || (len(args) == 0 && opts.Batch == "" && opts.Input == "") {
		return opts, options.Conversion{}, &UsageError{flags: flags}
	}

	if err := validateArgs(args); err != nil {
		return opts, options.Conversion{}, err
	}

	if opts.Batch == "" && opts.Input == "" {
		opts.Input = args[0]
	}

	conv, err := createConversionOptions(opts)
	if err != nil {
		return opts, options.Conversion{}, err
	}
	if err := validateOptionCombinations(opts, conv); err != nil {
		return opts, options.Conversion{}, err
	}
	return opts, conv, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	return e.msg
}

func (e *UsageError) ShowUsage() {
	fmt.Printf("usage: sidforge [options] <file to convert>\n\n")
	if e.flags != nil {
		e.flags.PrintDefaults()
	}
	fmt.Println()
}

// validateArgs checks if arguments are in correct order
func validateArgs(args []string) error {
	for i, arg := range args {
		if i > 0 && arg != "" && arg[0] == '-' {
			return &UsageError{
				msg: fmt.Sprintf("Potential argument %s found after file to convert, please pass the file to convert as last argument", arg),
			}
		}
	}
	return nil
}

// createConversionOptions normalizes and validates option values.
func createConversionOptions(opts options.Program) (options.Conversion, error) {
	conv := options.NewConversion()

	mode, err := options.ParseMode(opts.Mode)
	if err != nil {
		return conv, err
	}
	base, err := parseAddress(opts.Base)
	if err != nil {
		return conv, fmt.Errorf("invalid base address: %w", err)
	}

	conv.Mode = mode
	conv.Driver = opts.Driver
	conv.Base = base
	conv.Subtune = opts.Subtune
	conv.Frames = opts.Frames
	conv.Threshold = opts.Threshold
	conv.Validate = opts.Validate
	conv.Reference = opts.Reference
	conv.Verify = opts.Verify
	return conv, nil
}

// validateOptionCombinations checks for incompatible option combinations.
func validateOptionCombinations(opts options.Program, conv options.Conversion) error {
	switch {
	case conv.Mode == options.ModeValidate && opts.Compare == "":
		return fmt.Errorf("validate mode requires a file to compare against (-compare)")
	case conv.Mode == options.ModeValidate && opts.Batch != "":
		return fmt.Errorf("validate mode can not be used in batch mode")
	case conv.Frames <= 0:
		return fmt.Errorf("frame count %d must be positive", conv.Frames)
	case conv.Threshold < 0 || conv.Threshold > 1:
		return fmt.Errorf("threshold %.2f must be between 0 and 1", conv.Threshold)
	case conv.Subtune < 0:
		return fmt.Errorf("subtune %d must not be negative", conv.Subtune)
	case opts.Workers < 0:
		return fmt.Errorf("worker count %d must not be negative", opts.Workers)
	}
	return nil
}

// parseAddress parses addresses in the forms $1000, 0x1000 and 4096.
func parseAddress(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "$"):
		s = "0x" + s[1:]
	case s == "":
		return 0, nil
	}

	value, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("parsing '%s': %w", s, err)
	}
	return uint16(value), nil
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	defaults := options.NewConversion()

	flags.StringVar(&opts.Input, "i", "", "name of the input SID or SF2 file")
	flags.StringVar(&opts.Output, "o", "", "name of the output file, derived from the input name if not given")
	flags.StringVar(&opts.Compare, "compare", "", "name of the tune that the input is compared against in validate mode")
	flags.StringVar(&opts.Drivers, "drivers", "", "directory with additional driver templates (<name>.prg and <name>.json)")
	flags.StringVar(&opts.Batch, "batch", "", "process a batch of given path and file mask and automatically output file naming, for example *.sid")
	flags.StringVar(&opts.Mode, "mode", string(options.ModeAuto), "auto, decode (SID to SF2), repack (SF2 to SID), validate or trace")
	flags.IntVar(&opts.Workers, "workers", fileprocessor.DefaultWorkers, "number of files processed in parallel in batch mode")
	flags.BoolVar(&opts.Verify, "verify", false, "verify the output by parsing it again and comparing it to the conversion")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")

	flags.StringVar(&opts.Driver, "driver", defaults.Driver, "name of the driver template for decoded tunes")
	flags.StringVar(&opts.Base, "base", fmt.Sprintf("$%04X", defaults.Base), "destination address of repacked tunes")
	flags.IntVar(&opts.Subtune, "subtune", 0, "1 based subtune to play, 0 uses the start song of the file")
	flags.IntVar(&opts.Frames, "frames", defaults.Frames, "number of frames to emulate for validation and traces")
	flags.Float64Var(&opts.Threshold, "threshold", defaults.Threshold, "accuracy below which a warning is reported")
	flags.BoolVar(&opts.Validate, "validate", false, "validate repacked tunes against the SF2 input")
	flags.BoolVar(&opts.Reference, "reference", false, "cross check the built in emulator against the reference 6502 emulator")
}
