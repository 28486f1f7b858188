// Package main implements a siddump like SID register tracer
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/sidforge/internal/config"
	"github.com/retroenv/sidforge/internal/loader"
	"github.com/retroenv/sidforge/internal/validate"
	"github.com/retroenv/sidforge/internal/writer"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

type optionFlags struct {
	input  string
	output string

	subtune   int
	frames    int
	firstRow  int
	blockSize int
	exit      uint

	reference bool
	quiet     bool
}

func main() {
	options := readArguments()

	if !options.quiet {
		printBanner()
	}

	if err := traceFile(options); err != nil {
		fmt.Println(fmt.Errorf("tracing failed: %w", err))
		os.Exit(1)
	}
}

func readArguments() optionFlags {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	options := optionFlags{}

	flags.StringVar(&options.output, "o", "", "name of the output .txt file, printed on console if no name given")
	flags.IntVar(&options.subtune, "a", 0, "1 based subtune to play, 0 uses the start song of the file")
	flags.IntVar(&options.frames, "t", 500, "number of frames to trace")
	flags.IntVar(&options.firstRow, "f", 0, "first frame to print, earlier frames are played silently")
	flags.IntVar(&options.blockSize, "l", 50, "frames between separator lines, 0 disables them")
	flags.UintVar(&options.exit, "exit", 0, "address that ends init and play calls, like 0xEA31")
	flags.BoolVar(&options.reference, "reference", false, "use the reference 6502 emulator")
	flags.BoolVar(&options.quiet, "q", false, "perform operations quietly")

	err := flags.Parse(os.Args[1:])
	args := flags.Args()

	if err != nil || len(args) == 0 || options.frames <= 0 || options.firstRow < 0 || options.exit > 0xffff {
		printBanner()
		fmt.Printf("usage: sidtrace [options] <file to trace>\n\n")
		flags.PrintDefaults()
		os.Exit(1)
	}
	options.input = args[0]

	return options
}

func printBanner() {
	fmt.Println("[---------------------------------]")
	fmt.Println("[ sidtrace - SID register tracer  ]")
	fmt.Printf("[---------------------------------]\n\n")
	fmt.Printf("version: %s\n\n", buildinfo.Version(version, commit, date))
}

func traceFile(options optionFlags) error {
	logger := config.CreateLogger(false, options.quiet)
	tune, err := loader.New(logger).Load(options.input, options.subtune)
	if err != nil {
		return fmt.Errorf("loading file: %w", err)
	}

	var source validate.TraceSource
	if options.reference {
		source = validate.ReferenceSource{ExitAddress: uint16(options.exit)}
	} else {
		source = validate.EmulatorSource{ExitAddress: uint16(options.exit)}
	}

	total := options.firstRow + options.frames
	trace, err := source.Trace(tune.Image, tune.Init, tune.Play, tune.Subtune, total)
	if err != nil {
		return fmt.Errorf("tracing tune: %w", err)
	}

	var outputFile io.WriteCloser
	if options.output == "" {
		outputFile = os.Stdout
	} else {
		outputFile, err = os.Create(options.output)
		if err != nil {
			return fmt.Errorf("creating file '%s': %w", options.output, err)
		}
	}

	buf := bufio.NewWriter(outputFile)
	w := writer.New(buf, writer.Options{
		FirstFrame: options.firstRow,
		BlockSize:  options.blockSize,
	})
	if err = w.Write(trace[options.firstRow:]); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}
	if err = buf.Flush(); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}
	if outputFile != os.Stdout {
		if err = outputFile.Close(); err != nil {
			return fmt.Errorf("closing file: %w", err)
		}
	}
	return nil
}
