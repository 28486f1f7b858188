// Package fileprocessor handles file loading and processing operations
package fileprocessor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sidforge/internal/app"
	"github.com/retroenv/sidforge/internal/loader"
	"github.com/retroenv/sidforge/internal/options"
	"github.com/retroenv/sidforge/internal/pipeline"
	"github.com/retroenv/sidforge/internal/sid"
	"github.com/retroenv/sidforge/internal/validate"
	"github.com/retroenv/sidforge/internal/writer"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the number of files processed in parallel in batch mode.
const DefaultWorkers = 4

// traceBlockSize is the number of frames between separator lines of traces,
// one second of PAL playback.
const traceBlockSize = 50

// Summary counts the results of a batch run.
type Summary struct {
	Processed int
	Failed    int
	Warnings  int
}

// ProcessFiles processes all input files. A failing file is logged and
// counted but does not stop the batch, only a cancelled context does.
func ProcessFiles(ctx context.Context, logger *log.Logger, opts options.Program, conv options.Conversion) (Summary, error) {
	files, err := GetFilesToProcess(&opts)
	if err != nil {
		return Summary{}, err
	}

	pipe := pipeline.New(logger, loader.Drivers(opts.Drivers), conv)
	sink := validate.NewLogSink(logger)

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var processed, failed, warnings atomic.Int64
	for _, file := range files {
		fileOpts := opts
		fileOpts.Input = file
		if len(files) > 1 || opts.Output == "" {
			fileOpts.Output = GenerateOutputFilename(file, conv.Mode)
		}

		g.Go(func() error {
			res, err := ProcessFile(ctx, logger, pipe, fileOpts)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				failed.Add(1)
				logger.Error("Processing failed", log.String("file", file), log.Err(err))
				return nil
			}

			processed.Add(1)
			warnings.Add(int64(len(res.Warnings)))
			app.PrintResult(logger, fileOpts, res)
			if res.Accuracy != nil {
				sink.Report(file, *res.Accuracy)
			}
			return nil
		})
	}

	err = g.Wait()
	summary := Summary{
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
		Warnings:  int(warnings.Load()),
	}
	return summary, err
}

// ProcessFile handles the complete processing of one file.
func ProcessFile(ctx context.Context, logger *log.Logger, pipe *pipeline.Pipeline, opts options.Program) (*pipeline.Result, error) {
	data, err := os.ReadFile(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", opts.Input, err)
	}

	var compare []byte
	if opts.Compare != "" {
		if compare, err = os.ReadFile(opts.Compare); err != nil {
			return nil, fmt.Errorf("reading file %s: %w", opts.Compare, err)
		}
	}

	app.PrintInfo(logger, opts)
	res, err := pipe.Execute(ctx, opts.Input, data, compare)
	if err != nil {
		return nil, err
	}

	if err := writeOutput(opts, res); err != nil {
		return nil, err
	}
	return res, nil
}

// writeOutput writes the converted file or the trace table.
func writeOutput(opts options.Program, res *pipeline.Result) error {
	switch {
	case res.Output != nil:
		if opts.Output == "" {
			return errors.New("no output file name given")
		}
		if err := os.WriteFile(opts.Output, res.Output, 0o644); err != nil {
			return fmt.Errorf("writing output file %s: %w", opts.Output, err)
		}
		return nil

	case res.Trace != nil:
		if opts.Output == "" {
			return writeTrace(os.Stdout, res.Trace)
		}
		file, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("creating output file %s: %w", opts.Output, err)
		}
		return writeTraceFile(file, res.Trace)

	default:
		return nil
	}
}

// GetFilesToProcess returns list of files to process based on options
func GetFilesToProcess(opts *options.Program) ([]string, error) {
	if opts.Batch != "" {
		matches, err := filepath.Glob(opts.Batch)
		if err != nil {
			return nil, fmt.Errorf("globbing batch pattern: %w", err)
		}
		return matches, nil
	}
	return []string{opts.Input}, nil
}

// GenerateOutputFilename generates the output filename for a given input
// file. Validation does not create a file.
func GenerateOutputFilename(inputFile string, mode options.Mode) string {
	ext := filepath.Ext(inputFile)
	base := inputFile[:len(inputFile)-len(ext)]

	switch mode {
	case options.ModeDecode:
		return base + ".sf2"
	case options.ModeRepack:
		return base + ".sid"
	case options.ModeTrace:
		return base + ".txt"
	case options.ModeValidate:
		return ""
	default:
		// auto mode converts into the other format
		if strings.EqualFold(ext, ".sf2") {
			return base + ".sid"
		}
		return base + ".sf2"
	}
}

func writeTrace(w io.Writer, trace sid.Trace) error {
	tw := writer.New(w, writer.Options{BlockSize: traceBlockSize})
	if err := tw.Write(trace); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}
	return nil
}

// writeTraceFile writes the trace and closes the file, a failing close loses
// buffered data and is returned.
func writeTraceFile(wc io.WriteCloser, trace sid.Trace) (err error) {
	defer func() {
		if cerr := wc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing trace output: %w", cerr)
		}
	}()
	return writeTrace(wc, trace)
}

// PrintBanner prints application version information
func PrintBanner(logger *log.Logger, opts options.Program, version, commit, date string) {
	if opts.Quiet {
		return
	}

	versionString := version
	if commit != "" {
		if len(commit) > 7 {
			commit = commit[:7]
		}
		versionString += fmt.Sprintf(" (%s)", commit)
	}

	logger.Info("sidforge", log.String("version", versionString))

	if date != "" && !strings.Contains(date, "unknown") {
		logger.Info("Build", log.String("date", date))
	}
}
