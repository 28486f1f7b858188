// Package app provides the console output helpers of the converter.
package app

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sidforge/internal/options"
	"github.com/retroenv/sidforge/internal/pipeline"
)

// PrintInfo prints the information about the input file.
func PrintInfo(logger *log.Logger, opts options.Program) {
	if opts.Quiet {
		return
	}

	logger.Info("Processing file",
		log.String("file", opts.Input),
		log.String("mode", opts.Mode),
	)
}

// PrintResult prints the outcome of a processed file and all of its warnings.
func PrintResult(logger *log.Logger, opts options.Program, res *pipeline.Result) {
	for _, w := range res.Warnings {
		logger.Warn(w.String(), log.String("file", opts.Input))
	}
	if opts.Quiet {
		return
	}

	status := "Conversion complete"
	if len(res.Warnings) > 0 {
		status = "Conversion complete with warnings"
	}

	switch res.Mode {
	case options.ModeDecode:
		logger.Info(status,
			log.String("file", opts.Input),
			log.String("output", opts.Output),
			log.Stringer("player", res.Player.Player),
			log.String("confidence", fmt.Sprintf("%.2f", res.Player.Confidence)),
			log.Int("warnings", len(res.Warnings)))
	case options.ModeRepack:
		logger.Info(status,
			log.String("file", opts.Input),
			log.String("output", opts.Output),
			log.Hex("load", res.Header.LoadAddress),
			log.Int("patches", res.Patches),
			log.Int("warnings", len(res.Warnings)))
	case options.ModeTrace:
		logger.Info(status,
			log.String("file", opts.Input),
			log.Int("frames", len(res.Trace)),
			log.Int("writes", res.Trace.Writes()))
	default:
		logger.Info(status,
			log.String("file", opts.Input),
			log.Int("warnings", len(res.Warnings)))
	}
}
