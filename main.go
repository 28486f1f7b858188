// Package main implements the main entry point of the SID to SID Factory II converter
package main

import (
	"context"
	"errors"
	"os"

	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sidforge/internal/cli"
	"github.com/retroenv/sidforge/internal/config"
	"github.com/retroenv/sidforge/internal/fileprocessor"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx := app.Context()

	opts, conv, err := cli.ParseFlags()
	if err != nil {
		logger := config.CreateLogger(opts.Debug, opts.Quiet)
		var usageErr *cli.UsageError
		if errors.As(err, &usageErr) {
			fileprocessor.PrintBanner(logger, opts, version, commit, date)
			usageErr.ShowUsage()
		} else {
			logger.Fatal(err.Error())
		}
		os.Exit(1)
	}

	logger := config.CreateLogger(opts.Debug, opts.Quiet)
	fileprocessor.PrintBanner(logger, opts, version, commit, date)

	summary, err := fileprocessor.ProcessFiles(ctx, logger, opts, conv)
	if err != nil {
		// Handle context cancellation (Ctrl+C) gracefully
		if errors.Is(err, context.Canceled) {
			logger.Info("Operation cancelled")
			return
		}
		logger.Fatal(err.Error())
	}

	if opts.Batch != "" {
		logger.Info("Batch complete",
			log.Int("processed", summary.Processed),
			log.Int("failed", summary.Failed),
			log.Int("warnings", summary.Warnings))
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
}
