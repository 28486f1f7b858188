// Package config creates the runtime configuration shared by the converter
// and the tracer commands.
package config

import (
	"github.com/retroenv/retrogolib/log"
)

// CreateLogger creates the logger of a command. Debug output wins over quiet
// mode, quiet mode only keeps errors so that batch failures stay visible.
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	switch {
	case debug:
		cfg.Level = log.DebugLevel
	case quiet:
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}
