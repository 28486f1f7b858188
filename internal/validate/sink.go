package validate

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sidforge/internal/sid"
)

// Sink receives finished reports for presentation.
type Sink interface {
	Report(name string, r Report)
}

// LogSink writes reports to a logger, the per register details are logged
// at debug level.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink returns a sink that logs to the given logger.
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Report logs the report.
func (s *LogSink) Report(name string, r Report) {
	if r.Status == StatusInconclusive {
		s.logger.Warn("Validation inconclusive",
			log.String("file", name),
			log.Err(r.Err))
		return
	}

	s.logger.Info("Validation finished",
		log.String("file", name),
		log.Int("frames", r.Frames),
		log.String("overall", fmt.Sprintf("%.2f%%", 100*r.Overall)),
		log.Stringer("frame", r.Frame),
		log.Stringer("voice", r.Voice),
		log.Stringer("register", r.Register),
		log.Stringer("filter", r.Filter),
		log.Stringer("coverage", r.Coverage))

	for reg, ratio := range r.Registers {
		if ratio.Samples == 0 {
			continue
		}
		s.logger.Debug("Register accuracy",
			log.String("register", sid.RegisterName(reg)),
			log.Stringer("ratio", ratio))
	}
}
