// Package detector handles input format detection.
package detector

import (
	"encoding/binary"
	"path/filepath"
	"strings"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sidforge/internal/psid"
	"github.com/retroenv/sidforge/internal/sf2"
)

// Format is the container format of an input file.
type Format int

const (
	FormatUnknown Format = iota
	FormatPSID
	FormatSF2
)

func (f Format) String() string {
	switch f {
	case FormatPSID:
		return "PSID"
	case FormatSF2:
		return "SF2"
	default:
		return "unknown"
	}
}

// Detector handles format detection from file content and extensions.
type Detector struct {
	logger *log.Logger
}

// New creates a new format detector.
func New(logger *log.Logger) *Detector {
	return &Detector{
		logger: logger,
	}
}

// Detect determines the format from the magic bytes of the data. If the data
// has no known magic the file extension decides.
func (d *Detector) Detect(filename string, data []byte) Format {
	format := detectFromData(data)
	if format == FormatUnknown {
		format = detectFromFile(filename)
		d.logger.Debug("Detected format from file name",
			log.Stringer("format", format),
			log.String("file", filename))
	}
	return format
}

func detectFromData(data []byte) Format {
	if len(data) >= 4 {
		magic := string(data[:4])
		if magic == psid.MagicPSID || magic == psid.MagicRSID {
			return FormatPSID
		}
		// load address followed by the magic word
		if binary.LittleEndian.Uint16(data[2:]) == sf2.Magic {
			return FormatSF2
		}
	}
	return FormatUnknown
}

// detectFromFile determines the format based on the file extension.
func detectFromFile(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".sid", ".psid", ".rsid":
		return FormatPSID
	case ".sf2":
		return FormatSF2
	default:
		return FormatUnknown
	}
}
