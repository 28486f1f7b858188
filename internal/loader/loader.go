// Package loader handles tune file loading operations.
package loader

import (
	"errors"
	"fmt"
	"os"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sidforge/internal/detector"
	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/driver"
	"github.com/retroenv/sidforge/internal/memory"
	"github.com/retroenv/sidforge/internal/psid"
	"github.com/retroenv/sidforge/internal/sf2"
	"github.com/retroenv/sidforge/internal/validate"
)

// ErrUnknownFormat is returned for files that are neither PSID nor SF2 files.
var ErrUnknownFormat = fmt.Errorf("%w: unknown file format", diag.ErrFormat)

var errSubtune = errors.New("subtune out of range")

// Tune is a loaded file that can be played.
type Tune struct {
	Name   string
	Format detector.Format
	PSID   *psid.File // set for PSID files
	SF2    *sf2.File  // set for SF2 files

	Image   *memory.Image
	Init    uint16
	Play    uint16
	Subtune byte // zero based

	Warnings diag.List
}

// Target returns the tune as validation target.
func (t *Tune) Target() validate.Target {
	return validate.Target{
		Image:   t.Image,
		Init:    t.Init,
		Play:    t.Play,
		Subtune: t.Subtune,
	}
}

// Loader handles loading tune files from disk.
type Loader struct {
	detector *detector.Detector
}

// New creates a new tune loader.
func New(logger *log.Logger) *Loader {
	return &Loader{
		detector: detector.New(logger),
	}
}

// Load reads and parses a tune file. The subtune is 1 based, 0 selects the
// start song of the file.
func (l *Loader) Load(path string, subtune int) (*Tune, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return l.LoadFromBytes(path, data, subtune)
}

// LoadFromBytes parses a tune that is already in memory. The name is only
// used for the format detection by file extension.
func (l *Loader) LoadFromBytes(name string, data []byte, subtune int) (*Tune, error) {
	tune := &Tune{
		Name:   name,
		Format: l.detector.Detect(name, data),
	}

	switch tune.Format {
	case detector.FormatPSID:
		f, err := psid.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing PSID file: %w", err)
		}
		img, err := f.Image()
		if err != nil {
			return nil, err
		}
		tune.PSID = f
		tune.Image = img
		tune.Init = f.InitAddress()
		tune.Play = f.Header.PlayAddress
		tune.Subtune = f.Subtune()
		tune.Warnings.Append(f.Warnings)

		if subtune > 0 {
			if subtune > int(f.Header.Songs) {
				return nil, fmt.Errorf("%w: %d of %d", errSubtune, subtune, f.Header.Songs)
			}
			tune.Subtune = byte(subtune - 1)
		}

	case detector.FormatSF2:
		f, err := sf2.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing SF2 file: %w", err)
		}
		tune.SF2 = f
		tune.Image = f.Image
		tune.Init = f.Common.Init
		tune.Play = f.Common.Play
		if subtune > 1 {
			return nil, fmt.Errorf("%w: %d of 1", errSubtune, subtune)
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	return tune, nil
}

// Drivers returns the driver provider for the given template directory. The
// built in driver is used for all names the directory does not contain.
func Drivers(dir string) driver.Provider {
	builtin := driver.Builtin{}
	if dir == "" {
		return builtin
	}
	return driver.Chain(driver.Directory{Path: dir}, builtin)
}
