// Package pipeline orchestrates the conversion workflow stages.
package pipeline

import (
	"context"
	"fmt"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sidforge/internal/convert"
	"github.com/retroenv/sidforge/internal/detector"
	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/driver"
	"github.com/retroenv/sidforge/internal/extract"
	"github.com/retroenv/sidforge/internal/loader"
	"github.com/retroenv/sidforge/internal/music"
	"github.com/retroenv/sidforge/internal/options"
	"github.com/retroenv/sidforge/internal/player"
	"github.com/retroenv/sidforge/internal/psid"
	"github.com/retroenv/sidforge/internal/relocate"
	"github.com/retroenv/sidforge/internal/sf2"
	"github.com/retroenv/sidforge/internal/sid"
	"github.com/retroenv/sidforge/internal/validate"
	"github.com/retroenv/sidforge/internal/verification"
)

// Result is the outcome of processing one file. Warnings list everything
// that was recovered from, a result without warnings did not use any
// fallback.
type Result struct {
	Mode     options.Mode
	Output   []byte // converted file, nil for validate and trace
	Warnings diag.List

	Player   player.Match
	Tables   *music.Tables // target encoded tables of decoded tunes
	Accuracy *validate.Report
	Patches  int         // relocated pointers of repacked tunes
	Trace    sid.Trace   // register trace in trace mode
	Header   psid.Header // header of the PSID input or output
}

// Pipeline orchestrates the complete conversion workflow. A pipeline is safe
// for concurrent use, all stages work on per call data.
type Pipeline struct {
	logger    *log.Logger
	loader    *loader.Loader
	database  *player.Database
	drivers   driver.Provider
	validator *validate.Validator
	opts      options.Conversion
}

// New creates a new conversion pipeline.
func New(logger *log.Logger, drivers driver.Provider, opts options.Conversion) *Pipeline {
	return &Pipeline{
		logger:    logger,
		loader:    loader.New(logger),
		database:  player.DefaultDatabase(),
		drivers:   drivers,
		validator: validate.New(validate.EmulatorSource{}),
		opts:      opts,
	}
}

// Execute processes a file in the configured mode. In auto mode PSID files
// are decoded and SF2 files are repacked. The compare data is only used in
// validate mode.
func (p *Pipeline) Execute(ctx context.Context, name string, data, compare []byte) (*Result, error) {
	mode := p.opts.Mode
	if mode == options.ModeAuto || mode == "" {
		tune, err := p.loader.LoadFromBytes(name, data, p.opts.Subtune)
		if err != nil {
			return nil, err
		}
		mode = options.ModeDecode
		if tune.Format == detector.FormatSF2 {
			mode = options.ModeRepack
		}
	}

	switch mode {
	case options.ModeDecode:
		return p.Decode(ctx, data)
	case options.ModeRepack:
		return p.Repack(ctx, data, p.opts.Base)
	case options.ModeValidate:
		return p.Validate(ctx, data, compare)
	case options.ModeTrace:
		return p.Trace(ctx, name, data)
	default:
		return nil, fmt.Errorf("unsupported mode '%s'", mode)
	}
}

// Decode converts a PSID file into an SF2 file.
func (p *Pipeline) Decode(ctx context.Context, data []byte) (*Result, error) {
	tune, err := p.loader.LoadFromBytes("", data, p.opts.Subtune)
	if err != nil {
		return nil, err
	}
	if tune.PSID == nil {
		return nil, fmt.Errorf("%w: decoding requires a PSID file", loader.ErrUnknownFormat)
	}

	res := &Result{
		Mode:   options.ModeDecode,
		Header: tune.PSID.Header,
	}
	res.Warnings.Append(tune.Warnings)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Player = p.database.Match(tune.Image)
	res.Warnings.Append(res.Player.Warnings)
	p.logger.Debug("Matched player",
		log.Stringer("player", res.Player.Player),
		log.String("confidence", fmt.Sprintf("%.2f", res.Player.Confidence)),
		log.Stringer("strategy", res.Player.Player.Strategy()))

	tpl, err := p.drivers.Template(p.opts.Driver)
	if err != nil {
		return nil, fmt.Errorf("loading driver template: %w", err)
	}
	meta := sf2.Metadata{
		Title:     tune.PSID.Header.Title,
		Author:    tune.PSID.Header.Author,
		Copyright: tune.PSID.Header.Copyright,
	}

	var file *sf2.File
	if res.Player.Player.Strategy() == player.StrategyNative {
		file, err = sf2.FromImage(tpl, tune.Image, sf2.Common{Init: tune.Init, Play: tune.Play}, meta)
		if err != nil {
			return nil, fmt.Errorf("reading driver image: %w", err)
		}
		if res.Tables, err = sf2.ReadTables(file); err != nil {
			return nil, fmt.Errorf("reading tables: %w", err)
		}
	} else {
		if file, err = p.convert(ctx, tune, tpl, meta, res); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res.Output, err = file.Marshal(); err != nil {
		return nil, fmt.Errorf("writing SF2 file: %w", err)
	}

	if p.opts.Verify {
		if err := verification.VerifyDecoded(p.logger, res.Output, res.Tables); err != nil {
			return nil, fmt.Errorf("verification failed: %w", err)
		}
		p.logger.Debug("Verification successful")
	}
	return res, nil
}

// convert extracts the source tables of a tune and assembles them into the
// driver template.
func (p *Pipeline) convert(ctx context.Context, tune *loader.Tune, tpl *driver.Template,
	meta sf2.Metadata, res *Result) (*sf2.File, error) {

	if res.Player.Player == player.Unknown {
		res.Warnings.Add(diag.KindFallback, "", "using the %s strategy for an unknown player",
			player.Unknown.Strategy())
	}

	extracted := extract.FindTables(tune.Image, res.Player)
	res.Warnings.Append(extracted.Warnings)
	for kind, location := range extracted.Locations {
		p.logger.Debug("Found table",
			log.Stringer("table", kind),
			log.Hex("address", location.Address),
			log.String("score", fmt.Sprintf("%d/%d", location.Score.Points, location.Score.Max)))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tables, warnings, err := convert.ToTarget(extracted.Tables)
	if err != nil {
		return nil, fmt.Errorf("converting tables: %w", err)
	}
	res.Warnings.Append(warnings)
	res.Tables = tables

	file, err := sf2.Assemble(tpl, tables, meta)
	if err != nil {
		return nil, fmt.Errorf("assembling SF2 file: %w", err)
	}
	return file, nil
}

// Repack relocates the driver and the music data of an SF2 file to the
// destination address and writes it as PSID file. A destination of 0 keeps
// the address of the file.
func (p *Pipeline) Repack(ctx context.Context, data []byte, dest uint16) (*Result, error) {
	tune, err := p.loader.LoadFromBytes("", data, 0)
	if err != nil {
		return nil, err
	}
	if tune.SF2 == nil {
		return nil, fmt.Errorf("%w: repacking requires an SF2 file", loader.ErrUnknownFormat)
	}
	f := tune.SF2
	if dest == 0 {
		dest = f.Descriptor.Base
	}

	img, reloc, err := relocate.RelocateImage(f.Image, dest, relocationOptions(f))
	if err != nil {
		return nil, fmt.Errorf("relocating driver: %w", err)
	}
	moved := f.Move(img)
	p.logger.Debug("Relocated driver",
		log.Hex("from", f.Descriptor.Base),
		log.Hex("to", dest),
		log.Int("patches", len(reloc.Patches)))

	res := &Result{
		Mode:    options.ModeRepack,
		Patches: len(reloc.Patches),
		Header: psid.Header{
			Magic:       psid.MagicPSID,
			Version:     2,
			LoadAddress: dest,
			InitAddress: moved.Common.Init,
			PlayAddress: moved.Common.Play,
			Songs:       1,
			StartSong:   1,
			Title:       f.Music.Title,
			Author:      f.Music.Author,
			Copyright:   f.Music.Copyright,
			Flags:       psid.FlagClockPAL | psid.FlagModel6581,
		},
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if res.Output, err = psid.Build(res.Header, img.Bytes()); err != nil {
		return nil, fmt.Errorf("writing PSID file: %w", err)
	}
	if p.opts.Verify {
		if err := verification.VerifyRepacked(p.logger, res.Output, res.Header); err != nil {
			return nil, fmt.Errorf("verification failed: %w", err)
		}
		p.logger.Debug("Verification successful")
	}

	if p.opts.Validate {
		converted := validate.Target{Image: img, Init: moved.Common.Init, Play: moved.Common.Play}
		p.compare(tune.Target(), converted, res)
	}
	return res, nil
}

// relocationOptions describes the pointers of a driver image: the code is
// traced from the entry points and the song data is reached through the
// split pointer tables.
func relocationOptions(f *sf2.File) relocate.Options {
	base := f.Descriptor.Base
	return relocate.Options{
		ScanRanges: []relocate.Range{{Start: base, End: base + f.Descriptor.CodeSize}},
		PointerTables: []relocate.PointerTable{
			{
				Low:   f.Music.OrderListPointers,
				High:  f.Music.OrderListPointers + uint16(f.Music.Voices),
				Count: int(f.Music.Voices),
			},
			{
				Low:   f.Music.SequencePointers,
				High:  f.Music.SequencePointers + uint16(f.Music.SequenceStride),
				Count: int(f.Music.Sequences),
			},
		},
		EntryPoints: []uint16{f.Common.Init, f.Common.Play},
	}
}

// Validate compares the register traces of two tunes. Both can be PSID or
// SF2 files.
func (p *Pipeline) Validate(ctx context.Context, original, converted []byte) (*Result, error) {
	if converted == nil {
		return nil, fmt.Errorf("%w: validation requires a second tune", loader.ErrUnknownFormat)
	}
	a, err := p.loader.LoadFromBytes("", original, p.opts.Subtune)
	if err != nil {
		return nil, fmt.Errorf("loading original: %w", err)
	}
	b, err := p.loader.LoadFromBytes("", converted, p.opts.Subtune)
	if err != nil {
		return nil, fmt.Errorf("loading converted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Mode: options.ModeValidate}
	res.Warnings.Append(a.Warnings)
	res.Warnings.Append(b.Warnings)
	p.compare(a.Target(), b.Target(), res)
	return res, nil
}

func (p *Pipeline) compare(original, converted validate.Target, res *Result) {
	report := p.validator.Compare(original, converted, p.opts.Frames)
	res.Accuracy = &report
	res.Warnings.Append(validate.Check(report, p.opts.Threshold))

	if p.opts.Reference {
		res.Warnings.Append(validate.CheckCrossCheck("original",
			validate.CrossCheck(original, p.opts.Frames)))
		res.Warnings.Append(validate.CheckCrossCheck("converted",
			validate.CrossCheck(converted, p.opts.Frames)))
	}
}

// Trace emulates a tune and returns its SID register trace.
func (p *Pipeline) Trace(ctx context.Context, name string, data []byte) (*Result, error) {
	tune, err := p.loader.LoadFromBytes(name, data, p.opts.Subtune)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trace, err := validate.EmulatorSource{}.Trace(tune.Image, tune.Init, tune.Play, tune.Subtune, p.opts.Frames)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	res := &Result{
		Mode:  options.ModeTrace,
		Trace: trace,
	}
	res.Warnings.Append(tune.Warnings)
	if p.opts.Reference {
		res.Warnings.Append(validate.CheckCrossCheck(name, validate.CrossCheck(tune.Target(), p.opts.Frames)))
	}
	if tune.PSID != nil {
		res.Header = tune.PSID.Header
	}
	return res, nil
}
