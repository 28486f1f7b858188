package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sidforge/internal/convert"
	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/driver"
	"github.com/retroenv/sidforge/internal/fixture"
	"github.com/retroenv/sidforge/internal/loader"
	"github.com/retroenv/sidforge/internal/options"
	"github.com/retroenv/sidforge/internal/player"
	"github.com/retroenv/sidforge/internal/psid"
	"github.com/retroenv/sidforge/internal/sf2"
	"github.com/retroenv/sidforge/internal/validate"
)

func createTestPipeline(t *testing.T, modify func(opts *options.Conversion)) *Pipeline {
	t.Helper()
	opts := options.NewConversion()
	opts.Frames = 50
	if modify != nil {
		modify(&opts)
	}
	return New(log.NewTestLogger(t), driver.Builtin{}, opts)
}

func createTestPSID(t *testing.T) []byte {
	t.Helper()
	data, err := fixture.PSID(fixture.SourceTables())
	assert.NoError(t, err)
	return data
}

func TestNew(t *testing.T) {
	p := createTestPipeline(t, nil)

	assert.NotNil(t, p)
	assert.NotNil(t, p.logger)
	assert.NotNil(t, p.loader)
	assert.NotNil(t, p.database)
	assert.NotNil(t, p.validator)
}

func TestDecode(t *testing.T) {
	p := createTestPipeline(t, nil)
	expected, warnings, err := convert.ToTarget(fixture.SourceTables())
	assert.NoError(t, err)

	res, err := p.Decode(context.Background(), createTestPSID(t))
	assert.NoError(t, err)
	assert.Equal(t, options.ModeDecode, res.Mode)
	assert.Equal(t, player.LaxityNewPlayer21, res.Player.Player)
	assert.Equal(t, len(warnings), len(res.Warnings))
	assert.False(t, res.Warnings.Has(diag.KindFallback))
	assert.Equal(t, *expected, *res.Tables)
	assert.Equal(t, "Fixture", res.Header.Title)

	f, err := sf2.Parse(res.Output)
	assert.NoError(t, err)
	assert.Equal(t, "Fixture", f.Music.Title)
	assert.Equal(t, "sidforge", f.Music.Author)
	tables, err := sf2.ReadTables(f)
	assert.NoError(t, err)
	assert.Equal(t, *expected, *tables)
}

func TestDecodeUnknownPlayer(t *testing.T) {
	p := createTestPipeline(t, nil)

	payload := append(bytes.Repeat([]byte{0xEA}, 0x200), 0x60)
	h := psid.Header{
		Version:     2,
		LoadAddress: 0x1000,
		InitAddress: 0x1000,
		PlayAddress: 0x1000,
		Songs:       1,
		StartSong:   1,
	}
	data, err := psid.Build(h, payload)
	assert.NoError(t, err)

	res, err := p.Decode(context.Background(), data)
	assert.NoError(t, err)
	assert.Equal(t, player.Unknown, res.Player.Player)
	assert.True(t, res.Warnings.Has(diag.KindUnknownPlayer))
	assert.True(t, res.Warnings.Has(diag.KindFallback))
	assert.True(t, res.Warnings.Has(diag.KindTableNotFound))
	assert.NotEmpty(t, res.Output)
}

func TestRepack(t *testing.T) {
	p := createTestPipeline(t, func(opts *options.Conversion) {
		opts.Validate = true
		opts.Verify = true
	})
	ctx := context.Background()

	decoded, err := p.Decode(ctx, createTestPSID(t))
	assert.NoError(t, err)

	res, err := p.Repack(ctx, decoded.Output, 0x2000)
	assert.NoError(t, err)
	assert.Equal(t, options.ModeRepack, res.Mode)
	assert.True(t, res.Patches > 0)
	assert.NotNil(t, res.Accuracy)
	assert.Equal(t, validate.StatusComplete, res.Accuracy.Status)
	assert.True(t, res.Accuracy.Overall > 0.999)
	assert.False(t, res.Warnings.Has(diag.KindAccuracyBelowThreshold))

	f, err := psid.Parse(res.Output)
	assert.NoError(t, err)
	assert.True(t, f.Warnings.Empty())
	assert.Equal(t, uint16(0x2000), f.Header.LoadAddress)
	assert.Equal(t, "Fixture", f.Header.Title)
	assert.True(t, f.Header.InitAddress >= 0x2000)

	// the repacked tune contains the driver and is read natively
	native, err := p.Decode(ctx, res.Output)
	assert.NoError(t, err)
	assert.Equal(t, player.SF2Driver11, native.Player.Player)
	assert.Equal(t, *decoded.Tables, *native.Tables)
}

func TestRepackKeepAddress(t *testing.T) {
	p := createTestPipeline(t, nil)
	ctx := context.Background()

	decoded, err := p.Decode(ctx, createTestPSID(t))
	assert.NoError(t, err)
	res, err := p.Repack(ctx, decoded.Output, 0)
	assert.NoError(t, err)
	assert.Nil(t, res.Accuracy)
	assert.Equal(t, uint16(driver.DefaultBase), res.Header.LoadAddress)
}

func TestWrongInputFormat(t *testing.T) {
	p := createTestPipeline(t, nil)
	ctx := context.Background()
	data := createTestPSID(t)

	_, err := p.Repack(ctx, data, 0x2000)
	assert.True(t, errors.Is(err, loader.ErrUnknownFormat))

	decoded, err := p.Decode(ctx, data)
	assert.NoError(t, err)
	_, err = p.Decode(ctx, decoded.Output)
	assert.True(t, errors.Is(err, loader.ErrUnknownFormat))

	_, err = p.Decode(ctx, []byte{1, 2, 3, 4})
	assert.True(t, errors.Is(err, diag.ErrFormat))
}

func TestValidate(t *testing.T) {
	p := createTestPipeline(t, nil)
	ctx := context.Background()
	data := createTestPSID(t)

	res, err := p.Validate(ctx, data, data)
	assert.NoError(t, err)
	assert.Equal(t, options.ModeValidate, res.Mode)
	assert.NotNil(t, res.Accuracy)
	assert.Equal(t, 50, res.Accuracy.Frames)
	assert.True(t, res.Warnings.Empty())

	_, err = p.Validate(ctx, data, nil)
	assert.Error(t, err)
}

func TestTrace(t *testing.T) {
	p := createTestPipeline(t, func(opts *options.Conversion) {
		opts.Frames = 10
		opts.Reference = true
	})

	res, err := p.Trace(context.Background(), "tune.sid", createTestPSID(t))
	assert.NoError(t, err)
	assert.Len(t, res.Trace, 10)
	assert.True(t, res.Trace.Writes() > 0)
	assert.False(t, res.Warnings.Has(diag.KindEmulatorMismatch))
}

func TestExecute(t *testing.T) {
	p := createTestPipeline(t, nil)
	ctx := context.Background()

	decoded, err := p.Execute(ctx, "tune.sid", createTestPSID(t), nil)
	assert.NoError(t, err)
	assert.Equal(t, options.ModeDecode, decoded.Mode)

	repacked, err := p.Execute(ctx, "tune.sf2", decoded.Output, nil)
	assert.NoError(t, err)
	assert.Equal(t, options.ModeRepack, repacked.Mode)
}

func TestExecuteCancelled(t *testing.T) {
	p := createTestPipeline(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Execute(ctx, "tune.sid", createTestPSID(t), nil)
	assert.True(t, errors.Is(err, context.Canceled))
}
