package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sidforge/internal/convert"
	"github.com/retroenv/sidforge/internal/detector"
	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/driver"
	"github.com/retroenv/sidforge/internal/fixture"
	"github.com/retroenv/sidforge/internal/sf2"
)

func createTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func createSF2(t *testing.T) []byte {
	t.Helper()
	tables, _, err := convert.ToTarget(fixture.SourceTables())
	assert.NoError(t, err)
	tpl, err := driver.Builtin{}.Template(driver.DefaultName)
	assert.NoError(t, err)
	f, err := sf2.Assemble(tpl, tables, sf2.Metadata{Title: "Test"})
	assert.NoError(t, err)
	data, err := f.Marshal()
	assert.NoError(t, err)
	return data
}

func TestLoad(t *testing.T) {
	psidData, err := fixture.PSID(fixture.SourceTables())
	assert.NoError(t, err)

	t.Run("load PSID file", func(t *testing.T) {
		path := createTempFile(t, "tune.sid", psidData)
		l := New(log.NewTestLogger(t))

		tune, err := l.Load(path, 0)
		assert.NoError(t, err)
		assert.Equal(t, detector.FormatPSID, tune.Format)
		assert.NotNil(t, tune.PSID)
		assert.Nil(t, tune.SF2)
		assert.Equal(t, uint16(fixture.LoadAddress), tune.Init)
		assert.Equal(t, tune.PSID.Header.PlayAddress, tune.Play)
		assert.Equal(t, byte(0), tune.Subtune)
		assert.True(t, tune.Warnings.Empty())

		target := tune.Target()
		assert.Equal(t, tune.Image, target.Image)
	})

	t.Run("load SF2 file", func(t *testing.T) {
		path := createTempFile(t, "tune.sf2", createSF2(t))
		l := New(log.NewTestLogger(t))

		tune, err := l.Load(path, 0)
		assert.NoError(t, err)
		assert.Equal(t, detector.FormatSF2, tune.Format)
		assert.NotNil(t, tune.SF2)
		assert.Equal(t, tune.SF2.Common.Init, tune.Init)
		assert.Equal(t, tune.SF2.Common.Play, tune.Play)
	})

	t.Run("error on non-existent file", func(t *testing.T) {
		l := New(log.NewTestLogger(t))
		_, err := l.Load("/nonexistent/file.sid", 0)
		assert.Error(t, err)
	})
}

func TestLoadFromBytesErrors(t *testing.T) {
	psidData, err := fixture.PSID(fixture.SourceTables())
	assert.NoError(t, err)
	l := New(log.NewTestLogger(t))

	tests := []struct {
		name       string
		file       string
		data       []byte
		subtune    int
		errContain string
	}{
		{
			name:       "unknown format",
			file:       "tune.bin",
			data:       []byte{1, 2, 3, 4},
			errContain: "unknown file format",
		},
		{
			name:       "subtune out of range",
			file:       "tune.sid",
			data:       psidData,
			subtune:    2,
			errContain: "subtune out of range",
		},
		{
			name:       "truncated PSID",
			file:       "tune.sid",
			data:       psidData[:20],
			errContain: "truncated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LoadFromBytes(tt.file, tt.data, tt.subtune)
			assert.ErrorContains(t, err, tt.errContain)
			assert.True(t, errors.Is(err, diag.ErrFormat) || tt.subtune > 0)
		})
	}
}

func TestDrivers(t *testing.T) {
	tpl, err := Drivers("").Template(driver.DefaultName)
	assert.NoError(t, err)
	assert.Equal(t, uint16(driver.DefaultBase), tpl.Base)

	// an empty directory falls back to the built in driver
	tpl, err = Drivers(t.TempDir()).Template(driver.DefaultName)
	assert.NoError(t, err)
	assert.Equal(t, driver.DefaultName, tpl.Name)

	_, err = Drivers(t.TempDir()).Template("missing")
	assert.True(t, errors.Is(err, driver.ErrUnknownDriver))
}
