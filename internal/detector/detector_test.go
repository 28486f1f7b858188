package detector

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func TestDetect(t *testing.T) {
	logger := log.NewTestLogger(t)
	d := New(logger)

	tests := []struct {
		name       string
		inputFile  string
		data       []byte
		wantFormat Format
	}{
		{
			name:       "PSID magic",
			inputFile:  "tune.bin",
			data:       []byte("PSID\x00\x02"),
			wantFormat: FormatPSID,
		},
		{
			name:       "RSID magic",
			inputFile:  "tune.sf2",
			data:       []byte("RSID\x00\x02"),
			wantFormat: FormatPSID,
		},
		{
			name:       "SF2 magic after load address",
			inputFile:  "tune.sid",
			data:       []byte{0x00, 0x0F, 0x37, 0x13, 0x01},
			wantFormat: FormatSF2,
		},
		{
			name:       "detect from .sid extension",
			inputFile:  "tune.sid",
			data:       nil,
			wantFormat: FormatPSID,
		},
		{
			name:       "detect from .SF2 extension (uppercase)",
			inputFile:  "TUNE.SF2",
			data:       []byte{0x01, 0x02},
			wantFormat: FormatSF2,
		},
		{
			name:       "unknown",
			inputFile:  "tune.bin",
			data:       []byte{0x01, 0x02, 0x03, 0x04},
			wantFormat: FormatUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.inputFile, tt.data)
			assert.Equal(t, tt.wantFormat, got)
		})
	}
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "PSID", FormatPSID.String())
	assert.Equal(t, "SF2", FormatSF2.String())
	assert.Equal(t, "unknown", FormatUnknown.String())
}
