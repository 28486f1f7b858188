package player

import "github.com/retroenv/sidforge/internal/music"

// LaxityLayout is the table layout of NewPlayer v21 tunes relative to the load
// address. Sequence and order list entries point to split lo/hi pointer tables.
var LaxityLayout = Layout{
	music.TableInstruments: 0x0100,
	music.TableWave:        0x0200,
	music.TablePulse:       0x0300,
	music.TableFilter:      0x0400,
	music.TableCommands:    0x0500,
	music.TableOrderLists:  0x0540,
	music.TableSequences:   0x0548,
}

// SF2Driver11Layout is the table layout of the register stream driver 11 relative
// to the driver base address.
var SF2Driver11Layout = Layout{
	music.TableInstruments: 0x0100,
	music.TableCommands:    0x01C0,
	music.TableWave:        0x0300,
	music.TablePulse:       0x0400,
	music.TableFilter:      0x0500,
	music.TableOrderLists:  0x0600,
	music.TableSequences:   0x0606,
}

func builtinSignatures() []Signature {
	return []Signature{
		{
			Player: LaxityNewPlayer21,
			Name:   "NewPlayer v21",
			Patterns: []Pattern{
				MustParsePattern("A2 18 A9 00 9D 00 D4 CA 10 FA"),       // clear SID registers
				MustParsePattern("B9 ?? ?? 9D 02 D4 B9 ?? ?? 9D 03 D4"), // pulse table, x4 index in Y
				MustParsePattern("C9 7F D0 ?? B9 ?? ??"),                // wave table jump marker
				MustParsePattern("C9 A0 90 ?? 29 1F"),                   // sequence instrument byte
			},
			Layout: LaxityLayout,
		},
		{
			Player: SF2Driver11,
			Name:   "driver 11",
			Patterns: []Pattern{
				MustParsePattern("A9 0F 8D 18 D4 A9 00 8D"),
				MustParsePattern("EE ?? ?? AD ?? ?? 29 1F AA 20"),
				MustParsePattern("BD ?? ?? 8D 05 D4 BD ?? ?? 8D 06 D4"),
			},
			Layout: SF2Driver11Layout,
		},
		{
			Player: GoatTracker2,
			Name:   "GoatTracker v2",
			Patterns: []Pattern{
				MustParsePattern("A9 00 2C ?? ?? 30 ?? 70 ??"),
				MustParsePattern("BD ?? ?? 9D 04 D4 BD ?? ?? 9D 05 D4 BD ?? ?? 9D 06 D4"),
				MustParsePattern("C9 FF F0 ?? C9 F0"),
			},
		},
	}
}
