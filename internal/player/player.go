// Package player identifies the music player routine of a memory image by matching
// known code fingerprints.
package player

import (
	"fmt"
	"sync"

	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/memory"
	"github.com/retroenv/sidforge/internal/music"
)

// Player is a known player routine.
type Player int

const (
	Unknown Player = iota
	LaxityNewPlayer21
	SF2Driver11
	GoatTracker2
)

func (p Player) String() string {
	switch p {
	case Unknown:
		return "unknown"
	case LaxityNewPlayer21:
		return "Laxity NewPlayer v21"
	case SF2Driver11:
		return "SID Factory II driver 11"
	case GoatTracker2:
		return "GoatTracker 2"
	default:
		return fmt.Sprintf("player(%d)", int(p))
	}
}

// Strategy is the conversion strategy used for a player.
type Strategy int

const (
	// StrategyScan locates all tables by scanning the whole image.
	StrategyScan Strategy = iota
	// StrategyLayout tries the known table layout of the player before scanning.
	StrategyLayout
	// StrategyNative reads tables that are already in the target encoding.
	StrategyNative
)

func (s Strategy) String() string {
	switch s {
	case StrategyScan:
		return "scan"
	case StrategyLayout:
		return "layout"
	case StrategyNative:
		return "native"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Strategy returns the conversion strategy for the player.
func (p Player) Strategy() Strategy {
	switch p {
	case LaxityNewPlayer21:
		return StrategyLayout
	case SF2Driver11:
		return StrategyNative
	case GoatTracker2, Unknown:
		return StrategyScan
	default:
		return StrategyScan
	}
}

// MatchThreshold is the minimum ratio of matched patterns of a signature to
// accept the player identification.
const MatchThreshold = 0.75

// Layout contains table locations relative to the load address.
type Layout map[music.TableKind]uint16

// Signature is the fingerprint of a player.
type Signature struct {
	Player   Player
	Name     string
	Patterns []Pattern
	Layout   Layout
}

// Match is the result of matching an image against the database.
type Match struct {
	Player     Player
	Confidence float64
	Checks     []string // patterns that matched
	Signature  *Signature
	Warnings   diag.List
}

// Layout returns the table layout hint for the matched player, nil if none is known.
func (m Match) Layout() Layout {
	if m.Signature == nil || m.Player == Unknown {
		return nil
	}
	return m.Signature.Layout
}

// Database is an immutable set of signatures that is safe for concurrent use.
type Database struct {
	signatures []Signature
}

// NewDatabase returns a database of the given signatures.
func NewDatabase(signatures ...Signature) *Database {
	return &Database{
		signatures: append([]Signature(nil), signatures...),
	}
}

// DefaultDatabase returns the database of the built in signatures, it is created
// once and shared.
var DefaultDatabase = sync.OnceValue(func() *Database {
	return NewDatabase(builtinSignatures()...)
})

// Signatures returns the number of signatures in the database.
func (d *Database) Signatures() int {
	return len(d.signatures)
}

// Match scores the loaded range of the image against all signatures and returns
// the best match. Images that do not reach MatchThreshold for any signature
// return an Unknown match with a warning.
func (d *Database) Match(img *memory.Image) Match {
	data := img.Bytes()
	best := Match{Player: Unknown}

	for i := range d.signatures {
		sig := &d.signatures[i]
		confidence, checks := Score(sig, data)
		if confidence > best.Confidence {
			best = Match{
				Player:     sig.Player,
				Confidence: confidence,
				Checks:     checks,
				Signature:  sig,
			}
		}
	}

	if best.Confidence < MatchThreshold {
		best.Warnings.Add(diag.KindUnknownPlayer, "", "best match %s with confidence %.2f below %.2f",
			best.Player, best.Confidence, MatchThreshold)
		best.Player = Unknown
	}
	return best
}

// Score returns the ratio of signature patterns found in data and the patterns
// that were found.
func Score(sig *Signature, data []byte) (float64, []string) {
	if len(sig.Patterns) == 0 {
		return 0, nil
	}

	var checks []string
	for _, p := range sig.Patterns {
		if p.Index(data) >= 0 {
			checks = append(checks, p.String())
		}
	}
	return float64(len(checks)) / float64(len(sig.Patterns)), checks
}
