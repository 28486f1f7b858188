package convert

import (
	"errors"
	"fmt"

	"github.com/retroenv/sidforge/internal/diag"
	"github.com/retroenv/sidforge/internal/music"
)

var (
	errUnknownCommand   = errors.New("unknown source command")
	errNotRepresentable = errors.New("command can not be represented in the source encoding")
)

// paramRule describes how the parameter byte of a super command maps to the
// two parameters of a target record.
type paramRule int

const (
	ruleWhole      paramRule = iota // p1 = fixed, p2 = param
	ruleNibbles                     // p1 = high nibble, p2 = low nibble
	ruleNibblesLow                  // p1 = low nibble, p2 = high nibble
	ruleFirst                       // p1 = param, p2 = 0
	ruleLowNibble                   // p1 = fixed, p2 = param & $0F
)

type commandRule struct {
	typ   music.CommandType
	rule  paramRule
	fixed byte // p1 for ruleWhole and ruleLowNibble
}

// commandRules maps source command bytes to target command records.
var commandRules = [...]commandRule{
	0x00: {music.CommandSlide, ruleWhole, 0x00},      // slide up, speed
	0x01: {music.CommandSlide, ruleWhole, 0x80},      // slide down, speed
	0x02: {music.CommandVibrato, ruleNibblesLow, 0},  // depth high nibble, speed low nibble
	0x03: {music.CommandPortamento, ruleWhole, 0},    // speed
	0x04: {music.CommandArpeggio, ruleNibbles, 0},    // two note offsets
	0x05: {music.CommandFretSlide, ruleWhole, 0},     // speed
	0x06: {music.CommandADSRNote, ruleFirst, 0},      // attack/decay for the note
	0x07: {music.CommandADSRPersist, ruleFirst, 0},   // attack/decay until changed
	0x08: {music.CommandFilterProgram, ruleWhole, 0}, // filter table index
	0x09: {music.CommandWaveProgram, ruleWhole, 0},   // wave table index
	0x0A: {music.CommandPulseProgram, ruleWhole, 0},  // pulse table index
	0x0B: {music.CommandTempo, ruleWhole, 0},         // frames per row
	0x0C: {music.CommandVolume, ruleLowNibble, 0},    // master volume
}

// DecomposeCommand converts a source super command into a target record with
// each logical parameter in its own field.
func DecomposeCommand(sc music.SuperCommand) (music.Command, error) {
	if int(sc.Command) >= len(commandRules) {
		return music.Command{}, fmt.Errorf("%w $%02X", errUnknownCommand, sc.Command)
	}

	r := commandRules[sc.Command]
	cmd := music.Command{Type: r.typ}
	switch r.rule {
	case ruleWhole:
		cmd.Param1, cmd.Param2 = r.fixed, sc.Param
	case ruleNibbles:
		cmd.Param1, cmd.Param2 = sc.Param>>4, sc.Param&0x0F
	case ruleNibblesLow:
		cmd.Param1, cmd.Param2 = sc.Param&0x0F, sc.Param>>4
	case ruleFirst:
		cmd.Param1 = sc.Param
	case ruleLowNibble:
		cmd.Param1, cmd.Param2 = r.fixed, sc.Param&0x0F
	}
	return cmd, nil
}

// ComposeCommand converts a target record back into a source super command.
func ComposeCommand(cmd music.Command) (music.SuperCommand, error) {
	for i, r := range commandRules {
		if r.typ != cmd.Type {
			continue
		}
		if param, ok := r.compose(cmd); ok {
			return music.SuperCommand{Command: byte(i), Param: param}, nil
		}
	}
	return music.SuperCommand{}, fmt.Errorf("%w: %s $%02X $%02X", errNotRepresentable, cmd.Type, cmd.Param1, cmd.Param2)
}

func (r commandRule) compose(cmd music.Command) (byte, bool) {
	switch r.rule {
	case ruleWhole:
		return cmd.Param2, cmd.Param1 == r.fixed
	case ruleNibbles:
		return cmd.Param1<<4 | cmd.Param2, cmd.Param1 <= 0x0F && cmd.Param2 <= 0x0F
	case ruleNibblesLow:
		return cmd.Param2<<4 | cmd.Param1, cmd.Param1 <= 0x0F && cmd.Param2 <= 0x0F
	case ruleFirst:
		return cmd.Param1, cmd.Param2 == 0
	case ruleLowNibble:
		return cmd.Param2, cmd.Param1 == r.fixed && cmd.Param2 <= 0x0F
	default:
		return 0, false
	}
}

// noopCommand replaces commands that can not be converted, a slide with speed 0
// has no audible effect.
var noopCommand = music.Command{Type: music.CommandSlide}

// DecomposeCommands converts the source command table. Unknown commands keep
// their table index as a no-op record and are reported.
func DecomposeCommands(commands []music.SuperCommand) ([]music.Command, diag.List) {
	var warnings diag.List
	out := make([]music.Command, len(commands))

	for i, sc := range commands {
		cmd, err := DecomposeCommand(sc)
		if err != nil {
			warnings.Add(diag.KindDroppedCommand, music.TableCommands.String(), "command %d: %v", i, err)
			cmd = noopCommand
		}
		out[i] = cmd
	}
	return out, warnings
}

// ComposeCommands converts the target command table back into source super
// commands. Records without a source equivalent keep their index as a no-op.
func ComposeCommands(commands []music.Command) ([]music.SuperCommand, diag.List) {
	var warnings diag.List
	out := make([]music.SuperCommand, len(commands))
	noop, _ := ComposeCommand(noopCommand)

	for i, cmd := range commands {
		sc, err := ComposeCommand(cmd)
		if err != nil {
			warnings.Add(diag.KindDroppedCommand, music.TableCommands.String(), "command %d: %v", i, err)
			sc = noop
		}
		out[i] = sc
	}
	return out, warnings
}
