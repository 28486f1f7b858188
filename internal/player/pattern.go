package player

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errEmptyPattern = errors.New("empty pattern")

// Pattern is a byte pattern with wildcard positions.
type Pattern struct {
	text  string
	bytes []byte
	mask  []bool // true for positions that have to match
}

// ParsePattern parses a pattern in the form "A9 ?? 8D 18 D4", where ?? matches any byte.
func ParsePattern(s string) (Pattern, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Pattern{}, errEmptyPattern
	}

	p := Pattern{
		text:  s,
		bytes: make([]byte, len(fields)),
		mask:  make([]bool, len(fields)),
	}
	for i, field := range fields {
		if field == "??" {
			continue
		}
		b, err := strconv.ParseUint(field, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("parsing pattern byte %d '%s': %w", i, field, err)
		}
		p.bytes[i] = byte(b)
		p.mask[i] = true
	}
	if !p.mask[0] {
		return Pattern{}, fmt.Errorf("pattern '%s' starts with a wildcard", s)
	}
	return p, nil
}

// MustParsePattern parses a pattern and panics on error, it is used for the built in database.
func MustParsePattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pattern) String() string {
	return p.text
}

// Len returns the length of the pattern in bytes.
func (p Pattern) Len() int {
	return len(p.bytes)
}

// Index returns the offset of the first match in data or -1.
func (p Pattern) Index(data []byte) int {
	first := p.bytes[0]
	for i := 0; i+len(p.bytes) <= len(data); i++ {
		if data[i] != first {
			continue
		}
		if p.matchAt(data, i) {
			return i
		}
	}
	return -1
}

func (p Pattern) matchAt(data []byte, offset int) bool {
	for j, b := range p.bytes {
		if p.mask[j] && data[offset+j] != b {
			return false
		}
	}
	return true
}
