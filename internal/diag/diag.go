// Package diag contains the structured warnings and error classes that are attached
// to conversion results.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFormat is wrapped by all errors that reject an input file because of an
// invalid container format, like a bad magic or an unsupported version.
var ErrFormat = errors.New("invalid file format")

// Kind classifies a warning.
type Kind int

// Warning kinds. All of them are recoverable, the conversion output is still produced.
const (
	KindUnknownPlayer Kind = iota + 1
	KindTableNotFound
	KindApproximateFilter
	KindDroppedCommand
	KindAccuracyBelowThreshold
	KindValidationInconclusive
	KindFallback
	KindHeader
	KindEmulatorMismatch
	KindDroppedGate
)

var kindNames = map[Kind]string{
	KindUnknownPlayer:          "unknown player",
	KindTableNotFound:          "table not found",
	KindApproximateFilter:      "approximate filter",
	KindDroppedCommand:         "dropped command",
	KindAccuracyBelowThreshold: "accuracy below threshold",
	KindValidationInconclusive: "validation inconclusive",
	KindFallback:               "fallback",
	KindHeader:                 "header",
	KindEmulatorMismatch:       "emulator mismatch",
	KindDroppedGate:            "dropped gate",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Warning is a single structured, non fatal finding.
type Warning struct {
	Kind    Kind
	Table   string // table name for table related warnings, empty otherwise
	Message string
}

func (w Warning) String() string {
	var sb strings.Builder
	sb.WriteString(w.Kind.String())
	if w.Table != "" {
		sb.WriteString(" [")
		sb.WriteString(w.Table)
		sb.WriteString("]")
	}
	if w.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(w.Message)
	}
	return sb.String()
}

// List is an ordered list of warnings.
type List []Warning

// Add appends a warning with a formatted message.
func (l *List) Add(kind Kind, table, format string, args ...any) {
	*l = append(*l, Warning{
		Kind:    kind,
		Table:   table,
		Message: fmt.Sprintf(format, args...),
	})
}

// Append appends all warnings of the other list.
func (l *List) Append(other List) {
	*l = append(*l, other...)
}

// Has returns whether the list contains a warning of the given kind.
func (l List) Has(kind Kind) bool {
	for _, w := range l {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// Count returns the number of warnings of the given kind.
func (l List) Count(kind Kind) int {
	n := 0
	for _, w := range l {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// Empty returns whether the conversion finished without any warning.
func (l List) Empty() bool {
	return len(l) == 0
}
