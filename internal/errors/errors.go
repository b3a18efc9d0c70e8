// Package errors carries source-location information through the parser and
// graph constructor and renders one-line pointer diagnostics.
package errors

import (
	"fmt"
	"strings"
)

// Span is a half-open-in-spirit but inclusive-end source range. Columns are
// 0-indexed; EndColumn is inclusive of the last character of the span.
type Span struct {
	FirstLine   int
	FirstColumn int
	EndLine     int
	EndColumn   int
}

// Kind distinguishes the error variants named in the specification.
type Kind string

const (
	KindUnmatchedClose Kind = "UnmatchedClose"
	KindUnclosedOpen   Kind = "UnclosedOpen"
	KindUnboundSymbol  Kind = "UnboundSymbol"
	KindNotAProcedure  Kind = "NotAProcedure"
	KindArityError     Kind = "ArityError"
	KindKindError      Kind = "KindError"
	KindLayoutError    Kind = "LayoutError"
)

// ParseError is produced by the tokeniser and reader.
type ParseError struct {
	Kind    Kind
	Message string
	Span    Span
}

func (e *ParseError) Error() string { return e.Message }

// GraphBuildError is produced by the graph constructor and layout planner.
type GraphBuildError struct {
	Kind    Kind
	Message string
	Span    Span
}

func (e *GraphBuildError) Error() string { return e.Message }

// Located is satisfied by both error variants; Render uses it to print the
// three-line pointer diagnostic without caring which kind it is.
type Located interface {
	error
	Location() Span
}

func (e *ParseError) Location() Span      { return e.Span }
func (e *GraphBuildError) Location() Span { return e.Span }

// Highlighter decides whether Render should wrap the caret line in ANSI
// highlighting. Tests and non-terminal callers pass a Highlighter that
// always returns false.
type Highlighter interface {
	Highlight() bool
}

// PlainHighlighter never highlights; TerminalHighlighter (see isatty.go)
// highlights when stdout/stderr is attached to a terminal.
type PlainHighlighter struct{}

func (PlainHighlighter) Highlight() bool { return false }

// Render produces the three-line block specified in spec.md §4.7:
//
//	Line N: Error: <msg>
//	<the offending source line>
//	<caret at firstColumn>
func Render(err Located, source string) string {
	span := err.Location()
	lines := strings.Split(source, "\n")

	var sourceLine string
	if span.FirstLine-1 >= 0 && span.FirstLine-1 < len(lines) {
		sourceLine = lines[span.FirstLine-1]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Line %d: Error: %s\n", span.FirstLine, err.Error())
	sb.WriteString(sourceLine)
	sb.WriteByte('\n')
	if span.FirstColumn > 0 {
		sb.WriteString(strings.Repeat(" ", span.FirstColumn))
	}
	sb.WriteByte('^')
	return sb.String()
}

// RenderHighlighted is Render with the caret line optionally wrapped in ANSI
// bold-red, gated by h.Highlight().
func RenderHighlighted(err Located, source string, h Highlighter) string {
	plain := Render(err, source)
	if h == nil || !h.Highlight() {
		return plain
	}
	i := strings.LastIndex(plain, "\n")
	if i < 0 {
		return plain
	}
	return plain[:i+1] + "\x1b[1;31m" + plain[i+1:] + "\x1b[0m"
}
