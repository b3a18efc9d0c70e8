package errors

import (
	"os"

	"github.com/mattn/go-isatty"
)

// TerminalHighlighter highlights the caret line of a diagnostic only when
// the given file descriptor is attached to a real terminal, the way
// CLI-adjacent tools in the corpus gate color output.
type TerminalHighlighter struct {
	File *os.File
}

func (t TerminalHighlighter) Highlight() bool {
	if t.File == nil {
		return false
	}
	return isatty.IsTerminal(t.File.Fd()) || isatty.IsCygwinTerminal(t.File.Fd())
}

// StderrHighlighter is the common case: highlight when stderr is a terminal.
func StderrHighlighter() TerminalHighlighter {
	return TerminalHighlighter{File: os.Stderr}
}
