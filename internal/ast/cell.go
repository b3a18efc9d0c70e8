// Package ast assembles a token stream into a rooted tree of cells: lists,
// symbols, and numbers, with a Root wrapping the whole program.
package ast

import "github.com/hankhank/exys-sub000/internal/errors"

// Cell is the tagged-variant AST node. Root does not implement Cell; it is
// always the tree's entry point, never a child.
type Cell interface {
	Span() errors.Span
	cell()
}

// List is a parenthesised form; its first child, if a Symbol, is the form's
// head (a special form or procedure name).
type List struct {
	Children []Cell
	span     errors.Span
}

func (l *List) Span() errors.Span { return l.span }
func (*List) cell()               {}

// Symbol is any atom that is not a Number.
type Symbol struct {
	Text string
	span errors.Span
}

func (s *Symbol) Span() errors.Span { return s.span }
func (*Symbol) cell()               {}

// Number is an atom recognised as INF, NAN, a digit-prefixed literal, or a
// '-'-prefixed digit literal.
type Number struct {
	Text string
	span errors.Span
}

func (n *Number) Span() errors.Span { return n.span }
func (*Number) cell()               {}

// Root wraps an entire program: a sequence of top-level forms.
type Root struct {
	Children []Cell
}

// NewList, NewSymbol, NewNumber are exported constructors so callers outside
// the package can build cells without reaching into unexported fields; the
// reader builds every cell through them.
func NewList(children []Cell, span errors.Span) *List   { return &List{Children: children, span: span} }
func NewSymbol(text string, span errors.Span) *Symbol    { return &Symbol{Text: text, span: span} }
func NewNumber(text string, span errors.Span) *Number    { return &Number{Text: text, span: span} }
