package ast

import (
	"github.com/hankhank/exys-sub000/internal/errors"
	"github.com/hankhank/exys-sub000/internal/token"
)

// Read assembles a token stream into a Root cell tree. It fails on the first
// structural error: an unmatched ')' or an end of input with an open '('.
func Read(tokens []token.Token) (*Root, error) {
	type frame struct {
		children []Cell
		span     errors.Span
	}
	stack := []frame{{}}

	for _, tok := range tokens {
		switch {
		case tok.IsOpen():
			stack = append(stack, frame{span: spanOf(tok)})

		case tok.IsClose():
			if len(stack) <= 1 {
				return nil, &errors.ParseError{
					Kind:    errors.KindUnmatchedClose,
					Message: "unmatched ')'",
					Span:    spanOf(tok),
				}
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			top.span.EndLine = tok.EndLine
			top.span.EndColumn = tok.EndColumn
			list := NewList(top.children, top.span)
			parent := &stack[len(stack)-1]
			parent.children = append(parent.children, list)

		default:
			var cell Cell
			if isNumberToken(tok.Text) {
				cell = NewNumber(tok.Text, spanOf(tok))
			} else {
				cell = NewSymbol(tok.Text, spanOf(tok))
			}
			parent := &stack[len(stack)-1]
			parent.children = append(parent.children, cell)
		}
	}

	if len(stack) > 1 {
		return nil, &errors.ParseError{
			Kind:    errors.KindUnclosedOpen,
			Message: "unclosed '('",
			Span:    stack[len(stack)-1].span,
		}
	}

	return &Root{Children: stack[0].children}, nil
}

func spanOf(tok token.Token) errors.Span {
	return errors.Span{
		FirstLine:   tok.FirstLine,
		FirstColumn: tok.FirstColumn,
		EndLine:     tok.EndLine,
		EndColumn:   tok.EndColumn,
	}
}

// isNumberToken decides Number vs Symbol per spec.md §4.2: INF, NAN, a
// digit-prefixed literal, or '-' followed by a digit.
func isNumberToken(text string) bool {
	if text == "INF" || text == "NAN" {
		return true
	}
	if len(text) == 0 {
		return false
	}
	if isDigit(text[0]) {
		return true
	}
	if text[0] == '-' && len(text) > 1 && isDigit(text[1]) {
		return true
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
