package ast

import (
	"testing"

	"github.com/hankhank/exys-sub000/internal/errors"
	"github.com/hankhank/exys-sub000/internal/token"
)

func read(t *testing.T, src string) *Root {
	t.Helper()
	root, err := Read(token.Scan(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return root
}

func TestReadSimpleList(t *testing.T) {
	root := read(t, "(+ 1 2)")
	if len(root.Children) != 1 {
		t.Fatalf("expected 1 top-level form, got %d", len(root.Children))
	}
	list, ok := root.Children[0].(*List)
	if !ok {
		t.Fatalf("expected *List, got %T", root.Children[0])
	}
	if len(list.Children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(list.Children))
	}
	if sym, ok := list.Children[0].(*Symbol); !ok || sym.Text != "+" {
		t.Fatalf("expected head symbol '+', got %#v", list.Children[0])
	}
	if num, ok := list.Children[1].(*Number); !ok || num.Text != "1" {
		t.Fatalf("expected number '1', got %#v", list.Children[1])
	}
}

func TestReadNegativeNumberVsSymbol(t *testing.T) {
	root := read(t, "(- -5 x)")
	list := root.Children[0].(*List)
	if _, ok := list.Children[1].(*Number); !ok {
		t.Fatalf("expected -5 to be a Number")
	}
	if sym, ok := list.Children[0].(*Symbol); !ok || sym.Text != "-" {
		t.Fatalf("expected bare '-' to be a Symbol, got %#v", list.Children[0])
	}
}

func TestReadNestedLists(t *testing.T) {
	root := read(t, "(begin (define a 1) (observe \"s\" a))")
	list := root.Children[0].(*List)
	if len(list.Children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(list.Children))
	}
}

func TestUnmatchedClose(t *testing.T) {
	_, err := Read(token.Scan("(+ 1 2))"))
	if err == nil {
		t.Fatal("expected error")
	}
	pe, ok := err.(*errors.ParseError)
	if !ok || pe.Kind != errors.KindUnmatchedClose {
		t.Fatalf("expected UnmatchedClose, got %#v", err)
	}
}

func TestUnclosedOpen(t *testing.T) {
	_, err := Read(token.Scan("(+ 1 (* 2 3)"))
	if err == nil {
		t.Fatal("expected error")
	}
	pe, ok := err.(*errors.ParseError)
	if !ok || pe.Kind != errors.KindUnclosedOpen {
		t.Fatalf("expected UnclosedOpen, got %#v", err)
	}
}

func TestINFandNANAreNumbers(t *testing.T) {
	root := read(t, "(+ INF NAN)")
	list := root.Children[0].(*List)
	if _, ok := list.Children[1].(*Number); !ok {
		t.Fatalf("expected INF to be a Number")
	}
	if _, ok := list.Children[2].(*Number); !ok {
		t.Fatalf("expected NAN to be a Number")
	}
}
