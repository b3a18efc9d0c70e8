package graph

import (
	"testing"

	"github.com/hankhank/exys-sub000/internal/ast"
	"github.com/hankhank/exys-sub000/internal/errors"
	"github.com/hankhank/exys-sub000/internal/token"
)

func build(t *testing.T, src string) *Graph {
	t.Helper()
	root, err := ast.Read(token.Scan(src))
	if err != nil {
		t.Fatalf("reader error: %v", err)
	}
	g, err := Build(root)
	if err != nil {
		t.Fatalf("constructor error: %v", err)
	}
	return g
}

func findObserver(g *Graph, label string) *Node {
	for _, n := range g.Nodes {
		for _, l := range n.ObserverLabels {
			if l == label {
				return n
			}
		}
	}
	return nil
}

func TestBuildSimpleSum(t *testing.T) {
	g := build(t, `(begin (input double a) (input double b) (observe "s" (+ a b)))`)
	n := findObserver(g, "s")
	if n == nil {
		t.Fatal("observer 's' not found")
	}
	if n.Kind != KindProc || n.Token != "+" {
		t.Fatalf("expected a '+' PROC node, got %#v", n)
	}
	if len(n.Parents) != 2 {
		t.Fatalf("expected 2 parents, got %d", len(n.Parents))
	}
}

func TestBuildLambdaApplication(t *testing.T) {
	g := build(t, `(begin (input double a) (define sq (lambda (v) (* v v))) (observe "r" (sq (+ a 1))))`)
	n := findObserver(g, "r")
	if n == nil {
		t.Fatal("observer 'r' not found")
	}
	if n.Kind != KindGraph {
		t.Fatalf("expected lambda application to produce a GRAPH node, got %s", n.Kind)
	}
	body := g.Node(n.Parents[0])
	if body.Kind != KindProc || body.Token != "*" {
		t.Fatalf("expected '*' body node, got %#v", body)
	}
}

func TestBuildFoldOverInputList(t *testing.T) {
	g := build(t, `(begin (input list x 3) (observe "sum" (fold + 0 x)))`)
	n := findObserver(g, "sum")
	if n == nil {
		t.Fatal("observer 'sum' not found")
	}
	if n.Kind != KindProc || n.Token != "+" {
		t.Fatalf("expected final fold step to be a '+' node, got %#v", n)
	}
}

func TestUnboundSymbolError(t *testing.T) {
	root, _ := ast.Read(token.Scan(`(begin (observe "x" y))`))
	_, err := Build(root)
	if err == nil {
		t.Fatal("expected error")
	}
	gbe, ok := err.(*errors.GraphBuildError)
	if !ok || gbe.Kind != errors.KindUnboundSymbol {
		t.Fatalf("expected UnboundSymbol, got %#v", err)
	}
}

func TestArityErrorOnPlus(t *testing.T) {
	root, _ := ast.Read(token.Scan(`(begin (observe "x" (+ 1)))`))
	_, err := Build(root)
	if err == nil {
		t.Fatal("expected error")
	}
	gbe, ok := err.(*errors.GraphBuildError)
	if !ok || gbe.Kind != errors.KindArityError {
		t.Fatalf("expected ArityError, got %#v", err)
	}
}

func TestInputListLeafLabels(t *testing.T) {
	g := build(t, `(begin (input list xs 2 2) (observe "m" (nth 0 (nth 0 xs))))`)
	var leafLabels []string
	for _, n := range g.Nodes {
		if n.Kind == KindVar && n.IsInput {
			leafLabels = append(leafLabels, n.InputLabels...)
		}
	}
	want := map[string]bool{"xs[0][0]": true, "xs[0][1]": true, "xs[1][0]": true, "xs[1][1]": true}
	if len(leafLabels) != 4 {
		t.Fatalf("expected 4 leaf VARs, got %v", leafLabels)
	}
	for _, l := range leafLabels {
		if !want[l] {
			t.Fatalf("unexpected leaf label %q", l)
		}
	}
}

func TestSharedObserverLeafGetsTwoLabels(t *testing.T) {
	g := build(t, `(begin (input double a) (define s (+ a 1)) (observe "p" s) (observe "q" s))`)
	n := findObserver(g, "p")
	if n == nil || len(n.ObserverLabels) != 2 {
		t.Fatalf("expected shared node to carry 2 observer labels, got %#v", n)
	}
}
