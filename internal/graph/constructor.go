package graph

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hankhank/exys-sub000/internal/ast"
	"github.com/hankhank/exys-sub000/internal/errors"
	"github.com/hankhank/exys-sub000/internal/ops"
)

var formNames = []string{
	"map", "for-each", "fold", "zip", "list",
	"car", "head", "cdr", "rest", "iota", "nth", "append", "apply",
}

// Constructor walks a Root cell, building the node DAG described in
// spec.md §4.3.
type Constructor struct {
	graph *Graph
}

func NewConstructor() *Constructor {
	return &Constructor{graph: NewGraph()}
}

// Build runs the constructor over root's first top-level (begin ...) form
// and returns the resulting graph.
func Build(root *ast.Root) (*Graph, error) {
	c := NewConstructor()
	rootScope := NewScope(nil)
	c.bindBuiltins(rootScope)

	body, err := findProgramBody(root)
	if err != nil {
		return nil, err
	}
	if _, err := c.buildBegin(body, rootScope); err != nil {
		return nil, err
	}
	return c.graph, nil
}

func findProgramBody(root *ast.Root) (*ast.List, error) {
	for _, child := range root.Children {
		if list, ok := child.(*ast.List); ok {
			if len(list.Children) > 0 {
				if head, ok := list.Children[0].(*ast.Symbol); ok && head.Text == "begin" {
					return list, nil
				}
			}
		}
	}
	return nil, &errors.GraphBuildError{
		Kind:    errors.KindLayoutError,
		Message: "program has no top-level (begin ...) form",
	}
}

func (c *Constructor) bindBuiltins(scope *Scope) {
	for name := range ops.Table {
		n := c.graph.newNode(KindProcFactory, name)
		n.Factory = &Factory{Kind: FactoryBuiltinOp, Name: name}
		scope.Define(name, n)
	}
	for _, name := range formNames {
		n := c.graph.newNode(KindProcFactory, name)
		n.Factory = &Factory{Kind: FactoryBuiltinForm, Name: name}
		scope.Define(name, n)
	}
}

// buildExpr builds the node a single cell denotes, recursively.
func (c *Constructor) buildExpr(cell ast.Cell, scope *Scope) (*Node, error) {
	switch v := cell.(type) {
	case *ast.Number:
		return c.buildNumber(v)
	case *ast.Symbol:
		n, ok := scope.Lookup(v.Text)
		if !ok {
			return nil, unboundSymbol(v.Text, v.Span())
		}
		return n, nil
	case *ast.List:
		return c.buildList(v, scope)
	default:
		return nil, fmt.Errorf("unknown cell type %T", cell)
	}
}

func (c *Constructor) buildNumber(n *ast.Number) (*Node, error) {
	val, err := parseNumber(n.Text)
	if err != nil {
		return nil, kindErr(fmt.Sprintf("invalid numeric literal %q", n.Text), n.Span())
	}
	node := c.graph.newNode(KindConst, n.Text)
	node.InitValue = val
	return node, nil
}

func parseNumber(text string) (float64, error) {
	switch text {
	case "INF":
		return math.Inf(1), nil
	case "NAN":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(text, 64)
}

func (c *Constructor) buildList(list *ast.List, scope *Scope) (*Node, error) {
	if len(list.Children) == 0 {
		return nil, arityErr("empty form", list.Span())
	}
	head, ok := list.Children[0].(*ast.Symbol)
	if !ok {
		return nil, notAProcedure("head of a list must be a symbol", list.Span())
	}

	switch head.Text {
	case "begin":
		return c.buildBegin(list, scope)
	case "define":
		return c.buildDefine(list, scope)
	case "set!":
		return c.buildSet(list, scope)
	case "lambda":
		return c.buildLambda(list, scope)
	case "input":
		return c.buildInput(list, scope)
	case "observe":
		return c.buildObserve(list, scope)
	}

	factoryNode, ok := scope.Lookup(head.Text)
	if !ok {
		return nil, unboundSymbol(head.Text, head.Span())
	}
	if factoryNode.Kind != KindProcFactory {
		return nil, notAProcedure(fmt.Sprintf("%q does not name a procedure", head.Text), head.Span())
	}
	return c.applyFactory(factoryNode, list.Children[1:], scope, list.Span())
}

func (c *Constructor) buildBegin(list *ast.List, scope *Scope) (*Node, error) {
	body := list.Children[1:]
	if len(body) == 0 {
		return nil, arityErr("begin requires at least one expression", list.Span())
	}
	var last *Node
	for _, child := range body {
		n, err := c.buildExpr(child, scope)
		if err != nil {
			return nil, err
		}
		last = n
	}
	return last, nil
}

func (c *Constructor) buildDefine(list *ast.List, scope *Scope) (*Node, error) {
	args := list.Children[1:]
	if len(args) != 2 {
		return nil, arityErr("define expects (define name expr)", list.Span())
	}
	nameSym, ok := args[0].(*ast.Symbol)
	if !ok {
		return nil, kindErr("define name must be a symbol", args[0].Span())
	}
	val, err := c.buildExpr(args[1], scope)
	if err != nil {
		return nil, err
	}
	scope.Define(nameSym.Text, val)
	return val, nil
}

func (c *Constructor) buildSet(list *ast.List, scope *Scope) (*Node, error) {
	args := list.Children[1:]
	if len(args) != 2 {
		return nil, arityErr("set! expects (set! name expr)", list.Span())
	}
	nameSym, ok := args[0].(*ast.Symbol)
	if !ok {
		return nil, kindErr("set! name must be a symbol", args[0].Span())
	}
	val, err := c.buildExpr(args[1], scope)
	if err != nil {
		return nil, err
	}
	if !scope.Set(nameSym.Text, val) {
		return nil, unboundSymbol(nameSym.Text, nameSym.Span())
	}
	return val, nil
}

func (c *Constructor) buildLambda(list *ast.List, scope *Scope) (*Node, error) {
	args := list.Children[1:]
	if len(args) != 2 {
		return nil, arityErr("lambda expects (lambda (params...) body)", list.Span())
	}
	paramList, ok := args[0].(*ast.List)
	if !ok {
		return nil, kindErr("lambda parameter list must be a list", args[0].Span())
	}
	params := make([]string, 0, len(paramList.Children))
	for _, pc := range paramList.Children {
		sym, ok := pc.(*ast.Symbol)
		if !ok {
			return nil, kindErr("lambda parameters must be symbols", pc.Span())
		}
		params = append(params, sym.Text)
	}
	node := c.graph.newNode(KindProcFactory, "lambda")
	node.Factory = &Factory{Kind: FactoryLambda, Params: params, Body: args[1], CapturedScope: scope}
	return node, nil
}

// buildInput declares one or more scalar inputs, or (with a "list" tag) an
// input list. The leading type tag is optional: "double"/"bool"/"int"/"uint"
// are recognised and consumed but otherwise ignored (every Node is a
// TypeDouble per spec.md §3), so both `(input double a)` and the bare
// `(input a)` form spec.md §8's scenarios use are accepted.
func (c *Constructor) buildInput(list *ast.List, scope *Scope) (*Node, error) {
	args := list.Children[1:]
	if len(args) < 1 {
		return nil, arityErr("input requires at least one name", list.Span())
	}

	names := args
	if tag, ok := args[0].(*ast.Symbol); ok {
		switch tag.Text {
		case "list":
			return c.buildInputList(args[1:], scope, list.Span())
		case "double", "bool", "int", "uint":
			names = args[1:]
		}
	}
	if len(names) == 0 {
		return nil, arityErr("input requires at least one name", list.Span())
	}
	var last *Node
	for _, nc := range names {
		sym, ok := nc.(*ast.Symbol)
		if !ok {
			return nil, kindErr("input name must be a symbol", nc.Span())
		}
		v := c.graph.newNode(KindVar, sym.Text)
		v.IsInput = true
		v.InputLabels = []string{sym.Text}
		scope.Define(sym.Text, v)
		last = v
	}
	return last, nil
}

func (c *Constructor) buildInputList(rest []ast.Cell, scope *Scope, span errors.Span) (*Node, error) {
	if len(rest) < 2 {
		return nil, arityErr("input list requires a name and at least one dimension", span)
	}
	nameSym, ok := rest[0].(*ast.Symbol)
	if !ok {
		return nil, kindErr("input list name must be a symbol", rest[0].Span())
	}
	dims := make([]int, 0, len(rest)-1)
	for _, dc := range rest[1:] {
		numCell, ok := dc.(*ast.Number)
		if !ok {
			return nil, kindErr("input list dimension must be a number", dc.Span())
		}
		dim, err := strconv.Atoi(numCell.Text)
		if err != nil || dim < 0 {
			return nil, kindErr(fmt.Sprintf("invalid input list dimension %q", numCell.Text), numCell.Span())
		}
		dims = append(dims, dim)
	}
	node := c.buildInputLeafOrList(nameSym.Text, dims)
	scope.Define(nameSym.Text, node)
	return node, nil
}

// buildInputLeafOrList recursively materialises a k-dimensional input list.
// The outermost call's label carries no index suffix; every deeper call
// appends [i] for the dimension it is resolving.
func (c *Constructor) buildInputLeafOrList(label string, dims []int) *Node {
	if len(dims) == 0 {
		v := c.graph.newNode(KindVar, label)
		v.IsInput = true
		v.InputLabels = []string{label}
		return v
	}
	n := dims[0]
	children := make([]NodeID, n)
	for i := 0; i < n; i++ {
		childLabel := fmt.Sprintf("%s[%d]", label, i)
		child := c.buildInputLeafOrList(childLabel, dims[1:])
		children[i] = child.ID
	}
	list := c.graph.newNode(KindList, "list")
	list.Parents = children
	list.Length = n
	list.IsInput = true
	list.InputLabels = []string{label}
	return list
}

func (c *Constructor) buildObserve(list *ast.List, scope *Scope) (*Node, error) {
	args := list.Children[1:]
	if len(args) != 2 {
		return nil, arityErr("observe expects (observe \"label\" expr)", list.Span())
	}
	labelSym, ok := args[0].(*ast.Symbol)
	if !ok {
		return nil, kindErr("observe label must be a string literal", args[0].Span())
	}
	label := stripQuotes(labelSym.Text)
	val, err := c.buildExpr(args[1], scope)
	if err != nil {
		return nil, err
	}
	c.attachObserverLabel(val, label)
	return val, nil
}

func (c *Constructor) attachObserverLabel(node *Node, label string) {
	node.ObserverLabels = append(node.ObserverLabels, label)
	node.IsObserver = true
	if node.Kind == KindList {
		for i, pid := range node.Parents {
			childLabel := fmt.Sprintf("%s[%d]", label, i)
			c.attachObserverLabel(c.graph.Node(pid), childLabel)
		}
	}
}

func stripQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"") {
		return s[1 : len(s)-1]
	}
	return s
}

// applyFactory builds each argument cell in scope, then applies the factory
// to the resulting nodes.
func (c *Constructor) applyFactory(factoryNode *Node, argCells []ast.Cell, scope *Scope, span errors.Span) (*Node, error) {
	argNodes := make([]*Node, len(argCells))
	for i, ac := range argCells {
		n, err := c.buildExpr(ac, scope)
		if err != nil {
			return nil, err
		}
		argNodes[i] = n
	}
	return c.apply(factoryNode, argNodes, span)
}

// apply dispatches an already-built argument list to the appropriate
// factory kind. Higher-order forms (map, fold, zip, apply, ...) call back
// into apply with nodes they pull from list elements, so lambdas and
// builtin operators are equally valid targets of those forms.
func (c *Constructor) apply(factoryNode *Node, argNodes []*Node, span errors.Span) (*Node, error) {
	if factoryNode.Kind != KindProcFactory {
		return nil, notAProcedure("value is not a procedure", span)
	}
	switch factoryNode.Factory.Kind {
	case FactoryLambda:
		return c.applyLambda(factoryNode, argNodes, span)
	case FactoryBuiltinForm:
		return c.applyFormNodes(factoryNode.Factory.Name, argNodes, span)
	case FactoryBuiltinOp:
		return c.applyOpNodes(factoryNode.Factory.Name, argNodes, span)
	default:
		return nil, fmt.Errorf("unknown factory kind %d", factoryNode.Factory.Kind)
	}
}

func (c *Constructor) applyLambda(factoryNode *Node, argNodes []*Node, span errors.Span) (*Node, error) {
	params := factoryNode.Factory.Params
	if len(argNodes) != len(params) {
		return nil, arityErr(fmt.Sprintf("lambda expects %d argument(s), got %d", len(params), len(argNodes)), span)
	}
	childScope := NewScope(factoryNode.Factory.CapturedScope)
	for i, p := range params {
		childScope.Define(p, argNodes[i])
	}
	bodyNode, err := c.buildExpr(factoryNode.Factory.Body, childScope)
	if err != nil {
		return nil, err
	}
	wrapper := c.graph.newNode(KindGraph, "graph")
	wrapper.Parents = []NodeID{bodyNode.ID}
	return wrapper, nil
}

func (c *Constructor) applyOpNodes(name string, argNodes []*Node, span errors.Span) (*Node, error) {
	switch name {
	case "tick":
		if len(argNodes) != 0 {
			return nil, arityErr("tick takes no arguments", span)
		}
		return c.graph.newNode(KindProc, "tick"), nil

	case "load":
		if len(argNodes) != 1 {
			return nil, arityErr("load expects exactly 1 argument", span)
		}
		if argNodes[0].Kind != KindVar {
			return nil, kindErr("load's argument must be a VAR", span)
		}
		n := c.graph.newNode(KindProc, "load")
		n.Parents = []NodeID{argNodes[0].ID}
		return n, nil

	case "store":
		if len(argNodes) != 2 {
			return nil, arityErr("store expects (store dst src)", span)
		}
		if argNodes[0].Kind != KindVar {
			return nil, kindErr("store's destination must be a VAR", span)
		}
		n := c.graph.newNode(KindProc, "store")
		n.Parents = []NodeID{argNodes[0].ID, argNodes[1].ID}
		return n, nil

	case "sim-apply":
		if len(argNodes) != 3 {
			return nil, arityErr("sim-apply expects (sim-apply target overwrite done)", span)
		}
		if argNodes[0].Kind != KindVar && argNodes[0].Kind != KindList {
			return nil, kindErr("sim-apply's target must be an input", span)
		}
		n := c.graph.newNode(KindProc, "sim-apply")
		n.Parents = []NodeID{argNodes[0].ID, argNodes[1].ID, argNodes[2].ID}
		return n, nil

	default:
		entry, ok := ops.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("internal: unknown operator %q", name)
		}
		if !entry.Validator.Accepts(len(argNodes)) {
			return nil, arityErr(fmt.Sprintf("%q does not accept %d argument(s)", name, len(argNodes)), span)
		}
		ids := make([]NodeID, len(argNodes))
		for i, n := range argNodes {
			if n.Kind == KindList {
				return nil, kindErr(fmt.Sprintf("%q does not accept a list argument", name), span)
			}
			ids[i] = n.ID
		}
		node := c.graph.newNode(KindProc, name)
		node.Parents = ids
		return node, nil
	}
}

func arityErr(msg string, span errors.Span) error {
	return &errors.GraphBuildError{Kind: errors.KindArityError, Message: msg, Span: span}
}

func kindErr(msg string, span errors.Span) error {
	return &errors.GraphBuildError{Kind: errors.KindKindError, Message: msg, Span: span}
}

func unboundSymbol(name string, span errors.Span) error {
	return &errors.GraphBuildError{Kind: errors.KindUnboundSymbol, Message: fmt.Sprintf("unbound symbol %q", name), Span: span}
}

func notAProcedure(msg string, span errors.Span) error {
	return &errors.GraphBuildError{Kind: errors.KindNotAProcedure, Message: msg, Span: span}
}

func structuralErr(msg string, span errors.Span) error {
	return &errors.GraphBuildError{Kind: errors.KindLayoutError, Message: msg, Span: span}
}
