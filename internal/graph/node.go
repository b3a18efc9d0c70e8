// Package graph walks a parsed cell tree and produces the node DAG: it
// expands special forms and higher-order list primitives, and maintains
// lexical scopes, following spec.md §4.3.
package graph

import "github.com/hankhank/exys-sub000/internal/ast"

// Kind is the Node's runtime/compile-time role, consolidated from the
// inconsistent CONST/VAR/LIST/BIND/PROC kinds the original treats
// differently across its interpreter and code-generator (spec.md §9, Open
// Questions).
type Kind int

const (
	KindConst Kind = iota
	KindVar
	KindList
	KindProc
	KindProcFactory
	KindGraph
)

func (k Kind) String() string {
	switch k {
	case KindConst:
		return "CONST"
	case KindVar:
		return "VAR"
	case KindList:
		return "LIST"
	case KindProc:
		return "PROC"
	case KindProcFactory:
		return "PROC_FACTORY"
	case KindGraph:
		return "GRAPH"
	default:
		return "UNKNOWN"
	}
}

// ValueType is reserved for future widening beyond double (spec.md §3).
type ValueType int

const (
	TypeDouble ValueType = iota
	TypeBool
	TypeInt
	TypeUint
)

// NodeID indexes into a Graph's arena.
type NodeID int

// FactoryKind distinguishes what a PROC_FACTORY node applies.
type FactoryKind int

const (
	FactoryBuiltinOp   FactoryKind = iota // a scalar operator from internal/ops
	FactoryBuiltinForm                    // map, fold, zip, list, car, cdr, iota, nth, append, apply, for-each
	FactoryLambda
)

// Factory is the compile-time callable a PROC_FACTORY node carries. This is
// the tagged-variant {BuiltinFactory(op-tag), Lambda{...}} design note from
// spec.md §9, represented without heap-allocated closures: builtin factories
// carry just a name, lambdas carry their raw (unevaluated) body cell plus the
// scope they close over.
type Factory struct {
	Kind FactoryKind
	Name string // for FactoryBuiltinOp / FactoryBuiltinForm

	Params        []string
	Body          ast.Cell
	CapturedScope *Scope
}

// Node is one entity of the compile-time DAG.
type Node struct {
	ID    NodeID
	Kind  Kind
	Token string
	Type  ValueType

	Parents []NodeID

	Height int

	InputLabels    []string
	ObserverLabels []string

	Length int

	Offset int // -1 until the layout planner assigns one

	IsInput    bool
	IsObserver bool

	InitValue float64

	Factory *Factory

	Necessary bool // set by the layout planner's backward traversal
}

// Graph is the arena: nodes are referenced by index (NodeID), never by
// pointer, so edges survive slice growth and the DAG is trivially dumped or
// walked by a code-generator.
type Graph struct {
	Nodes []*Node
}

func NewGraph() *Graph {
	return &Graph{}
}

func (g *Graph) newNode(kind Kind, token string) *Node {
	n := &Node{
		ID:     NodeID(len(g.Nodes)),
		Kind:   kind,
		Token:  token,
		Type:   TypeDouble,
		Offset: -1,
	}
	g.Nodes = append(g.Nodes, n)
	return n
}

func (g *Graph) Node(id NodeID) *Node { return g.Nodes[id] }

// NewNode lets other compiler passes (the layout planner's copy-node
// materialisation) append fresh nodes to the same arena.
func (g *Graph) NewNode(kind Kind, token string) *Node { return g.newNode(kind, token) }
