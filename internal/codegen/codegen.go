// Package codegen is the second back-end named in spec.md §1: where
// internal/eval walks the node array dispatching on operator tag every
// stabilise, codegen compiles the laid-out graph once into a flat slice of
// pre-bound steps (a "straight-line plan") and replays that slice in
// layout order on every Stabilise call.
//
// spec.md §9 calls the original back-end a "native-code generator that
// emits machine code"; this repo's REDESIGN FLAG (SPEC_FULL.md §4.6 /
// "REDESIGN FLAGS") implements the same contract — compile once, run a
// single pass whose steps are resolved at build time (Stabilise switches
// only on each step's pre-assigned kind, never looks an operator up by
// name) — as directly callable Go functions instead of literal machine code, since the corpus's only
// code-emission collaborator (llir/llvm) is explicitly out of scope.
// The operator table it draws its Compute functions from
// (internal/ops.Table) is the identical registry internal/eval uses, so the
// two back-ends cannot drift on semantics — only on how the dispatch is
// wired.
package codegen

import (
	"fmt"
	"sort"

	"github.com/hankhank/exys-sub000/internal/ast"
	"github.com/hankhank/exys-sub000/internal/errors"
	"github.com/hankhank/exys-sub000/internal/graph"
	"github.com/hankhank/exys-sub000/internal/layout"
	"github.com/hankhank/exys-sub000/internal/ops"
	"github.com/hankhank/exys-sub000/internal/token"
)

type opKind int

const (
	opInput opKind = iota
	opConst
	opCopy // GRAPH passthrough or the "copy" operator
	opCompute
	opTick
	opLoad
	opStore
	opSimApply
)

// plannedStep is one pre-bound slot of the straight-line plan: it already
// knows its own offset and the offsets it reads from, so Stabilise need not
// re-derive anything from the graph at stabilisation time.
type plannedStep struct {
	kind     opKind
	offset   int
	args     []int // argument offsets, in order
	stateRef int   // for load/store
	compute  ops.Compute
}

// Engine is the code-generator back-end. It implements the same accessor
// and Stabilise surface as internal/eval.Engine (spec.md §6); it has no
// CaptureState, ResetState, SupportsSimulation or RunSimulation, and
// sim-apply steps stay inert.
type Engine struct {
	layout *layout.Result

	values []float64
	dirty  []bool
	length []uint32

	plan    []plannedStep
	parents [][]int // per-offset, for dirty propagation only
	tick    []uint64

	inputOffsets    map[string]int
	observerOffsets map[string]int

	everStabilised bool
}

// Build compiles source text through the shared front end (tokeniser,
// reader, graph constructor, layout planner — spec.md §4.1-§4.4) and emits
// a straight-line plan instead of internal/eval's dispatch-by-tag
// InterPoint array.
func Build(source string) (*Engine, error) {
	toks := token.Scan(source)
	root, err := ast.Read(toks)
	if err != nil {
		return nil, err
	}
	g, err := graph.Build(root)
	if err != nil {
		return nil, err
	}
	lay, err := layout.Plan(g)
	if err != nil {
		return nil, err
	}
	return newEngine(g, lay)
}

func newEngine(g *graph.Graph, lay *layout.Result) (*Engine, error) {
	n := lay.TotalPoints()
	e := &Engine{
		layout:          lay,
		values:          make([]float64, n),
		dirty:           make([]bool, n),
		length:          make([]uint32, n),
		parents:         make([][]int, n),
		tick:            make([]uint64, n),
		inputOffsets:    lay.InputOffsets,
		observerOffsets: lay.ObserverOffsets,
	}

	offsetOf := func(id graph.NodeID) int { return g.Node(id).Offset }

	for offset, id := range lay.Order {
		node := g.Node(id)
		if node.Kind == graph.KindVar && node.IsInput {
			e.plan = append(e.plan, plannedStep{kind: opInput, offset: offset})
			e.length[offset] = 1
			continue
		}

		switch node.Kind {
		case graph.KindConst:
			e.values[offset] = node.InitValue
			e.plan = append(e.plan, plannedStep{kind: opConst, offset: offset})
		case graph.KindGraph:
			if len(node.Parents) != 1 {
				return nil, &errors.GraphBuildError{Kind: errors.KindLayoutError, Message: "GRAPH node must have exactly one parent"}
			}
			src := offsetOf(node.Parents[0])
			e.plan = append(e.plan, plannedStep{kind: opCopy, offset: offset, args: []int{src}})
			e.parents[offset] = []int{src}
		case graph.KindVar:
			e.plan = append(e.plan, plannedStep{kind: opConst, offset: offset})
		case graph.KindProc:
			switch node.Token {
			case "tick":
				e.plan = append(e.plan, plannedStep{kind: opTick, offset: offset})
			case "load":
				ref := offsetOf(node.Parents[0])
				e.plan = append(e.plan, plannedStep{kind: opLoad, offset: offset, stateRef: ref})
			case "store":
				ref := offsetOf(node.Parents[0])
				src := offsetOf(node.Parents[1])
				e.plan = append(e.plan, plannedStep{kind: opStore, offset: offset, stateRef: ref, args: []int{src}})
				e.parents[offset] = []int{src}
			case "sim-apply":
				e.plan = append(e.plan, plannedStep{kind: opSimApply, offset: offset})
			default:
				entry, ok := ops.Lookup(node.Token)
				if !ok || entry.Compute == nil {
					return nil, &errors.GraphBuildError{Kind: errors.KindLayoutError, Message: fmt.Sprintf("no compute rule for operator %q", node.Token)}
				}
				args := make([]int, len(node.Parents))
				for i, pid := range node.Parents {
					args[i] = offsetOf(pid)
				}
				e.plan = append(e.plan, plannedStep{kind: opCompute, offset: offset, args: args, compute: entry.Compute})
				e.parents[offset] = args
			}
		default:
			return nil, &errors.GraphBuildError{Kind: errors.KindLayoutError, Message: fmt.Sprintf("unexpected node kind %s in layout", node.Kind)}
		}
	}

	for _, agg := range lay.Aggregates {
		e.length[agg.Offset] = uint32(agg.Length)
	}

	for i := range e.dirty {
		e.dirty[i] = true
	}
	return e, nil
}

// Stabilise executes the entire precompiled plan, in layout (offset) order,
// which places every step after the steps it reads, every call — the
// "single stabilisation pass" spec.md §1 describes the code-generated
// back-end as targeting. The pass is not incremental; once it has run, no
// point is left dirty, so IsDirty reports false until the next SetInput.
func (e *Engine) Stabilise(force bool) {
	scratch := make([]float64, 0, 8)
	for _, step := range e.plan {
		old := e.values[step.offset]
		var next float64
		changed := false

		switch step.kind {
		case opInput, opConst:
			continue
		case opCopy:
			next = e.values[step.args[0]]
			changed = next != old
		case opTick:
			e.tick[step.offset]++
			next = float64(e.tick[step.offset])
			changed = true
		case opLoad:
			next = e.values[step.stateRef]
			changed = next != old
		case opStore:
			val := e.values[step.args[0]]
			e.values[step.stateRef] = val
			e.dirty[step.stateRef] = true
			next = val
			changed = next != old
		case opSimApply:
			continue // driven by RunSimulation, not ordinary stabilisation
		case opCompute:
			scratch = scratch[:0]
			for _, a := range step.args {
				scratch = append(scratch, e.values[a])
			}
			next = step.compute(scratch)
			changed = next != old
		}

		e.values[step.offset] = next
		e.dirty[step.offset] = changed
	}
	// The full pass has recomputed every step, so nothing is left pending:
	// clear every dirty flag, including the inputs' (set by SetInput since
	// the prior Stabilise) and the ones the loop above set on changed steps.
	for i := range e.dirty {
		e.dirty[i] = false
	}
	_ = force
	e.everStabilised = true
}

// --- Engine accessor surface, identical to internal/eval.Engine ---

func (e *Engine) HasInput(label string) bool {
	_, ok := e.inputOffsets[label]
	return ok
}

func (e *Engine) SetInput(label string, value float64) error {
	offset, ok := e.inputOffsets[label]
	if !ok {
		return fmt.Errorf("no such input %q", label)
	}
	e.values[offset] = value
	e.dirty[offset] = true
	return nil
}

func (e *Engine) LookupInput(label string) (float64, bool) {
	offset, ok := e.inputOffsets[label]
	if !ok {
		return 0, false
	}
	return e.values[offset], true
}

func (e *Engine) HasObserver(label string) bool {
	_, ok := e.observerOffsets[label]
	return ok
}

func (e *Engine) LookupObserver(label string) (float64, bool) {
	offset, ok := e.observerOffsets[label]
	if !ok {
		return 0, false
	}
	return e.values[offset], true
}

func (e *Engine) IsDirty(label string) bool {
	offset, ok := e.observerOffsets[label]
	if !ok {
		return false
	}
	return e.dirty[offset]
}

func (e *Engine) InputLabels() []string    { return sortedKeys(e.inputOffsets) }
func (e *Engine) ObserverLabels() []string { return sortedKeys(e.observerOffsets) }

func sortedKeys(m map[string]int) []string {
	type pair struct {
		label  string
		offset int
	}
	pairs := make([]pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].offset < pairs[j].offset })
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.label
	}
	return out
}
