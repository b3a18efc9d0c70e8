// Package eval is the tree-walking interpreter back-end: it compiles a
// laid-out graph into a flat array of Points plus per-point compute
// closures, and incrementally restabilises them in height order, per
// spec.md §4.5.
package eval

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/hankhank/exys-sub000/internal/ast"
	"github.com/hankhank/exys-sub000/internal/errors"
	"github.com/hankhank/exys-sub000/internal/graph"
	"github.com/hankhank/exys-sub000/internal/layout"
	"github.com/hankhank/exys-sub000/internal/ops"
	"github.com/hankhank/exys-sub000/internal/token"
)

// Point is one cell of evaluated state, per spec.md §3's data model.
type Point struct {
	Value  float64
	Length uint32
	Dirty  bool
}

// interPoint is the engine-private half of a Point: its height, its
// dependency edges, and (for non-input, non-aggregate points) the
// function that recomputes its Value.
type interPoint struct {
	height   int
	parents  []int
	children []int
	compute  func(args []float64) float64
	isInput  bool
	isState  bool // tick/load/store: recomputed specially, not via compute
	token    string
	stateRef int // for load/store: the VAR offset it reads/writes
}

// Engine is the interpreter: a flat Points array, matching InterPoints, and
// the label lookup tables the layout planner produced.
type Engine struct {
	id     uuid.UUID
	graph  *graph.Graph
	layout *layout.Result

	points []Point
	inter  []interPoint

	// byHeight is the recompute queue: offsets bucketed by height, each
	// bucket kept sorted in descending offset order, so Stabilise can pop
	// the highest height first and, within a height, the highest offset
	// first — matching spec.md §4.5's tie-break rule.
	heights      []int // distinct heights, descending
	byHeight     map[int][]int
	tickCounters map[int]uint64 // offset -> tick count, for the "tick" operator

	// tickOffsets lists every "tick" point. tick has no parents, so nothing
	// ever marks it dirty through ordinary propagation; Stabilise force-dirties
	// these every call so it advances once per call regardless of back-end.
	tickOffsets []int

	// dirtyStores holds the VAR offsets a "store" wrote to during the most
	// recent Stabilise call, matching spec.md §4.5's dirtyStores bookkeeping:
	// a stored value propagates to dependants (e.g. a "load" of the same
	// VAR) on the *next* cycle, not within the same call — propagating it
	// immediately would turn a self-referential accumulator like
	// (store v (+ (load v) 1)) into an infinite convergence loop.
	dirtyStores []int
}

// Build compiles source text end-to-end: tokenise, read, construct the
// graph, plan its layout, and wire up an Engine ready to Stabilise.
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
	e := &Engine{
		id:           uuid.New(),
		graph:        g,
		layout:       lay,
		tickCounters: map[int]uint64{},
	}
	n := lay.TotalPoints()
	e.points = make([]Point, n)
	e.inter = make([]interPoint, len(lay.Order))

	offsetOf := func(id graph.NodeID) int { return g.Node(id).Offset }

	for offset, id := range lay.Order {
		node := g.Node(id)
		ip := &e.inter[offset]
		ip.height = node.Height
		ip.token = node.Token

		if node.Kind == graph.KindVar && node.IsInput {
			ip.isInput = true
			e.points[offset].Length = 1
			continue
		}

		switch node.Kind {
		case graph.KindConst:
			e.points[offset].Value = node.InitValue
		case graph.KindGraph:
			if len(node.Parents) != 1 {
				return nil, &errors.GraphBuildError{Kind: errors.KindLayoutError, Message: "GRAPH node must have exactly one parent"}
			}
			src := offsetOf(node.Parents[0])
			ip.parents = []int{src}
			ip.compute = func(args []float64) float64 { return args[0] }
		case graph.KindVar:
			// A non-input VAR: the target of store/load, holding state
			// across stabilisations. Starts at zero.
		case graph.KindProc:
			switch node.Token {
			case "tick":
				ip.isState = true
				e.tickOffsets = append(e.tickOffsets, offset)
			case "load":
				ip.isState = true
				ip.stateRef = offsetOf(node.Parents[0])
				// load depends on the VAR it reads, so a store into that
				// VAR marks load dirty through ordinary children wiring.
				ip.parents = []int{ip.stateRef}
			case "store":
				ip.isState = true
				ip.stateRef = offsetOf(node.Parents[0])
				ip.parents = []int{offsetOf(node.Parents[1])}
			case "sim-apply":
				// sim-apply nodes never recompute during ordinary
				// stabilisation; RunSimulation drives them directly.
				ip.isState = true
			default:
				entry, ok := ops.Lookup(node.Token)
				if !ok || entry.Compute == nil {
					return nil, &errors.GraphBuildError{Kind: errors.KindLayoutError, Message: fmt.Sprintf("no compute rule for operator %q", node.Token)}
				}
				ip.parents = make([]int, len(node.Parents))
				for i, pid := range node.Parents {
					ip.parents[i] = offsetOf(pid)
				}
				ip.compute = entry.Compute
			}
		default:
			return nil, &errors.GraphBuildError{Kind: errors.KindLayoutError, Message: fmt.Sprintf("unexpected node kind %s in layout", node.Kind)}
		}
	}

	// Wire children lists for dirty propagation.
	for offset := range e.inter {
		for _, p := range e.inter[offset].parents {
			e.inter[p].children = append(e.inter[p].children, offset)
		}
	}
	e.buildHeightIndex()

	// Aggregate bookkeeping points never recompute; set their length.
	for _, agg := range lay.Aggregates {
		e.points[agg.Offset].Length = uint32(agg.Length)
	}

	// Everything starts dirty so the first Stabilise call establishes
	// initial values.
	for i := range e.points {
		e.points[i].Dirty = true
	}
	return e, nil
}

func (e *Engine) buildHeightIndex() {
	e.byHeight = map[int][]int{}
	for offset, ip := range e.inter {
		e.byHeight[ip.height] = append(e.byHeight[ip.height], offset)
	}
	e.heights = e.heights[:0]
	for h := range e.byHeight {
		e.heights = append(e.heights, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(e.heights)))
	for _, h := range e.heights {
		bucket := e.byHeight[h]
		sort.Sort(sort.Reverse(sort.IntSlice(bucket)))
	}
}

// Stabilise is a repeated-sweep fixed-point solver rather than a literal
// incrementally-maintained priority queue: each outer pass walks every
// height bucket descending and skips points that are not dirty, looping
// until a full pass makes no further change. For an acyclic, monotone-height
// graph this converges to the same values a true live priority queue would
// reach — it just costs a handful of extra bucket scans instead of O(1)
// reinsertions, which this evaluator's scale does not need to care about.
//
// Stabilise runs the fixed-point recompute loop described in spec.md §4.5:
// visit dirty points in descending-height, descending-offset order,
// recomputing each and marking its children dirty on change, until no
// point is dirty. When force is true every point recomputes regardless of
// its dirty flag in the first pass. The very first stabilisation needs no
// force: newEngine starts every point dirty.
func (e *Engine) Stabilise(force bool) {
	// tick has no parents and nothing else ever marks it dirty; force it
	// into this call's first pass so it advances exactly once per call.
	for _, offset := range e.tickOffsets {
		e.points[offset].Dirty = true
	}
	// Propagate last call's stores now, at the start of this cycle, so a
	// load of the written VAR recomputes this call rather than the one
	// that performed the store.
	for _, offset := range e.dirtyStores {
		e.markChildrenDirty(offset)
	}
	e.dirtyStores = e.dirtyStores[:0]
	for {
		progressed := false
		for _, h := range e.heights {
			for _, offset := range e.byHeight[h] {
				if !force && !e.points[offset].Dirty {
					continue
				}
				if e.recompute(offset) {
					progressed = true
				}
				e.points[offset].Dirty = false
			}
		}
		if force {
			// A forced pass always runs exactly once; subsequent calls
			// fall back to dirty-driven convergence.
			force = false
		}
		if !progressed {
			return
		}
	}
}

// recompute evaluates one point and reports whether its value changed.
// Changed points mark their children dirty.
func (e *Engine) recompute(offset int) bool {
	ip := &e.inter[offset]
	if ip.isInput {
		return false
	}
	old := e.points[offset].Value
	var next float64

	switch {
	case ip.token == "tick":
		e.tickCounters[offset]++
		next = float64(e.tickCounters[offset])
	case ip.token == "load":
		next = e.points[ip.stateRef].Value
	case ip.token == "store":
		val := e.points[ip.parents[0]].Value
		e.points[ip.stateRef].Value = val
		e.markDirty(ip.stateRef)
		// Dependants (e.g. a "load" of this VAR) are dirtied at the start
		// of the next Stabilise call, not from here — see dirtyStores.
		e.dirtyStores = append(e.dirtyStores, ip.stateRef)
		next = val
	case ip.token == "sim-apply":
		next = old // inert during ordinary stabilisation
	case ip.compute != nil:
		args := make([]float64, len(ip.parents))
		for i, p := range ip.parents {
			args[i] = e.points[p].Value
		}
		next = ip.compute(args)
	default:
		return false
	}

	e.points[offset].Value = next
	if next != old {
		e.markChildrenDirty(offset)
		return true
	}
	return false
}

func (e *Engine) markChildrenDirty(offset int) {
	for _, c := range e.inter[offset].children {
		e.markDirty(c)
	}
}

func (e *Engine) markDirty(offset int) {
	if !e.points[offset].Dirty {
		e.points[offset].Dirty = true
	}
}

// ID returns this engine instance's generated identifier, used by the
// snapshot store and trace relay to tag persisted state and streamed
// traces, the way the teacher tags connections and sessions with a uuid.
func (e *Engine) ID() uuid.UUID { return e.id }

// HasInput reports whether label names an input leaf or input-list
// aggregate.
func (e *Engine) HasInput(label string) bool {
	_, ok := e.layout.InputOffsets[label]
	return ok
}

// SetInput writes value into the named input point and marks its children
// dirty; call Stabilise afterwards to propagate the change.
func (e *Engine) SetInput(label string, value float64) error {
	offset, ok := e.layout.InputOffsets[label]
	if !ok {
		return fmt.Errorf("no such input %q", label)
	}
	e.points[offset].Value = value
	e.markChildrenDirty(offset)
	return nil
}

// LookupInput returns the current value of the named input point.
func (e *Engine) LookupInput(label string) (float64, bool) {
	offset, ok := e.layout.InputOffsets[label]
	if !ok {
		return 0, false
	}
	return e.points[offset].Value, true
}

// HasObserver reports whether label names an observed point or list.
func (e *Engine) HasObserver(label string) bool {
	_, ok := e.layout.ObserverOffsets[label]
	return ok
}

// LookupObserver returns the current value of the named observer point.
func (e *Engine) LookupObserver(label string) (float64, bool) {
	offset, ok := e.layout.ObserverOffsets[label]
	if !ok {
		return 0, false
	}
	return e.points[offset].Value, true
}

// IsDirty reports whether the named observer's point has a pending
// recompute.
func (e *Engine) IsDirty(label string) bool {
	offset, ok := e.layout.ObserverOffsets[label]
	if !ok {
		return false
	}
	return e.points[offset].Dirty
}

// InputLabels returns every input label in layout order.
func (e *Engine) InputLabels() []string {
	return sortedKeys(e.layout.InputOffsets)
}

// ObserverLabels returns every observer label in layout order.
func (e *Engine) ObserverLabels() []string {
	return sortedKeys(e.layout.ObserverOffsets)
}

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
