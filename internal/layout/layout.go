// Package layout computes node heights, identifies necessary nodes, assigns
// stable input/observer offsets, splits off simulation sub-graphs, and
// materialises the final evaluation order, per spec.md §4.4.
package layout

import (
	"fmt"
	"sort"

	"github.com/hankhank/exys-sub000/internal/errors"
	"github.com/hankhank/exys-sub000/internal/graph"
	"github.com/hankhank/exys-sub000/internal/ops"
)

// AggregateLabel is a list-shaped input or observer label that does not
// correspond to a single scalar Point in the graph (spec.md §3 marks LIST
// nodes as structural-only and forbids them from the evaluated point
// array). Each aggregate label is given its own bookkeeping Point, appended
// after the scalar points, whose Length records the flattened arity; its
// Value is never written by stabilise.
type AggregateLabel struct {
	Label  string
	Offset int
	Length int
}

// SimGraph is one carved-off simulation sub-graph (spec.md §4.4 step 6).
type SimGraph struct {
	ID int

	// Extension is the set of node offsets exclusive to this simulation
	// (not already computed by the main graph), in placement order: each
	// node follows its operands, but the slice is not sorted by height.
	Extension []int

	// TargetOffsets are the main-graph input offsets this simulation
	// overwrites; OverwriteOffsets are the paired source offsets (computed
	// by this simulation) to copy from. Both slices are index-aligned.
	TargetOffsets    []int
	OverwriteOffsets []int

	// DoneOffset is the offset of the sim-done flag.
	DoneOffset int
}

// Result is the authoritative layout contract: identical inputs produce
// identical offsets (spec.md §4.4).
type Result struct {
	Graph *graph.Graph

	// Order[offset] is the node placed at that offset, for offsets in
	// [0, len(Order)). This range covers inputs, ordinary necessary nodes,
	// copy nodes, and simulation extension nodes.
	Order []graph.NodeID

	NumInputs int

	InputOffsets    map[string]int
	ObserverOffsets map[string]int

	Aggregates []AggregateLabel

	Sims []SimGraph
}

// TotalPoints is the number of Point slots the evaluator must allocate:
// one per entry of Order, plus one per aggregate bookkeeping label.
func (r *Result) TotalPoints() int {
	return len(r.Order) + len(r.Aggregates)
}

// Plan runs the full layout algorithm over g.
func Plan(g *graph.Graph) (*Result, error) {
	if err := foldConstants(g); err != nil {
		return nil, err
	}

	p := newPlanner(g)

	r := &Result{
		Graph:           g,
		InputOffsets:    map[string]int{},
		ObserverOffsets: map[string]int{},
	}

	// Step 1: flatten every input-bearing VAR leaf, in definition (= arena
	// construction) order, and give it a contiguous offset.
	for _, n := range g.Nodes {
		if n.Kind == graph.KindVar && n.IsInput {
			n.Offset = len(r.Order)
			r.Order = append(r.Order, n.ID)
			for _, lbl := range n.InputLabels {
				r.InputOffsets[lbl] = n.Offset
			}
		}
	}
	r.NumInputs = len(r.Order)

	// Step 2: backward traversal from every observer, marking necessity and
	// heights.
	for _, n := range g.Nodes {
		if n.IsObserver {
			p.markNecessary(n.ID)
		}
	}

	// Steps 3-4: append remaining necessary, non-input, non-LIST nodes.
	// Arena order already respects dependency order (a node's parents
	// always have a lower NodeID, since the constructor builds operands
	// before the node that consumes them), so a single ascending pass
	// yields a valid topological placement.
	for _, n := range g.Nodes {
		if n.Kind == graph.KindList {
			continue
		}
		if n.Kind == graph.KindVar && n.IsInput {
			continue
		}
		if !p.necessary[n.ID] {
			continue
		}
		n.Offset = len(r.Order)
		r.Order = append(r.Order, n.ID)
	}

	// Step 5: observer offsets, with copy-node materialisation for leaves
	// shared by more than one observer label.
	if err := assignObserverOffsets(g, r); err != nil {
		return nil, err
	}

	// Step 6: simulation split. This must run before aggregate bookkeeping
	// offsets are handed out, since it can still append real entries to
	// Order; aggregates are given offsets strictly after everything real.
	sims, err := splitSimulations(g, p, r)
	if err != nil {
		return nil, err
	}
	r.Sims = sims

	// Aggregate (list) labels: bookkeeping points carrying only a length.
	collectAggregates(g, r)

	return r, nil
}

type planner struct {
	g         *graph.Graph
	computed  map[graph.NodeID]bool
	necessary map[graph.NodeID]bool
}

func newPlanner(g *graph.Graph) *planner {
	return &planner{g: g, computed: map[graph.NodeID]bool{}, necessary: map[graph.NodeID]bool{}}
}

// height computes and memoises a node's height: 0 for nodes with no
// producer parents (inputs and constants), otherwise 1 + max(parent
// heights). This keeps height(p) < height(c) for every edge, per spec.md §3
// invariant 5.
func (p *planner) height(id graph.NodeID) int {
	n := p.g.Node(id)
	if p.computed[id] {
		return n.Height
	}
	p.computed[id] = true // guard against (impossible, but cheap) cycles
	h := 0
	for _, pid := range n.Parents {
		if ph := p.height(pid); ph+1 > h {
			h = ph + 1
		}
	}
	n.Height = h
	return h
}

func (p *planner) markNecessary(id graph.NodeID) {
	if p.necessary[id] {
		return
	}
	p.necessary[id] = true
	n := p.g.Node(id)
	n.Necessary = true
	p.height(id)
	for _, pid := range n.Parents {
		p.markNecessary(pid)
	}
}

func isStateful(token string) bool {
	switch token {
	case "tick", "load", "store", "sim-apply":
		return true
	}
	return false
}

// foldConstants implements the supplemented constant-folding optimisation
// (SPEC_FULL.md §11.4): a PROC node whose parents are all CONST, and whose
// operator has no side effects, is pre-evaluated once and replaces itself
// with a CONST before height assignment. GRAPH (lambda-application wrapper)
// nodes fold transparently when their single parent folds.
func foldConstants(g *graph.Graph) error {
	for _, n := range g.Nodes {
		switch n.Kind {
		case graph.KindGraph:
			if len(n.Parents) != 1 {
				continue
			}
			parent := g.Node(n.Parents[0])
			if parent.Kind == graph.KindConst {
				n.Kind = graph.KindConst
				n.InitValue = parent.InitValue
				n.Parents = nil
			}
		case graph.KindProc:
			if isStateful(n.Token) || len(n.Parents) == 0 {
				continue
			}
			entry, ok := ops.Lookup(n.Token)
			if !ok || entry.Compute == nil {
				continue
			}
			args := make([]float64, len(n.Parents))
			allConst := true
			for i, pid := range n.Parents {
				parent := g.Node(pid)
				if parent.Kind != graph.KindConst {
					allConst = false
					break
				}
				args[i] = parent.InitValue
			}
			if !allConst {
				continue
			}
			n.InitValue = entry.Compute(args)
			n.Kind = graph.KindConst
			n.Parents = nil
		}
	}
	return nil
}

// assignObserverOffsets runs layout step 5: observer labels that already
// sit on a uniquely-labelled node reuse that node's offset; a node carrying
// more than one observer label keeps its first label and gets a height-0
// copy node per remaining label.
func assignObserverOffsets(g *graph.Graph, r *Result) error {
	// Stable order: ascending NodeID, so copy-node placement is
	// deterministic across runs.
	for _, n := range g.Nodes {
		if len(n.ObserverLabels) == 0 {
			continue
		}
		if n.Kind == graph.KindList {
			continue // handled via collectAggregates
		}
		first := n.ObserverLabels[0]
		r.ObserverOffsets[first] = n.Offset

		for _, lbl := range n.ObserverLabels[1:] {
			cp := g.NewNode(graph.KindProc, "copy")
			cp.Parents = []graph.NodeID{n.ID}
			cp.Height = 0
			cp.ObserverLabels = []string{lbl}
			cp.IsObserver = true
			cp.Necessary = true
			cp.Offset = len(r.Order)
			r.Order = append(r.Order, cp.ID)
			r.ObserverOffsets[lbl] = cp.Offset
		}
		n.ObserverLabels = []string{first}
	}
	return nil
}

// collectAggregates records a bookkeeping Point for every list-shaped input
// or observer label (a LIST node's own label), giving it the flattened leaf
// count as its Length and its own offset after every real point, in sorted
// label order. The leaves' offsets are not recorded on the aggregate.
func collectAggregates(g *graph.Graph, r *Result) {
	var labels []string
	seen := map[string]bool{}
	for _, n := range g.Nodes {
		if n.Kind != graph.KindList {
			continue
		}
		for _, lbl := range n.InputLabels {
			if !seen[lbl] {
				seen[lbl] = true
				labels = append(labels, lbl)
			}
		}
		for _, lbl := range n.ObserverLabels {
			if !seen[lbl] {
				seen[lbl] = true
				labels = append(labels, lbl)
			}
		}
	}
	sort.Strings(labels)

	// Map each aggregate label back to the node it came from, to compute
	// its flattened length.
	byLabel := map[string]*graph.Node{}
	for _, n := range g.Nodes {
		if n.Kind != graph.KindList {
			continue
		}
		for _, lbl := range n.InputLabels {
			byLabel[lbl] = n
		}
		for _, lbl := range n.ObserverLabels {
			byLabel[lbl] = n
		}
	}

	base := r.TotalPoints()
	for i, lbl := range labels {
		n := byLabel[lbl]
		length := flattenedLength(g, n)
		offset := base + i
		r.Aggregates = append(r.Aggregates, AggregateLabel{Label: lbl, Offset: offset, Length: length})
		if containsString(n.InputLabels, lbl) {
			r.InputOffsets[lbl] = offset
		}
		if containsString(n.ObserverLabels, lbl) {
			r.ObserverOffsets[lbl] = offset
		}
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func flattenedLength(g *graph.Graph, n *graph.Node) int {
	if n.Kind != graph.KindList {
		return 1
	}
	total := 0
	for _, pid := range n.Parents {
		total += flattenedLength(g, g.Node(pid))
	}
	return total
}

// splitSimulations implements layout step 6.
func splitSimulations(g *graph.Graph, p *planner, r *Result) ([]SimGraph, error) {
	var sims []SimGraph
	id := 0
	for _, n := range g.Nodes {
		if n.Kind != graph.KindProc || n.Token != "sim-apply" {
			continue
		}
		sim, err := buildSimGraph(g, p, r, n, id)
		if err != nil {
			return nil, err
		}
		sims = append(sims, sim)
		id++
	}
	return sims, nil
}

func buildSimGraph(g *graph.Graph, p *planner, r *Result, simApply *graph.Node, id int) (SimGraph, error) {
	if len(simApply.Parents) != 3 {
		return SimGraph{}, &errors.GraphBuildError{
			Kind:    errors.KindLayoutError,
			Message: "sim-apply must have exactly 3 operands",
		}
	}
	target := g.Node(simApply.Parents[0])
	overwrite := g.Node(simApply.Parents[1])
	done := g.Node(simApply.Parents[2])

	targetLeaves := flattenLeaves(g, target)
	overwriteLeaves := flattenLeaves(g, overwrite)
	if len(targetLeaves) != len(overwriteLeaves) {
		return SimGraph{}, &errors.GraphBuildError{
			Kind:    errors.KindLayoutError,
			Message: fmt.Sprintf("sim-apply target has %d leaves but overwrite has %d", len(targetLeaves), len(overwriteLeaves)),
		}
	}

	placed := map[graph.NodeID]bool{}
	for _, nid := range r.Order {
		placed[nid] = true
	}

	var extra []graph.NodeID
	var mark func(graph.NodeID)
	visited := map[graph.NodeID]bool{}
	mark = func(nid graph.NodeID) {
		if visited[nid] {
			return
		}
		visited[nid] = true
		node := g.Node(nid)
		for _, pid := range node.Parents {
			mark(pid)
		}
		if node.Kind == graph.KindList {
			return
		}
		if node.Kind == graph.KindVar && node.IsInput {
			return // already placed as a main input
		}
		if placed[nid] {
			return
		}
		p.height(nid)
		node.Offset = len(r.Order)
		r.Order = append(r.Order, nid)
		placed[nid] = true
		extra = append(extra, nid)
	}
	mark(overwrite.ID)
	mark(done.ID)

	targetOffsets := make([]int, len(targetLeaves))
	overwriteOffsets := make([]int, len(overwriteLeaves))
	for i, leaf := range targetLeaves {
		targetOffsets[i] = leaf.Offset
	}
	for i, leaf := range overwriteLeaves {
		overwriteOffsets[i] = leaf.Offset
	}

	extension := make([]int, len(extra))
	for i, nid := range extra {
		extension[i] = g.Node(nid).Offset
	}

	return SimGraph{
		ID:               id,
		Extension:        extension,
		TargetOffsets:    targetOffsets,
		OverwriteOffsets: overwriteOffsets,
		DoneOffset:       done.Offset,
	}, nil
}

func flattenLeaves(g *graph.Graph, n *graph.Node) []*graph.Node {
	if n.Kind != graph.KindList {
		return []*graph.Node{n}
	}
	var out []*graph.Node
	for _, pid := range n.Parents {
		out = append(out, flattenLeaves(g, g.Node(pid))...)
	}
	return out
}
