package graph

import (
	"fmt"

	"github.com/hankhank/exys-sub000/internal/errors"
)

// applyFormNodes expands a higher-order list primitive into concrete DAG
// shapes at construction time, per spec.md §4.3.
func (c *Constructor) applyFormNodes(name string, argNodes []*Node, span errors.Span) (*Node, error) {
	switch name {
	case "map":
		return c.formMap(argNodes, span)
	case "for-each":
		return c.formForEach(argNodes, span)
	case "fold":
		return c.formFold(argNodes, span)
	case "zip":
		return c.formZip(argNodes, span)
	case "list":
		return c.formList(argNodes, span)
	case "car", "head":
		return c.formCar(argNodes, span)
	case "cdr", "rest":
		return c.formCdr(argNodes, span)
	case "iota":
		return c.formIota(argNodes, span)
	case "nth":
		return c.formNth(argNodes, span)
	case "append":
		return c.formAppend(argNodes, span)
	case "apply":
		return c.formApply(argNodes, span)
	default:
		return nil, fmt.Errorf("internal: unknown form %q", name)
	}
}

func requireList(n *Node, what string, span errors.Span) error {
	if n.Kind != KindList {
		return kindErr(fmt.Sprintf("%s requires a list argument", what), span)
	}
	return nil
}

func requireFactory(n *Node, what string, span errors.Span) error {
	if n.Kind != KindProcFactory {
		return kindErr(fmt.Sprintf("%s requires a procedure argument", what), span)
	}
	return nil
}

func (c *Constructor) formMap(args []*Node, span errors.Span) (*Node, error) {
	if len(args) != 2 {
		return nil, arityErr("map expects (map f xs)", span)
	}
	f, xs := args[0], args[1]
	if err := requireFactory(f, "map", span); err != nil {
		return nil, err
	}
	if err := requireList(xs, "map", span); err != nil {
		return nil, err
	}
	results := make([]NodeID, len(xs.Parents))
	for i, pid := range xs.Parents {
		elem := c.graph.Node(pid)
		res, err := c.apply(f, []*Node{elem}, span)
		if err != nil {
			return nil, err
		}
		results[i] = res.ID
	}
	out := c.graph.newNode(KindList, "list")
	out.Parents = results
	out.Length = len(results)
	return out, nil
}

func (c *Constructor) formForEach(args []*Node, span errors.Span) (*Node, error) {
	if len(args) != 2 {
		return nil, arityErr("for-each expects (for-each f xs)", span)
	}
	f, xs := args[0], args[1]
	if err := requireFactory(f, "for-each", span); err != nil {
		return nil, err
	}
	if err := requireList(xs, "for-each", span); err != nil {
		return nil, err
	}
	for _, pid := range xs.Parents {
		elem := c.graph.Node(pid)
		if _, err := c.apply(f, []*Node{elem}, span); err != nil {
			return nil, err
		}
	}
	sentinel := c.graph.newNode(KindConst, "0")
	return sentinel, nil
}

func (c *Constructor) formFold(args []*Node, span errors.Span) (*Node, error) {
	if len(args) != 3 {
		return nil, arityErr("fold expects (fold f acc xs)", span)
	}
	f, acc, xs := args[0], args[1], args[2]
	if err := requireFactory(f, "fold", span); err != nil {
		return nil, err
	}
	if err := requireList(xs, "fold", span); err != nil {
		return nil, err
	}
	for _, pid := range xs.Parents {
		elem := c.graph.Node(pid)
		next, err := c.apply(f, []*Node{acc, elem}, span)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

func (c *Constructor) formZip(args []*Node, span errors.Span) (*Node, error) {
	if len(args) < 1 {
		return nil, arityErr("zip expects at least 1 list", span)
	}
	lens := make([]int, len(args))
	for i, n := range args {
		if err := requireList(n, "zip", span); err != nil {
			return nil, err
		}
		lens[i] = len(n.Parents)
	}
	for i := 1; i < len(lens); i++ {
		if lens[i] != lens[0] {
			return nil, structuralErr("zip requires equal-length lists", span)
		}
	}
	rows := make([]NodeID, lens[0])
	for i := 0; i < lens[0]; i++ {
		rowChildren := make([]NodeID, len(args))
		for j, xs := range args {
			rowChildren[j] = xs.Parents[i]
		}
		row := c.graph.newNode(KindList, "list")
		row.Parents = rowChildren
		row.Length = len(args)
		rows[i] = row.ID
	}
	out := c.graph.newNode(KindList, "list")
	out.Parents = rows
	out.Length = lens[0]
	return out, nil
}

func (c *Constructor) formList(args []*Node, span errors.Span) (*Node, error) {
	out := c.graph.newNode(KindList, "list")
	ids := make([]NodeID, len(args))
	for i, n := range args {
		ids[i] = n.ID
	}
	out.Parents = ids
	out.Length = len(args)
	return out, nil
}

func (c *Constructor) formCar(args []*Node, span errors.Span) (*Node, error) {
	if len(args) != 1 {
		return nil, arityErr("car/head expects exactly 1 argument", span)
	}
	xs := args[0]
	if err := requireList(xs, "car/head", span); err != nil {
		return nil, err
	}
	if len(xs.Parents) == 0 {
		return nil, structuralErr("car/head of an empty list", span)
	}
	return c.graph.Node(xs.Parents[0]), nil
}

func (c *Constructor) formCdr(args []*Node, span errors.Span) (*Node, error) {
	if len(args) != 1 {
		return nil, arityErr("cdr/rest expects exactly 1 argument", span)
	}
	xs := args[0]
	if err := requireList(xs, "cdr/rest", span); err != nil {
		return nil, err
	}
	if len(xs.Parents) == 0 {
		return nil, structuralErr("cdr/rest of an empty list", span)
	}
	out := c.graph.newNode(KindList, "list")
	out.Parents = append([]NodeID{}, xs.Parents[1:]...)
	out.Length = len(out.Parents)
	return out, nil
}

func (c *Constructor) formIota(args []*Node, span errors.Span) (*Node, error) {
	if len(args) != 3 {
		return nil, arityErr("iota expects (iota count start step)", span)
	}
	countNode, startNode, stepNode := args[0], args[1], args[2]
	if countNode.Kind != KindConst || startNode.Kind != KindConst || stepNode.Kind != KindConst {
		return nil, kindErr("iota's arguments must be constants", span)
	}
	count := int(countNode.InitValue)
	if count < 0 {
		return nil, structuralErr("iota count must be non-negative", span)
	}
	start, step := startNode.InitValue, stepNode.InitValue
	ids := make([]NodeID, count)
	for i := 0; i < count; i++ {
		val := start + float64(i)*step
		cn := c.graph.newNode(KindConst, fmt.Sprintf("%g", val))
		cn.InitValue = val
		ids[i] = cn.ID
	}
	out := c.graph.newNode(KindList, "list")
	out.Parents = ids
	out.Length = count
	return out, nil
}

func (c *Constructor) formNth(args []*Node, span errors.Span) (*Node, error) {
	if len(args) != 2 {
		return nil, arityErr("nth expects (nth n xs)", span)
	}
	nNode, xs := args[0], args[1]
	if err := requireList(xs, "nth", span); err != nil {
		return nil, err
	}
	if nNode.Kind != KindConst {
		return nil, kindErr("nth's index must be a constant", span)
	}
	idx := int(nNode.InitValue)
	if idx < 0 || idx >= len(xs.Parents) {
		return nil, structuralErr(fmt.Sprintf("nth index %d out of range [0,%d)", idx, len(xs.Parents)), span)
	}
	return c.graph.Node(xs.Parents[idx]), nil
}

func (c *Constructor) formAppend(args []*Node, span errors.Span) (*Node, error) {
	if len(args) < 1 {
		return nil, arityErr("append expects at least 1 argument", span)
	}
	var ids []NodeID
	for _, n := range args {
		if n.Kind == KindList {
			ids = append(ids, n.Parents...)
		} else {
			ids = append(ids, n.ID)
		}
	}
	out := c.graph.newNode(KindList, "list")
	out.Parents = ids
	out.Length = len(ids)
	return out, nil
}

func (c *Constructor) formApply(args []*Node, span errors.Span) (*Node, error) {
	if len(args) != 2 {
		return nil, arityErr("apply expects (apply f xs)", span)
	}
	f, xs := args[0], args[1]
	if err := requireFactory(f, "apply", span); err != nil {
		return nil, err
	}
	if err := requireList(xs, "apply", span); err != nil {
		return nil, err
	}
	flat := make([]*Node, len(xs.Parents))
	for i, pid := range xs.Parents {
		flat[i] = c.graph.Node(pid)
	}
	return c.apply(f, flat, span)
}
