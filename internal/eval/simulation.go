package eval

import "fmt"

// State is an opaque snapshot of every point's value plus the tick
// counters, suitable for CaptureState/ResetState round-tripping (spec.md
// §6's simulation API and SPEC_FULL.md §6's snapshot-persistence side-car).
type State struct {
	values []float64
	ticks  map[int]uint64
}

// CaptureState snapshots the engine's entire value vector.
func (e *Engine) CaptureState() *State {
	s := &State{
		values: make([]float64, len(e.points)),
		ticks:  make(map[int]uint64, len(e.tickCounters)),
	}
	for i := range e.points {
		s.values[i] = e.points[i].Value
	}
	for k, v := range e.tickCounters {
		s.ticks[k] = v
	}
	return s
}

// ResetState restores a previously captured snapshot and marks every point
// dirty so the next Stabilise re-derives a consistent fixed point rather
// than trusting the restored values as already stable.
func (e *Engine) ResetState(s *State) error {
	if len(s.values) != len(e.points) {
		return fmt.Errorf("snapshot has %d points, engine has %d", len(s.values), len(e.points))
	}
	for i := range e.points {
		e.points[i].Value = s.values[i]
		e.points[i].Dirty = true
	}
	e.tickCounters = make(map[int]uint64, len(s.ticks))
	for k, v := range s.ticks {
		e.tickCounters[k] = v
	}
	return nil
}

// SupportsSimulation reports whether the graph contains any sim-apply
// sub-graphs at all.
func (e *Engine) SupportsSimulation() bool { return len(e.layout.Sims) > 0 }

// NumSimulations returns how many sim-apply sub-graphs the layout carved out.
func (e *Engine) NumSimulations() int { return len(e.layout.Sims) }

// RunSimulation drives simulation id to convergence in isolation: it
// restabilises only the nodes the layout planner carved exclusively for this
// simulation (its Extension), then copies the resulting overwrite values
// back into the corresponding main-graph input points and reports whether
// the simulation's done flag is set (spec.md §6).
func (e *Engine) RunSimulation(id int) (bool, error) {
	if id < 0 || id >= len(e.layout.Sims) {
		return false, fmt.Errorf("no such simulation %d", id)
	}
	sim := e.layout.Sims[id]

	for _, offset := range sim.Extension {
		e.points[offset].Dirty = true
	}
	e.stabiliseOffsets(sim.Extension)

	for i, target := range sim.TargetOffsets {
		src := sim.OverwriteOffsets[i]
		e.points[target].Value = e.points[src].Value
		e.markChildrenDirty(target)
	}

	done := e.points[sim.DoneOffset].Value != 0
	return done, nil
}

// stabiliseOffsets recomputes exactly the given offsets, in ascending height
// order, for at most len(offsets)+1 passes, stopping early after a pass that
// changes nothing — the simulation extension is typically small and acyclic,
// so this converges quickly without touching the main graph's recompute queue.
func (e *Engine) stabiliseOffsets(offsets []int) {
	if len(offsets) == 0 {
		return
	}
	ordered := append([]int(nil), offsets...)
	sortByHeightAsc(ordered, e.inter)

	for pass := 0; pass < len(ordered)+1; pass++ {
		progressed := false
		for _, offset := range ordered {
			if !e.points[offset].Dirty {
				continue
			}
			if e.recompute(offset) {
				progressed = true
			}
			e.points[offset].Dirty = false
		}
		if !progressed {
			return
		}
	}
}

func sortByHeightAsc(offsets []int, inter []interPoint) {
	for i := 1; i < len(offsets); i++ {
		for j := i; j > 0 && inter[offsets[j-1]].height > inter[offsets[j]].height; j-- {
			offsets[j-1], offsets[j] = offsets[j], offsets[j-1]
		}
	}
}
