package eval

import (
	"testing"

	"github.com/hankhank/exys-sub000/internal/harness"
)

const simProgram = `(begin
  (input a)
  (observe "y" a)
  (sim-apply a (+ a 1) (>= a 2))
)
`

func TestSimulationWritesBackToInput(t *testing.T) {
	engine, err := Build(simProgram)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !engine.SupportsSimulation() {
		t.Fatal("expected a simulation sub-graph")
	}
	if engine.NumSimulations() != 1 {
		t.Fatalf("NumSimulations = %d, want 1", engine.NumSimulations())
	}

	if err := engine.SetInput("a", 0); err != nil {
		t.Fatal(err)
	}
	engine.Stabilise(false)
	if got, _ := engine.LookupObserver("y"); got != 0 {
		t.Fatalf("y = %v, want 0", got)
	}

	done, err := engine.RunSimulation(0)
	if err != nil {
		t.Fatalf("RunSimulation: %v", err)
	}
	if done {
		t.Fatal("expected not done on first step (a=0 < 2)")
	}
	engine.Stabilise(false)
	if got, _ := engine.LookupInput("a"); got != 1 {
		t.Fatalf("a after one sim step = %v, want 1", got)
	}
	if got, _ := engine.LookupObserver("y"); got != 1 {
		t.Fatalf("y after one sim step = %v, want 1", got)
	}
}

func TestSimulationRunToFixedPoint(t *testing.T) {
	engine, err := Build(simProgram)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := engine.SetInput("a", 0); err != nil {
		t.Fatal(err)
	}
	engine.Stabilise(false)

	steps, done, err := harness.RunToFixedPoint(engine, 0, 10)
	if err != nil {
		t.Fatalf("RunToFixedPoint: %v", err)
	}
	if !done {
		t.Fatal("expected simulation to converge within 10 steps")
	}
	if steps != 3 {
		t.Fatalf("steps = %d, want 3 (0->1, 1->2, 2>=2 done)", steps)
	}
	if got, _ := engine.LookupInput("a"); got != 3 {
		t.Fatalf("a at convergence = %v, want 3", got)
	}
}

func TestCaptureAndResetState(t *testing.T) {
	engine, err := Build(simProgram)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := engine.SetInput("a", 5); err != nil {
		t.Fatal(err)
	}
	engine.Stabilise(false)
	snapshot := engine.CaptureState()

	if err := engine.SetInput("a", 99); err != nil {
		t.Fatal(err)
	}
	engine.Stabilise(false)
	if got, _ := engine.LookupObserver("y"); got != 99 {
		t.Fatalf("y = %v, want 99", got)
	}

	if err := engine.ResetState(snapshot); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	engine.Stabilise(false)
	if got, _ := engine.LookupObserver("y"); got != 5 {
		t.Fatalf("y after reset = %v, want 5", got)
	}
}

func TestMarshalUnmarshalState(t *testing.T) {
	engine, err := Build(simProgram)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := engine.SetInput("a", 7); err != nil {
		t.Fatal(err)
	}
	engine.Stabilise(false)

	data := engine.CaptureState().Marshal()
	decoded, err := UnmarshalState(data)
	if err != nil {
		t.Fatalf("UnmarshalState: %v", err)
	}
	if err := engine.ResetState(decoded); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	engine.Stabilise(false)
	if got, _ := engine.LookupObserver("y"); got != 7 {
		t.Fatalf("y = %v, want 7", got)
	}
}
