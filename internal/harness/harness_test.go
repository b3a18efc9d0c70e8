package harness

import (
	"testing"

	"github.com/hankhank/exys-sub000/internal/eval"
)

const sumProgram = `(begin
  (input a)
  (input b)
  (observe "s" (+ a b))
  ;inject a 3
  ;inject b 4
  ;stabilize
  ;expect s 7
)
`

func TestRunPass(t *testing.T) {
	engine, err := eval.Build(sumProgram)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res := Run(sumProgram, engine)
	if !res.Pass {
		t.Fatalf("expected pass, got fail: %s", res.Message)
	}
	if len(res.Trace) != 1 {
		t.Fatalf("expected 1 trace step, got %d", len(res.Trace))
	}
	if got := res.Trace[0].Observers["s"]; got != 7 {
		t.Errorf("s = %v, want 7", got)
	}
}

func TestRunFailsOnMismatch(t *testing.T) {
	text := `(begin
  (input a)
  (input b)
  (observe "s" (+ a b))
  ;inject a 1
  ;inject b 1
  ;stabilize
  ;expect s 99
)
`
	engine, err := eval.Build(text)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res := Run(text, engine)
	if res.Pass {
		t.Fatal("expected failure, got pass")
	}
}

func TestDoubleSemicolonIsNotACommand(t *testing.T) {
	text := `(begin
  (input a)
  (observe "s" a)
  ;;inject a 5
  ;stabilize
)
`
	engine, err := eval.Build(text)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res := Run(text, engine)
	if !res.Pass {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	if got, _ := engine.LookupInput("a"); got != 0 {
		t.Errorf("a = %v, want 0 (double-semicolon line should not inject)", got)
	}
}

type fakeSimulator struct {
	results []bool
	calls   int
}

func (f *fakeSimulator) RunSimulation(id int) (bool, error) {
	r := f.results[f.calls]
	f.calls++
	return r, nil
}

func (f *fakeSimulator) Stabilise(force bool) {}

func TestRunToFixedPoint(t *testing.T) {
	sim := &fakeSimulator{results: []bool{false, false, true}}
	steps, done, err := RunToFixedPoint(sim, 0, 10)
	if err != nil {
		t.Fatalf("RunToFixedPoint: %v", err)
	}
	if !done {
		t.Fatal("expected done=true")
	}
	if steps != 3 {
		t.Errorf("steps = %d, want 3", steps)
	}
}

func TestRunToFixedPointExhausted(t *testing.T) {
	sim := &fakeSimulator{results: []bool{false, false, false}}
	_, done, err := RunToFixedPoint(sim, 0, 3)
	if err != nil {
		t.Fatalf("RunToFixedPoint: %v", err)
	}
	if done {
		t.Fatal("expected done=false when steps exhausted")
	}
}
