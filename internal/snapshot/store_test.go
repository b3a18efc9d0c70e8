package snapshot

import (
	"testing"

	"github.com/hankhank/exys-sub000/internal/eval"
)

const program = `(begin
  (input a)
  (observe "y" (* a 2))
)
`

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := Open("sqlite://file::memory:?cache=shared", 2, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	engine, err := eval.Build(program)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := engine.SetInput("a", 21); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	engine.Stabilise(false)

	id, err := store.Save(engine)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Save is async; give the worker a chance to persist by loading in a
	// retry loop bounded at 1000 attempts rather than a fixed sleep.
	var state *eval.State
	for i := 0; i < 1000; i++ {
		state, err = store.Load(id)
		if err == nil {
			break
		}
	}
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	fresh, err := eval.Build(program)
	if err != nil {
		t.Fatalf("Build (fresh): %v", err)
	}
	if err := fresh.ResetState(state); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	fresh.Stabilise(false)

	got, _ := fresh.LookupObserver("y")
	if got != 42 {
		t.Errorf("y = %v, want 42", got)
	}
}

func TestLoadUnknownID(t *testing.T) {
	store, err := Open("sqlite://file::memory:?cache=shared", 1, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, err := store.Load("does-not-exist"); err == nil {
		t.Fatal("expected error loading unknown id")
	}
}
