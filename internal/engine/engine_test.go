package engine

import "testing"

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

func TestBuildDefaultBackendRunsHarness(t *testing.T) {
	e, err := Build(sumProgram)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	result := e.RunHarness()
	if !result.Pass {
		t.Fatalf("harness failed: %s", result.Message)
	}
}

func TestBuildCodegenBackend(t *testing.T) {
	e, err := Build(sumProgram, WithBackend(BackendCodegen))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	result := e.RunHarness()
	if !result.Pass {
		t.Fatalf("harness failed: %s", result.Message)
	}
}

func TestWithTraceRelayBroadcastsTrace(t *testing.T) {
	e, err := Build(sumProgram, WithTraceRelay())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	if e.TraceRelay() == nil {
		t.Fatal("expected a trace relay to be attached")
	}
	result := e.RunHarness()
	if !result.Pass {
		t.Fatalf("harness failed: %s", result.Message)
	}
}

func TestSnapshotStoreRejectedForCodegenBackend(t *testing.T) {
	_, err := Build(sumProgram, WithBackend(BackendCodegen), WithSnapshotStore("sqlite://file::memory:?cache=shared", 1, nil))
	if err == nil {
		t.Fatal("expected an error requesting a snapshot store with the codegen backend")
	}
}

func TestSnapshotStoreWithInterpreterBackend(t *testing.T) {
	e, err := Build(sumProgram, WithSnapshotStore("sqlite://file::memory:?cache=shared", 1, nil))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	if e.Snapshots() == nil {
		t.Fatal("expected a snapshot store to be attached")
	}
}
