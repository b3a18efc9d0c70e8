// Package golden runs the txtar-archived source programs under
// testdata/golden through the harness (spec.md §6's "Executioner"), using
// rogpeppe/go-internal/testscript as the script runner: each archive's
// single custom "run" command reads the embedded program, builds an
// interpreter engine from it, and checks the harness verdict. This is the
// closest structural match in the corpus to spec.md §8's Testable
// Properties ("concrete scenarios") — one program, one expected trace,
// authored as a single self-contained file.
package golden

import (
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/hankhank/exys-sub000/internal/eval"
	"github.com/hankhank/exys-sub000/internal/harness"
)

func TestGoldenPrograms(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/golden",
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			"run": cmdRun,
		},
	})
}

func cmdRun(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 1 {
		ts.Fatalf("usage: run <program-file>")
	}
	text := ts.ReadFile(args[0])

	engine, err := eval.Build(text)
	if err != nil {
		if neg {
			return
		}
		ts.Fatalf("build: %v", err)
	}

	result := harness.Run(text, engine)
	if neg {
		if result.Pass {
			ts.Fatalf("expected harness failure, got pass")
		}
		return
	}
	if !result.Pass {
		ts.Fatalf("harness failed: %s", result.Message)
	}
}
