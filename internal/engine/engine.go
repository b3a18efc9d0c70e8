// Package engine is the construction-time facade spec.md §6 describes as
// "the Engine API": it picks a back-end (the interpreter or the
// code-generator), builds it from source text, and optionally wires in the
// two side-cars SPEC_FULL.md §6 adds on top — a snapshot store and a trace
// relay — neither of which is on the critical compile/stabilise path.
//
// Construction-time configuration follows the teacher's New*(...)
// functional-options idiom (e.g. NewDatabaseModule's field defaults,
// NewScanner's option chain) rather than a config file: spec.md names no
// configuration surface beyond engine construction.
package engine

import (
	"fmt"

	"github.com/hankhank/exys-sub000/internal/codegen"
	"github.com/hankhank/exys-sub000/internal/eval"
	"github.com/hankhank/exys-sub000/internal/harness"
	"github.com/hankhank/exys-sub000/internal/snapshot"
	"github.com/hankhank/exys-sub000/internal/tracerelay"
)

// Backend selects which of the two implementations of spec.md §6's Engine
// API to build.
type Backend int

const (
	// BackendInterpreter is the tree-walking back-end (internal/eval),
	// available for every graph including those with simulations.
	BackendInterpreter Backend = iota
	// BackendCodegen is the straight-line-plan back-end (internal/codegen).
	BackendCodegen
)

// Options holds construction-time choices. Build it through the With*
// functions, never directly.
type Options struct {
	backend Backend

	snapshotDSN     string
	snapshotWorkers int
	snapshotLogf    snapshot.Logf

	traceRelay bool
}

// Option configures an Engine at construction time.
type Option func(*Options)

// WithBackend selects the interpreter or the code-generator. Defaults to
// BackendInterpreter.
func WithBackend(b Backend) Option {
	return func(o *Options) { o.backend = b }
}

// WithSnapshotStore enables the async snapshot side-car against dsn, with
// the given number of persistence workers. Only compatible with
// BackendInterpreter: the code-generator back-end does not implement
// CaptureState/ResetState (spec.md §6 names simulation support as optional
// per back-end via SupportsSimulation).
func WithSnapshotStore(dsn string, workers int, logf snapshot.Logf) Option {
	return func(o *Options) {
		o.snapshotDSN = dsn
		o.snapshotWorkers = workers
		o.snapshotLogf = logf
	}
}

// WithTraceRelay enables a WebSocket trace relay that every harness.Run
// call through RunHarness broadcasts its trace to.
func WithTraceRelay() Option {
	return func(o *Options) { o.traceRelay = true }
}

// Core is the narrow surface spec.md §6 mandates both back-ends implement.
type Core interface {
	HasInput(label string) bool
	SetInput(label string, value float64) error
	LookupInput(label string) (float64, bool)
	HasObserver(label string) bool
	LookupObserver(label string) (float64, bool)
	IsDirty(label string) bool
	InputLabels() []string
	ObserverLabels() []string
	Stabilise(force bool)
}

// Engine wraps a Core back-end plus whichever optional side-cars were
// requested at construction.
type Engine struct {
	Core Core

	source string

	snapshots *snapshot.Store
	relay     *tracerelay.Relay
}

// Build compiles source according to opts.
func Build(source string, opts ...Option) (*Engine, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	var core Core
	switch o.backend {
	case BackendCodegen:
		e, err := codegen.Build(source)
		if err != nil {
			return nil, err
		}
		core = e
	default:
		e, err := eval.Build(source)
		if err != nil {
			return nil, err
		}
		core = e
	}

	engine := &Engine{Core: core, source: source}

	if o.snapshotDSN != "" {
		if _, ok := core.(*eval.Engine); !ok {
			return nil, fmt.Errorf("engine: snapshot store requires BackendInterpreter")
		}
		store, err := snapshot.Open(o.snapshotDSN, o.snapshotWorkers, o.snapshotLogf)
		if err != nil {
			return nil, err
		}
		engine.snapshots = store
	}

	if o.traceRelay {
		engine.relay = tracerelay.New()
	}

	return engine, nil
}

// Snapshots returns the snapshot store, or nil if it was not requested.
func (e *Engine) Snapshots() *snapshot.Store { return e.snapshots }

// TraceRelay returns the trace relay (also an http.Handler an external
// server can mount), or nil if it was not requested.
func (e *Engine) TraceRelay() *tracerelay.Relay { return e.relay }

// RunHarness drives the engine through its source text's embedded
// inject/stabilize/expect commands (spec.md §6) and, if a trace relay is
// attached, broadcasts each recorded step to connected subscribers once the
// whole run has finished.
func (e *Engine) RunHarness() harness.Result {
	if e.relay == nil {
		return harness.Run(e.source, e.Core)
	}

	result := harness.Run(e.source, e.Core)
	for _, step := range result.Trace {
		_ = e.relay.Broadcast(step)
	}
	return result
}

// Close releases any side-cars the engine was built with.
func (e *Engine) Close() error {
	if e.snapshots != nil {
		if err := e.snapshots.Close(); err != nil {
			return err
		}
	}
	if e.relay != nil {
		e.relay.Close()
	}
	return nil
}
