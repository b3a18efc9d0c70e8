// Package ops is the built-in operator table: a single registry mapping
// operator name to an arity validator, an interpreter compute function, and
// (for scalar operators) a note of whether the operator is stateful. The
// graph constructor uses the validator; the evaluator and the code-generator
// back-end both use the same Entry so the two back-ends can never drift.
package ops

import "math"

// Validator describes how many operands an operator accepts.
type Validator struct {
	MinArity int
	MaxArity int // -1 means unbounded
}

func (v Validator) Accepts(n int) bool {
	if n < v.MinArity {
		return false
	}
	if v.MaxArity >= 0 && n > v.MaxArity {
		return false
	}
	return true
}

// Compute evaluates a pure (stateless) scalar operator given its operand
// values in argument order. Stateful operators (tick, load, store) are not
// represented here: the evaluator and code-generator special-case them
// because they read or write state outside their own Point.
type Compute func(args []float64) float64

// Entry is one row of the operator table.
type Entry struct {
	Name      string
	Validator Validator
	Compute   Compute // nil for stateful operators
	Stateful  bool
}

// Table is the static registry, keyed by operator name.
var Table = map[string]*Entry{}

func register(name string, min, max int, compute Compute) {
	Table[name] = &Entry{Name: name, Validator: Validator{MinArity: min, MaxArity: max}, Compute: compute}
}

func registerStateful(name string, min, max int) {
	Table[name] = &Entry{Name: name, Validator: Validator{MinArity: min, MaxArity: max}, Stateful: true}
}

func boolOf(f float64) bool { return f != 0 }

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

func init() {
	register("+", 2, -1, func(args []float64) float64 {
		acc := args[0]
		for _, a := range args[1:] {
			acc += a
		}
		return acc
	})
	register("-", 2, -1, func(args []float64) float64 {
		acc := args[0]
		for _, a := range args[1:] {
			acc -= a
		}
		return acc
	})
	register("*", 2, -1, func(args []float64) float64 {
		acc := args[0]
		for _, a := range args[1:] {
			acc *= a
		}
		return acc
	})
	register("/", 2, -1, func(args []float64) float64 {
		acc := args[0]
		for _, a := range args[1:] {
			acc /= a
		}
		return acc
	})
	register("%", 2, -1, func(args []float64) float64 {
		acc := args[0]
		for _, a := range args[1:] {
			acc = math.Mod(acc, a)
		}
		return acc
	})

	register("<", 2, 2, func(args []float64) float64 { return boolToFloat(args[0] < args[1]) })
	register("<=", 2, 2, func(args []float64) float64 { return boolToFloat(args[0] <= args[1]) })
	register(">", 2, 2, func(args []float64) float64 { return boolToFloat(args[0] > args[1]) })
	register(">=", 2, 2, func(args []float64) float64 { return boolToFloat(args[0] >= args[1]) })
	register("==", 2, 2, func(args []float64) float64 { return boolToFloat(args[0] == args[1]) })
	register("!=", 2, 2, func(args []float64) float64 { return boolToFloat(args[0] != args[1]) })

	register("&&", 2, -1, func(args []float64) float64 {
		for _, a := range args {
			if !boolOf(a) {
				return 0.0
			}
		}
		return 1.0
	})
	register("||", 2, -1, func(args []float64) float64 {
		for _, a := range args {
			if boolOf(a) {
				return 1.0
			}
		}
		return 0.0
	})
	register("not", 1, 1, func(args []float64) float64 { return boolToFloat(!boolOf(args[0])) })

	register("min", 2, -1, func(args []float64) float64 {
		acc := args[0]
		for _, a := range args[1:] {
			acc = math.Min(acc, a)
		}
		return acc
	})
	register("max", 2, -1, func(args []float64) float64 {
		acc := args[0]
		for _, a := range args[1:] {
			acc = math.Max(acc, a)
		}
		return acc
	})

	register("exp", 1, 1, func(args []float64) float64 { return math.Exp(args[0]) })
	register("ln", 1, 1, func(args []float64) float64 { return math.Log(args[0]) })
	register("trunc", 1, 1, func(args []float64) float64 { return math.Trunc(args[0]) })

	register("?", 3, 3, func(args []float64) float64 {
		if boolOf(args[0]) {
			return args[1]
		}
		return args[2]
	})

	register("copy", 1, 1, func(args []float64) float64 { return args[0] })

	registerStateful("tick", 0, 0)
	registerStateful("load", 1, 1)
	registerStateful("store", 2, 2)
	registerStateful("sim-apply", 3, 3)
}

// Lookup returns the entry for name, if any.
func Lookup(name string) (*Entry, bool) {
	e, ok := Table[name]
	return e, ok
}

// IsScalarOperator reports whether name is a scalar operator at all (stateful
// or not) as opposed to a higher-order list form (map, fold, zip, ...) which
// the graph constructor's factories.go handles directly since those expand
// to more than one node.
func IsScalarOperator(name string) bool {
	_, ok := Table[name]
	return ok
}
