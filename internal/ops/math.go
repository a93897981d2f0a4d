package ops

import (
	"fmt"

	"qpipe/internal/qerr"
)

// MathFunc maps the integer values of a gate's target registers (one per
// qubit group, in order) to their new values.
type MathFunc func(values []int64) []int64

// MathGate is a reversible arithmetic gate over whole registers. Two
// MathGates are the same gate only if they are the same pointer.
type MathGate struct {
	name  string
	arity int
	fn    MathFunc
}

// NewMathGate builds an arithmetic gate over arity registers.
func NewMathGate(name string, arity int, fn MathFunc) *MathGate {
	return &MathGate{name: name, arity: arity, fn: fn}
}

func (g *MathGate) String() string { return g.name }

// Arity is the number of registers the gate reads and writes.
func (g *MathGate) Arity() int { return g.arity }

// Evaluate applies the gate function. It checks the input and output counts
// but not the register widths; that is up to the executing backend.
func (g *MathGate) Evaluate(values []int64) ([]int64, error) {
	if len(values) != g.arity {
		return nil, qerr.InvalidArgument("%s takes %d registers, got %d", g.name, g.arity, len(values))
	}
	in := append([]int64(nil), values...)
	out := g.fn(in)
	if len(out) != g.arity {
		return nil, qerr.RuntimeInconsistency("%s returned %d values for %d registers", g.name, len(out), g.arity)
	}
	return out, nil
}

// AddConstant adds n to a single register.
func AddConstant(n int64) *MathGate {
	return NewMathGate(fmt.Sprintf("AddConstant(%d)", n), 1, func(v []int64) []int64 {
		return []int64{v[0] + n}
	})
}

// SubtractConstant subtracts n from a single register.
func SubtractConstant(n int64) *MathGate {
	return NewMathGate(fmt.Sprintf("SubtractConstant(%d)", n), 1, func(v []int64) []int64 {
		return []int64{v[0] - n}
	})
}

// AddRegister maps (x, y) to (x, y+x).
func AddRegister() *MathGate {
	return NewMathGate("AddRegister", 2, func(v []int64) []int64 {
		return []int64{v[0], v[1] + v[0]}
	})
}

// SubtractRegister maps (x, y) to (x, y-x).
func SubtractRegister() *MathGate {
	return NewMathGate("SubtractRegister", 2, func(v []int64) []int64 {
		return []int64{v[0], v[1] - v[0]}
	})
}
