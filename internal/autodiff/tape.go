package autodiff

import (
	"errors"
	"fmt"
)

var (
	ErrNoGrad    = errors.New("autodiff: tape does not record gradients")
	ErrNotScalar = errors.New("autodiff: backward requires a scalar output")
	ErrForeign   = errors.New("autodiff: variable belongs to another tape")
)

// Var is a handle to a vector value. The zero Var is "absent" and is
// accepted where an operand is optional (e.g. a missing bias).
type Var struct {
	tape *Tape
	id   int
	val  []float64
}

// Value returns the underlying values. Callers must not modify them.
func (v Var) Value() []float64 { return v.val }

// Len returns the vector length.
func (v Var) Len() int { return len(v.val) }

// Scalar returns the single element of a length-1 Var.
func (v Var) Scalar() float64 {
	if len(v.val) != 1 {
		panic(fmt.Sprintf("autodiff: Scalar on vector of length %d", len(v.val)))
	}
	return v.val[0]
}

// Absent reports whether v is the zero Var.
func (v Var) Absent() bool { return v.tape == nil }

// Tape returns the tape v was recorded on.
func (v Var) Tape() *Tape { return v.tape }

func (v Var) tracked() bool { return v.id >= 0 && v.tape != nil && v.tape.record }

type node struct {
	size     int
	backward func(g []float64, acc func(v Var, g []float64))
}

// Tape records operations for backpropagation.
type Tape struct {
	record bool
	nodes  []node
}

// NewTape returns a tape that records gradients.
func NewTape() *Tape {
	return &Tape{record: true, nodes: make([]node, 0, 1024)}
}

// NewInferenceTape returns a tape that only evaluates values.
func NewInferenceTape() *Tape {
	return &Tape{record: false}
}

// Recording reports whether the tape tracks gradients.
func (t *Tape) Recording() bool { return t.record }

// Len returns the number of recorded nodes.
func (t *Tape) Len() int { return len(t.nodes) }

// Const wraps values that do not receive gradients. The slice is copied.
func (t *Tape) Const(vals []float64) Var {
	c := make([]float64, len(vals))
	copy(c, vals)
	return Var{tape: t, id: -1, val: c}
}

// Leaf wraps values whose gradient will be reported by Backward.
func (t *Tape) Leaf(vals []float64) Var {
	c := make([]float64, len(vals))
	copy(c, vals)
	return t.push(c, nil)
}

// Zeros returns a constant vector of n zeros.
func (t *Tape) Zeros(n int) Var {
	return Var{tape: t, id: -1, val: make([]float64, n)}
}

func (t *Tape) push(val []float64, backward func(g []float64, acc func(v Var, g []float64))) Var {
	if !t.record {
		return Var{tape: t, id: -1, val: val}
	}
	t.nodes = append(t.nodes, node{size: len(val), backward: backward})
	return Var{tape: t, id: len(t.nodes) - 1, val: val}
}

// Gradients holds dL/dv for every tracked node.
type Gradients struct {
	tape  *Tape
	grads [][]float64
}

// Of returns the gradient for v, or zeros if nothing flowed into it.
func (g *Gradients) Of(v Var) []float64 {
	out := make([]float64, v.Len())
	if v.tape != g.tape || v.id < 0 || v.id >= len(g.grads) || g.grads[v.id] == nil {
		return out
	}
	copy(out, g.grads[v.id])
	return out
}

// Backward computes gradients of the scalar out with respect to every
// recorded node.
func (t *Tape) Backward(out Var) (*Gradients, error) {
	if !t.record {
		return nil, ErrNoGrad
	}
	if out.tape != t {
		return nil, ErrForeign
	}
	if out.Len() != 1 {
		return nil, fmt.Errorf("%w: got length %d", ErrNotScalar, out.Len())
	}

	grads := make([][]float64, len(t.nodes))
	res := &Gradients{tape: t, grads: grads}
	if out.id < 0 {
		return res, nil
	}

	grads[out.id] = []float64{1}
	acc := func(v Var, g []float64) {
		if !v.tracked() {
			return
		}
		dst := grads[v.id]
		if dst == nil {
			dst = make([]float64, len(g))
			grads[v.id] = dst
		}
		for i := range g {
			dst[i] += g[i]
		}
	}

	for i := out.id; i >= 0; i-- {
		g := grads[i]
		if g == nil || t.nodes[i].backward == nil {
			continue
		}
		t.nodes[i].backward(g, acc)
	}
	return res, nil
}
