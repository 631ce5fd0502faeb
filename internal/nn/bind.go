package nn

import (
	"fmt"

	"github.com/san-kum/latentode/internal/autodiff"
)

// Bound places a parameter set on a tape for one forward pass.
type Bound struct {
	tape   *autodiff.Tape
	params Params
	vars   map[string]autodiff.Var
}

// Bind registers every tensor of p on tape. On a recording tape the
// tensors become leaves so that Grads can collect their gradients.
func Bind(tape *autodiff.Tape, p Params) *Bound {
	b := &Bound{tape: tape, params: p, vars: make(map[string]autodiff.Var, p.Len())}
	for _, t := range p.tensors {
		if tape.Recording() {
			b.vars[t.Name] = tape.Leaf(t.Data)
		} else {
			b.vars[t.Name] = tape.Const(t.Data)
		}
	}
	return b
}

// Tape returns the tape the parameters live on.
func (b *Bound) Tape() *autodiff.Tape { return b.tape }

// Var returns the tape variable for a tensor.
func (b *Bound) Var(name string) (autodiff.Var, error) {
	v, ok := b.vars[name]
	if !ok {
		return autodiff.Var{}, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return v, nil
}

// Grads extracts a gradient set with the structure of the bound params.
func (b *Bound) Grads(g *autodiff.Gradients) Params {
	return b.params.Map(func(name string, _ []float64) []float64 {
		return g.Of(b.vars[name])
	})
}
