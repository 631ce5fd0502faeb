package nn

import (
	"fmt"
	"math"

	"github.com/san-kum/latentode/internal/autodiff"
	"github.com/san-kum/latentode/internal/prng"
)

// Activation names an elementwise nonlinearity.
type Activation string

const (
	Identity Activation = "identity"
	ReLU     Activation = "relu"
	Softplus Activation = "softplus"
	Tanh     Activation = "tanh"
	Sigmoid  Activation = "sigmoid"
)

// Apply evaluates the activation on the tape.
func (a Activation) Apply(x autodiff.Var) autodiff.Var {
	switch a {
	case ReLU:
		return autodiff.ReLU(x)
	case Softplus:
		return autodiff.Softplus(x)
	case Tanh:
		return autodiff.Tanh(x)
	case Sigmoid:
		return autodiff.Sigmoid(x)
	default:
		return x
	}
}

// Valid reports whether a names a known activation.
func (a Activation) Valid() bool {
	switch a {
	case Identity, ReLU, Softplus, Tanh, Sigmoid:
		return true
	}
	return false
}

func uniformInit(key prng.Key, n int, fanIn int) []float64 {
	lim := 1 / math.Sqrt(float64(fanIn))
	return key.UniformRange(n, -lim, lim)
}

// Linear is y = W x + b with W stored as [Out, In].
type Linear struct {
	Name string
	In   int
	Out  int
	Bias bool
}

func (l Linear) weight() string { return l.Name + ".weight" }
func (l Linear) bias() string   { return l.Name + ".bias" }

// Init draws weights and biases from U(-1/sqrt(In), 1/sqrt(In)).
func (l Linear) Init(key prng.Key) ([]Tensor, error) {
	if l.In <= 0 || l.Out <= 0 {
		return nil, fmt.Errorf("%w: linear %s needs positive sizes, got %dx%d", ErrShape, l.Name, l.Out, l.In)
	}
	ks := key.Split(2)
	ts := []Tensor{{Name: l.weight(), Shape: []int{l.Out, l.In}, Data: uniformInit(ks[0], l.Out*l.In, l.In)}}
	if l.Bias {
		ts = append(ts, Tensor{Name: l.bias(), Shape: []int{l.Out}, Data: uniformInit(ks[1], l.Out, l.In)})
	}
	return ts, nil
}

// Forward applies the layer to x.
func (l Linear) Forward(b *Bound, x autodiff.Var) (autodiff.Var, error) {
	if x.Len() != l.In {
		return autodiff.Var{}, fmt.Errorf("%w: %s expects input %d, got %d", ErrShape, l.Name, l.In, x.Len())
	}
	w, err := b.Var(l.weight())
	if err != nil {
		return autodiff.Var{}, err
	}
	var bias autodiff.Var
	if l.Bias {
		if bias, err = b.Var(l.bias()); err != nil {
			return autodiff.Var{}, err
		}
	}
	if w.Len() != l.In*l.Out {
		return autodiff.Var{}, fmt.Errorf("%w: %s weight has %d values, want %d", ErrShape, l.Name, w.Len(), l.In*l.Out)
	}
	return autodiff.Affine(w, bias, l.Out, l.In, x), nil
}

// MLP is a stack of Depth hidden layers of size Width followed by an
// output layer. Depth 0 is a single linear map.
type MLP struct {
	Name            string
	In, Out         int
	Width, Depth    int
	Activation      Activation
	FinalActivation Activation
}

// Layers returns the linear layers in order.
func (m MLP) Layers() []Linear {
	if m.Depth == 0 {
		return []Linear{{Name: m.Name + ".0", In: m.In, Out: m.Out, Bias: true}}
	}
	layers := make([]Linear, 0, m.Depth+1)
	in := m.In
	for i := 0; i < m.Depth; i++ {
		layers = append(layers, Linear{Name: fmt.Sprintf("%s.%d", m.Name, i), In: in, Out: m.Width, Bias: true})
		in = m.Width
	}
	layers = append(layers, Linear{Name: fmt.Sprintf("%s.%d", m.Name, m.Depth), In: in, Out: m.Out, Bias: true})
	return layers
}

func (m MLP) Init(key prng.Key) ([]Tensor, error) {
	if m.Depth < 0 || (m.Depth > 0 && m.Width <= 0) {
		return nil, fmt.Errorf("%w: mlp %s depth %d width %d", ErrShape, m.Name, m.Depth, m.Width)
	}
	layers := m.Layers()
	keys := key.Split(len(layers))
	var out []Tensor
	for i, l := range layers {
		ts, err := l.Init(keys[i])
		if err != nil {
			return nil, err
		}
		out = append(out, ts...)
	}
	return out, nil
}

func (m MLP) Forward(b *Bound, x autodiff.Var) (autodiff.Var, error) {
	layers := m.Layers()
	h := x
	for i, l := range layers {
		var err error
		h, err = l.Forward(b, h)
		if err != nil {
			return autodiff.Var{}, err
		}
		if i < len(layers)-1 {
			h = m.Activation.Apply(h)
		}
	}
	return m.FinalActivation.Apply(h), nil
}

// GRUCell is a gated recurrent unit:
//
//	r = σ(W_ir x + b_r + W_hr h)
//	z = σ(W_iz x + b_z + W_hz h)
//	n = tanh(W_in x + b_n + r ⊙ (W_hn h + b_hn))
//	h' = (1 - z) ⊙ n + z ⊙ h
type GRUCell struct {
	Name   string
	In     int
	Hidden int
}

func (c GRUCell) names() (wih, whh, b, bn string) {
	return c.Name + ".weight_ih", c.Name + ".weight_hh", c.Name + ".bias", c.Name + ".bias_n"
}

func (c GRUCell) Init(key prng.Key) ([]Tensor, error) {
	if c.In <= 0 || c.Hidden <= 0 {
		return nil, fmt.Errorf("%w: gru %s input %d hidden %d", ErrShape, c.Name, c.In, c.Hidden)
	}
	wih, whh, b, bn := c.names()
	ks := key.Split(4)
	h3 := 3 * c.Hidden
	return []Tensor{
		{Name: wih, Shape: []int{h3, c.In}, Data: uniformInit(ks[0], h3*c.In, c.Hidden)},
		{Name: whh, Shape: []int{h3, c.Hidden}, Data: uniformInit(ks[1], h3*c.Hidden, c.Hidden)},
		{Name: b, Shape: []int{h3}, Data: uniformInit(ks[2], h3, c.Hidden)},
		{Name: bn, Shape: []int{c.Hidden}, Data: uniformInit(ks[3], c.Hidden, c.Hidden)},
	}, nil
}

// Forward advances the hidden state h by one input x.
func (c GRUCell) Forward(b *Bound, x, h autodiff.Var) (autodiff.Var, error) {
	if x.Len() != c.In {
		return autodiff.Var{}, fmt.Errorf("%w: %s expects input %d, got %d", ErrShape, c.Name, c.In, x.Len())
	}
	if h.Len() != c.Hidden {
		return autodiff.Var{}, fmt.Errorf("%w: %s expects hidden %d, got %d", ErrShape, c.Name, c.Hidden, h.Len())
	}
	wihName, whhName, bName, bnName := c.names()
	vars := make([]autodiff.Var, 4)
	for i, name := range []string{wihName, whhName, bName, bnName} {
		v, err := b.Var(name)
		if err != nil {
			return autodiff.Var{}, err
		}
		vars[i] = v
	}
	wih, whh, bias, biasN := vars[0], vars[1], vars[2], vars[3]

	hs := c.Hidden
	ig := autodiff.Affine(wih, bias, 3*hs, c.In, x)
	hg := autodiff.Affine(whh, autodiff.Var{}, 3*hs, hs, h)

	r := autodiff.Sigmoid(autodiff.Add(autodiff.Slice(ig, 0, hs), autodiff.Slice(hg, 0, hs)))
	z := autodiff.Sigmoid(autodiff.Add(autodiff.Slice(ig, hs, 2*hs), autodiff.Slice(hg, hs, 2*hs)))
	hn := autodiff.Add(autodiff.Slice(hg, 2*hs, 3*hs), biasN)
	n := autodiff.Tanh(autodiff.Add(autodiff.Slice(ig, 2*hs, 3*hs), autodiff.Mul(r, hn)))

	// (1 - z) n + z h == n + z (h - n)
	return autodiff.Add(n, autodiff.Mul(z, autodiff.Sub(h, n))), nil
}
