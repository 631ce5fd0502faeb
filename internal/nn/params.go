package nn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrShape   = errors.New("nn: shape mismatch")
	ErrUnknown = errors.New("nn: unknown parameter")
	ErrDup     = errors.New("nn: duplicate parameter")
)

// Tensor is a named, shaped block of parameters stored row-major.
type Tensor struct {
	Name  string
	Shape []int
	Data  []float64
}

func (t Tensor) clone() Tensor {
	shape := append([]int(nil), t.Shape...)
	data := append([]float64(nil), t.Data...)
	return Tensor{Name: t.Name, Shape: shape, Data: data}
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Params is an immutable, ordered set of tensors. Every method that
// "changes" parameters returns a new value and leaves the receiver as is.
type Params struct {
	tensors []Tensor
	index   map[string]int
}

// NewParams builds a parameter set. Tensors are copied.
func NewParams(tensors ...Tensor) (Params, error) {
	p := Params{tensors: make([]Tensor, 0, len(tensors)), index: make(map[string]int, len(tensors))}
	for _, t := range tensors {
		if _, ok := p.index[t.Name]; ok {
			return Params{}, fmt.Errorf("%w: %s", ErrDup, t.Name)
		}
		if size(t.Shape) != len(t.Data) {
			return Params{}, fmt.Errorf("%w: %s has shape %v but %d values", ErrShape, t.Name, t.Shape, len(t.Data))
		}
		p.index[t.Name] = len(p.tensors)
		p.tensors = append(p.tensors, t.clone())
	}
	return p, nil
}

// Len returns the number of tensors.
func (p Params) Len() int { return len(p.tensors) }

// Size returns the total number of scalar parameters.
func (p Params) Size() int {
	n := 0
	for _, t := range p.tensors {
		n += len(t.Data)
	}
	return n
}

// Names lists tensor names in insertion order.
func (p Params) Names() []string {
	names := make([]string, len(p.tensors))
	for i, t := range p.tensors {
		names[i] = t.Name
	}
	return names
}

// Get returns a copy of the named tensor.
func (p Params) Get(name string) (Tensor, error) {
	i, ok := p.index[name]
	if !ok {
		return Tensor{}, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return p.tensors[i].clone(), nil
}

// Tensors returns copies of all tensors.
func (p Params) Tensors() []Tensor {
	out := make([]Tensor, len(p.tensors))
	for i, t := range p.tensors {
		out[i] = t.clone()
	}
	return out
}

// SameStructure reports whether q has the same names and shapes as p.
func (p Params) SameStructure(q Params) bool {
	if len(p.tensors) != len(q.tensors) {
		return false
	}
	for i, t := range p.tensors {
		u := q.tensors[i]
		if t.Name != u.Name || len(t.Shape) != len(u.Shape) {
			return false
		}
		for j := range t.Shape {
			if t.Shape[j] != u.Shape[j] {
				return false
			}
		}
	}
	return true
}

// Map returns a new set with fn applied to each tensor's data.
func (p Params) Map(fn func(name string, data []float64) []float64) Params {
	out := Params{tensors: make([]Tensor, len(p.tensors)), index: p.index}
	for i, t := range p.tensors {
		c := t.clone()
		c.Data = fn(t.Name, c.Data)
		out.tensors[i] = c
	}
	return out
}

// ZerosLike returns a set with the same structure filled with zeros.
func (p Params) ZerosLike() Params {
	return p.Map(func(_ string, d []float64) []float64 {
		for i := range d {
			d[i] = 0
		}
		return d
	})
}

// Zip combines p and q tensor by tensor.
func (p Params) Zip(q Params, fn func(name string, a, b []float64) []float64) (Params, error) {
	if !p.SameStructure(q) {
		return Params{}, ErrShape
	}
	out := Params{tensors: make([]Tensor, len(p.tensors)), index: p.index}
	for i, t := range p.tensors {
		c := t.clone()
		c.Data = fn(t.Name, c.Data, q.tensors[i].Data)
		out.tensors[i] = c
	}
	return out, nil
}

// Add returns p + q.
func (p Params) Add(q Params) (Params, error) {
	return p.Zip(q, func(_ string, a, b []float64) []float64 {
		floats.Add(a, b)
		return a
	})
}

// Scale returns c * p.
func (p Params) Scale(c float64) Params {
	return p.Map(func(_ string, d []float64) []float64 {
		floats.Scale(c, d)
		return d
	})
}

// Apply adds updates to the parameters and returns the new set.
func (p Params) Apply(updates Params) (Params, error) {
	out, err := p.Add(updates)
	if err != nil {
		return Params{}, fmt.Errorf("apply updates: %w", err)
	}
	return out, nil
}

// Norm returns the global L2 norm across all tensors.
func (p Params) Norm() float64 {
	sum := 0.0
	for _, t := range p.tensors {
		sum += floats.Dot(t.Data, t.Data)
	}
	return math.Sqrt(sum)
}

// IsFinite reports whether every value is finite.
func (p Params) IsFinite() bool {
	for _, t := range p.tensors {
		for _, v := range t.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Flatten concatenates every tensor in order.
func (p Params) Flatten() []float64 {
	out := make([]float64, 0, p.Size())
	for _, t := range p.tensors {
		out = append(out, t.Data...)
	}
	return out
}

// Unflatten is the inverse of Flatten: it returns a set shaped like p
// holding the values of flat.
func (p Params) Unflatten(flat []float64) (Params, error) {
	if len(flat) != p.Size() {
		return Params{}, fmt.Errorf("%w: %d values for %d parameters", ErrShape, len(flat), p.Size())
	}
	off := 0
	return p.Map(func(_ string, d []float64) []float64 {
		n := copy(d, flat[off:off+len(d)])
		off += n
		return d
	}), nil
}
