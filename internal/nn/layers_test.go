package nn

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/san-kum/latentode/internal/autodiff"
	"github.com/san-kum/latentode/internal/prng"
)

func mustParams(t *testing.T, groups ...[]Tensor) Params {
	t.Helper()
	var all []Tensor
	for _, g := range groups {
		all = append(all, g...)
	}
	p, err := NewParams(all...)
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	return p
}

func TestLinearInit(t *testing.T) {
	l := Linear{Name: "lin", In: 4, Out: 3, Bias: true}
	ts, err := l.Init(prng.New(1))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if len(ts) != 2 {
		t.Fatalf("expected weight and bias, got %d tensors", len(ts))
	}
	lim := 1 / math.Sqrt(4)
	for _, tensor := range ts {
		for _, v := range tensor.Data {
			if v < -lim || v > lim {
				t.Errorf("%s value %f outside ±%f", tensor.Name, v, lim)
			}
		}
	}
	if !cmp.Equal(ts[0].Shape, []int{3, 4}) {
		t.Errorf("weight shape %v, want [3 4]", ts[0].Shape)
	}

	if _, err := (Linear{Name: "bad", In: 0, Out: 2}).Init(prng.New(1)); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape for zero input, got %v", err)
	}
}

func TestLinearShapeMismatch(t *testing.T) {
	l := Linear{Name: "lin", In: 2, Out: 2, Bias: true}
	ts, _ := l.Init(prng.New(2))
	p := mustParams(t, ts)

	tape := autodiff.NewInferenceTape()
	b := Bind(tape, p)
	_, err := l.Forward(b, tape.Const([]float64{1, 2, 3}))
	if !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestMLPLayers(t *testing.T) {
	tests := []struct {
		depth int
		want  int
	}{
		{0, 1},
		{1, 2},
		{2, 3},
	}
	for _, tt := range tests {
		m := MLP{Name: "mlp", In: 3, Out: 5, Width: 7, Depth: tt.depth}
		layers := m.Layers()
		if len(layers) != tt.want {
			t.Errorf("depth %d: %d layers, want %d", tt.depth, len(layers), tt.want)
		}
		if layers[0].In != 3 || layers[len(layers)-1].Out != 5 {
			t.Errorf("depth %d: wrong boundary sizes %+v", tt.depth, layers)
		}
	}
}

func TestMLPFinalActivationBounds(t *testing.T) {
	m := MLP{Name: "f", In: 4, Out: 4, Width: 8, Depth: 2, Activation: Softplus, FinalActivation: Tanh}
	ts, err := m.Init(prng.New(3))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	p := mustParams(t, ts)
	tape := autodiff.NewInferenceTape()
	out, err := m.Forward(Bind(tape, p), tape.Const([]float64{100, -100, 50, 3}))
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	for i, v := range out.Value() {
		if v < -1 || v > 1 {
			t.Errorf("output %d = %f escapes tanh range", i, v)
		}
	}
}

func TestGRUCellGradients(t *testing.T) {
	cell := GRUCell{Name: "gru", In: 3, Hidden: 4}
	ts, err := cell.Init(prng.New(4))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	p := mustParams(t, ts)
	x := []float64{0.2, -0.5, 1.0}
	h0 := []float64{0.1, 0.0, -0.3, 0.4}

	loss := func(tape *autodiff.Tape, params Params) (autodiff.Var, *Bound) {
		b := Bind(tape, params)
		h, err := cell.Forward(b, tape.Const(x), tape.Const(h0))
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		h, err = cell.Forward(b, tape.Const(x), h)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		return autodiff.SumSquares(h), b
	}

	tape := autodiff.NewTape()
	out, b := loss(tape, p)
	g, err := tape.Backward(out)
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	grads := b.Grads(g)

	for _, name := range p.Names() {
		tensor, _ := p.Get(name)
		got, _ := grads.Get(name)
		want := fd.Gradient(nil, func(v []float64) float64 {
			q := p.Map(func(n string, d []float64) []float64 {
				if n == name {
					return append([]float64(nil), v...)
				}
				return d
			})
			o, _ := loss(autodiff.NewInferenceTape(), q)
			return o.Scalar()
		}, tensor.Data, &fd.Settings{Formula: fd.Central, Step: 1e-6})
		if diff := cmp.Diff(want, got.Data, cmpopts.EquateApprox(0, 1e-5)); diff != "" {
			t.Errorf("%s gradient mismatch (-fd +tape):\n%s", name, diff)
		}
	}
}

func TestGRUCellShapeErrors(t *testing.T) {
	cell := GRUCell{Name: "gru", In: 2, Hidden: 3}
	ts, _ := cell.Init(prng.New(5))
	p := mustParams(t, ts)
	tape := autodiff.NewInferenceTape()
	b := Bind(tape, p)

	if _, err := cell.Forward(b, tape.Const([]float64{1}), tape.Zeros(3)); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape for input, got %v", err)
	}
	if _, err := cell.Forward(b, tape.Const([]float64{1, 2}), tape.Zeros(2)); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape for hidden, got %v", err)
	}
}
