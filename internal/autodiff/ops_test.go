package autodiff

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/diff/fd"
)

var approx = cmpopts.EquateApprox(0, 1e-5)

// checkGrad compares the tape gradient of build at x with central
// finite differences.
func checkGrad(t *testing.T, name string, x []float64, build func(tape *Tape, v Var) Var) {
	t.Helper()

	tape := NewTape()
	v := tape.Leaf(x)
	out := build(tape, v)
	grads, err := tape.Backward(out)
	if err != nil {
		t.Fatalf("%s: backward: %v", name, err)
	}
	got := grads.Of(v)

	want := fd.Gradient(nil, func(p []float64) float64 {
		inf := NewInferenceTape()
		return build(inf, inf.Const(p)).Scalar()
	}, x, &fd.Settings{Formula: fd.Central, Step: 1e-6})

	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("%s: gradient mismatch (-fd +tape):\n%s", name, diff)
	}
}

func TestGradients(t *testing.T) {
	w := []float64{0.3, -0.2, 0.5, 0.1, -0.4, 0.7}
	bias := []float64{0.05, -0.1, 0.2}
	x := []float64{0.4, -0.9}

	tests := []struct {
		name  string
		x     []float64
		build func(tape *Tape, v Var) Var
	}{
		{"affine weight", w, func(tape *Tape, v Var) Var {
			return SumSquares(Tanh(Affine(v, tape.Const(bias), 3, 2, tape.Const(x))))
		}},
		{"affine input", x, func(tape *Tape, v Var) Var {
			return Sum(Softplus(Affine(tape.Const(w), tape.Const(bias), 3, 2, v)))
		}},
		{"affine bias", bias, func(tape *Tape, v Var) Var {
			return SumSquares(Sigmoid(Affine(tape.Const(w), v, 3, 2, tape.Const(x))))
		}},
		{"mul scalar", []float64{1.7}, func(tape *Tape, v Var) Var {
			return SumSquares(MulScalar(v, Tanh(tape.Const(x))))
		}},
		{"lincomb", x, func(tape *Tape, v Var) Var {
			k := Tanh(v)
			return SumSquares(LinComb([]float64{1, 0.25, 0, -0.5}, []Var{v, k, k, Exp(v)}))
		}},
		{"concat slice", x, func(tape *Tape, v Var) Var {
			c := Concat(tape.Const([]float64{1}), v, Mul(v, v))
			return Sum(Mul(Slice(c, 1, 4), Slice(c, 2, 5)))
		}},
		{"sub log exp", []float64{0.3, 1.2}, func(tape *Tape, v Var) Var {
			return Sum(Sub(Log(Exp(Scale(v, 2))), Mul(v, v)))
		}},
		{"sin", []float64{0.3, 2.5}, func(tape *Tape, v Var) Var {
			return SumSquares(Sin(Scale(v, 1.5)))
		}},
		{"relu away from kink", []float64{0.6, -0.8}, func(tape *Tape, v Var) Var {
			return SumSquares(Add(ReLU(v), v))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkGrad(t, tt.name, tt.x, tt.build)
		})
	}
}

func TestAffineValue(t *testing.T) {
	tape := NewInferenceTape()
	w := tape.Const([]float64{1, 2, 3, 4})
	x := tape.Const([]float64{1, -1})
	got := Affine(w, tape.Const([]float64{10, 20}), 2, 2, x).Value()
	want := []float64{9, 19}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("affine value mismatch (-want +got):\n%s", diff)
	}

	noBias := Affine(w, Var{}, 2, 2, x).Value()
	if diff := cmp.Diff([]float64{-1, -1}, noBias); diff != "" {
		t.Errorf("affine without bias mismatch (-want +got):\n%s", diff)
	}
}

func TestSoftplusStable(t *testing.T) {
	tape := NewInferenceTape()
	got := Softplus(tape.Const([]float64{-800, 0, 800})).Value()
	if got[0] < 0 || got[0] > 1e-300 {
		t.Errorf("softplus(-800) = %g", got[0])
	}
	if math.Abs(got[1]-math.Ln2) > 1e-12 {
		t.Errorf("softplus(0) = %g, want ln 2", got[1])
	}
	if got[2] != 800 {
		t.Errorf("softplus(800) = %g, want 800", got[2])
	}
}

func TestBackwardErrors(t *testing.T) {
	inf := NewInferenceTape()
	if _, err := inf.Backward(inf.Const([]float64{1})); !errors.Is(err, ErrNoGrad) {
		t.Errorf("expected ErrNoGrad, got %v", err)
	}

	tape := NewTape()
	v := tape.Leaf([]float64{1, 2})
	if _, err := tape.Backward(v); !errors.Is(err, ErrNotScalar) {
		t.Errorf("expected ErrNotScalar, got %v", err)
	}

	other := NewTape()
	if _, err := other.Backward(Sum(v)); !errors.Is(err, ErrForeign) {
		t.Errorf("expected ErrForeign, got %v", err)
	}
}

func TestConstantsAreNotRecorded(t *testing.T) {
	tape := NewTape()
	a := tape.Const([]float64{1, 2})
	b := Tanh(Add(a, a))
	if tape.Len() != 0 {
		t.Errorf("constant-only ops should not be recorded, tape has %d nodes", tape.Len())
	}

	leaf := tape.Leaf([]float64{3, 4})
	grads, err := tape.Backward(Sum(Mul(b, leaf)))
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	if diff := cmp.Diff(b.Value(), grads.Of(leaf), approx); diff != "" {
		t.Errorf("gradient mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 0}, grads.Of(a)); diff != "" {
		t.Errorf("constant should have zero gradient:\n%s", diff)
	}
}

func TestGradientAccumulatesAcrossUses(t *testing.T) {
	tape := NewTape()
	v := tape.Leaf([]float64{2})
	out := Sum(Add(Mul(v, v), Scale(v, 3)))
	grads, err := tape.Backward(out)
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	if got := grads.Of(v)[0]; got != 7 {
		t.Errorf("d(v^2+3v)/dv at 2 = %g, want 7", got)
	}
}
