package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/latentode/internal/autodiff"
)

// DefaultMatrix is the decaying rotation used for the synthetic dataset.
var DefaultMatrix = [4]float64{-0.1, 1.3, -1, -0.1}

// Oscillator is the autonomous linear system dy/dt = M y in two dimensions.
type Oscillator struct {
	M *mat.Dense
}

func NewOscillator() *Oscillator {
	return NewOscillatorFrom(DefaultMatrix)
}

// NewOscillatorFrom builds the system from a row-major 2x2 matrix.
func NewOscillatorFrom(m [4]float64) *Oscillator {
	return &Oscillator{M: mat.NewDense(2, 2, m[:])}
}

func (o *Oscillator) Name() string  { return "oscillator" }
func (o *Oscillator) StateDim() int { return 2 }

func (o *Oscillator) Derive(t float64, y autodiff.Var) (autodiff.Var, error) {
	if y.Len() != 2 {
		return autodiff.Var{}, fmt.Errorf("%w: oscillator state has %d values", ErrDimension, y.Len())
	}
	w := y.Tape().Const(o.M.RawMatrix().Data)
	return autodiff.Affine(w, autodiff.Var{}, 2, 2, y), nil
}

// Exact returns exp(M t) y0.
func (o *Oscillator) Exact(y0 []float64, t float64) []float64 {
	var mt, e mat.Dense
	mt.Scale(t, o.M)
	e.Exp(&mt)
	out := make([]float64, 2)
	mat.NewVecDense(2, out).MulVec(&e, mat.NewVecDense(2, y0))
	return out
}

// Frequency returns the angular frequency of the oscillation, the
// imaginary part of the eigenvalues of M. A non-oscillating system
// reports zero.
func (o *Oscillator) Frequency() float64 {
	var eig mat.Eigen
	if ok := eig.Factorize(o.M, mat.EigenNone); !ok {
		return 0
	}
	vals := eig.Values(nil)
	if len(vals) == 0 {
		return 0
	}
	im := imag(vals[0])
	if im < 0 {
		im = -im
	}
	return im
}

// DecayRate returns the exponential decay rate of the envelope, the
// negated real part of the slowest eigenvalue of M.
func (o *Oscillator) DecayRate() float64 {
	var eig mat.Eigen
	if ok := eig.Factorize(o.M, mat.EigenNone); !ok {
		return 0
	}
	rate := math.Inf(1)
	for _, v := range eig.Values(nil) {
		rate = math.Min(rate, -real(v))
	}
	return rate
}

var matrixParams = []string{"m00", "m01", "m10", "m11"}

// GetParams reports the entries of M as m00, m01, m10 and m11.
func (o *Oscillator) GetParams() map[string]float64 {
	raw := o.M.RawMatrix().Data
	out := make(map[string]float64, 4)
	for i, name := range matrixParams {
		out[name] = raw[i]
	}
	return out
}

func (o *Oscillator) SetParam(name string, value float64) error {
	for i, n := range matrixParams {
		if n == name {
			o.M.Set(i/2, i%2, value)
			return nil
		}
	}
	return fmt.Errorf("%w: oscillator has no parameter %q", ErrUnknownParam, name)
}
