package models

import (
	"fmt"

	"github.com/san-kum/latentode/internal/autodiff"
)

// Duffing is the unforced damped Duffing oscillator
//
//	dx/dt = v
//	dv/dt = -delta v - alpha x - beta x^3
//
// With alpha < 0 and beta > 0 it is a double well and trajectories settle
// into one of two minima at x = +-sqrt(-alpha/beta).
type Duffing struct {
	Alpha, Beta, Delta float64
}

func NewDuffing() *Duffing {
	return &Duffing{Alpha: -1.0, Beta: 1.0, Delta: 0.3}
}

func (d *Duffing) Name() string  { return "duffing" }
func (d *Duffing) StateDim() int { return 2 }

func (d *Duffing) Derive(t float64, y autodiff.Var) (autodiff.Var, error) {
	if y.Len() != 2 {
		return autodiff.Var{}, fmt.Errorf("%w: duffing state has %d values", ErrDimension, y.Len())
	}
	x := autodiff.Slice(y, 0, 1)
	vel := autodiff.Slice(y, 1, 2)
	x3 := autodiff.Mul(autodiff.Mul(x, x), x)
	acc := autodiff.LinComb([]float64{-d.Delta, -d.Alpha, -d.Beta}, []autodiff.Var{vel, x, x3})
	return autodiff.Concat(vel, acc), nil
}

// Energy is the undamped Hamiltonian 0.5 v^2 + 0.5 alpha x^2 + 0.25 beta x^4.
func (d *Duffing) Energy(y []float64) float64 {
	x, v := y[0], y[1]
	return 0.5*v*v + 0.5*d.Alpha*x*x + 0.25*d.Beta*x*x*x*x
}

func (d *Duffing) GetParams() map[string]float64 {
	return map[string]float64{"alpha": d.Alpha, "beta": d.Beta, "delta": d.Delta}
}

func (d *Duffing) SetParam(name string, value float64) error {
	switch name {
	case "alpha":
		d.Alpha = value
	case "beta":
		d.Beta = value
	case "delta":
		d.Delta = value
	default:
		return fmt.Errorf("%w: duffing has no parameter %q", ErrUnknownParam, name)
	}
	return nil
}
