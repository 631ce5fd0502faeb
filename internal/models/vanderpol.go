package models

import (
	"fmt"

	"github.com/san-kum/latentode/internal/autodiff"
)

// VanDerPol is the self-excited oscillator
//
//	dx/dt = v
//	dv/dt = mu (1 - x^2) v - x
//
// Every trajectory is drawn onto the same limit cycle, so unlike the
// decaying systems its samples should neither grow nor vanish.
type VanDerPol struct {
	Mu float64
}

func NewVanDerPol() *VanDerPol {
	return &VanDerPol{Mu: 1.0}
}

func (v *VanDerPol) Name() string  { return "vanderpol" }
func (v *VanDerPol) StateDim() int { return 2 }

func (v *VanDerPol) Derive(t float64, y autodiff.Var) (autodiff.Var, error) {
	if y.Len() != 2 {
		return autodiff.Var{}, fmt.Errorf("%w: van der pol state has %d values", ErrDimension, y.Len())
	}
	x := autodiff.Slice(y, 0, 1)
	vel := autodiff.Slice(y, 1, 2)
	x2v := autodiff.Mul(autodiff.Mul(x, x), vel)
	acc := autodiff.LinComb([]float64{v.Mu, -v.Mu, -1}, []autodiff.Var{vel, x2v, x})
	return autodiff.Concat(vel, acc), nil
}

func (v *VanDerPol) GetParams() map[string]float64 {
	return map[string]float64{"mu": v.Mu}
}

func (v *VanDerPol) SetParam(name string, value float64) error {
	if name != "mu" {
		return fmt.Errorf("%w: van der pol has no parameter %q", ErrUnknownParam, name)
	}
	v.Mu = value
	return nil
}
