package models

import (
	"fmt"

	"github.com/san-kum/latentode/internal/autodiff"
)

// Pendulum is a damped nonlinear pendulum with state (theta, omega). It
// gives a second, non-linear family of trajectories for the dataset.
type Pendulum struct {
	Length  float64
	Damping float64
	Gravity float64
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		Length:  1.0,
		Damping: 0.1,
		Gravity: 9.81,
	}
}

func (p *Pendulum) Name() string  { return "pendulum" }
func (p *Pendulum) StateDim() int { return 2 }

func (p *Pendulum) Derive(t float64, y autodiff.Var) (autodiff.Var, error) {
	if y.Len() != 2 {
		return autodiff.Var{}, fmt.Errorf("%w: pendulum state has %d values", ErrDimension, y.Len())
	}
	theta := autodiff.Slice(y, 0, 1)
	omega := autodiff.Slice(y, 1, 2)

	// alpha = -c omega - (g/L) sin(theta)
	alpha := autodiff.Sub(
		autodiff.Scale(omega, -p.Damping),
		autodiff.Scale(autodiff.Sin(theta), p.Gravity/p.Length),
	)
	return autodiff.Concat(omega, alpha), nil
}

func (p *Pendulum) GetParams() map[string]float64 {
	return map[string]float64{"length": p.Length, "damping": p.Damping, "gravity": p.Gravity}
}

func (p *Pendulum) SetParam(name string, value float64) error {
	switch name {
	case "length":
		p.Length = value
	case "damping":
		p.Damping = value
	case "gravity":
		p.Gravity = value
	default:
		return fmt.Errorf("%w: pendulum has no parameter %q", ErrUnknownParam, name)
	}
	return nil
}
