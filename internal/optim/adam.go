package optim

import (
	"fmt"
	"math"

	"github.com/san-kum/latentode/internal/nn"
)

// Adam implements the Adam optimizer with bias correction.
//
// Update rule:
//
//	m = β1·m + (1-β1)·g
//	v = β2·v + (1-β2)·g²
//	m̂ = m / (1 - β1^t)
//	v̂ = v / (1 - β2^t)
//	Δw = -lr · m̂ / (√v̂ + ε)
//
// Adam itself is stateless; moment estimates travel in AdamState.
type Adam struct {
	LR       float64
	Beta1    float64
	Beta2    float64
	Eps      float64
	Schedule Schedule
}

// NewAdam creates an Adam optimizer with the given learning rate.
// Uses standard defaults: β1=0.9, β2=0.999, ε=1e-8.
func NewAdam(lr float64) Adam {
	return Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
	}
}

// AdamState carries the first and second moments and the step count.
type AdamState struct {
	Step int
	M    nn.Params
	V    nn.Params
}

// Init returns the zero state for parameters shaped like p.
func (a Adam) Init(p nn.Params) AdamState {
	return AdamState{M: p.ZerosLike(), V: p.ZerosLike()}
}

// Update returns the parameter updates for grads and the next state. The
// input state is left untouched.
func (a Adam) Update(grads nn.Params, state AdamState) (nn.Params, AdamState, error) {
	if !grads.SameStructure(state.M) {
		return nn.Params{}, AdamState{}, fmt.Errorf("adam: %w", nn.ErrShape)
	}
	step := state.Step + 1
	lr := a.LR
	if a.Schedule != nil {
		lr = a.Schedule.LR(a.LR, state.Step)
	}
	b1c := 1 - math.Pow(a.Beta1, float64(step))
	b2c := 1 - math.Pow(a.Beta2, float64(step))

	m, err := state.M.Zip(grads, func(_ string, m, g []float64) []float64 {
		for i := range m {
			m[i] = a.Beta1*m[i] + (1-a.Beta1)*g[i]
		}
		return m
	})
	if err != nil {
		return nn.Params{}, AdamState{}, err
	}
	v, err := state.V.Zip(grads, func(_ string, v, g []float64) []float64 {
		for i := range v {
			v[i] = a.Beta2*v[i] + (1-a.Beta2)*g[i]*g[i]
		}
		return v
	})
	if err != nil {
		return nn.Params{}, AdamState{}, err
	}
	updates, err := m.Zip(v, func(_ string, m, v []float64) []float64 {
		for i := range m {
			mHat := m[i] / b1c
			vHat := v[i] / b2c
			m[i] = -lr * mHat / (math.Sqrt(vHat) + a.Eps)
		}
		return m
	})
	if err != nil {
		return nn.Params{}, AdamState{}, err
	}
	return updates, AdamState{Step: step, M: m, V: v}, nil
}
