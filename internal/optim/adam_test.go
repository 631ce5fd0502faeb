package optim

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/latentode/internal/nn"
)

func params(t *testing.T, vals ...float64) nn.Params {
	t.Helper()
	p, err := nn.NewParams(nn.Tensor{Name: "w", Shape: []int{len(vals)}, Data: vals})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func values(t *testing.T, p nn.Params) []float64 {
	t.Helper()
	w, err := p.Get("w")
	if err != nil {
		t.Fatal(err)
	}
	return w.Data
}

func TestAdamUpdateDirection(t *testing.T) {
	adam := NewAdam(0.04)
	p := params(t, 1.0, 1.0)
	state := adam.Init(p)

	updates, _, err := adam.Update(params(t, 2.0, -2.0), state)
	if err != nil {
		t.Fatal(err)
	}
	u := values(t, updates)
	if u[0] >= 0 {
		t.Errorf("positive gradient should decrease the parameter, update %f", u[0])
	}
	if u[1] <= 0 {
		t.Errorf("negative gradient should increase the parameter, update %f", u[1])
	}
}

func TestAdamBiasCorrection(t *testing.T) {
	// At step 1 m̂ = g and v̂ = g², so every step is lr in magnitude.
	adam := NewAdam(0.04)
	state := adam.Init(params(t, 0, 0))
	updates, _, err := adam.Update(params(t, 1.0, 0.01), state)
	if err != nil {
		t.Fatal(err)
	}
	for i, u := range values(t, updates) {
		if math.Abs(u+0.04) > 1e-6 {
			t.Errorf("update %d = %f, want -0.04", i, u)
		}
	}
}

func TestAdamIsFunctional(t *testing.T) {
	adam := NewAdam(0.01)
	p := params(t, 5, 3)
	state := adam.Init(p)
	g := params(t, 1, 1)

	u1, next, err := adam.Update(g, state)
	if err != nil {
		t.Fatal(err)
	}
	u2, _, err := adam.Update(g, state)
	if err != nil {
		t.Fatal(err)
	}
	if values(t, u1)[0] != values(t, u2)[0] {
		t.Error("same state and gradient produced different updates")
	}
	if state.Step != 0 || state.M.Norm() != 0 {
		t.Error("input state was modified")
	}
	if next.Step != 1 || next.M.Norm() == 0 {
		t.Errorf("next state not advanced: %+v", next.Step)
	}
}

func TestAdamMinimisesQuadratic(t *testing.T) {
	adam := NewAdam(0.1)
	p := params(t, 3, -2)
	state := adam.Init(p)
	for i := 0; i < 500; i++ {
		w := values(t, p)
		g := params(t, 2*w[0], 2*w[1])
		updates, next, err := adam.Update(g, state)
		if err != nil {
			t.Fatal(err)
		}
		state = next
		if p, err = p.Apply(updates); err != nil {
			t.Fatal(err)
		}
	}
	if n := p.Norm(); n > 0.1 {
		t.Errorf("did not converge to the minimum, |w| = %f", n)
	}
}

func TestAdamShapeMismatch(t *testing.T) {
	adam := NewAdam(0.1)
	state := adam.Init(params(t, 1, 2))
	if _, _, err := adam.Update(params(t, 1), state); !errors.Is(err, nn.ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestAdamSchedule(t *testing.T) {
	adam := NewAdam(0.04)
	adam.Schedule = CosineAnnealing{TMax: 10}
	state := adam.Init(params(t, 0))
	state.Step = 5

	updates, _, err := adam.Update(params(t, 1), state)
	if err != nil {
		t.Fatal(err)
	}
	// halfway through the schedule the rate is halved
	if u := math.Abs(values(t, updates)[0]); u >= 0.04 {
		t.Errorf("scheduled update %f not below base rate", u)
	}
}
