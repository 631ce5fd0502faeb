package models

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/san-kum/latentode/internal/integrators"
)

func TestOscillatorDerivative(t *testing.T) {
	o := NewOscillator()
	dx := derive(t, o, []float64{1, 2})
	want := []float64{-0.1*1 + 1.3*2, -1*1 - 0.1*2}
	if diff := cmp.Diff(want, dx, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("derivative (-want +got):\n%s", diff)
	}
}

func TestOscillatorExactMatchesSolver(t *testing.T) {
	o := NewOscillator()
	cfg := integrators.DefaultConfig()
	cfg.RTol, cfg.ATol = 1e-9, 1e-12
	s, err := integrators.New(integrators.Tsit5, cfg)
	if err != nil {
		t.Fatal(err)
	}
	y0 := []float64{0.7, -1.2}
	ts := []float64{0, 0.4, 1.3, 2.9}
	ys, _, err := s.SolveFloat(context.Background(), o, 0, 2.9, y0, ts)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	for i, tt := range ts {
		if diff := cmp.Diff(o.Exact(y0, tt), ys[i], cmpopts.EquateApprox(0, 1e-6)); diff != "" {
			t.Errorf("t=%g (-exact +solver):\n%s", tt, diff)
		}
	}
}

func TestOscillatorDecays(t *testing.T) {
	o := NewOscillator()
	y0 := []float64{1, 0}
	prev := math.Hypot(y0[0], y0[1])
	for _, tt := range []float64{5, 10, 20} {
		y := o.Exact(y0, tt)
		n := math.Hypot(y[0], y[1])
		if n >= prev {
			t.Errorf("norm did not decay at t=%g: %f >= %f", tt, n, prev)
		}
		prev = n
	}
}

func TestOscillatorFrequency(t *testing.T) {
	// eigenvalues of [[-0.1, 1.3], [-1, -0.1]] are -0.1 ± i sqrt(1.3)
	got := NewOscillator().Frequency()
	if math.Abs(got-math.Sqrt(1.3)) > 1e-9 {
		t.Errorf("frequency %f, want %f", got, math.Sqrt(1.3))
	}
}

func TestOscillatorDecayRate(t *testing.T) {
	if got := NewOscillator().DecayRate(); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("decay rate %f, want 0.1", got)
	}
}

func TestRegistry(t *testing.T) {
	for _, name := range List() {
		sys, err := Get(name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if sys.Name() != name {
			t.Errorf("system %s reports name %s", name, sys.Name())
		}
	}
	if _, err := Get("lorenz"); !errors.Is(err, ErrUnknownSystem) {
		t.Errorf("expected ErrUnknownSystem, got %v", err)
	}
}
