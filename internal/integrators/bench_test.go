package integrators

import (
	"context"
	"testing"

	"github.com/san-kum/latentode/internal/autodiff"
)

func benchSolve(b *testing.B, tab *Tableau, cfg Config, record bool) {
	s, err := New(tab, cfg)
	if err != nil {
		b.Fatal(err)
	}
	dyn := &harmonicOscillator{}
	saveAt := []float64{0.5, 1, 1.5, 2, 2.5, 3}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tape := autodiff.NewInferenceTape()
		if record {
			tape = autodiff.NewTape()
		}
		y0 := tape.Leaf([]float64{1, 0})
		if _, err := s.Solve(context.Background(), dyn, 0, 3, y0, saveAt); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEuler(b *testing.B) {
	benchSolve(b, Euler, Config{Dt0: 0.01}, false)
}

func BenchmarkRK4(b *testing.B) {
	benchSolve(b, RK4, Config{Dt0: 0.01}, false)
}

func BenchmarkDopri5(b *testing.B) {
	cfg := DefaultConfig()
	cfg.Dt0 = 0.4
	benchSolve(b, Dopri5, cfg, false)
}

func BenchmarkTsit5(b *testing.B) {
	cfg := DefaultConfig()
	cfg.Dt0 = 0.4
	benchSolve(b, Tsit5, cfg, false)
}

func BenchmarkTsit5Recording(b *testing.B) {
	cfg := DefaultConfig()
	cfg.Dt0 = 0.4
	benchSolve(b, Tsit5, cfg, true)
}
