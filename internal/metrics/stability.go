package metrics

import (
	"math"
)

// Stability is the fraction of sampled states whose components all stay
// within a bound. A decoder that blows up when extrapolating past the
// training horizon scores low.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(y []float64) {
	s.samples++
	for _, val := range y {
		if math.IsNaN(val) || math.Abs(val) > s.threshold {
			s.violations++
			break
		}
	}
}

// ObserveAll records every row of a sampled trajectory.
func (s *Stability) ObserveAll(ys [][]float64) {
	for _, y := range ys {
		s.Observe(y)
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
