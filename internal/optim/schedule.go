package optim

import (
	"fmt"
	"math"
)

// Schedule maps a base learning rate and a zero-based step to the rate
// used at that step.
type Schedule interface {
	LR(base float64, step int) float64
}

// Constant keeps the base rate.
type Constant struct{}

func (Constant) LR(base float64, _ int) float64 { return base }

// CosineAnnealing implements the cosine annealing learning rate schedule.
//
//	lr_t = 0.5 * lr_max * (1 + cos(π * t / T_max))
//
// Steps past TMax stay at zero.
type CosineAnnealing struct {
	TMax int
}

func (c CosineAnnealing) LR(base float64, step int) float64 {
	if c.TMax <= 0 {
		return base
	}
	if step >= c.TMax {
		return 0
	}
	return 0.5 * base * (1 + math.Cos(math.Pi*float64(step)/float64(c.TMax)))
}

// ScheduleByName returns "constant" or "cosine" schedules.
func ScheduleByName(name string, steps int) (Schedule, error) {
	switch name {
	case "", "constant":
		return Constant{}, nil
	case "cosine":
		return CosineAnnealing{TMax: steps}, nil
	}
	return nil, fmt.Errorf("optim: unknown schedule %q", name)
}
