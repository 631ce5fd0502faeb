package metrics

import (
	"time"

	"gonum.org/v1/gonum/floats"
)

// Window accumulates training stats between log lines.
type Window struct {
	samples  int
	data     time.Duration
	compute  time.Duration
	steps    int
	losses   []float64
	lastLoss float64
	evals    int
}

// Record adds one optimisation step to the window.
func (w *Window) Record(batchSize int, dataTime, computeTime time.Duration, loss float64, evals int) {
	w.samples += batchSize
	w.data += dataTime
	w.compute += computeTime
	w.steps++
	w.losses = append(w.losses, loss)
	w.lastLoss = loss
	w.evals += evals
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Steps: w.steps}
	total := w.data + w.compute
	if total > 0 {
		snap.TrajectoriesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.steps)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
		snap.MeanLoss = floats.Sum(w.losses) / float64(w.steps)
		snap.EvalsPerStep = float64(w.evals) / float64(w.steps)
	}
	snap.LastLoss = w.lastLoss

	w.samples = 0
	w.data = 0
	w.compute = 0
	w.steps = 0
	w.losses = w.losses[:0]
	w.evals = 0
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Steps              int
	TrajectoriesPerSec float64
	AvgDataMS          float64
	AvgComputeMS       float64
	MeanLoss           float64
	LastLoss           float64
	EvalsPerStep       float64
}
