package metrics

import (
	"math"
	"testing"
	"time"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(4, 10*time.Millisecond, 30*time.Millisecond, 2.0, 100)
	w.Record(4, 10*time.Millisecond, 50*time.Millisecond, 1.0, 60)

	snap := w.Snapshot()
	if snap.Steps != 2 {
		t.Errorf("steps %d, want 2", snap.Steps)
	}
	if math.Abs(snap.AvgComputeMS-40) > 1e-9 || math.Abs(snap.AvgDataMS-10) > 1e-9 {
		t.Errorf("timings %+v", snap)
	}
	if snap.MeanLoss != 1.5 || snap.LastLoss != 1.0 {
		t.Errorf("losses mean %f last %f", snap.MeanLoss, snap.LastLoss)
	}
	if math.Abs(snap.TrajectoriesPerSec-80) > 1e-6 {
		t.Errorf("throughput %f, want 80", snap.TrajectoriesPerSec)
	}
	if snap.EvalsPerStep != 80 {
		t.Errorf("evals per step %f", snap.EvalsPerStep)
	}

	if empty := w.Snapshot(); empty.Steps != 0 || empty.MeanLoss != 0 {
		t.Errorf("window not reset: %+v", empty)
	}
}

func TestStability(t *testing.T) {
	s := NewStability(2.0)
	if s.Value() != 1.0 {
		t.Errorf("empty stability %f, want 1", s.Value())
	}
	s.ObserveAll([][]float64{{0, 1}, {3, 0}, {math.NaN(), 0}, {-1.5, 1.9}})
	if s.Value() != 0.5 {
		t.Errorf("stability %f, want 0.5", s.Value())
	}
	s.Reset()
	if s.Value() != 1.0 {
		t.Error("reset did not clear samples")
	}
}

func TestRMSE(t *testing.T) {
	a := [][]float64{{0, 0}, {1, 1}}
	b := [][]float64{{0, 2}, {1, 1}}
	if got := RMSE(a, b); math.Abs(got-1) > 1e-12 {
		t.Errorf("rmse %f, want 1", got)
	}
	if RMSE(nil, b) != 0 {
		t.Error("empty rmse should be 0")
	}
	if Amplitude(b) != 2 {
		t.Errorf("amplitude %f", Amplitude(b))
	}
}
