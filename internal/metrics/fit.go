package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// RMSE returns the root mean squared difference between two trajectories
// of equal shape. Rows of different width are compared up to the shorter.
func RMSE(a, b [][]float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	sum, count := 0.0, 0
	for i := 0; i < n; i++ {
		w := min(len(a[i]), len(b[i]))
		d := make([]float64, w)
		floats.SubTo(d, a[i][:w], b[i][:w])
		sum += floats.Dot(d, d)
		count += w
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}

// Amplitude returns the largest absolute component over a trajectory.
func Amplitude(ys [][]float64) float64 {
	amp := 0.0
	for _, y := range ys {
		for _, v := range y {
			amp = math.Max(amp, math.Abs(v))
		}
	}
	return amp
}
