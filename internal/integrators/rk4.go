package integrators

// RK4 is the classical fourth order method. It has no error estimate and
// only runs with constant steps.
var RK4 = &Tableau{
	Name:  "rk4",
	Order: 4,
	C:     []float64{0, 0.5, 0.5, 1},
	A: [][]float64{
		{},
		{0.5},
		{0, 0.5},
		{0, 0, 1},
	},
	B: []float64{1.0 / 6.0, 1.0 / 3.0, 1.0 / 3.0, 1.0 / 6.0},
}
