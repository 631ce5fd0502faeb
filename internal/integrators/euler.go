package integrators

var Euler = &Tableau{
	Name:  "euler",
	Order: 1,
	C:     []float64{0},
	A:     [][]float64{{}},
	B:     []float64{1},
}

// Heun is the explicit trapezoidal rule with an embedded Euler estimate.
var Heun = &Tableau{
	Name:  "heun",
	Order: 2,
	C:     []float64{0, 1},
	A:     [][]float64{{}, {1}},
	B:     []float64{0.5, 0.5},
	BErr:  []float64{-0.5, 0.5},
}
