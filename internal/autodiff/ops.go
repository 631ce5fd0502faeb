package autodiff

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func tapeOf(vs ...Var) *Tape {
	for _, v := range vs {
		if v.tape != nil {
			return v.tape
		}
	}
	panic("autodiff: operation on absent variables")
}

// result records val on the tape only if some input is tracked.
func result(t *Tape, val []float64, inputs []Var, backward func(g []float64, acc func(v Var, g []float64))) Var {
	if !t.record {
		return Var{tape: t, id: -1, val: val}
	}
	for _, in := range inputs {
		if in.tape != nil && in.tape != t {
			panic(ErrForeign)
		}
		if in.tracked() {
			return t.push(val, backward)
		}
	}
	return Var{tape: t, id: -1, val: val}
}

func sameLen(op string, a, b Var) {
	if a.Len() != b.Len() {
		panic(fmt.Sprintf("autodiff: %s length mismatch %d != %d", op, a.Len(), b.Len()))
	}
}

// Add returns a + b.
func Add(a, b Var) Var {
	sameLen("add", a, b)
	out := make([]float64, a.Len())
	floats.AddTo(out, a.val, b.val)
	return result(tapeOf(a, b), out, []Var{a, b}, func(g []float64, acc func(Var, []float64)) {
		acc(a, g)
		acc(b, g)
	})
}

// Sub returns a - b.
func Sub(a, b Var) Var {
	sameLen("sub", a, b)
	out := make([]float64, a.Len())
	floats.SubTo(out, a.val, b.val)
	return result(tapeOf(a, b), out, []Var{a, b}, func(g []float64, acc func(Var, []float64)) {
		acc(a, g)
		if b.tracked() {
			neg := make([]float64, len(g))
			floats.ScaleTo(neg, -1, g)
			acc(b, neg)
		}
	})
}

// Mul returns the elementwise product a * b.
func Mul(a, b Var) Var {
	sameLen("mul", a, b)
	out := make([]float64, a.Len())
	floats.MulTo(out, a.val, b.val)
	return result(tapeOf(a, b), out, []Var{a, b}, func(g []float64, acc func(Var, []float64)) {
		if a.tracked() {
			ga := make([]float64, len(g))
			floats.MulTo(ga, g, b.val)
			acc(a, ga)
		}
		if b.tracked() {
			gb := make([]float64, len(g))
			floats.MulTo(gb, g, a.val)
			acc(b, gb)
		}
	})
}

// Scale returns c * a.
func Scale(a Var, c float64) Var {
	out := make([]float64, a.Len())
	floats.ScaleTo(out, c, a.val)
	return result(a.tape, out, []Var{a}, func(g []float64, acc func(Var, []float64)) {
		ga := make([]float64, len(g))
		floats.ScaleTo(ga, c, g)
		acc(a, ga)
	})
}

// MulScalar broadcasts the length-1 s over a.
func MulScalar(s, a Var) Var {
	if s.Len() != 1 {
		panic(fmt.Sprintf("autodiff: MulScalar needs a scalar, got length %d", s.Len()))
	}
	c := s.val[0]
	out := make([]float64, a.Len())
	floats.ScaleTo(out, c, a.val)
	return result(tapeOf(s, a), out, []Var{s, a}, func(g []float64, acc func(Var, []float64)) {
		if s.tracked() {
			acc(s, []float64{floats.Dot(g, a.val)})
		}
		if a.tracked() {
			ga := make([]float64, len(g))
			floats.ScaleTo(ga, c, g)
			acc(a, ga)
		}
	})
}

// LinComb returns sum_i cs[i] * vs[i]. Terms with a zero coefficient are
// skipped entirely.
func LinComb(cs []float64, vs []Var) Var {
	if len(cs) != len(vs) || len(vs) == 0 {
		panic(fmt.Sprintf("autodiff: LinComb with %d coefficients and %d vectors", len(cs), len(vs)))
	}
	n := -1
	var used []int
	for i := range vs {
		if cs[i] == 0 {
			continue
		}
		if n >= 0 && vs[i].Len() != n {
			panic(fmt.Sprintf("autodiff: LinComb length mismatch %d != %d", vs[i].Len(), n))
		}
		n = vs[i].Len()
		used = append(used, i)
	}
	if n < 0 {
		n = vs[0].Len()
	}
	out := make([]float64, n)
	inputs := make([]Var, 0, len(used))
	for _, i := range used {
		floats.AddScaled(out, cs[i], vs[i].val)
		inputs = append(inputs, vs[i])
	}
	return result(tapeOf(vs...), out, inputs, func(g []float64, acc func(Var, []float64)) {
		for _, i := range used {
			if !vs[i].tracked() {
				continue
			}
			gi := make([]float64, len(g))
			floats.ScaleTo(gi, cs[i], g)
			acc(vs[i], gi)
		}
	})
}

// Affine returns w·x + b where w is a row-major rows×cols matrix. b may
// be absent.
func Affine(w, b Var, rows, cols int, x Var) Var {
	if w.Len() != rows*cols {
		panic(fmt.Sprintf("autodiff: affine weight has %d values, want %dx%d", w.Len(), rows, cols))
	}
	if x.Len() != cols {
		panic(fmt.Sprintf("autodiff: affine input length %d, want %d", x.Len(), cols))
	}
	if !b.Absent() && b.Len() != rows {
		panic(fmt.Sprintf("autodiff: affine bias length %d, want %d", b.Len(), rows))
	}

	wm := mat.NewDense(rows, cols, w.val)
	xv := mat.NewVecDense(cols, x.val)
	out := make([]float64, rows)
	mat.NewVecDense(rows, out).MulVec(wm, xv)
	if !b.Absent() {
		floats.Add(out, b.val)
	}

	return result(tapeOf(w, x), out, []Var{w, b, x}, func(g []float64, acc func(Var, []float64)) {
		gv := mat.NewVecDense(rows, g)
		if x.tracked() {
			gx := make([]float64, cols)
			mat.NewVecDense(cols, gx).MulVec(wm.T(), gv)
			acc(x, gx)
		}
		if w.tracked() {
			gw := make([]float64, rows*cols)
			mat.NewDense(rows, cols, gw).Outer(1, gv, xv)
			acc(w, gw)
		}
		if !b.Absent() {
			acc(b, g)
		}
	})
}

// Concat joins vectors end to end.
func Concat(vs ...Var) Var {
	total := 0
	for _, v := range vs {
		total += v.Len()
	}
	out := make([]float64, 0, total)
	for _, v := range vs {
		out = append(out, v.val...)
	}
	return result(tapeOf(vs...), out, vs, func(g []float64, acc func(Var, []float64)) {
		off := 0
		for _, v := range vs {
			acc(v, g[off:off+v.Len()])
			off += v.Len()
		}
	})
}

// Slice returns a[lo:hi] as a new variable.
func Slice(a Var, lo, hi int) Var {
	if lo < 0 || hi > a.Len() || lo > hi {
		panic(fmt.Sprintf("autodiff: slice [%d:%d] of length %d", lo, hi, a.Len()))
	}
	out := make([]float64, hi-lo)
	copy(out, a.val[lo:hi])
	n := a.Len()
	return result(a.tape, out, []Var{a}, func(g []float64, acc func(Var, []float64)) {
		ga := make([]float64, n)
		copy(ga[lo:hi], g)
		acc(a, ga)
	})
}

// Sum reduces a to a scalar.
func Sum(a Var) Var {
	n := a.Len()
	return result(a.tape, []float64{floats.Sum(a.val)}, []Var{a}, func(g []float64, acc func(Var, []float64)) {
		ga := make([]float64, n)
		for i := range ga {
			ga[i] = g[0]
		}
		acc(a, ga)
	})
}

// SumSquares returns sum_i a_i^2 as a scalar.
func SumSquares(a Var) Var {
	return result(a.tape, []float64{floats.Dot(a.val, a.val)}, []Var{a}, func(g []float64, acc func(Var, []float64)) {
		ga := make([]float64, a.Len())
		floats.ScaleTo(ga, 2*g[0], a.val)
		acc(a, ga)
	})
}

// unary applies f elementwise; df receives the input and output values.
func unary(a Var, f func(x float64) float64, df func(x, y float64) float64) Var {
	out := make([]float64, a.Len())
	for i, x := range a.val {
		out[i] = f(x)
	}
	return result(a.tape, out, []Var{a}, func(g []float64, acc func(Var, []float64)) {
		ga := make([]float64, len(g))
		for i := range g {
			ga[i] = g[i] * df(a.val[i], out[i])
		}
		acc(a, ga)
	})
}

func Tanh(a Var) Var {
	return unary(a, math.Tanh, func(_, y float64) float64 { return 1 - y*y })
}

func Sigmoid(a Var) Var {
	return unary(a, sigmoid, func(_, y float64) float64 { return y * (1 - y) })
}

// Softplus returns log(1 + exp(a)), computed without overflow.
func Softplus(a Var) Var {
	return unary(a, softplus, func(x, _ float64) float64 { return sigmoid(x) })
}

func ReLU(a Var) Var {
	return unary(a, func(x float64) float64 { return math.Max(x, 0) }, func(x, _ float64) float64 {
		if x > 0 {
			return 1
		}
		return 0
	})
}

func Sin(a Var) Var {
	return unary(a, math.Sin, func(x, _ float64) float64 { return math.Cos(x) })
}

func Exp(a Var) Var {
	return unary(a, math.Exp, func(_, y float64) float64 { return y })
}

func Log(a Var) Var {
	return unary(a, math.Log, func(x, _ float64) float64 { return 1 / x })
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func softplus(x float64) float64 {
	return math.Log1p(math.Exp(-math.Abs(x))) + math.Max(x, 0)
}
