package integrators

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/san-kum/latentode/internal/autodiff"
)

// System is a vector field dy/dt = f(t, y) evaluated on an autodiff tape.
type System interface {
	StateDim() int
	Derive(t float64, y autodiff.Var) (autodiff.Var, error)
}

// Func adapts a plain function to System.
type Func struct {
	Dim int
	F   func(t float64, y autodiff.Var) (autodiff.Var, error)
}

func (f Func) StateDim() int { return f.Dim }

func (f Func) Derive(t float64, y autodiff.Var) (autodiff.Var, error) { return f.F(t, y) }

// Tableau describes an explicit Runge-Kutta method. BErr holds the
// difference between the propagated and embedded weights and is nil for
// methods without an error estimate. Dense returns interpolation weights
// for y0, y1 and h*k_i at a fraction theta of the step; a nil Dense means
// linear interpolation.
type Tableau struct {
	Name  string
	Order int
	C     []float64
	A     [][]float64
	B     []float64
	BErr  []float64
	FSAL  bool
	Dense func(theta float64) (w0, w1 float64, wk []float64)
}

func (tb *Tableau) Stages() int { return len(tb.C) }

// Adaptive reports whether the method carries an error estimate.
func (tb *Tableau) Adaptive() bool { return tb.BErr != nil }

var methods = map[string]*Tableau{
	"euler":  Euler,
	"heun":   Heun,
	"rk4":    RK4,
	"dopri5": Dopri5,
	"tsit5":  Tsit5,
}

// Lookup returns the tableau registered under name.
func Lookup(name string) (*Tableau, error) {
	tb, ok := methods[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownMethod, name, strings.Join(Methods(), ", "))
	}
	return tb, nil
}

// Methods lists the registered method names.
func Methods() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config controls step size selection.
type Config struct {
	Dt0      float64 `yaml:"dt0" json:"dt0"`
	Adaptive bool    `yaml:"adaptive" json:"adaptive"`
	RTol     float64 `yaml:"rtol" json:"rtol"`
	ATol     float64 `yaml:"atol" json:"atol"`
	MaxSteps int     `yaml:"max_steps" json:"max_steps"`
	MinDt    float64 `yaml:"min_dt" json:"min_dt"`
	Safety   float64 `yaml:"safety" json:"safety"`
	MinScale float64 `yaml:"min_scale" json:"min_scale"`
	MaxScale float64 `yaml:"max_scale" json:"max_scale"`
}

func DefaultConfig() Config {
	return Config{
		Dt0:      0.1,
		Adaptive: true,
		RTol:     1e-3,
		ATol:     1e-6,
		MaxSteps: 4096,
		MinDt:    1e-10,
		Safety:   0.9,
		MinScale: 0.2,
		MaxScale: 10.0,
	}
}

// withDefaults fills unset controller fields.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RTol <= 0 {
		c.RTol = d.RTol
	}
	if c.ATol <= 0 {
		c.ATol = d.ATol
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.MinDt <= 0 {
		c.MinDt = d.MinDt
	}
	if c.Safety <= 0 {
		c.Safety = d.Safety
	}
	if c.MinScale <= 0 {
		c.MinScale = d.MinScale
	}
	if c.MaxScale <= 0 {
		c.MaxScale = d.MaxScale
	}
	return c
}

// Stats counts solver work.
type Stats struct {
	Steps    int `json:"steps"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Evals    int `json:"evals"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Steps += o.Steps
	s.Accepted += o.Accepted
	s.Rejected += o.Rejected
	s.Evals += o.Evals
}

// Solution holds the states at the requested output times.
type Solution struct {
	Times []float64
	Ys    []autodiff.Var
	Stats Stats
}

// Values copies the raw states out of the solution.
func (s *Solution) Values() [][]float64 {
	out := make([][]float64, len(s.Ys))
	for i, y := range s.Ys {
		out[i] = append([]float64(nil), y.Value()...)
	}
	return out
}

// Solver integrates a System with a fixed tableau.
type Solver struct {
	tab *Tableau
	cfg Config
}

func New(tab *Tableau, cfg Config) (*Solver, error) {
	if tab == nil {
		return nil, ErrUnknownMethod
	}
	if cfg.Dt0 <= 0 || math.IsNaN(cfg.Dt0) || math.IsInf(cfg.Dt0, 0) {
		return nil, fmt.Errorf("integrators: dt0 must be positive, got %g", cfg.Dt0)
	}
	if cfg.Adaptive && !tab.Adaptive() {
		return nil, fmt.Errorf("%w: %s", ErrNotAdaptive, tab.Name)
	}
	return &Solver{tab: tab, cfg: cfg.withDefaults()}, nil
}

func (s *Solver) Tableau() *Tableau { return s.tab }
func (s *Solver) Config() Config    { return s.cfg }

type trial struct {
	y1  autodiff.Var
	ks  []autodiff.Var
	err float64
}

// Solve integrates sys from (t0, y0) to t1 and returns the state at every
// time in saveAt. Output times must be sorted and lie in [t0, t1]. Every
// stage is recorded on y0's tape so gradients flow back through the
// discretisation; step size control only reads values.
func (s *Solver) Solve(ctx context.Context, sys System, t0, t1 float64, y0 autodiff.Var, saveAt []float64) (*Solution, error) {
	if y0.Len() != sys.StateDim() {
		return nil, fmt.Errorf("%w: y0 has %d values, system expects %d", ErrDimensionMismatch, y0.Len(), sys.StateDim())
	}
	if err := checkTimes(t0, t1, saveAt); err != nil {
		return nil, err
	}
	if !finite(y0.Value()) {
		return nil, &SolveError{Step: 0, Time: t0, Wrapped: ErrInvalidState}
	}

	sol := &Solution{Times: append([]float64(nil), saveAt...), Ys: make([]autodiff.Var, len(saveAt))}
	next := 0
	for next < len(saveAt) && saveAt[next] == t0 {
		sol.Ys[next] = y0
		next++
	}

	stats := &sol.Stats
	t, y := t0, y0
	h := s.cfg.Dt0
	var k1 autodiff.Var
	haveK1 := false

	for next < len(saveAt) {
		if err := ctx.Err(); err != nil {
			return nil, &SolveError{Step: stats.Steps, Time: t, Wrapped: err}
		}
		if stats.Steps >= s.cfg.MaxSteps {
			return nil, &SolveError{Step: stats.Steps, Time: t, Wrapped: ErrMaxSteps}
		}
		stats.Steps++

		step := h
		last := false
		if t+step >= t1 || t1-(t+step) <= 1e-12*math.Max(1, math.Abs(t1)) {
			step = t1 - t
			last = true
		}

		if !haveK1 {
			var err error
			if k1, err = sys.Derive(t, y); err != nil {
				return nil, &SolveError{Step: stats.Steps, Time: t, Wrapped: err}
			}
			stats.Evals++
			if k1.Len() != y.Len() {
				return nil, &SolveError{Step: stats.Steps, Time: t, Wrapped: fmt.Errorf("%w: field returned %d values for state of %d", ErrDimensionMismatch, k1.Len(), y.Len())}
			}
			if !finite(k1.Value()) {
				return nil, &SolveError{Step: stats.Steps, Time: t, Wrapped: ErrInvalidState}
			}
			haveK1 = true
		}

		tr, err := s.attempt(sys, t, step, y, k1)
		stats.Evals += s.tab.Stages() - 1
		if err != nil {
			return nil, &SolveError{Step: stats.Steps, Time: t, Wrapped: err}
		}
		ok := finite(tr.y1.Value())

		if s.cfg.Adaptive {
			factor := s.cfg.MinScale
			switch {
			case !ok || math.IsNaN(tr.err) || math.IsInf(tr.err, 0):
				ok = false
			case tr.err <= 1:
				factor = s.growth(tr.err)
			default:
				ok = false
				factor = math.Max(s.cfg.MinScale, s.cfg.Safety*math.Pow(tr.err, -1/float64(s.tab.Order)))
			}
			h = step * factor
			if !ok {
				stats.Rejected++
				if h < s.cfg.MinDt {
					return nil, &SolveError{Step: stats.Steps, Time: t, Wrapped: ErrStepTooSmall}
				}
				continue
			}
		} else if !ok {
			return nil, &SolveError{Step: stats.Steps, Time: t, Wrapped: ErrInvalidState}
		}
		stats.Accepted++

		tNew := t + step
		if last {
			tNew = t1
		}
		for next < len(saveAt) && saveAt[next] <= tNew {
			theta := (saveAt[next] - t) / step
			sol.Ys[next] = s.interpolate(tr, y, step, theta)
			next++
		}

		t, y = tNew, tr.y1
		if s.tab.FSAL {
			k1 = tr.ks[len(tr.ks)-1]
		} else {
			haveK1 = false
		}
	}
	return sol, nil
}

// SolveFloat runs Solve on a throwaway inference tape.
func (s *Solver) SolveFloat(ctx context.Context, sys System, t0, t1 float64, y0 []float64, saveAt []float64) ([][]float64, Stats, error) {
	tape := autodiff.NewInferenceTape()
	sol, err := s.Solve(ctx, sys, t0, t1, tape.Const(y0), saveAt)
	if err != nil {
		return nil, Stats{}, err
	}
	return sol.Values(), sol.Stats, nil
}

func (s *Solver) growth(errNorm float64) float64 {
	if errNorm == 0 {
		return s.cfg.MaxScale
	}
	f := s.cfg.Safety * math.Pow(errNorm, -1/float64(s.tab.Order))
	return math.Min(s.cfg.MaxScale, math.Max(s.cfg.MinScale, f))
}

func (s *Solver) attempt(sys System, t, h float64, y0, k1 autodiff.Var) (trial, error) {
	tab := s.tab
	n := tab.Stages()
	ks := make([]autodiff.Var, n)
	ks[0] = k1

	var y1 autodiff.Var
	for i := 1; i < n; i++ {
		yi := combine(y0, h, tab.A[i], ks[:i])
		if tab.FSAL && i == n-1 {
			y1 = yi
		}
		k, err := sys.Derive(t+tab.C[i]*h, yi)
		if err != nil {
			return trial{}, err
		}
		if k.Len() != y0.Len() {
			return trial{}, fmt.Errorf("%w: field returned %d values for state of %d", ErrDimensionMismatch, k.Len(), y0.Len())
		}
		ks[i] = k
	}
	if !tab.FSAL {
		y1 = combine(y0, h, tab.B, ks)
	}

	tr := trial{y1: y1, ks: ks}
	if tab.BErr != nil {
		tr.err = s.errorNorm(h, y0.Value(), y1.Value(), ks)
	}
	return tr, nil
}

// combine returns y0 + h * sum_j w[j] * ks[j] on the tape.
func combine(y0 autodiff.Var, h float64, w []float64, ks []autodiff.Var) autodiff.Var {
	cs := make([]float64, 0, len(w)+1)
	vs := make([]autodiff.Var, 0, len(w)+1)
	cs = append(cs, 1)
	vs = append(vs, y0)
	for j, wj := range w {
		if wj == 0 {
			continue
		}
		cs = append(cs, h*wj)
		vs = append(vs, ks[j])
	}
	return autodiff.LinComb(cs, vs)
}

// errorNorm is the RMS of the local error scaled by atol + rtol*max(|y0|, |y1|).
func (s *Solver) errorNorm(h float64, y0, y1 []float64, ks []autodiff.Var) float64 {
	sum := 0.0
	for i := range y0 {
		e := 0.0
		for j, w := range s.tab.BErr {
			if w != 0 {
				e += w * ks[j].Value()[i]
			}
		}
		e *= h
		scale := s.cfg.ATol + s.cfg.RTol*math.Max(math.Abs(y0[i]), math.Abs(y1[i]))
		r := e / scale
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(y0)))
}

func (s *Solver) interpolate(tr trial, y0 autodiff.Var, h, theta float64) autodiff.Var {
	switch {
	case theta >= 1:
		return tr.y1
	case theta <= 0:
		return y0
	}
	if s.tab.Dense == nil {
		return autodiff.LinComb([]float64{1 - theta, theta}, []autodiff.Var{y0, tr.y1})
	}
	w0, w1, wk := s.tab.Dense(theta)
	cs := make([]float64, 0, len(wk)+2)
	vs := make([]autodiff.Var, 0, len(wk)+2)
	cs = append(cs, w0, w1)
	vs = append(vs, y0, tr.y1)
	for j, w := range wk {
		if w == 0 {
			continue
		}
		cs = append(cs, h*w)
		vs = append(vs, tr.ks[j])
	}
	return autodiff.LinComb(cs, vs)
}

func checkTimes(t0, t1 float64, saveAt []float64) error {
	if math.IsNaN(t0) || math.IsNaN(t1) || math.IsInf(t0, 0) || math.IsInf(t1, 0) {
		return fmt.Errorf("%w: non-finite interval [%g, %g]", ErrInvalidTimes, t0, t1)
	}
	if t1 < t0 {
		return fmt.Errorf("%w: t1 %g before t0 %g", ErrInvalidTimes, t1, t0)
	}
	if len(saveAt) == 0 {
		return fmt.Errorf("%w: no output times", ErrInvalidTimes)
	}
	prev := t0
	for i, ts := range saveAt {
		if math.IsNaN(ts) || ts < prev || ts > t1 {
			return fmt.Errorf("%w: time %d = %g outside sorted range [%g, %g]", ErrInvalidTimes, i, ts, prev, t1)
		}
		prev = ts
	}
	return nil
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
