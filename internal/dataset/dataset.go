// Package dataset generates irregularly sampled trajectories of a known
// dynamical system and serves them in shuffled minibatches.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/latentode/internal/integrators"
	"github.com/san-kum/latentode/internal/models"
	"github.com/san-kum/latentode/internal/parallel"
	"github.com/san-kum/latentode/internal/prng"
)

var (
	ErrEmpty      = errors.New("dataset: empty")
	ErrTimes      = errors.New("dataset: observation times must be strictly increasing")
	ErrDimension  = errors.New("dataset: observation dimension mismatch")
	ErrBatchSize  = errors.New("dataset: batch size must be positive")
	ErrBadConfig  = errors.New("dataset: invalid configuration")
	ErrMismatched = errors.New("dataset: times and values differ in length")
)

// Trajectory is one irregularly sampled path. Values[i] is observed at Times[i].
type Trajectory struct {
	Times  []float64   `json:"times"`
	Values [][]float64 `json:"values"`
}

func (tr Trajectory) Len() int { return len(tr.Times) }

// Duration returns the span between the first and last observation.
func (tr Trajectory) Duration() float64 {
	if len(tr.Times) == 0 {
		return 0
	}
	return tr.Times[len(tr.Times)-1] - tr.Times[0]
}

// Validate checks ordering and that every observation has dim entries.
func (tr Trajectory) Validate(dim int) error {
	if len(tr.Times) == 0 {
		return ErrEmpty
	}
	if len(tr.Times) != len(tr.Values) {
		return fmt.Errorf("%w: %d times, %d values", ErrMismatched, len(tr.Times), len(tr.Values))
	}
	for i, v := range tr.Values {
		if len(v) != dim {
			return fmt.Errorf("%w: observation %d has %d entries, want %d", ErrDimension, i, len(v), dim)
		}
		if i > 0 && !(tr.Times[i] > tr.Times[i-1]) {
			return fmt.Errorf("%w: t[%d]=%g after t[%d]=%g", ErrTimes, i, tr.Times[i], i-1, tr.Times[i-1])
		}
	}
	return nil
}

// Dataset is a set of trajectories with a common observation dimension.
type Dataset struct {
	DataSize     int          `json:"data_size"`
	Trajectories []Trajectory `json:"trajectories"`
}

func (d *Dataset) Len() int { return len(d.Trajectories) }

// Subset returns the trajectories at idx, in that order. The trajectories
// share storage with d.
func (d *Dataset) Subset(idx []int) []Trajectory {
	out := make([]Trajectory, len(idx))
	for i, j := range idx {
		out[i] = d.Trajectories[j]
	}
	return out
}

// Config controls synthetic data generation. Durations are drawn as
// MinDuration + U(0, DurationSpread).
type Config struct {
	Size           int                `yaml:"size" json:"size"`
	Points         int                `yaml:"points" json:"points"`
	System         string             `yaml:"system" json:"system"`
	Params         map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
	MinDuration    float64            `yaml:"min_duration" json:"min_duration"`
	DurationSpread float64            `yaml:"duration_spread" json:"duration_spread"`
	Method         string             `yaml:"method" json:"method"`
	Solver         integrators.Config `yaml:"solver" json:"solver"`
	Workers        int                `yaml:"workers" json:"workers"`
}

func DefaultConfig() Config {
	solver := integrators.DefaultConfig()
	solver.Dt0 = 0.1
	return Config{
		Size:           10000,
		Points:         20,
		System:         "oscillator",
		MinDuration:    2,
		DurationSpread: 1,
		Method:         "tsit5",
		Solver:         solver,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Size <= 0:
		return fmt.Errorf("%w: size %d", ErrBadConfig, c.Size)
	case c.Points <= 0:
		return fmt.Errorf("%w: points %d", ErrBadConfig, c.Points)
	case c.MinDuration < 0 || c.DurationSpread < 0 || c.MinDuration+c.DurationSpread <= 0:
		return fmt.Errorf("%w: durations must be positive", ErrBadConfig)
	}
	return nil
}

// Generate draws initial states y0 ~ N(0, I), durations and sorted
// observation times, and solves the configured system through every time
// grid. Each element is solved independently and in parallel.
func Generate(ctx context.Context, cfg Config, key prng.Key) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sys, err := models.Configure(cfg.System, cfg.Params)
	if err != nil {
		return nil, err
	}
	tab, err := integrators.Lookup(cfg.Method)
	if err != nil {
		return nil, err
	}
	solver, err := integrators.New(tab, cfg.Solver)
	if err != nil {
		return nil, err
	}

	dim := sys.StateDim()
	keys := key.Split(3)
	y0s := keys[0].Normal(cfg.Size * dim)
	spans := keys[1].Uniform(cfg.Size)
	us := keys[2].Uniform(cfg.Size * cfg.Points)

	trajs, err := parallel.Map(ctx, cfg.Size, cfg.Workers, func(ctx context.Context, i int) (Trajectory, error) {
		t1 := cfg.MinDuration + cfg.DurationSpread*spans[i]
		ts := make([]float64, cfg.Points)
		for j := range ts {
			ts[j] = us[i*cfg.Points+j] * t1
		}
		ts = sortedTimes(ts)

		ys, _, err := solver.SolveFloat(ctx, sys, ts[0], ts[len(ts)-1], y0s[i*dim:(i+1)*dim], ts)
		if err != nil {
			return Trajectory{}, parallel.Fail(i, "generate", err)
		}
		return Trajectory{Times: ts, Values: ys}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate dataset: %w", err)
	}
	return &Dataset{DataSize: dim, Trajectories: trajs}, nil
}

// sortedTimes sorts ts in place and moves any repeated value to the next
// representable float so the grid is strictly increasing.
func sortedTimes(ts []float64) []float64 {
	sort.Float64s(ts)
	for j := 1; j < len(ts); j++ {
		if ts[j] <= ts[j-1] {
			ts[j] = math.Nextafter(ts[j-1], math.Inf(1))
		}
	}
	return ts
}
