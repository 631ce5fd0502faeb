package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrNoCandidate = errors.New("optim: no grid point completed")

// Trial is one evaluated grid point.
type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

// GridSearch evaluates every combination of named hyperparameter values
// and keeps the lowest score.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameter names for %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Size returns the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search calls evaluate at every grid point in lexical order. Points whose
// evaluation fails are recorded and skipped; a cancelled context stops the
// search.
func (g *GridSearch) Search(
	ctx context.Context,
	evaluate func(ctx context.Context, params map[string]float64) (float64, error),
) (map[string]float64, float64, []Trial, error) {

	best := math.Inf(1)
	var bestParams map[string]float64
	var trials []Trial

	err := g.searchRecursive(ctx, 0, make(map[string]float64), evaluate, func(tr Trial) {
		trials = append(trials, tr)
		if tr.Err == nil && tr.Score < best {
			best = tr.Score
			bestParams = tr.Params
		}
	})
	if err != nil {
		return nil, 0, trials, err
	}
	if bestParams == nil {
		return nil, 0, trials, ErrNoCandidate
	}
	return bestParams, best, trials, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	evaluate func(context.Context, map[string]float64) (float64, error),
	record func(Trial),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		score, err := evaluate(ctx, current)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil && math.IsNaN(score) {
			err = fmt.Errorf("optim: score is NaN")
		}
		record(Trial{Params: current, Score: score, Err: err})
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, evaluate, record); err != nil {
			return err
		}
	}
	return nil
}

// Ranked returns successful trials ordered by score.
func Ranked(trials []Trial) []Trial {
	out := make([]Trial, 0, len(trials))
	for _, t := range trials {
		if t.Err == nil {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}
