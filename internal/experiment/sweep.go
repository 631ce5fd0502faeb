package experiment

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/latentode/internal/config"
	"github.com/san-kum/latentode/internal/optim"
)

// Knobs lists the configuration fields a sweep can vary.
var Knobs = map[string]func(*config.Config, float64){
	"lr":          func(c *config.Config, v float64) { c.Train.LR = v },
	"steps":       func(c *config.Config, v float64) { c.Train.Steps = int(v) },
	"batch_size":  func(c *config.Config, v float64) { c.Train.BatchSize = int(v) },
	"hidden_size": func(c *config.Config, v float64) { c.Model.HiddenSize = int(v) },
	"latent_size": func(c *config.Config, v float64) { c.Model.LatentSize = int(v) },
	"width":       func(c *config.Config, v float64) { c.Model.Width = int(v) },
	"depth":       func(c *config.Config, v float64) { c.Model.Depth = int(v) },
	"rtol":        func(c *config.Config, v float64) { c.Model.Solver.RTol = v },
}

// Sweep trains one model per grid point and ranks them by final loss.
// Failed points follow the ranked ones, each with its error.
func Sweep(ctx context.Context, base *config.Config, names []string, ranges [][]float64, logger *logrus.Logger) ([]optim.Trial, error) {
	for _, name := range names {
		if _, ok := Knobs[name]; !ok {
			return nil, fmt.Errorf("experiment: cannot sweep %q", name)
		}
	}
	grid, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	_, _, trials, err := grid.Search(ctx, func(ctx context.Context, point map[string]float64) (float64, error) {
		cfg := base.Clone()
		for name, v := range point {
			Knobs[name](cfg, v)
		}
		exp := New(cfg, logger)
		if err := exp.Setup(ctx); err != nil {
			return math.Inf(1), err
		}
		out, err := exp.Run(ctx)
		if err != nil {
			return math.Inf(1), err
		}
		fields := logrus.Fields{"loss": out.Result.Final().Total}
		for k, v := range point {
			fields[k] = v
		}
		logger.WithFields(fields).Info("trial finished")
		return out.Result.Final().Total, nil
	})
	ranked := optim.Ranked(trials)
	for _, t := range trials {
		if t.Err != nil {
			ranked = append(ranked, t)
		}
	}
	return ranked, err
}
