package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/latentode/internal/dataset"
	"github.com/san-kum/latentode/internal/latent"
	"github.com/san-kum/latentode/internal/metrics"
	"github.com/san-kum/latentode/internal/nn"
	"github.com/san-kum/latentode/internal/optim"
	"github.com/san-kum/latentode/internal/prng"
)

var (
	ErrBadConfig = errors.New("trainer: invalid run configuration")
	ErrDiverged  = errors.New("trainer: parameters became non-finite")
)

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Steps     int
	BatchSize int
	LR        float64
	Schedule  string
	SaveEvery int
	LogEvery  int
	Workers   int

	// Prior samples are decoded over SamplePoints evenly spaced times in
	// [0, SampleHorizon].
	SampleHorizon float64
	SamplePoints  int
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		Steps:         250,
		BatchSize:     256,
		LR:            1e-2,
		Schedule:      "constant",
		SaveEvery:     50,
		LogEvery:      1,
		SampleHorizon: 12,
		SamplePoints:  300,
	}
}

func (c RunConfig) Validate() error {
	switch {
	case c.Steps <= 0:
		return fmt.Errorf("%w: steps must be > 0", ErrBadConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be > 0", ErrBadConfig)
	case c.LR <= 0:
		return fmt.Errorf("%w: learning rate must be > 0", ErrBadConfig)
	case c.SaveEvery <= 0:
		return fmt.Errorf("%w: save_every must be > 0", ErrBadConfig)
	case c.SampleHorizon <= 0 || c.SamplePoints < 2:
		return fmt.Errorf("%w: sample grid needs a positive horizon and at least 2 points", ErrBadConfig)
	}
	return nil
}

// Keys are the independent streams a run draws from. Split the run seed
// with SplitSeed so the data, model and training streams never overlap.
type Keys struct {
	Data   prng.Key
	Model  prng.Key
	Loader prng.Key
	Train  prng.Key
	Sample prng.Key
}

func SplitSeed(seed int64) Keys {
	k := prng.New(seed).Split(5)
	return Keys{Data: k[0], Model: k[1], Loader: k[2], Train: k[3], Sample: k[4]}
}

// StepRecord is what the loop knows after one optimisation step.
type StepRecord struct {
	Step     int
	Epoch    int
	Batch    int
	LR       float64
	Parts    latent.LossParts
	GradNorm float64
	Evals    int
	Data     time.Duration
	Compute  time.Duration
}

// Checkpoint holds decoder samples from the prior taken during training.
type Checkpoint struct {
	Step      int
	Times     []float64
	Values    [][]float64
	Stability float64
}

// Observer receives progress from the loop. Calls happen on the
// goroutine running the loop.
type Observer interface {
	OnStep(StepRecord)
	OnCheckpoint(Checkpoint)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Step       func(StepRecord)
	Checkpoint func(Checkpoint)
}

func (o ObserverFuncs) OnStep(r StepRecord) {
	if o.Step != nil {
		o.Step(r)
	}
}

func (o ObserverFuncs) OnCheckpoint(c Checkpoint) {
	if o.Checkpoint != nil {
		o.Checkpoint(c)
	}
}

// Result is the outcome of a full run.
type Result struct {
	Params      nn.Params
	Optimizer   optim.AdamState
	History     []StepRecord
	Checkpoints []Checkpoint
	Elapsed     time.Duration
}

// Final returns the loss parts of the last step.
func (r *Result) Final() latent.LossParts {
	if len(r.History) == 0 {
		return latent.LossParts{}
	}
	return r.History[len(r.History)-1].Parts
}

// Trainer drives minibatch optimisation of a latent ODE model.
type Trainer struct {
	cfg       RunConfig
	model     *latent.Model
	data      *dataset.Dataset
	adam      optim.Adam
	logger    *logrus.Logger
	observers []Observer
	phase     Phase
}

// New validates cfg and prepares a trainer. A nil logger falls back to
// logrus.New().
func New(cfg RunConfig, model *latent.Model, data *dataset.Dataset, logger *logrus.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if model == nil || data == nil || data.Len() == 0 {
		return nil, fmt.Errorf("%w: model and a non-empty dataset are required", ErrBadConfig)
	}
	if data.DataSize != model.Config().DataSize {
		return nil, fmt.Errorf("%w: dataset has %d channels, model expects %d", nn.ErrShape, data.DataSize, model.Config().DataSize)
	}
	sched, err := optim.ScheduleByName(cfg.Schedule, cfg.Steps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	adam := optim.NewAdam(cfg.LR)
	adam.Schedule = sched
	return &Trainer{cfg: cfg, model: model, data: data, adam: adam, logger: logger}, nil
}

// Observe registers o for progress callbacks.
func (t *Trainer) Observe(o Observer) {
	t.observers = append(t.observers, o)
}

// Phase reports where the loop currently is.
func (t *Trainer) Phase() Phase { return t.phase }

// Run trains from params for the configured number of steps. The train
// key is split once per step and never drawn from directly; the sample key is reused for every
// checkpoint so that samples are comparable across the run.
func (t *Trainer) Run(ctx context.Context, params nn.Params, keys Keys) (*Result, error) {
	if err := t.model.Check(params); err != nil {
		return nil, err
	}
	loader, err := dataset.NewLoader(t.data, t.cfg.BatchSize, keys.Loader)
	if err != nil {
		return nil, err
	}

	sampleTimes := make([]float64, t.cfg.SamplePoints)
	floats.Span(sampleTimes, 0, t.cfg.SampleHorizon)

	res := &Result{Params: params, Optimizer: t.adam.Init(params)}
	trainKey := keys.Train
	var window metrics.Window
	start := time.Now()
	t.setPhase(Idle)

	for step := 0; step < t.cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		startData := time.Now()
		_, batch := loader.Next()
		dataTime := time.Since(startData)
		t.setPhase(BatchDrawn)

		startCompute := time.Now()
		var stepKey prng.Key
		stepKey, trainKey = advance(trainKey)
		out, err := t.model.ValueAndGrad(ctx, res.Params, batch, stepKey, t.cfg.Workers)
		if err != nil {
			t.setPhase(Idle)
			return res, fmt.Errorf("step %d: %w", step, err)
		}
		// Loss and gradient come out of a single tape sweep.
		t.setPhase(ForwardComputed)
		t.setPhase(GradientComputed)

		updates, state, err := t.adam.Update(out.Grads, res.Optimizer)
		if err != nil {
			return res, fmt.Errorf("step %d: %w", step, err)
		}
		next, err := res.Params.Apply(updates)
		if err != nil {
			return res, fmt.Errorf("step %d: %w", step, err)
		}
		if !next.IsFinite() {
			return res, fmt.Errorf("step %d: %w", step, ErrDiverged)
		}
		res.Params, res.Optimizer = next, state
		computeTime := time.Since(startCompute)
		t.setPhase(ParametersUpdated)

		rec := StepRecord{
			Step:     step,
			Epoch:    loader.Epoch(),
			Batch:    len(batch),
			LR:       t.adam.Schedule.LR(t.adam.LR, step),
			Parts:    out.Parts,
			GradNorm: out.Grads.Norm(),
			Evals:    out.Stats.Evals,
			Data:     dataTime,
			Compute:  computeTime,
		}
		res.History = append(res.History, rec)
		window.Record(len(batch), dataTime, computeTime, out.Loss, out.Stats.Evals)
		t.logStep(rec, &window)
		for _, o := range t.observers {
			o.OnStep(rec)
		}

		if step%t.cfg.SaveEvery == 0 || step == t.cfg.Steps-1 {
			cp, err := t.checkpoint(ctx, res.Params, step, sampleTimes, keys.Sample)
			if err != nil {
				return res, fmt.Errorf("step %d: checkpoint: %w", step, err)
			}
			res.Checkpoints = append(res.Checkpoints, cp)
			for _, o := range t.observers {
				o.OnCheckpoint(cp)
			}
		}
	}

	t.setPhase(Idle)
	res.Elapsed = time.Since(start)
	return res, nil
}

// advance splits the train key once: step feeds the current batch and
// next carries on to the following step.
func advance(train prng.Key) (step, next prng.Key) {
	ks := train.Split(2)
	return ks[0], ks[1]
}

func (t *Trainer) logStep(rec StepRecord, window *metrics.Window) {
	every := t.cfg.LogEvery
	if every <= 0 {
		every = 1
	}
	if rec.Step%every != 0 && rec.Step != t.cfg.Steps-1 {
		return
	}
	snap := window.Snapshot()
	t.logger.WithFields(logrus.Fields{
		"step":           rec.Step,
		"loss":           rec.Parts.Total,
		"recon":          rec.Parts.Reconstruction,
		"kl":             rec.Parts.KL,
		"compute_ms":     snap.AvgComputeMS,
		"traj_per_sec":   snap.TrajectoriesPerSec,
		"evals_per_step": snap.EvalsPerStep,
	}).Infof("Step: %d, Loss: %g, Computation time: %g", rec.Step, rec.Parts.Total, rec.Compute.Seconds())
}

func (t *Trainer) checkpoint(ctx context.Context, p nn.Params, step int, ts []float64, key prng.Key) (Checkpoint, error) {
	ys, err := t.model.Sample(ctx, p, ts, key)
	if err != nil {
		return Checkpoint{}, err
	}
	stab := metrics.NewStability(sampleBound)
	stab.ObserveAll(ys)
	return Checkpoint{
		Step:      step,
		Times:     append([]float64(nil), ts...),
		Values:    ys,
		Stability: stab.Value(),
	}, nil
}

// sampleBound is the magnitude beyond which a decoded sample point is
// counted as unstable. Training data stays well inside it.
const sampleBound = 10
