package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/latentode/internal/analysis"
	"github.com/san-kum/latentode/internal/config"
	"github.com/san-kum/latentode/internal/dataset"
	"github.com/san-kum/latentode/internal/latent"
	"github.com/san-kum/latentode/internal/metrics"
	"github.com/san-kum/latentode/internal/models"
	"github.com/san-kum/latentode/internal/nn"
	"github.com/san-kum/latentode/internal/trainer"
)

// evalTrajectories caps how many training trajectories are reconstructed
// for the fit metric.
const evalTrajectories = 32

var ErrNotSetup = errors.New("experiment: not set up")

// Experiment wires data generation, the model and the trainer for one
// configuration.
type Experiment struct {
	cfg    *config.Config
	keys   trainer.Keys
	logger *logrus.Logger

	data   *dataset.Dataset
	model  *latent.Model
	params nn.Params
}

func New(cfg *config.Config, logger *logrus.Logger) *Experiment {
	if logger == nil {
		logger = logrus.New()
	}
	return &Experiment{cfg: cfg, keys: trainer.SplitSeed(cfg.Seed), logger: logger}
}

// Setup generates the dataset and initialises the model.
func (e *Experiment) Setup(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	data, err := dataset.Generate(ctx, e.cfg.Data, e.keys.Data)
	if err != nil {
		return fmt.Errorf("generate data: %w", err)
	}
	model, params, err := latent.New(e.cfg.Model, e.keys.Model)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	e.data, e.model, e.params = data, model, params
	e.logger.WithFields(logrus.Fields{
		"system":       e.cfg.Data.System,
		"trajectories": data.Len(),
		"parameters":   params.Size(),
	}).Info("experiment ready")
	return nil
}

func (e *Experiment) Dataset() *dataset.Dataset { return e.data }
func (e *Experiment) Model() *latent.Model      { return e.model }

// Outcome is a finished run with its summary metrics.
type Outcome struct {
	Result  *trainer.Result
	Metrics map[string]float64
}

// Run trains the model and evaluates the final parameters.
func (e *Experiment) Run(ctx context.Context, observers ...trainer.Observer) (*Outcome, error) {
	if e.model == nil {
		return nil, ErrNotSetup
	}
	tr, err := trainer.New(e.cfg.RunConfig(), e.model, e.data, e.logger)
	if err != nil {
		return nil, err
	}
	for _, o := range observers {
		tr.Observe(o)
	}
	res, err := tr.Run(ctx, e.params, e.keys)
	if err != nil {
		return &Outcome{Result: res}, err
	}
	m, err := e.Evaluate(ctx, res)
	if err != nil {
		return &Outcome{Result: res}, err
	}
	return &Outcome{Result: res, Metrics: m}, nil
}

// Evaluate summarises a finished run: final losses, reconstruction error
// on training trajectories and, for the last prior sample, stability and
// spectral properties compared with the generating system.
func (e *Experiment) Evaluate(ctx context.Context, res *trainer.Result) (map[string]float64, error) {
	final := res.Final()
	m := map[string]float64{
		"final_loss":  final.Total,
		"final_recon": final.Reconstruction,
		"final_kl":    final.KL,
	}

	n := min(evalTrajectories, e.data.Len())
	rmse := 0.0
	for _, tr := range e.data.Trajectories[:n] {
		pred, err := e.model.Reconstruct(ctx, res.Params, tr)
		if err != nil {
			return nil, fmt.Errorf("reconstruct: %w", err)
		}
		rmse += metrics.RMSE(tr.Values, pred)
	}
	m["recon_rmse"] = rmse / float64(n)

	if len(res.Checkpoints) == 0 {
		return m, nil
	}
	sample := res.Checkpoints[len(res.Checkpoints)-1]
	m["stability"] = sample.Stability
	m["sample_amplitude"] = metrics.Amplitude(sample.Values)
	for k, v := range SampleSpectrum(sample) {
		m[k] = v
	}
	if sys, err := models.Configure(e.cfg.Data.System, e.cfg.Data.Params); err == nil {
		if osc, ok := sys.(*models.Oscillator); ok {
			m["true_freq_hz"] = osc.Frequency() / (2 * math.Pi)
			m["true_decay"] = osc.DecayRate()
		}
	}
	return m, nil
}

// SampleSpectrum estimates the dominant frequency of channel 0 and the
// envelope decay rate of a sample. Estimates that cannot be formed, for
// example when the sample never crosses zero twice, are left out.
func SampleSpectrum(cp trainer.Checkpoint) map[string]float64 {
	m := make(map[string]float64)
	if len(cp.Values) == 0 || len(cp.Values[0]) < 2 {
		return m
	}
	ch := make([]float64, len(cp.Values))
	for i, y := range cp.Values {
		ch[i] = y[0]
	}
	if f, err := analysis.DominantFrequency(cp.Times, ch); err == nil {
		m["sample_freq_hz"] = f
	}
	if section := analysis.NewPoincareSection(cp.Times, cp.Values, 1, 0, 0, 1); section != nil {
		if rate, err := section.DecayRate(); err == nil {
			m["sample_decay"] = rate
		}
	}
	return m
}
