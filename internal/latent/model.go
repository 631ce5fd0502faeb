package latent

import (
	"context"
	"fmt"

	"github.com/san-kum/latentode/internal/autodiff"
	"github.com/san-kum/latentode/internal/dataset"
	"github.com/san-kum/latentode/internal/integrators"
	"github.com/san-kum/latentode/internal/nn"
	"github.com/san-kum/latentode/internal/prng"
)

// Stages reported with element failures.
const (
	StageEncode = "encode"
	StageDecode = "decode"
	StageLoss   = "loss"
)

// Model holds the architecture. It carries no parameter values, so one
// Model serves every parameter set produced during training.
type Model struct {
	cfg      Config
	rnn      nn.GRUCell
	toLatent nn.Linear
	toHidden nn.MLP
	field    Field
	toData   nn.Linear
	solver   *integrators.Solver
	shapes   nn.Params
}

// New builds the model and draws initial parameters from key.
func New(cfg Config, key prng.Key) (*Model, nn.Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nn.Params{}, err
	}
	tab, err := integrators.Lookup(cfg.Method)
	if err != nil {
		return nil, nn.Params{}, err
	}
	solver, err := integrators.New(tab, cfg.Solver)
	if err != nil {
		return nil, nn.Params{}, err
	}

	m := &Model{
		cfg:      cfg,
		rnn:      nn.GRUCell{Name: "rnn_cell", In: cfg.DataSize + 1, Hidden: cfg.HiddenSize},
		toLatent: nn.Linear{Name: "hidden_to_latent", In: cfg.HiddenSize, Out: 2 * cfg.LatentSize, Bias: true},
		toHidden: nn.MLP{
			Name:            "latent_to_hidden",
			In:              cfg.LatentSize,
			Out:             cfg.HiddenSize,
			Width:           cfg.Width,
			Depth:           cfg.Depth,
			Activation:      nn.ReLU,
			FinalActivation: nn.Identity,
		},
		field:  newField(cfg.HiddenSize, cfg.Width, cfg.Depth),
		toData: nn.Linear{Name: "hidden_to_data", In: cfg.HiddenSize, Out: cfg.DataSize, Bias: true},
		solver: solver,
	}

	keys := key.Split(5)
	var tensors []nn.Tensor
	for i, init := range []func(prng.Key) ([]nn.Tensor, error){
		m.field.Init,
		m.rnn.Init,
		m.toLatent.Init,
		m.toHidden.Init,
		m.toData.Init,
	} {
		ts, err := init(keys[i])
		if err != nil {
			return nil, nn.Params{}, err
		}
		tensors = append(tensors, ts...)
	}
	params, err := nn.NewParams(tensors...)
	if err != nil {
		return nil, nn.Params{}, err
	}
	m.shapes = params.ZerosLike()
	return m, params, nil
}

func (m *Model) Config() Config { return m.cfg }

// Check reports whether p has the names and shapes this model expects.
func (m *Model) Check(p nn.Params) error {
	if !m.shapes.SameStructure(p) {
		return fmt.Errorf("%w: parameters do not match the model architecture", nn.ErrShape)
	}
	return nil
}

// Element is the outcome of one trajectory's forward pass.
type Element struct {
	Loss  autodiff.Var
	Parts LossParts
	Mean  []float64
	Std   []float64
	Stats integrators.Stats
}

// Train runs encode, reparameterised sampling, decode and loss for one
// trajectory on b's tape. Failures are tagged with the stage.
func (m *Model) Train(ctx context.Context, b *nn.Bound, tr dataset.Trajectory, key prng.Key) (*Element, error) {
	mean, std, err := m.Encode(b, tr)
	if err != nil {
		return nil, &stageError{StageEncode, err}
	}
	if err := CheckStd(std.Value()); err != nil {
		return nil, &stageError{StageEncode, err}
	}
	eps := b.Tape().Const(key.Normal(m.cfg.LatentSize))
	z := SampleWithNoise(mean, std, eps)

	pred, stats, err := m.Decode(ctx, b, tr.Times, z)
	if err != nil {
		return nil, &stageError{StageDecode, err}
	}
	loss, parts, err := Loss(tr.Values, pred, mean, std)
	if err != nil {
		return nil, &stageError{StageLoss, err}
	}
	return &Element{
		Loss:  loss,
		Parts: parts,
		Mean:  append([]float64(nil), mean.Value()...),
		Std:   append([]float64(nil), std.Value()...),
		Stats: stats,
	}, nil
}

// Sample decodes a latent drawn from the prior N(0, I) at times ts.
func (m *Model) Sample(ctx context.Context, p nn.Params, ts []float64, key prng.Key) ([][]float64, error) {
	z := key.Normal(m.cfg.LatentSize)
	return m.DecodeLatent(ctx, p, ts, z)
}

// DecodeLatent decodes a given latent vector without recording gradients.
func (m *Model) DecodeLatent(ctx context.Context, p nn.Params, ts []float64, z []float64) ([][]float64, error) {
	if err := m.Check(p); err != nil {
		return nil, err
	}
	tape := autodiff.NewInferenceTape()
	b := nn.Bind(tape, p)
	pred, _, err := m.Decode(ctx, b, ts, tape.Const(z))
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(pred))
	for i, v := range pred {
		out[i] = append([]float64(nil), v.Value()...)
	}
	return out, nil
}

// Reconstruct encodes tr and decodes the posterior mean at tr's times.
func (m *Model) Reconstruct(ctx context.Context, p nn.Params, tr dataset.Trajectory) ([][]float64, error) {
	if err := m.Check(p); err != nil {
		return nil, err
	}
	tape := autodiff.NewInferenceTape()
	mean, _, err := m.Encode(nn.Bind(tape, p), tr)
	if err != nil {
		return nil, err
	}
	return m.DecodeLatent(ctx, p, tr.Times, mean.Value())
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }
