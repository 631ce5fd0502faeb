package latent

import (
	"fmt"

	"github.com/san-kum/latentode/internal/autodiff"
	"github.com/san-kum/latentode/internal/dataset"
	"github.com/san-kum/latentode/internal/nn"
)

// Summary runs the GRU over [t_i, y_i] from the last observation to the
// first, starting from a zero hidden state, and returns the final state.
func (m *Model) Summary(b *nn.Bound, tr dataset.Trajectory) (autodiff.Var, error) {
	if err := tr.Validate(m.cfg.DataSize); err != nil {
		return autodiff.Var{}, fmt.Errorf("%w: %w", nn.ErrShape, err)
	}
	tape := b.Tape()
	h := tape.Zeros(m.cfg.HiddenSize)
	input := make([]float64, m.cfg.DataSize+1)
	for i := tr.Len() - 1; i >= 0; i-- {
		input[0] = tr.Times[i]
		copy(input[1:], tr.Values[i])
		var err error
		if h, err = m.rnn.Forward(b, tape.Const(input), h); err != nil {
			return autodiff.Var{}, err
		}
	}
	return h, nil
}

// Posterior maps an encoder summary to the mean and standard deviation
// of q(z | trajectory).
func (m *Model) Posterior(b *nn.Bound, h autodiff.Var) (mean, std autodiff.Var, err error) {
	ctx, err := m.toLatent.Forward(b, h)
	if err != nil {
		return autodiff.Var{}, autodiff.Var{}, err
	}
	l := m.cfg.LatentSize
	mean = autodiff.Slice(ctx, 0, l)
	std = autodiff.Exp(autodiff.Slice(ctx, l, 2*l))
	return mean, std, nil
}

// Encode is Summary followed by Posterior.
func (m *Model) Encode(b *nn.Bound, tr dataset.Trajectory) (mean, std autodiff.Var, err error) {
	h, err := m.Summary(b, tr)
	if err != nil {
		return autodiff.Var{}, autodiff.Var{}, err
	}
	return m.Posterior(b, h)
}

// SampleWithNoise returns mean + eps * std.
func SampleWithNoise(mean, std, eps autodiff.Var) autodiff.Var {
	return autodiff.Add(mean, autodiff.Mul(eps, std))
}
