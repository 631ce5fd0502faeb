package latent

import (
	"context"
	"fmt"

	"github.com/san-kum/latentode/internal/autodiff"
	"github.com/san-kum/latentode/internal/integrators"
	"github.com/san-kum/latentode/internal/nn"
)

// Decode maps z to an initial hidden state, integrates the vector field
// from ts[0] to ts[len-1] and projects the state at every ts to data
// space. The result has len(ts) rows of DataSize values.
func (m *Model) Decode(ctx context.Context, b *nn.Bound, ts []float64, z autodiff.Var) ([]autodiff.Var, integrators.Stats, error) {
	if len(ts) == 0 {
		return nil, integrators.Stats{}, fmt.Errorf("%w: no output times", integrators.ErrInvalidTimes)
	}
	if z.Len() != m.cfg.LatentSize {
		return nil, integrators.Stats{}, fmt.Errorf("%w: latent has %d values, want %d", nn.ErrShape, z.Len(), m.cfg.LatentSize)
	}
	h0, err := m.toHidden.Forward(b, z)
	if err != nil {
		return nil, integrators.Stats{}, err
	}
	field, err := m.field.Bind(b)
	if err != nil {
		return nil, integrators.Stats{}, err
	}
	sol, err := m.solver.Solve(ctx, field, ts[0], ts[len(ts)-1], h0, ts)
	if err != nil {
		return nil, integrators.Stats{}, err
	}

	out := make([]autodiff.Var, len(sol.Ys))
	for i, h := range sol.Ys {
		if out[i], err = m.toData.Forward(b, h); err != nil {
			return nil, sol.Stats, err
		}
	}
	return out, sol.Stats, nil
}
