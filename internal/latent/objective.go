package latent

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/latentode/internal/autodiff"
	"github.com/san-kum/latentode/internal/dataset"
	"github.com/san-kum/latentode/internal/integrators"
	"github.com/san-kum/latentode/internal/nn"
	"github.com/san-kum/latentode/internal/parallel"
	"github.com/san-kum/latentode/internal/prng"
)

// ElementResult is one trajectory's loss and parameter gradient.
type ElementResult struct {
	Loss  float64
	Parts LossParts
	Grads nn.Params
	Stats integrators.Stats
}

// BatchResult averages element results over a minibatch.
type BatchResult struct {
	Loss     float64
	Parts    LossParts
	Grads    nn.Params
	Stats    integrators.Stats
	Elements []ElementResult
}

// ValueAndGrad splits key once per element and evaluates the mean loss of
// the batch and its gradient with respect to p.
func (m *Model) ValueAndGrad(ctx context.Context, p nn.Params, batch []dataset.Trajectory, key prng.Key, workers int) (*BatchResult, error) {
	return m.ValueAndGradKeys(ctx, p, batch, key.Split(len(batch)), workers)
}

// ValueAndGradKeys is ValueAndGrad with explicit per-element keys. Each
// element runs on its own tape, so elements never share state and the
// result does not depend on scheduling.
func (m *Model) ValueAndGradKeys(ctx context.Context, p nn.Params, batch []dataset.Trajectory, keys []prng.Key, workers int) (*BatchResult, error) {
	if len(batch) == 0 {
		return nil, dataset.ErrEmpty
	}
	if len(keys) != len(batch) {
		return nil, fmt.Errorf("%w: %d keys for %d elements", nn.ErrShape, len(keys), len(batch))
	}
	if err := m.Check(p); err != nil {
		return nil, err
	}

	elems, err := parallel.Map(ctx, len(batch), workers, func(ctx context.Context, i int) (ElementResult, error) {
		tape := autodiff.NewTape()
		b := nn.Bind(tape, p)
		el, err := m.Train(ctx, b, batch[i], keys[i])
		if err != nil {
			return ElementResult{}, elementError(i, err)
		}
		g, err := tape.Backward(el.Loss)
		if err != nil {
			return ElementResult{}, parallel.Fail(i, StageLoss, err)
		}
		return ElementResult{Loss: el.Parts.Total, Parts: el.Parts, Grads: b.Grads(g), Stats: el.Stats}, nil
	})
	if err != nil {
		return nil, err
	}
	return reduce(p, elems)
}

// Losses evaluates per-element losses without gradients.
func (m *Model) Losses(ctx context.Context, p nn.Params, batch []dataset.Trajectory, keys []prng.Key, workers int) ([]LossParts, error) {
	if len(keys) != len(batch) {
		return nil, fmt.Errorf("%w: %d keys for %d elements", nn.ErrShape, len(keys), len(batch))
	}
	if err := m.Check(p); err != nil {
		return nil, err
	}
	return parallel.Map(ctx, len(batch), workers, func(ctx context.Context, i int) (LossParts, error) {
		el, err := m.Train(ctx, nn.Bind(autodiff.NewInferenceTape(), p), batch[i], keys[i])
		if err != nil {
			return LossParts{}, elementError(i, err)
		}
		return el.Parts, nil
	})
}

// sumChunk is the smallest run of parameter indices summed on its own
// goroutine.
const sumChunk = 4096

// reduce averages element results. Gradients are summed per parameter
// index in element order, so chunking does not change the result.
func reduce(p nn.Params, elems []ElementResult) (*BatchResult, error) {
	res := &BatchResult{Elements: elems}
	flat := make([][]float64, len(elems))
	for i, e := range elems {
		if !p.SameStructure(e.Grads) {
			return nil, fmt.Errorf("%w: gradient of element %d", nn.ErrShape, i)
		}
		flat[i] = e.Grads.Flatten()
		res.Parts = res.Parts.Add(e.Parts)
		res.Stats.Add(e.Stats)
	}
	inv := 1 / float64(len(elems))
	sum := make([]float64, p.Size())
	parallel.For(len(sum), sumChunk, func(start, end int) {
		dst := sum[start:end]
		for _, g := range flat {
			floats.Add(dst, g[start:end])
		}
		floats.Scale(inv, dst)
	})
	grads, err := p.Unflatten(sum)
	if err != nil {
		return nil, err
	}
	res.Grads = grads
	res.Parts = res.Parts.Scale(inv)
	res.Loss = res.Parts.Total
	return res, nil
}

func elementError(i int, err error) error {
	var se *stageError
	if errors.As(err, &se) {
		return parallel.Fail(i, se.stage, se.err)
	}
	return parallel.Fail(i, "", err)
}
