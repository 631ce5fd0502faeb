package latent

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/latentode/internal/autodiff"
	"github.com/san-kum/latentode/internal/nn"
)

// ErrDegenerateStd reports a posterior standard deviation that is not
// strictly positive and finite.
var ErrDegenerateStd = errors.New("latent: degenerate posterior standard deviation")

// LossParts splits a trajectory's loss for reporting.
type LossParts struct {
	Reconstruction float64 `json:"reconstruction"`
	KL             float64 `json:"kl"`
	Total          float64 `json:"total"`
}

func (p LossParts) Add(o LossParts) LossParts {
	return LossParts{
		Reconstruction: p.Reconstruction + o.Reconstruction,
		KL:             p.KL + o.KL,
		Total:          p.Total + o.Total,
	}
}

func (p LossParts) Scale(c float64) LossParts {
	return LossParts{Reconstruction: c * p.Reconstruction, KL: c * p.KL, Total: c * p.Total}
}

// CheckStd returns ErrDegenerateStd if any entry of std is zero,
// negative or not finite.
func CheckStd(std []float64) error {
	for i, s := range std {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: std[%d] = %g", ErrDegenerateStd, i, s)
		}
	}
	return nil
}

// Loss is the negative ELBO of one trajectory under a unit-variance
// Gaussian likelihood:
//
//	0.5 * sum (y - pred)^2 + 0.5 * sum (mean^2 + std^2 - 2 log std - 1)
//
// Both terms are summed, not averaged.
func Loss(ys [][]float64, pred []autodiff.Var, mean, std autodiff.Var) (autodiff.Var, LossParts, error) {
	if len(ys) != len(pred) || len(ys) == 0 {
		return autodiff.Var{}, LossParts{}, fmt.Errorf("%w: %d observations, %d predictions", nn.ErrShape, len(ys), len(pred))
	}
	if mean.Len() != std.Len() {
		return autodiff.Var{}, LossParts{}, fmt.Errorf("%w: mean %d std %d", nn.ErrShape, mean.Len(), std.Len())
	}
	if err := CheckStd(std.Value()); err != nil {
		return autodiff.Var{}, LossParts{}, err
	}
	tape := mean.Tape()

	var recon autodiff.Var
	for i, y := range ys {
		if len(y) != pred[i].Len() {
			return autodiff.Var{}, LossParts{}, fmt.Errorf("%w: observation %d has %d values, prediction %d", nn.ErrShape, i, len(y), pred[i].Len())
		}
		sq := autodiff.SumSquares(autodiff.Sub(tape.Const(y), pred[i]))
		if i == 0 {
			recon = sq
		} else {
			recon = autodiff.Add(recon, sq)
		}
	}
	recon = autodiff.Scale(recon, 0.5)

	kl := autodiff.Add(autodiff.SumSquares(mean), autodiff.SumSquares(std))
	kl = autodiff.Sub(kl, autodiff.Scale(autodiff.Sum(autodiff.Log(std)), 2))
	kl = autodiff.Scale(autodiff.Sub(kl, tape.Const([]float64{float64(mean.Len())})), 0.5)

	total := autodiff.Add(recon, kl)
	parts := LossParts{Reconstruction: recon.Scalar(), KL: kl.Scalar(), Total: total.Scalar()}
	return total, parts, nil
}
