package latent

import (
	"fmt"

	"github.com/san-kum/latentode/internal/autodiff"
	"github.com/san-kum/latentode/internal/nn"
	"github.com/san-kum/latentode/internal/prng"
)

// Field is the autonomous vector field f(h) = scale * tanh(mlp(h)), with
// softplus hidden activations and a learnable scalar scale.
type Field struct {
	mlp   nn.MLP
	scale string
}

func newField(hidden, width, depth int) Field {
	return Field{
		mlp: nn.MLP{
			Name:            "func.mlp",
			In:              hidden,
			Out:             hidden,
			Width:           width,
			Depth:           depth,
			Activation:      nn.Softplus,
			FinalActivation: nn.Tanh,
		},
		scale: "func.scale",
	}
}

func (f Field) Init(key prng.Key) ([]nn.Tensor, error) {
	ts, err := f.mlp.Init(key)
	if err != nil {
		return nil, err
	}
	return append(ts, nn.Tensor{Name: f.scale, Shape: []int{1}, Data: []float64{1}}), nil
}

// Bind returns the field as an integrators.System over bound parameters.
func (f Field) Bind(b *nn.Bound) (*BoundField, error) {
	scale, err := b.Var(f.scale)
	if err != nil {
		return nil, err
	}
	return &BoundField{field: f, params: b, scale: scale}, nil
}

// BoundField evaluates a Field with one set of bound parameters.
type BoundField struct {
	field  Field
	params *nn.Bound
	scale  autodiff.Var
}

func (bf *BoundField) StateDim() int { return bf.field.mlp.In }

// Derive ignores t; the field is autonomous.
func (bf *BoundField) Derive(_ float64, h autodiff.Var) (autodiff.Var, error) {
	out, err := bf.field.mlp.Forward(bf.params, h)
	if err != nil {
		return autodiff.Var{}, fmt.Errorf("vector field: %w", err)
	}
	return autodiff.MulScalar(bf.scale, out), nil
}
