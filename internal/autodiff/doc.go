// Package autodiff implements reverse-mode automatic differentiation over
// small dense vectors.
//
// Operations are recorded on a [Tape] during the forward pass. Each
// recorded node keeps its value and a closure that distributes the
// gradient of its output onto its inputs. [Tape.Backward] walks the tape
// in reverse from a scalar output and returns [Gradients] for every leaf.
//
//	tape := autodiff.NewTape()
//	w := tape.Leaf([]float64{1, 2, 3, 4})
//	x := tape.Const([]float64{0.5, -1})
//	y := autodiff.SumSquares(autodiff.Tanh(autodiff.Affine(w, autodiff.Var{}, 2, 2, x)))
//	grads, _ := tape.Backward(y)
//	dw := grads.Of(w)
//
// A tape created with [NewInferenceTape] records nothing: values are
// computed eagerly and Backward fails with [ErrNoGrad].
//
// # Thread Safety
//
// A Tape is NOT safe for concurrent use. Batch computations use one tape
// per element.
package autodiff
