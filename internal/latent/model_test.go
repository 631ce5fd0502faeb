package latent

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/latentode/internal/autodiff"
	"github.com/san-kum/latentode/internal/dataset"
	"github.com/san-kum/latentode/internal/integrators"
	"github.com/san-kum/latentode/internal/nn"
	"github.com/san-kum/latentode/internal/parallel"
	"github.com/san-kum/latentode/internal/prng"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.HiddenSize = 6
	cfg.LatentSize = 3
	cfg.Width = 5
	cfg.Depth = 1
	return cfg
}

func trajectory(ts ...float64) dataset.Trajectory {
	tr := dataset.Trajectory{Times: ts}
	for i, t := range ts {
		tr.Values = append(tr.Values, []float64{0.5 - 0.3*t, 0.1 * float64(i)})
	}
	return tr
}

var _ = Describe("Model", func() {
	var (
		ctx    context.Context
		model  *Model
		params nn.Params
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		model, params, err = New(smallConfig(), prng.New(5678))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("construction", func() {
		It("rejects non-positive sizes", func() {
			cfg := smallConfig()
			cfg.LatentSize = 0
			_, _, err := New(cfg, prng.New(1))
			Expect(errors.Is(err, nn.ErrShape)).To(BeTrue())
		})

		It("initialises the field scale to one", func() {
			scale, err := params.Get("func.scale")
			Expect(err).NotTo(HaveOccurred())
			Expect(scale.Data).To(Equal([]float64{1}))
		})

		It("is reproducible from the key", func() {
			_, again, err := New(smallConfig(), prng.New(5678))
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Tensors()).To(Equal(params.Tensors()))
		})

		It("rejects parameters of another architecture", func() {
			cfg := smallConfig()
			cfg.HiddenSize = 7
			_, other, err := New(cfg, prng.New(1))
			Expect(err).NotTo(HaveOccurred())
			_, err = model.Sample(ctx, other, []float64{0, 1}, prng.New(2))
			Expect(errors.Is(err, nn.ErrShape)).To(BeTrue())
		})
	})

	DescribeTable("decoder output shape",
		func(hidden, latent, width, depth int, ts []float64) {
			cfg := DefaultConfig()
			cfg.HiddenSize, cfg.LatentSize, cfg.Width, cfg.Depth = hidden, latent, width, depth
			m, p, err := New(cfg, prng.New(int64(hidden*100+latent)))
			Expect(err).NotTo(HaveOccurred())

			ys, err := m.Sample(ctx, p, ts, prng.New(3))
			Expect(err).NotTo(HaveOccurred())
			Expect(ys).To(HaveLen(len(ts)))
			for _, y := range ys {
				Expect(y).To(HaveLen(cfg.DataSize))
			}
		},
		Entry("tiny", 2, 1, 2, 1, []float64{0, 0.7}),
		Entry("single output time", 4, 2, 3, 1, []float64{1.5}),
		Entry("linear decoder", 3, 3, 0, 0, []float64{0, 0.2, 0.9, 2.0}),
		Entry("deep", 8, 4, 8, 3, []float64{0, 0.1, 0.2, 0.3, 3.0}),
		Entry("defaults", 16, 16, 16, 2, []float64{0, 1, 2, 3, 4, 5, 6}),
	)

	Describe("encoder", func() {
		It("is deterministic", func() {
			tr := trajectory(0, 0.4, 1.1)
			tape := autodiff.NewInferenceTape()
			b := nn.Bind(tape, params)
			first, err := model.Summary(b, tr)
			Expect(err).NotTo(HaveOccurred())
			second, err := model.Summary(b, tr)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Value()).To(Equal(first.Value()))
			Expect(first.Len()).To(Equal(6))
		})

		It("reads observations in reverse order", func() {
			tr := trajectory(0, 0.4, 1.1)
			rev := dataset.Trajectory{
				Times:  []float64{0, 0.4, 1.1},
				Values: [][]float64{tr.Values[2], tr.Values[1], tr.Values[0]},
			}
			tape := autodiff.NewInferenceTape()
			b := nn.Bind(tape, params)
			a, err := model.Summary(b, tr)
			Expect(err).NotTo(HaveOccurred())
			c, err := model.Summary(b, rev)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Value()).NotTo(Equal(c.Value()))
		})

		It("folds the GRU from the last observation back to the first", func() {
			tr := trajectory(0, 0.4, 1.1, 2.5)
			tape := autodiff.NewInferenceTape()
			b := nn.Bind(tape, params)

			h := tape.Zeros(6)
			for i := tr.Len() - 1; i >= 0; i-- {
				x := tape.Const(append([]float64{tr.Times[i]}, tr.Values[i]...))
				var err error
				h, err = model.rnn.Forward(b, x, h)
				Expect(err).NotTo(HaveOccurred())
			}
			wantMean, wantStd, err := model.Posterior(b, h)
			Expect(err).NotTo(HaveOccurred())

			summary, err := model.Summary(b, tr)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Value()).To(Equal(h.Value()))
			mean, std, err := model.Encode(b, tr)
			Expect(err).NotTo(HaveOccurred())
			Expect(mean.Value()).To(Equal(wantMean.Value()))
			Expect(std.Value()).To(Equal(wantStd.Value()))
		})

		It("fails fast on observations of the wrong width", func() {
			tr := dataset.Trajectory{Times: []float64{0, 1}, Values: [][]float64{{1, 2, 3}, {4, 5, 6}}}
			_, _, err := model.Encode(nn.Bind(autodiff.NewInferenceTape(), params), tr)
			Expect(errors.Is(err, nn.ErrShape)).To(BeTrue())
			Expect(errors.Is(err, dataset.ErrDimension)).To(BeTrue())
		})

		It("produces a positive std of latent size", func() {
			_, std, err := model.Encode(nn.Bind(autodiff.NewInferenceTape(), params), trajectory(0, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(std.Len()).To(Equal(3))
			Expect(CheckStd(std.Value())).To(Succeed())
		})
	})

	Describe("reparameterised sampling", func() {
		It("returns the mean exactly when the noise is zero", func() {
			tape := autodiff.NewInferenceTape()
			mean := tape.Const([]float64{0.3, -1.7, 12.5})
			std := tape.Const([]float64{0.9, 2.2, 1e-3})
			z := SampleWithNoise(mean, std, tape.Zeros(3))
			Expect(z.Value()).To(Equal(mean.Value()))
		})
	})

	Describe("batch objective", func() {
		var batch []dataset.Trajectory
		var keys []prng.Key

		BeforeEach(func() {
			batch = []dataset.Trajectory{
				trajectory(0, 0.5, 1.0),
				trajectory(0, 0.3, 0.6, 1.2),
				trajectory(0.2, 0.25, 2.9),
				trajectory(1, 1.5, 1.75, 2, 2.5),
			}
			keys = prng.New(11).Split(len(batch))
		})

		It("handles the irregular two-trajectory batch in one call", func() {
			two := batch[:2]
			res, err := model.ValueAndGradKeys(ctx, params, two, keys[:2], 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Elements).To(HaveLen(2))
			Expect(res.Grads.SameStructure(params)).To(BeTrue())
			Expect(res.Grads.IsFinite()).To(BeTrue())

			for i, tr := range two {
				tape := autodiff.NewInferenceTape()
				b := nn.Bind(tape, params)
				mean, std, err := model.Encode(b, tr)
				Expect(err).NotTo(HaveOccurred())
				z := SampleWithNoise(mean, std, tape.Const(keys[i].Normal(3)))
				pred, _, err := model.Decode(ctx, b, tr.Times, z)
				Expect(err).NotTo(HaveOccurred())
				Expect(pred).To(HaveLen(tr.Len()))
			}
			Expect(batch[0].Len()).To(Equal(3))
			Expect(batch[1].Len()).To(Equal(4))
		})

		It("is invariant to the order of batch elements", func() {
			res, err := model.ValueAndGradKeys(ctx, params, batch, keys, 0)
			Expect(err).NotTo(HaveOccurred())

			order := []int{2, 0, 3, 1}
			permuted := make([]dataset.Trajectory, len(order))
			permKeys := make([]prng.Key, len(order))
			for i, j := range order {
				permuted[i], permKeys[i] = batch[j], keys[j]
			}
			again, err := model.ValueAndGradKeys(ctx, params, permuted, permKeys, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Loss).To(BeNumerically("~", res.Loss, 1e-9))
			Expect(again.Grads.Norm()).To(BeNumerically("~", res.Grads.Norm(), 1e-9))
		})

		It("scores each element independently of its companions", func() {
			alone, err := model.Losses(ctx, params, batch[1:2], keys[1:2], 1)
			Expect(err).NotTo(HaveOccurred())
			together, err := model.Losses(ctx, params, batch, keys, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(together[1]).To(Equal(alone[0]))

			twin := []dataset.Trajectory{batch[1], batch[1]}
			twins, err := model.Losses(ctx, params, twin, []prng.Key{keys[1], keys[1]}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(twins[0]).To(Equal(twins[1]))
		})

		It("averages element losses", func() {
			res, err := model.ValueAndGradKeys(ctx, params, batch, keys, 0)
			Expect(err).NotTo(HaveOccurred())
			sum := 0.0
			for _, e := range res.Elements {
				sum += e.Loss
				Expect(e.Parts.Total).To(BeNumerically("~", e.Parts.Reconstruction+e.Parts.KL, 1e-9))
			}
			Expect(res.Loss).To(BeNumerically("~", sum/float64(len(batch)), 1e-12))
		})

		It("names the element and stage of a solver failure", func() {
			cfg := smallConfig()
			cfg.Solver.MaxSteps = 1
			cfg.Solver.Dt0 = 1e-3
			m, p, err := New(cfg, prng.New(5678))
			Expect(err).NotTo(HaveOccurred())

			_, err = m.ValueAndGradKeys(ctx, p, batch[:1], keys[:1], 1)
			var ee *parallel.ElementError
			Expect(errors.As(err, &ee)).To(BeTrue())
			Expect(ee.Index).To(Equal(0))
			Expect(ee.Stage).To(Equal(StageDecode))
			Expect(errors.Is(err, integrators.ErrMaxSteps)).To(BeTrue())
			var se *integrators.SolveError
			Expect(errors.As(err, &se)).To(BeTrue())
		})

		It("names the element and stage of an encoding failure", func() {
			bad := append([]dataset.Trajectory{}, batch...)
			bad[2] = dataset.Trajectory{Times: []float64{0, 1}, Values: [][]float64{{1}, {2}}}
			_, err := model.ValueAndGradKeys(ctx, params, bad, keys, 1)
			var ee *parallel.ElementError
			Expect(errors.As(err, &ee)).To(BeTrue())
			Expect(ee.Index).To(Equal(2))
			Expect(ee.Stage).To(Equal(StageEncode))
		})

		It("rejects a key count that does not match the batch", func() {
			_, err := model.ValueAndGradKeys(ctx, params, batch, keys[:2], 0)
			Expect(errors.Is(err, nn.ErrShape)).To(BeTrue())
		})
	})

	Describe("prior sampling", func() {
		It("is reproducible for a fixed key", func() {
			ts := []float64{0, 3, 6, 9, 12}
			a, err := model.Sample(ctx, params, ts, prng.New(42))
			Expect(err).NotTo(HaveOccurred())
			b, err := model.Sample(ctx, params, ts, prng.New(42))
			Expect(err).NotTo(HaveOccurred())
			Expect(a).To(Equal(b))
		})

		It("reconstructs at the trajectory's own times", func() {
			tr := trajectory(0, 0.3, 0.6, 1.2)
			ys, err := model.Reconstruct(ctx, params, tr)
			Expect(err).NotTo(HaveOccurred())
			Expect(ys).To(HaveLen(4))
		})
	})
})
