package experiment

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/latentode/internal/config"
	"github.com/san-kum/latentode/internal/models"
	"github.com/san-kum/latentode/internal/optim"
	"github.com/san-kum/latentode/internal/trainer"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func tinyConfig() *config.Config {
	cfg := config.GetPreset("oscillator", "tiny")
	cfg.Data.Size = 12
	cfg.Data.Points = 6
	cfg.Train.Steps = 2
	cfg.Train.BatchSize = 4
	cfg.Train.SaveEvery = 1
	cfg.Train.SamplePoints = 60
	return cfg
}

func TestRunProducesMetrics(t *testing.T) {
	exp := New(tinyConfig(), quiet())
	if _, err := exp.Run(context.Background()); !errors.Is(err, ErrNotSetup) {
		t.Fatalf("expected ErrNotSetup, got %v", err)
	}
	if err := exp.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if exp.Dataset().Len() != 12 {
		t.Errorf("expected 12 trajectories, got %d", exp.Dataset().Len())
	}

	steps := 0
	out, err := exp.Run(context.Background(), trainer.ObserverFuncs{Step: func(trainer.StepRecord) { steps++ }})
	if err != nil {
		t.Fatal(err)
	}
	if steps != 2 {
		t.Errorf("observer saw %d steps", steps)
	}
	for _, key := range []string{"final_loss", "final_recon", "final_kl", "recon_rmse", "stability", "sample_amplitude", "true_freq_hz", "true_decay"} {
		v, ok := out.Metrics[key]
		if !ok {
			t.Errorf("missing metric %s", key)
			continue
		}
		if math.IsNaN(v) {
			t.Errorf("metric %s is NaN", key)
		}
	}
	if got := out.Metrics["true_freq_hz"]; math.Abs(got-math.Sqrt(1.3)/(2*math.Pi)) > 1e-9 {
		t.Errorf("unexpected true frequency %f", got)
	}
	if len(out.Result.Checkpoints) != 2 {
		t.Errorf("expected 2 checkpoints, got %d", len(out.Result.Checkpoints))
	}
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	cfg := tinyConfig()
	cfg.Train.Steps = 0
	if err := New(cfg, quiet()).Setup(context.Background()); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestSampleSpectrumOnTrueSystem(t *testing.T) {
	osc := models.NewOscillator()
	cp := trainer.Checkpoint{}
	for i := 0; i < 1000; i++ {
		tt := float64(i) * 0.04
		cp.Times = append(cp.Times, tt)
		cp.Values = append(cp.Values, osc.Exact([]float64{1, 0.5}, tt))
	}
	m := SampleSpectrum(cp)
	if f := m["sample_freq_hz"]; math.Abs(f-osc.Frequency()/(2*math.Pi)) > 0.02 {
		t.Errorf("frequency %f", f)
	}
	if d := m["sample_decay"]; math.Abs(d-osc.DecayRate()) > 0.01 {
		t.Errorf("decay %f", d)
	}
	if len(SampleSpectrum(trainer.Checkpoint{})) != 0 {
		t.Error("expected no estimates for an empty sample")
	}
}

func TestSweep(t *testing.T) {
	trials, err := Sweep(context.Background(), tinyConfig(), []string{"lr", "latent_size"}, [][]float64{{1e-2, 1e-3}, {2, 0}}, quiet())
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != 4 {
		t.Fatalf("expected 4 trials, got %d", len(trials))
	}
	for i, tr := range trials[:2] {
		if tr.Err != nil {
			t.Errorf("trial %d failed: %v", i, tr.Err)
		}
	}
	if trials[0].Score > trials[1].Score {
		t.Error("successful trials are not ranked by score")
	}
	for _, tr := range trials[2:] {
		if !errors.Is(tr.Err, config.ErrInvalid) || tr.Params["latent_size"] != 0 {
			t.Errorf("expected the latent_size 0 trials to fail validation, got %+v", tr)
		}
	}
}

func TestSweepUnknownKnob(t *testing.T) {
	if _, err := Sweep(context.Background(), tinyConfig(), []string{"momentum"}, [][]float64{{0.9}}, quiet()); err == nil {
		t.Error("expected an error for an unknown knob")
	}
	_, err := Sweep(context.Background(), tinyConfig(), []string{"latent_size"}, [][]float64{{0}}, quiet())
	if !errors.Is(err, optim.ErrNoCandidate) {
		t.Errorf("expected ErrNoCandidate, got %v", err)
	}
}
