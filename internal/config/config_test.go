package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/san-kum/latentode/internal/dataset"
	"github.com/san-kum/latentode/internal/trainer"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Data.Size != 10000 || cfg.Data.Points != 20 {
		t.Errorf("unexpected data defaults: %+v", cfg.Data)
	}
	if cfg.Train.BatchSize != 256 || cfg.Train.LR != 1e-2 || cfg.Train.Steps != 250 || cfg.Train.SaveEvery != 50 {
		t.Errorf("unexpected train defaults: %+v", cfg.Train)
	}
	if cfg.Model.HiddenSize != 16 || cfg.Model.LatentSize != 16 || cfg.Model.Width != 16 || cfg.Model.Depth != 2 {
		t.Errorf("unexpected model defaults: %+v", cfg.Model)
	}
	if cfg.Seed != 5678 {
		t.Errorf("expected seed 5678, got %d", cfg.Seed)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	body := "seed: 7\ntrain:\n  steps: 12\n  lr: 0.003\nmodel:\n  method: tsit5\n  solver:\n    rtol: 1.0e-5\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seed != 7 || cfg.Train.Steps != 12 || cfg.Train.LR != 0.003 {
		t.Errorf("overrides not applied: seed %d steps %d lr %v", cfg.Seed, cfg.Train.Steps, cfg.Train.LR)
	}
	if cfg.Model.Method != "tsit5" || cfg.Model.Solver.RTol != 1e-5 {
		t.Errorf("model overrides not applied: %+v", cfg.Model)
	}
	if cfg.Train.BatchSize != 256 || cfg.Model.Solver.Dt0 != 0.4 {
		t.Errorf("untouched keys lost their defaults: batch %d dt0 %v", cfg.Train.BatchSize, cfg.Model.Solver.Dt0)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	want := GetPreset("oscillator", "tiny")
	if err := Save(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero steps", func(c *Config) { c.Train.Steps = 0 }, trainer.ErrBadConfig},
		{"zero points", func(c *Config) { c.Data.Points = 0 }, dataset.ErrBadConfig},
		{"batch larger than data", func(c *Config) { c.Data.Size = 10 }, ErrInvalid},
		{"bad log format", func(c *Config) { c.Output.LogFormat = "xml" }, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.want) || !errors.Is(err, ErrInvalid) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRunConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Train.Workers = 3
	run := cfg.RunConfig()
	if run.Workers != 3 || run.Steps != cfg.Train.Steps || run.SamplePoints != 300 || run.SampleHorizon != 12 {
		t.Errorf("unexpected run config %+v", run)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("oscillator", "tiny")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Model.LatentSize != 2 {
		t.Errorf("expected latent size 2, got %d", cfg.Model.LatentSize)
	}
	cfg.Model.LatentSize = 99
	if GetPreset("oscillator", "tiny").Model.LatentSize != 2 {
		t.Error("GetPreset returned a shared value")
	}
	if p := GetPreset("pendulum", "default"); p == nil || p.Data.System != "pendulum" {
		t.Errorf("pendulum preset wrong: %+v", p)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if GetPreset("oscillator", "nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if GetPreset("nonexistent", "default") != nil {
		t.Error("expected nil for nonexistent system")
	}
}

func TestPresetsValidate(t *testing.T) {
	for _, system := range ListSystems() {
		for _, name := range ListPresets(system) {
			if err := GetPreset(system, name).Validate(); err != nil {
				t.Errorf("%s/%s: %v", system, name, err)
			}
		}
	}
}

func TestListPresets(t *testing.T) {
	if diff := cmp.Diff([]string{"cosine", "default", "quick", "tiny"}, ListPresets("oscillator")); diff != "" {
		t.Errorf("presets (-want +got):\n%s", diff)
	}
	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent system")
	}
}

func TestCloneCopiesSystemParams(t *testing.T) {
	cfg := GetPreset("vanderpol", "default")
	clone := cfg.Clone()
	clone.Data.Params["mu"] = 3
	if cfg.Data.Params["mu"] != 1 {
		t.Error("Clone shares the params map")
	}
	if diff := cmp.Diff([]string{"duffing", "oscillator", "pendulum", "vanderpol"}, ListSystems()); diff != "" {
		t.Errorf("systems (-want +got):\n%s", diff)
	}
}
