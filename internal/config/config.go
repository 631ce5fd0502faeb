package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/latentode/internal/dataset"
	"github.com/san-kum/latentode/internal/latent"
	"github.com/san-kum/latentode/internal/trainer"
)

const (
	DefaultSeed      = 5678
	DefaultRunsDir   = "runs"
	DefaultPlotPath  = "latent_ode.svg"
	DefaultLogFormat = "text"
)

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Seed   int64          `yaml:"seed"`
	Data   dataset.Config `yaml:"data"`
	Model  latent.Config  `yaml:"model"`
	Train  TrainConfig    `yaml:"train"`
	Output OutputConfig   `yaml:"output"`
}

type TrainConfig struct {
	Steps         int     `yaml:"steps"`
	BatchSize     int     `yaml:"batch_size"`
	LR            float64 `yaml:"lr"`
	Schedule      string  `yaml:"schedule"`
	SaveEvery     int     `yaml:"save_every"`
	LogEvery      int     `yaml:"log_every"`
	Workers       int     `yaml:"workers"`
	SampleHorizon float64 `yaml:"sample_horizon"`
	SamplePoints  int     `yaml:"sample_points"`
}

type OutputConfig struct {
	RunsDir   string `yaml:"runs_dir"`
	Plot      string `yaml:"plot"`
	LogFormat string `yaml:"log_format"`
}

func DefaultConfig() *Config {
	run := trainer.DefaultRunConfig()
	return &Config{
		Seed:  DefaultSeed,
		Data:  dataset.DefaultConfig(),
		Model: latent.DefaultConfig(),
		Train: TrainConfig{
			Steps:         run.Steps,
			BatchSize:     run.BatchSize,
			LR:            run.LR,
			Schedule:      run.Schedule,
			SaveEvery:     run.SaveEvery,
			LogEvery:      run.LogEvery,
			SampleHorizon: run.SampleHorizon,
			SamplePoints:  run.SamplePoints,
		},
		Output: OutputConfig{
			RunsDir:   DefaultRunsDir,
			Plot:      DefaultPlotPath,
			LogFormat: DefaultLogFormat,
		},
	}
}

// Load reads a YAML file over the defaults, so a file only needs the
// keys it changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a copy that shares nothing with the receiver.
func (c *Config) Clone() *Config {
	out := *c
	if c.Data.Params != nil {
		out.Data.Params = make(map[string]float64, len(c.Data.Params))
		for k, v := range c.Data.Params {
			out.Data.Params[k] = v
		}
	}
	return &out
}

// RunConfig converts the train section for the trainer.
func (c *Config) RunConfig() trainer.RunConfig {
	return trainer.RunConfig{
		Steps:         c.Train.Steps,
		BatchSize:     c.Train.BatchSize,
		LR:            c.Train.LR,
		Schedule:      c.Train.Schedule,
		SaveEvery:     c.Train.SaveEvery,
		LogEvery:      c.Train.LogEvery,
		Workers:       c.Train.Workers,
		SampleHorizon: c.Train.SampleHorizon,
		SamplePoints:  c.Train.SamplePoints,
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Data.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Model.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.RunConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Data.Size < c.Train.BatchSize {
		errs = append(errs, fmt.Errorf("batch size %d exceeds dataset size %d", c.Train.BatchSize, c.Data.Size))
	}
	switch c.Output.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Output.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
