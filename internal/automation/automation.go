package automation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/latentode/internal/config"
	"github.com/san-kum/latentode/internal/experiment"
	"github.com/san-kum/latentode/internal/export"
	"github.com/san-kum/latentode/internal/storage"
)

var ErrEmptyScenario = errors.New("automation: scenario has no jobs")

// Scenario is a scripted batch of training runs.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Jobs        []Job  `yaml:"jobs"`

	// dir resolves relative config paths.
	dir string
}

// Job is one training run. Fields left at their zero value keep the
// value from the preset or config file.
type Job struct {
	Name      string             `yaml:"name"`
	System    string             `yaml:"system"`
	Preset    string             `yaml:"preset"`
	Config    string             `yaml:"config"`
	Seed      int64              `yaml:"seed"`
	Steps     int                `yaml:"steps"`
	BatchSize int                `yaml:"batch_size"`
	LR        float64            `yaml:"lr"`
	Params    map[string]float64 `yaml:"params"`
	Sweep     *ParamRange        `yaml:"sweep"`
	SaveAs    string             `yaml:"save_as"`
}

// ParamRange expands a job into Num runs with one system parameter
// spaced evenly over [Min, Max].
type ParamRange struct {
	Param string  `yaml:"param"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Num   int     `yaml:"num"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("automation: parse %s: %w", path, err)
	}
	scenario.dir = filepath.Dir(path)
	return &scenario, nil
}

// Expand replaces every sweeping job with one job per parameter value.
func (s *Scenario) Expand() ([]Job, error) {
	var jobs []Job
	for i, job := range s.Jobs {
		if job.Sweep == nil {
			jobs = append(jobs, job)
			continue
		}
		r := job.Sweep
		if r.Param == "" || r.Num < 1 {
			return nil, fmt.Errorf("job %d: sweep needs a param and num >= 1", i+1)
		}
		values := []float64{r.Min}
		if r.Num > 1 {
			values = make([]float64, r.Num)
			floats.Span(values, r.Min, r.Max)
		}
		for _, v := range values {
			j := job
			j.Sweep = nil
			j.Params = make(map[string]float64, len(job.Params)+1)
			for k, pv := range job.Params {
				j.Params[k] = pv
			}
			j.Params[r.Param] = v
			j.Name = fmt.Sprintf("%s/%s=%s", job.Name, r.Param, strconv.FormatFloat(v, 'g', 4, 64))
			if job.SaveAs != "" {
				ext := filepath.Ext(job.SaveAs)
				j.SaveAs = fmt.Sprintf("%s_%s%s", job.SaveAs[:len(job.SaveAs)-len(ext)], strconv.FormatFloat(v, 'g', 4, 64), ext)
			}
			jobs = append(jobs, j)
		}
	}
	if len(jobs) == 0 {
		return nil, ErrEmptyScenario
	}
	return jobs, nil
}

// Resolve builds the configuration of job. Relative config paths are
// read from dir.
func (j Job) Resolve(dir string) (*config.Config, error) {
	system := j.System
	if system == "" {
		system = "oscillator"
	}
	cfg := config.DefaultConfig()
	if j.Preset != "" {
		cfg = config.GetPreset(system, j.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", j.Preset, config.ListPresets(system))
		}
	}
	if j.Config != "" {
		path := j.Config
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if j.System != "" {
		cfg.Data.System = j.System
	}
	if j.Seed != 0 {
		cfg.Seed = j.Seed
	}
	if j.Steps > 0 {
		cfg.Train.Steps = j.Steps
	}
	if j.BatchSize > 0 {
		cfg.Train.BatchSize = j.BatchSize
	}
	if j.LR > 0 {
		cfg.Train.LR = j.LR
	}
	if len(j.Params) > 0 {
		params := make(map[string]float64, len(cfg.Data.Params)+len(j.Params))
		for k, v := range cfg.Data.Params {
			params[k] = v
		}
		for k, v := range j.Params {
			params[k] = v
		}
		cfg.Data.Params = params
	}
	return cfg, cfg.Validate()
}

// JobResult is the outcome of one job.
type JobResult struct {
	Name    string
	RunID   string
	Metrics map[string]float64
}

// RunScenario executes the jobs of scenario in order and stops at the
// first failure. Runs are saved to store when it is non-nil.
func RunScenario(ctx context.Context, scenario *Scenario, store *storage.Store, logger *logrus.Logger) ([]JobResult, error) {
	jobs, err := scenario.Expand()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	results := make([]JobResult, 0, len(jobs))
	for i, job := range jobs {
		log := logger.WithFields(logrus.Fields{"job": job.Name, "index": i + 1, "total": len(jobs)})
		log.Info("running job")

		cfg, err := job.Resolve(scenario.dir)
		if err != nil {
			return results, fmt.Errorf("job %d (%s): %w", i+1, job.Name, err)
		}
		exp := experiment.New(cfg, logger)
		if err := exp.Setup(ctx); err != nil {
			return results, fmt.Errorf("job %d (%s) setup: %w", i+1, job.Name, err)
		}
		out, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("job %d (%s) run: %w", i+1, job.Name, err)
		}

		res := JobResult{Name: job.Name, Metrics: out.Metrics}
		if store != nil {
			id, err := store.Save(cfg, out.Result, out.Metrics)
			if err != nil {
				return results, fmt.Errorf("job %d (%s) save: %w", i+1, job.Name, err)
			}
			res.RunID = id
		}
		if job.SaveAs != "" {
			if err := export.WriteFile(job.SaveAs, out.Result.Checkpoints, 320, 240); err != nil {
				return results, fmt.Errorf("job %d (%s) plot: %w", i+1, job.Name, err)
			}
		}
		log.WithField("loss", out.Result.Final().Total).Info("job finished")
		results = append(results, res)
	}
	return results, nil
}
