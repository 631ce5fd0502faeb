package config

import "sort"

// Presets maps a system name to its named configurations.
var Presets = map[string]map[string]*Config{
	"oscillator": {
		"default": DefaultConfig(),
		"quick": preset(func(c *Config) {
			c.Data.Size = 1000
			c.Train.Steps = 100
			c.Train.BatchSize = 64
			c.Train.SaveEvery = 25
		}),
		"tiny": preset(func(c *Config) {
			c.Data.Size = 64
			c.Data.Points = 10
			c.Model.HiddenSize = 4
			c.Model.LatentSize = 2
			c.Model.Width = 8
			c.Model.Depth = 1
			c.Train.Steps = 10
			c.Train.BatchSize = 16
			c.Train.SaveEvery = 5
			c.Train.SamplePoints = 100
		}),
		"cosine": preset(func(c *Config) {
			c.Train.Steps = 500
			c.Train.Schedule = "cosine"
			c.Train.SaveEvery = 100
		}),
	},
	"pendulum": {
		"default": preset(func(c *Config) {
			c.Data.System = "pendulum"
		}),
		"quick": preset(func(c *Config) {
			c.Data.System = "pendulum"
			c.Data.Size = 1000
			c.Train.Steps = 100
			c.Train.BatchSize = 64
			c.Train.SaveEvery = 25
		}),
	},
	"vanderpol": {
		"default": preset(func(c *Config) {
			c.Data.System = "vanderpol"
			c.Data.Params = map[string]float64{"mu": 1}
			c.Data.MinDuration = 6
			c.Data.DurationSpread = 2
			c.Data.Points = 40
		}),
		"stiff": preset(func(c *Config) {
			c.Data.System = "vanderpol"
			c.Data.Params = map[string]float64{"mu": 4}
			c.Data.MinDuration = 8
			c.Data.DurationSpread = 4
			c.Data.Points = 60
			c.Model.Solver.MaxSteps = 16384
		}),
	},
	"duffing": {
		"default": preset(func(c *Config) {
			c.Data.System = "duffing"
			c.Data.MinDuration = 4
			c.Data.DurationSpread = 2
			c.Data.Points = 30
		}),
	},
}

func preset(mutate func(*Config)) *Config {
	cfg := DefaultConfig()
	mutate(cfg)
	return cfg
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(system, name string) *Config {
	systemPresets, ok := Presets[system]
	if !ok {
		return nil
	}
	cfg, ok := systemPresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(system string) []string {
	systemPresets, ok := Presets[system]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(systemPresets))
	for name := range systemPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListSystems() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
