package latent

import (
	"fmt"

	"github.com/san-kum/latentode/internal/integrators"
	"github.com/san-kum/latentode/internal/nn"
)

// Config fixes the architecture and the decoder's solver.
type Config struct {
	DataSize   int                `yaml:"data_size" json:"data_size"`
	HiddenSize int                `yaml:"hidden_size" json:"hidden_size"`
	LatentSize int                `yaml:"latent_size" json:"latent_size"`
	Width      int                `yaml:"width" json:"width"`
	Depth      int                `yaml:"depth" json:"depth"`
	Method     string             `yaml:"method" json:"method"`
	Solver     integrators.Config `yaml:"solver" json:"solver"`
}

func DefaultConfig() Config {
	solver := integrators.DefaultConfig()
	solver.Dt0 = 0.4
	return Config{
		DataSize:   2,
		HiddenSize: 16,
		LatentSize: 16,
		Width:      16,
		Depth:      2,
		Method:     "dopri5",
		Solver:     solver,
	}
}

func (c Config) Validate() error {
	if c.DataSize <= 0 || c.HiddenSize <= 0 || c.LatentSize <= 0 {
		return fmt.Errorf("%w: data %d hidden %d latent %d must be positive", nn.ErrShape, c.DataSize, c.HiddenSize, c.LatentSize)
	}
	if c.Depth < 0 || (c.Depth > 0 && c.Width <= 0) {
		return fmt.Errorf("%w: depth %d width %d", nn.ErrShape, c.Depth, c.Width)
	}
	return nil
}
