package models

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/latentode/internal/integrators"
)

var (
	ErrUnknownSystem = errors.New("models: unknown system")
	ErrDimension     = errors.New("models: state dimension mismatch")
	ErrUnknownParam  = errors.New("models: unknown parameter")
	ErrNotTunable    = errors.New("models: system has no tunable parameters")
)

// System is a named vector field that can generate training data.
type System interface {
	integrators.System
	Name() string
}

// Tunable systems expose named physical parameters.
type Tunable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

var registry = map[string]func() System{
	"oscillator": func() System { return NewOscillator() },
	"pendulum":   func() System { return NewPendulum() },
	"vanderpol":  func() System { return NewVanDerPol() },
	"duffing":    func() System { return NewDuffing() },
}

// Get returns a fresh instance of the named system with default parameters.
func Get(name string) (System, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSystem, name)
	}
	return ctor(), nil
}

// Configure returns the named system with params applied over its
// defaults.
func Configure(name string, params map[string]float64) (System, error) {
	sys, err := Get(name)
	if err != nil || len(params) == 0 {
		return sys, err
	}
	t, ok := sys.(Tunable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotTunable, name)
	}
	for k, v := range params {
		if err := t.SetParam(k, v); err != nil {
			return nil, err
		}
	}
	return sys, nil
}

func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
