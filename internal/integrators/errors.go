package integrators

import (
	"errors"
	"fmt"
)

// Solver errors.
var (
	// ErrMaxSteps indicates the step budget ran out before reaching t1.
	ErrMaxSteps = errors.New("integrators: maximum number of steps exceeded")

	// ErrStepTooSmall indicates the adaptive step shrank below the minimum.
	ErrStepTooSmall = errors.New("integrators: adaptive step below minimum")

	// ErrInvalidState indicates NaN or Inf in the state or vector field.
	ErrInvalidState = errors.New("integrators: invalid state (NaN or Inf detected)")

	// ErrInvalidTimes indicates unsorted or out of range output times.
	ErrInvalidTimes = errors.New("integrators: invalid output times")

	ErrDimensionMismatch = errors.New("integrators: dimension mismatch between state and system")
	ErrUnknownMethod     = errors.New("integrators: unknown method")
	ErrNotAdaptive       = errors.New("integrators: method has no error estimate")
)

// SolveError wraps an error with the position the solver had reached.
type SolveError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("solve failed at step %d (t=%.6g): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SolveError) Unwrap() error {
	return e.Wrapped
}
