package trainer

import "github.com/sirupsen/logrus"

// Phase is the position of the loop within one optimisation step.
type Phase int

const (
	Idle Phase = iota
	BatchDrawn
	ForwardComputed
	GradientComputed
	ParametersUpdated
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case BatchDrawn:
		return "batch-drawn"
	case ForwardComputed:
		return "forward-computed"
	case GradientComputed:
		return "gradient-computed"
	case ParametersUpdated:
		return "parameters-updated"
	default:
		return "unknown"
	}
}

// next reports whether moving from p to q is a legal transition.
func (p Phase) next(q Phase) bool {
	switch p {
	case Idle, ParametersUpdated:
		return q == BatchDrawn || q == Idle
	case BatchDrawn:
		return q == ForwardComputed || q == Idle
	case ForwardComputed:
		return q == GradientComputed || q == Idle
	case GradientComputed:
		return q == ParametersUpdated || q == Idle
	}
	return false
}

func (t *Trainer) setPhase(q Phase) {
	if !t.phase.next(q) {
		t.logger.WithFields(logrus.Fields{"from": t.phase, "to": q}).Warn("unexpected phase transition")
	}
	t.phase = q
	t.logger.WithField("phase", q).Debug("phase")
}
