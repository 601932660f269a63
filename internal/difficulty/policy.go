// Package difficulty decides the tier of the next question from the
// learner's recent correctness.
package difficulty

import (
	"github.com/abhisek/adaptiq/internal/question"
)

// Reason explains a policy decision.
type Reason string

const (
	ReasonEscalate         Reason = "escalate"
	ReasonDeescalate       Reason = "deescalate"
	ReasonHold             Reason = "hold"
	ReasonAtCeiling        Reason = "at_ceiling"
	ReasonAtFloor          Reason = "at_floor"
	ReasonInsufficientData Reason = "hold_insufficient_data"
)

// Defaults for Policy.
const (
	DefaultWindow       = 3
	DefaultEscalateAt   = 0.8
	DefaultDeescalateAt = 0.4
)

// Policy moves one tier at a time based on the correct rate over a window
// of recent answers. The zero value is not usable; use NewPolicy.
type Policy struct {
	// WindowSize is the number of most recent answers considered.
	WindowSize int

	// EscalateAt is the correct rate at or above which the tier goes up.
	EscalateAt float64

	// DeescalateAt is the correct rate at or below which the tier goes down.
	DeescalateAt float64
}

// NewPolicy returns a policy with the given window and default thresholds.
// A non-positive window falls back to DefaultWindow.
func NewPolicy(window int) Policy {
	if window <= 0 {
		window = DefaultWindow
	}
	return Policy{
		WindowSize:   window,
		EscalateAt:   DefaultEscalateAt,
		DeescalateAt: DefaultDeescalateAt,
	}
}

// Next returns the tier for the next question. It is a pure function of its
// arguments.
func (p Policy) Next(window []bool, current question.Difficulty) (question.Difficulty, Reason) {
	if len(window) == 0 {
		return current, ReasonInsufficientData
	}

	correct := 0
	for _, ok := range window {
		if ok {
			correct++
		}
	}
	rate := float64(correct) / float64(len(window))

	switch {
	case rate >= p.EscalateAt:
		next := current.Harder()
		if next == current {
			return current, ReasonAtCeiling
		}
		return next, ReasonEscalate
	case rate <= p.DeescalateAt:
		next := current.Easier()
		if next == current {
			return current, ReasonAtFloor
		}
		return next, ReasonDeescalate
	}
	return current, ReasonHold
}

// Window returns the last k flags of history, or all of them when there are
// fewer than k.
func Window(history []bool, k int) []bool {
	if k <= 0 || len(history) <= k {
		return history
	}
	return history[len(history)-k:]
}
