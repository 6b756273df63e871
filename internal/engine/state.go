package engine

import (
	"fmt"

	"github.com/roach88/stepnav/internal/ir"
)

// Phase is the coarse state of a run.
type Phase int

const (
	// NotStarted is the state before the first transition.
	NotStarted Phase = iota

	// AtStep means a step is being presented.
	AtStep

	// Terminated means the run has ended. See State.Reason.
	Terminated
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case AtStep:
		return "at_step"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a navigator state: NotStarted, AtStep(Step) or Terminated(Reason).
type State struct {
	Phase  Phase
	Step   ir.StepID
	Reason ir.TerminationReason
}

// StateNotStarted returns the initial state.
func StateNotStarted() State { return State{Phase: NotStarted} }

// StateAt returns AtStep(id).
func StateAt(id ir.StepID) State { return State{Phase: AtStep, Step: id} }

// StateTerminated returns Terminated(reason).
func StateTerminated(reason ir.TerminationReason) State {
	return State{Phase: Terminated, Reason: reason}
}

// IsTerminal reports whether s is Terminated.
func (s State) IsTerminal() bool { return s.Phase == Terminated }

func (s State) String() string {
	switch s.Phase {
	case AtStep:
		return fmt.Sprintf("at_step(%s)", s.Step)
	case Terminated:
		return fmt.Sprintf("terminated(%s)", s.Reason)
	default:
		return s.Phase.String()
	}
}
