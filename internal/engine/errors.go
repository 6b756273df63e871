package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/stepnav/internal/ir"
)

// NavigationError represents an error detected while moving through a run.
//
// Navigation errors include:
//   - Unknown destination: a rule or the declared order names no declared step
//   - Lifecycle misuse: completing before start, after termination, or the
//     wrong step
//   - Back-navigation vetoes
//   - Skip cycles: ShouldPresent vetoes that loop back onto a vetoed step
//
// A NavigationError returned from a TaskController operation leaves the run
// unchanged.
type NavigationError struct {
	// Code identifies the error category.
	Code NavigationErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// StepID is the step navigation started from.
	StepID ir.StepID

	// Destination is the step navigation tried to reach.
	Destination ir.StepID
}

// NavigationErrorCode categorizes navigation errors.
type NavigationErrorCode string

const (
	// ErrCodeUnknownDestination indicates a destination that is not declared.
	ErrCodeUnknownDestination NavigationErrorCode = "UNKNOWN_DESTINATION"

	// ErrCodeNotStarted indicates an operation that needs a started run.
	ErrCodeNotStarted NavigationErrorCode = "NOT_STARTED"

	// ErrCodeAlreadyStarted indicates Start on a run that has started.
	ErrCodeAlreadyStarted NavigationErrorCode = "ALREADY_STARTED"

	// ErrCodeTerminated indicates an operation on a finished run.
	ErrCodeTerminated NavigationErrorCode = "TERMINATED"

	// ErrCodeStepMismatch indicates a result for a step other than the current one.
	ErrCodeStepMismatch NavigationErrorCode = "STEP_MISMATCH"

	// ErrCodeAnswerRequired indicates a Skipped answer for a required step.
	ErrCodeAnswerRequired NavigationErrorCode = "ANSWER_REQUIRED"

	// ErrCodeBackNotAllowed indicates the top of the visited stack vetoes back-navigation.
	ErrCodeBackNotAllowed NavigationErrorCode = "BACK_NOT_ALLOWED"

	// ErrCodeNothingToPop indicates back-navigation from the first presented step.
	ErrCodeNothingToPop NavigationErrorCode = "NOTHING_TO_POP"

	// ErrCodeSkipCycle indicates vetoed steps whose rules lead back to a vetoed step.
	ErrCodeSkipCycle NavigationErrorCode = "SKIP_CYCLE"
)

// Error implements the error interface.
func (e *NavigationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.RunID != "" && e.StepID != "":
		msg += fmt.Sprintf(" (run=%s, step=%s)", e.RunID, e.StepID)
	case e.RunID != "":
		msg += fmt.Sprintf(" (run=%s)", e.RunID)
	case e.StepID != "":
		msg += fmt.Sprintf(" (step=%s)", e.StepID)
	}
	return msg
}

// IsNavigationError returns true if err is or wraps a NavigationError.
func IsNavigationError(err error) bool {
	var ne *NavigationError
	return errors.As(err, &ne)
}

// IsUnknownDestination returns true if err is a NavigationError for an
// undeclared destination.
// Uses errors.As to handle wrapped errors.
func IsUnknownDestination(err error) bool {
	return NavigationCode(err) == ErrCodeUnknownDestination
}

// NavigationCode returns the code of a wrapped NavigationError, or "".
func NavigationCode(err error) NavigationErrorCode {
	var ne *NavigationError
	if errors.As(err, &ne) {
		return ne.Code
	}
	return ""
}

// NewUnknownDestinationError creates a NavigationError for an undeclared destination.
func NewUnknownDestinationError(runID string, from, dest ir.StepID) *NavigationError {
	return &NavigationError{
		Code:        ErrCodeUnknownDestination,
		Message:     fmt.Sprintf("destination %q is not a declared step", dest),
		RunID:       runID,
		StepID:      from,
		Destination: dest,
	}
}

func navErr(code NavigationErrorCode, runID string, step ir.StepID, format string, args ...any) *NavigationError {
	return &NavigationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		RunID:   runID,
		StepID:  step,
	}
}
