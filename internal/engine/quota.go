package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer caps the number of step presentations in one run.
//
// Rules that jump backwards can form loops that a user keeps walking
// through (A → B → A ...). Skip chains are caught by SkipChainDetector; the
// quota catches everything else, including long back-and-forth sessions.
// A limit of zero or less disables the quota.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the presentation counter and validates against the limit.
//
// Returns StepsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(runID string) error {
	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return &StepsExceededError{
			RunID: runID,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Reset resets the counter to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current presentation count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a run exceeds the presentation quota.
//
// The run is terminated as failed.
type StepsExceededError struct {
	RunID string // The run that exceeded the quota
	Steps int    // Number of presentations attempted
	Limit int    // Maximum allowed presentations
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded max steps quota: %d steps > %d limit",
		e.RunID, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
