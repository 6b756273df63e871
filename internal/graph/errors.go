package graph

import (
	"errors"
	"fmt"

	"github.com/roach88/stepnav/internal/ir"
)

// ConfigurationError reports a malformed task definition.
//
// Configuration errors surface while a graph is assembled and are never
// recovered from: the task cannot be run.
type ConfigurationError struct {
	// Code identifies the error category.
	Code ConfigurationErrorCode

	// Message is a human-readable description.
	Message string

	// StepID is the offending step or trigger, when there is one.
	StepID ir.StepID
}

// ConfigurationErrorCode categorizes configuration errors.
type ConfigurationErrorCode string

const (
	// ErrCodeDuplicateStep indicates two declared steps share an identifier.
	ErrCodeDuplicateStep ConfigurationErrorCode = "DUPLICATE_STEP"

	// ErrCodeEmptyStepID indicates a declared step has no identifier.
	ErrCodeEmptyStepID ConfigurationErrorCode = "EMPTY_STEP_ID"

	// ErrCodeReservedStepID indicates a step or trigger uses the null-step sentinel.
	ErrCodeReservedStepID ConfigurationErrorCode = "RESERVED_STEP_ID"

	// ErrCodeStepsAlreadyDeclared indicates steps were re-declared after
	// rules were registered.
	ErrCodeStepsAlreadyDeclared ConfigurationErrorCode = "STEPS_ALREADY_DECLARED"

	// ErrCodeStepsNotDeclared indicates a rule was registered before steps.
	ErrCodeStepsNotDeclared ConfigurationErrorCode = "STEPS_NOT_DECLARED"

	// ErrCodeDuplicateRule indicates a second rule for one trigger under
	// strict rule registration.
	ErrCodeDuplicateRule ConfigurationErrorCode = "DUPLICATE_RULE"

	// ErrCodeInvalidRule indicates a structurally unusable rule.
	ErrCodeInvalidRule ConfigurationErrorCode = "INVALID_RULE"
)

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s: %s (step=%s)", e.Code, e.Message, e.StepID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigurationError returns true if err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ConfigurationCode returns the code of a wrapped ConfigurationError, or ""
// when err is not one.
func ConfigurationCode(err error) ConfigurationErrorCode {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func configErr(code ConfigurationErrorCode, step ir.StepID, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Code: code, StepID: step, Message: fmt.Sprintf(format, args...)}
}
