package predicate

import (
	"errors"
	"fmt"

	"github.com/roach88/stepnav/internal/ir"
)

// TypeMismatchError reports that a predicate expected one answer kind but
// the stored result held another.
//
// Evaluation treats a mismatch as "no match". The error is returned alongside
// false so the caller can log and count it.
type TypeMismatchError struct {
	Selector ir.ResultSelector
	Expected ir.AnswerKind
	Actual   ir.AnswerKind
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("result %s: expected %s answer, got %s", e.Selector, e.Expected, e.Actual)
}

// IsTypeMismatch reports whether err is or wraps a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var tm *TypeMismatchError
	return errors.As(err, &tm)
}

func mismatch(sel ir.ResultSelector, expected ir.AnswerKind, actual ir.AnswerValue) *TypeMismatchError {
	return &TypeMismatchError{Selector: sel, Expected: expected, Actual: actual.Kind()}
}
