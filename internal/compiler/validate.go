package compiler

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/stepnav/internal/graph"
	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/predicate"
)

// Validation error codes (E100-E199)
const (
	ErrTaskIDEmpty      = "E100" // task id is required
	ErrNoSteps          = "E101" // at least one step required
	ErrStepIDEmpty      = "E102" // step id is required
	ErrDuplicateStep    = "E103" // step id declared twice
	ErrReservedStepID   = "E104" // step id is the null step
	ErrUnknownTrigger   = "E105" // rule trigger is not a declared step
	ErrDuplicateTrigger = "E106" // two rules for one trigger
	ErrEmptyRule        = "E107" // predicate rule with no branches and no default
	ErrInvalidBranch    = "E108" // branch missing predicate or destination
	ErrInvalidPattern   = "E109" // text or choice pattern does not compile
	ErrInvertedRange    = "E110" // min greater than max
)

// ValidationError represents a task definition error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a definition and returns every problem found (does not
// fail-fast). A definition with no errors builds without a
// ConfigurationError in strict mode.
//
// Destinations are not checked: an undeclared destination is legal and
// fails lazily at traversal. Analyze reports them as warnings.
func Validate(def *graph.Definition) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(def.TaskID) == "" {
		errs = append(errs, ValidationError{
			Field:   "id",
			Message: "task id is required and must be non-empty",
			Code:    ErrTaskIDEmpty,
		})
	}

	if len(def.Steps) == 0 {
		errs = append(errs, ValidationError{
			Field:   "steps",
			Message: "at least one step is required",
			Code:    ErrNoSteps,
		})
	}

	declared := make(map[ir.StepID]bool, len(def.Steps))
	for i, step := range def.Steps {
		field := fmt.Sprintf("steps[%d].id", i)
		switch {
		case step.ID == "":
			errs = append(errs, ValidationError{Field: field, Message: "step id is required", Code: ErrStepIDEmpty})
		case step.ID.IsNull():
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%q is reserved for the null step", step.ID),
				Code:    ErrReservedStepID,
			})
		case declared[step.ID]:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate step id: %q", step.ID),
				Code:    ErrDuplicateStep,
			})
		}
		declared[step.ID] = true
	}

	triggers := make(map[ir.StepID]bool, len(def.Rules))
	for _, tr := range def.Rules {
		field := "rules." + string(tr.Trigger)
		if !declared[tr.Trigger] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("trigger %q is not a declared step", tr.Trigger),
				Code:    ErrUnknownTrigger,
			})
		}
		if triggers[tr.Trigger] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("more than one rule for trigger %q", tr.Trigger),
				Code:    ErrDuplicateTrigger,
			})
		}
		triggers[tr.Trigger] = true
		errs = append(errs, validateRule(field, tr.Rule)...)
	}

	return errs
}

func validateRule(field string, r graph.Rule) []ValidationError {
	switch rule := r.(type) {
	case graph.DirectRule:
		if rule.Destination == "" {
			return []ValidationError{{Field: field + ".direct", Message: "destination is required", Code: ErrInvalidBranch}}
		}
	case graph.PredicateRule:
		var errs []ValidationError
		if len(rule.Branches) == 0 && rule.Default == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".predicate",
				Message: "predicate rule needs at least one branch or a default",
				Code:    ErrEmptyRule,
			})
		}
		for i, b := range rule.Branches {
			bf := fmt.Sprintf("%s.predicate.branches[%d]", field, i)
			if b.Destination == "" {
				errs = append(errs, ValidationError{Field: bf + ".to", Message: "destination is required", Code: ErrInvalidBranch})
			}
			if b.Predicate == nil {
				errs = append(errs, ValidationError{Field: bf + ".when", Message: "condition is required", Code: ErrInvalidBranch})
				continue
			}
			errs = append(errs, validatePredicate(bf+".when", b.Predicate)...)
		}
		return errs
	case nil:
		return []ValidationError{{Field: field, Message: "rule is required", Code: ErrInvalidBranch}}
	}
	return nil
}

// validatePredicate walks compound predicates looking for patterns that do
// not compile and ranges that can never match.
func validatePredicate(field string, p predicate.Predicate) []ValidationError {
	var errs []ValidationError
	switch pred := p.(type) {
	case predicate.And:
		for i, m := range pred {
			errs = append(errs, validatePredicate(fmt.Sprintf("%s.and[%d]", field, i), m)...)
		}
	case predicate.Or:
		for i, m := range pred {
			errs = append(errs, validatePredicate(fmt.Sprintf("%s.or[%d]", field, i), m)...)
		}
	case predicate.Not:
		errs = append(errs, validatePredicate(field+".not", pred.Predicate)...)
	case predicate.TextMatches:
		errs = append(errs, validatePattern(field, pred.Pattern)...)
	case predicate.ChoiceMatches:
		errs = append(errs, validatePattern(field, pred.Pattern)...)
	case predicate.NumberRange:
		if pred.Min != nil && pred.Max != nil && *pred.Min > *pred.Max {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("min %g is greater than max %g", *pred.Min, *pred.Max),
				Code:    ErrInvertedRange,
			})
		}
	case predicate.DateRange:
		if pred.Min != nil && pred.Max != nil && pred.Min.After(*pred.Max) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("min %s is after max %s", pred.Min.Format(time.RFC3339), pred.Max.Format(time.RFC3339)),
				Code:    ErrInvertedRange,
			})
		}
	}
	return errs
}

func validatePattern(field, pattern string) []ValidationError {
	if err := predicate.ValidatePattern(pattern); err != nil {
		return []ValidationError{{Field: field + ".matches", Message: err.Error(), Code: ErrInvalidPattern}}
	}
	return nil
}
