package compiler

import (
	"time"

	"cuelang.org/go/cue"

	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/predicate"
)

// CompilePredicate parses a branch condition.
//
// A condition is a struct with exactly one operator field:
//
//	bool:     {step, result?, task?, equals: bool}
//	number:   {step, result?, task?, min?, max?, equals?}
//	text:     {step, result?, task?, equals?: string, matches?: string}
//	choices:  {step, result?, task?, include?: [...string], matches?: string}
//	date:     {step, result?, task?, min?: rfc3339, max?: rfc3339}
//	skipped:  {step, result?, task?}
//	answered: {step, result?, task?}
//	and: [...cond]
//	or:  [...cond]
//	not: cond
func CompilePredicate(v cue.Value) (predicate.Predicate, error) {
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}
	return parsePredicate("when", v)
}

func parsePredicate(field string, v cue.Value) (predicate.Predicate, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, compileErr(field, v, "condition must be a struct")
	}

	var (
		op    string
		opVal cue.Value
		count int
	)
	for iter.Next() {
		op = iter.Selector().Unquoted()
		opVal = iter.Value()
		count++
	}
	if count != 1 {
		return nil, compileErr(field, v, "condition must have exactly one operator, got %d", count)
	}
	field += "." + op

	switch op {
	case "and", "or":
		members, err := parsePredicateList(field, opVal)
		if err != nil {
			return nil, err
		}
		if op == "and" {
			return predicate.And(members), nil
		}
		return predicate.Or(members), nil
	case "not":
		inner, err := parsePredicate(field, opVal)
		if err != nil {
			return nil, err
		}
		return predicate.Not{Predicate: inner}, nil
	}

	sel, err := parseSelector(field, opVal)
	if err != nil {
		return nil, err
	}

	switch op {
	case "bool":
		eq := opVal.LookupPath(cue.ParsePath("equals"))
		if !eq.Exists() {
			return nil, compileErr(field+".equals", opVal, "equals is required")
		}
		b, err := eq.Bool()
		if err != nil {
			return nil, compileErr(field+".equals", eq, "equals must be a bool")
		}
		return predicate.BoolEquals{Selector: sel, Expected: b}, nil

	case "number":
		return parseNumber(field, opVal, sel)

	case "text":
		equals, hasEquals, err := optionalString(opVal, "equals")
		if err != nil {
			return nil, err
		}
		matches, hasMatches, err := optionalString(opVal, "matches")
		if err != nil {
			return nil, err
		}
		switch {
		case hasEquals == hasMatches:
			return nil, compileErr(field, opVal, "text needs exactly one of equals or matches")
		case hasEquals:
			return predicate.TextEquals{Selector: sel, Expected: equals}, nil
		}
		if err := predicate.ValidatePattern(matches); err != nil {
			return nil, compileErr(field+".matches", opVal, "%v", err)
		}
		return predicate.TextMatches{Selector: sel, Pattern: matches}, nil

	case "choices":
		return parseChoices(field, opVal, sel)

	case "date":
		lo, err := optionalTime(field, opVal, "min")
		if err != nil {
			return nil, err
		}
		hi, err := optionalTime(field, opVal, "max")
		if err != nil {
			return nil, err
		}
		if lo == nil && hi == nil {
			return nil, compileErr(field, opVal, "date needs min or max")
		}
		return predicate.DateRange{Selector: sel, Min: lo, Max: hi}, nil

	case "skipped":
		return predicate.IsSkipped{Selector: sel}, nil

	case "answered":
		return predicate.IsAnswered{Selector: sel}, nil
	}

	return nil, compileErr(field, v, "unknown condition operator %q", op)
}

func parsePredicateList(field string, v cue.Value) ([]predicate.Predicate, error) {
	iter, err := v.List()
	if err != nil {
		return nil, compileErr(field, v, "expected a list of conditions")
	}
	var out []predicate.Predicate
	for i := 0; iter.Next(); i++ {
		p, err := parsePredicate(field, iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, compileErr(field, v, "expected at least one condition")
	}
	return out, nil
}

func parseSelector(field string, v cue.Value) (ir.ResultSelector, error) {
	step, ok, err := optionalString(v, "step")
	if err != nil {
		return ir.ResultSelector{}, err
	}
	if !ok || step == "" {
		return ir.ResultSelector{}, compileErr(field+".step", v, "step is required")
	}
	result, _, err := optionalString(v, "result")
	if err != nil {
		return ir.ResultSelector{}, err
	}
	task, _, err := optionalString(v, "task")
	if err != nil {
		return ir.ResultSelector{}, err
	}
	return ir.ResultSelector{TaskID: task, StepID: ir.StepID(step), SubResultID: result}, nil
}

func parseNumber(field string, v cue.Value, sel ir.ResultSelector) (predicate.Predicate, error) {
	eq, err := optionalFloat(field, v, "equals")
	if err != nil {
		return nil, err
	}
	lo, err := optionalFloat(field, v, "min")
	if err != nil {
		return nil, err
	}
	hi, err := optionalFloat(field, v, "max")
	if err != nil {
		return nil, err
	}

	if eq != nil {
		if lo != nil || hi != nil {
			return nil, compileErr(field, v, "equals cannot be combined with min or max")
		}
		return predicate.NumberEquals{Selector: sel, Expected: *eq}, nil
	}
	if lo == nil && hi == nil {
		return nil, compileErr(field, v, "number needs equals, min or max")
	}
	return predicate.NumberRange{Selector: sel, Min: lo, Max: hi}, nil
}

func parseChoices(field string, v cue.Value, sel ir.ResultSelector) (predicate.Predicate, error) {
	matches, hasMatches, err := optionalString(v, "matches")
	if err != nil {
		return nil, err
	}
	includeVal := v.LookupPath(cue.ParsePath("include"))

	switch {
	case includeVal.Exists() == hasMatches:
		return nil, compileErr(field, v, "choices needs exactly one of include or matches")
	case hasMatches:
		if err := predicate.ValidatePattern(matches); err != nil {
			return nil, compileErr(field+".matches", v, "%v", err)
		}
		return predicate.ChoiceMatches{Selector: sel, Pattern: matches}, nil
	}

	var values []string
	if s, err := includeVal.String(); err == nil {
		values = []string{s}
	} else if err := includeVal.Decode(&values); err != nil {
		return nil, compileErr(field+".include", includeVal, "include must be a string or a list of strings")
	}
	if len(values) == 0 {
		return nil, compileErr(field+".include", includeVal, "include must not be empty")
	}
	return predicate.ChoicesInclude{Selector: sel, Values: values}, nil
}

func optionalFloat(field string, v cue.Value, name string) (*float64, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return nil, nil
	}
	n, err := f.Float64()
	if err != nil {
		return nil, compileErr(field+"."+name, f, "%s must be a number", name)
	}
	return &n, nil
}

func optionalTime(field string, v cue.Value, name string) (*time.Time, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return nil, nil
	}
	s, err := f.String()
	if err != nil {
		return nil, compileErr(field+"."+name, f, "%s must be an RFC 3339 string", name)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, compileErr(field+"."+name, f, "%s: %v", name, err)
	}
	return &t, nil
}
