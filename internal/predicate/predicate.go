// Package predicate evaluates conditions over collected step results.
//
// A Predicate reads answers through a Source, normally a *results.Store.
// Absent and skipped answers never match. An answer of the wrong kind never matches and
// is reported as a *TypeMismatchError next to the false result, so a
// malformed comparison cannot advance a run along the wrong branch.
package predicate

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/stepnav/internal/ir"
)

// Source resolves selectors to answers.
type Source interface {
	Lookup(sel ir.ResultSelector) (ir.AnswerValue, bool)
}

// Predicate is a condition over a Source.
//
// Evaluate returns false with a non-nil error when the condition could not be
// evaluated (type mismatch, bad pattern). Callers treat that as no match.
type Predicate interface {
	Evaluate(src Source) (bool, error)
	String() string
}

// BoolEquals matches a boolean answer equal to Expected.
type BoolEquals struct {
	Selector ir.ResultSelector
	Expected bool
}

func (p BoolEquals) Evaluate(src Source) (bool, error) {
	v, ok := answered(src, p.Selector)
	if !ok {
		return false, nil
	}
	b, ok := v.(ir.Bool)
	if !ok {
		return false, mismatch(p.Selector, ir.KindBool, v)
	}
	return bool(b) == p.Expected, nil
}

func (p BoolEquals) String() string {
	return fmt.Sprintf("%s == %t", p.Selector, p.Expected)
}

// NumberRange matches a numeric answer within [Min, Max]. A nil bound is open.
type NumberRange struct {
	Selector ir.ResultSelector
	Min      *float64
	Max      *float64
}

func (p NumberRange) Evaluate(src Source) (bool, error) {
	v, ok := answered(src, p.Selector)
	if !ok {
		return false, nil
	}
	n, ok := v.(ir.Number)
	if !ok {
		return false, mismatch(p.Selector, ir.KindNumber, v)
	}
	f := float64(n)
	if p.Min != nil && f < *p.Min {
		return false, nil
	}
	if p.Max != nil && f > *p.Max {
		return false, nil
	}
	return true, nil
}

func (p NumberRange) String() string {
	lo, hi := "-inf", "+inf"
	if p.Min != nil {
		lo = fmt.Sprint(*p.Min)
	}
	if p.Max != nil {
		hi = fmt.Sprint(*p.Max)
	}
	return fmt.Sprintf("%s in [%s, %s]", p.Selector, lo, hi)
}

// NumberEquals matches a numeric answer equal to Expected.
type NumberEquals struct {
	Selector ir.ResultSelector
	Expected float64
}

func (p NumberEquals) Evaluate(src Source) (bool, error) {
	return NumberRange{Selector: p.Selector, Min: &p.Expected, Max: &p.Expected}.Evaluate(src)
}

func (p NumberEquals) String() string {
	return fmt.Sprintf("%s == %v", p.Selector, p.Expected)
}

// TextEquals matches a text answer equal to Expected after NFC normalisation.
type TextEquals struct {
	Selector ir.ResultSelector
	Expected string
}

func (p TextEquals) Evaluate(src Source) (bool, error) {
	v, ok := answered(src, p.Selector)
	if !ok {
		return false, nil
	}
	s, ok := v.(ir.Text)
	if !ok {
		return false, mismatch(p.Selector, ir.KindText, v)
	}
	return norm.NFC.String(string(s)) == norm.NFC.String(p.Expected), nil
}

func (p TextEquals) String() string {
	return fmt.Sprintf("%s == %q", p.Selector, p.Expected)
}

// TextMatches matches a text answer against a regular expression that must
// cover the whole answer.
type TextMatches struct {
	Selector ir.ResultSelector
	Pattern  string
}

func (p TextMatches) Evaluate(src Source) (bool, error) {
	v, ok := answered(src, p.Selector)
	if !ok {
		return false, nil
	}
	s, ok := v.(ir.Text)
	if !ok {
		return false, mismatch(p.Selector, ir.KindText, v)
	}
	re, err := compilePattern(p.Pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(norm.NFC.String(string(s))), nil
}

func (p TextMatches) String() string {
	return fmt.Sprintf("%s matches /%s/", p.Selector, p.Pattern)
}

// ChoicesInclude matches a choice answer that contains every value in Values.
// A single-value text answer is treated as a one-element choice set.
type ChoicesInclude struct {
	Selector ir.ResultSelector
	Values   []string
}

func (p ChoicesInclude) Evaluate(src Source) (bool, error) {
	choices, ok, err := lookupChoices(src, p.Selector)
	if !ok || err != nil {
		return false, err
	}
	for _, want := range p.Values {
		if !choices.Contains(want) {
			return false, nil
		}
	}
	return true, nil
}

func (p ChoicesInclude) String() string {
	return fmt.Sprintf("%s includes [%s]", p.Selector, strings.Join(p.Values, ", "))
}

// ChoiceMatches matches a choice answer with at least one value matching
// Pattern.
type ChoiceMatches struct {
	Selector ir.ResultSelector
	Pattern  string
}

func (p ChoiceMatches) Evaluate(src Source) (bool, error) {
	choices, ok, err := lookupChoices(src, p.Selector)
	if !ok || err != nil {
		return false, err
	}
	re, err := compilePattern(p.Pattern)
	if err != nil {
		return false, err
	}
	for _, c := range choices {
		if re.MatchString(c) {
			return true, nil
		}
	}
	return false, nil
}

func (p ChoiceMatches) String() string {
	return fmt.Sprintf("%s any matches /%s/", p.Selector, p.Pattern)
}

func lookupChoices(src Source, sel ir.ResultSelector) (ir.Choices, bool, error) {
	v, ok := answered(src, sel)
	if !ok {
		return nil, false, nil
	}
	switch val := v.(type) {
	case ir.Choices:
		return val, true, nil
	case ir.Text:
		return ir.Choices{string(val)}, true, nil
	default:
		return nil, false, mismatch(sel, ir.KindChoices, v)
	}
}

// answered looks sel up for the typed predicates. A skipped step has no value
// to compare and reads as absent.
func answered(src Source, sel ir.ResultSelector) (ir.AnswerValue, bool) {
	v, ok := src.Lookup(sel)
	if !ok {
		return nil, false
	}
	if _, skipped := v.(ir.Skipped); skipped {
		return nil, false
	}
	return v, true
}

// DateRange matches a date answer within [Min, Max]. A nil bound is open.
type DateRange struct {
	Selector ir.ResultSelector
	Min      *time.Time
	Max      *time.Time
}

func (p DateRange) Evaluate(src Source) (bool, error) {
	v, ok := answered(src, p.Selector)
	if !ok {
		return false, nil
	}
	d, ok := v.(ir.Date)
	if !ok {
		return false, mismatch(p.Selector, ir.KindDate, v)
	}
	t := d.Time()
	if p.Min != nil && t.Before(*p.Min) {
		return false, nil
	}
	if p.Max != nil && t.After(*p.Max) {
		return false, nil
	}
	return true, nil
}

func (p DateRange) String() string {
	lo, hi := "-inf", "+inf"
	if p.Min != nil {
		lo = p.Min.UTC().Format(time.RFC3339)
	}
	if p.Max != nil {
		hi = p.Max.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s in [%s, %s]", p.Selector, lo, hi)
}

// IsSkipped matches a step that was completed with a Skipped answer.
type IsSkipped struct {
	Selector ir.ResultSelector
}

func (p IsSkipped) Evaluate(src Source) (bool, error) {
	v, ok := src.Lookup(p.Selector)
	if !ok {
		return false, nil
	}
	_, skipped := v.(ir.Skipped)
	return skipped, nil
}

func (p IsSkipped) String() string {
	return fmt.Sprintf("%s skipped", p.Selector)
}

// IsAnswered matches a step that holds any answer other than Skipped.
type IsAnswered struct {
	Selector ir.ResultSelector
}

func (p IsAnswered) Evaluate(src Source) (bool, error) {
	v, ok := src.Lookup(p.Selector)
	if !ok {
		return false, nil
	}
	_, skipped := v.(ir.Skipped)
	return !skipped, nil
}

func (p IsAnswered) String() string {
	return fmt.Sprintf("%s answered", p.Selector)
}

// Float returns a pointer to f, for NumberRange bounds.
func Float(f float64) *float64 { return &f }

// Time returns a pointer to t, for DateRange bounds.
func Time(t time.Time) *time.Time { return &t }
