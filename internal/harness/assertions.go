package harness

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/stepnav/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Type)
			if ev.Step != "" {
				fmt.Fprintf(&buf, " %s", ev.Step)
			}
			if ev.Reason != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Reason)
			}
			if ev.Code != "" {
				fmt.Fprintf(&buf, " %s", ev.Code)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// messages of those that failed.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertPathEquals:
			err = assertStepsEqual(result, assertion, result.Final.Path)
		case AssertResultsOrder:
			err = assertStepsEqual(result, assertion, result.Final.StepIDs())
		case AssertPresentedOrder:
			err = assertStepsEqual(result, assertion, result.Presented())
		case AssertVisited:
			err = assertVisited(result, assertion, true)
		case AssertNotVisited:
			err = assertVisited(result, assertion, false)
		case AssertTerminated:
			err = assertTerminated(result, assertion)
		case AssertAtStep:
			err = assertAtStep(result, assertion)
		case AssertAnswerEquals:
			err = assertAnswerEquals(result, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

func assertStepsEqual(result *Result, a Assertion, actual []ir.StepID) error {
	want := make([]ir.StepID, len(a.Steps))
	for i, s := range a.Steps {
		want[i] = ir.StepID(s)
	}
	if slices.Equal(want, actual) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprint(want),
		Actual:   fmt.Sprint(actual),
		Trace:    result.Trace,
	}
}

func assertVisited(result *Result, a Assertion, want bool) error {
	visited := slices.Contains(result.Presented(), ir.StepID(a.Step))
	if visited == want {
		return nil
	}
	expected, actual := "step "+a.Step+" presented", "never presented"
	if !want {
		expected, actual = "step "+a.Step+" never presented", "presented"
	}
	return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: result.Trace}
}

func assertTerminated(result *Result, a Assertion) error {
	if result.Final.Reason == ir.TerminationReason(a.Reason) {
		return nil
	}
	actual := "still running"
	if result.Final.IsTerminal() {
		actual = "terminated (" + string(result.Final.Reason) + ")"
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: "terminated (" + a.Reason + ")",
		Actual:   actual,
		Trace:    result.Trace,
	}
}

func assertAtStep(result *Result, a Assertion) error {
	if !result.Final.IsTerminal() && result.Final.Current == ir.StepID(a.Step) {
		return nil
	}
	actual := "at " + string(result.Final.Current)
	if result.Final.IsTerminal() {
		actual = "terminated (" + string(result.Final.Reason) + ")"
	}
	return &AssertionError{Type: a.Type, Expected: "at " + a.Step, Actual: actual, Trace: result.Trace}
}

// assertAnswerEquals compares answers by their canonical encoding.
func assertAnswerEquals(result *Result, a Assertion) error {
	want, err := ir.AnswerFromNative(a.Answer, ir.AnswerKind(a.Kind))
	if err != nil {
		return fmt.Errorf("answer_equals %s: %w", a.Step, err)
	}
	r, ok := result.Final.Result(ir.StepID(a.Step))
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: "result for " + a.Step,
			Actual:   "no result recorded",
			Trace:    result.Trace,
		}
	}

	wantJSON, err := ir.MarshalCanonical(want)
	if err != nil {
		return fmt.Errorf("answer_equals %s: %w", a.Step, err)
	}
	gotJSON, err := ir.MarshalCanonical(r.Answer)
	if err != nil {
		return fmt.Errorf("answer_equals %s: %w", a.Step, err)
	}
	if bytes.Equal(wantJSON, gotJSON) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: string(wantJSON),
		Actual:   string(gotJSON),
		Trace:    result.Trace,
	}
}

// assertTraceCount checks that the event type appears exactly the specified
// number of times, for one step when Step is set.
func assertTraceCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Trace {
		if ev.Type != a.Event {
			continue
		}
		if a.Step != "" && ev.Step != ir.StepID(a.Step) {
			continue
		}
		count++
	}
	if count == a.Count {
		return nil
	}

	subject := a.Event
	if a.Step != "" {
		subject += " " + a.Step
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s appears %d times", subject, a.Count),
		Actual:   fmt.Sprintf("appears %d times", count),
		Trace:    result.Trace,
	}
}
