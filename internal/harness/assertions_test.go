package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepnav/internal/ir"
)

func sampleResult() *Result {
	r := NewResult()
	r.addEvent(TraceEvent{Type: EventPresent, Step: "a"})
	r.addEvent(TraceEvent{Type: EventComplete, Step: "a", Answer: ir.Number(3)})
	r.addEvent(TraceEvent{Type: EventVeto, Step: "b"})
	r.addEvent(TraceEvent{Type: EventPresent, Step: "c"})
	r.addEvent(TraceEvent{Type: EventError, Code: "STEP_MISMATCH"})
	r.Final = ir.TaskResult{
		TaskID:  "t",
		RunID:   "r",
		Results: []ir.StepResult{{ID: "a", Answer: ir.Number(3)}},
		Path:    []ir.StepID{"a"},
		Current: "c",
	}
	return r
}

func TestAddEventNumbersSequentially(t *testing.T) {
	r := sampleResult()
	for i, ev := range r.Trace {
		assert.Equal(t, i+1, ev.Seq)
	}
	assert.Equal(t, []ir.StepID{"a", "c"}, r.Presented())
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	assertions := []Assertion{
		{Type: AssertPathEquals, Steps: []string{"a"}},
		{Type: AssertResultsOrder, Steps: []string{"a"}},
		{Type: AssertPresentedOrder, Steps: []string{"a", "c"}},
		{Type: AssertVisited, Step: "c"},
		{Type: AssertNotVisited, Step: "b"},
		{Type: AssertAtStep, Step: "c"},
		{Type: AssertAnswerEquals, Step: "a", Answer: 3},
		{Type: AssertTraceCount, Event: EventPresent, Count: 2},
		{Type: AssertTraceCount, Event: EventVeto, Step: "b", Count: 1},
		{Type: AssertTraceCount, Event: EventTerminated, Count: 0},
	}

	assert.Empty(t, EvaluateAssertions(sampleResult(), assertions))
}

func TestEvaluateAssertions_Fail(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      []string
	}{
		{
			"path",
			Assertion{Type: AssertPathEquals, Steps: []string{"a", "b"}},
			[]string{"Expected: [a b]", "Actual: [a]"},
		},
		{
			"presented",
			Assertion{Type: AssertPresentedOrder, Steps: []string{"c", "a"}},
			[]string{"Assertion failed: presented_order", "Actual: [a c]"},
		},
		{
			"visited",
			Assertion{Type: AssertVisited, Step: "b"},
			[]string{"step b presented", "never presented"},
		},
		{
			"not visited",
			Assertion{Type: AssertNotVisited, Step: "a"},
			[]string{"step a never presented", "Actual: presented"},
		},
		{
			"terminated",
			Assertion{Type: AssertTerminated, Reason: "completed"},
			[]string{"Expected: terminated (completed)", "Actual: still running"},
		},
		{
			"at step",
			Assertion{Type: AssertAtStep, Step: "a"},
			[]string{"Expected: at a", "Actual: at c"},
		},
		{
			"answer differs",
			Assertion{Type: AssertAnswerEquals, Step: "a", Answer: 4},
			[]string{`Expected: {"kind":"number","value":4}`, `Actual: {"kind":"number","value":3}`},
		},
		{
			"answer missing",
			Assertion{Type: AssertAnswerEquals, Step: "z", Answer: 4},
			[]string{"no result recorded"},
		},
		{
			"trace count",
			Assertion{Type: AssertTraceCount, Event: EventComplete, Step: "a", Count: 2},
			[]string{"complete a appears 2 times", "appears 1 times"},
		},
		{
			"unknown",
			Assertion{Type: "nope"},
			[]string{`assertion[0]: unknown assertion type "nope"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			for _, w := range tt.want {
				assert.Contains(t, errs[0], w)
			}
		})
	}
}

func TestEvaluateAssertions_TerminatedRun(t *testing.T) {
	r := sampleResult()
	r.Final.Reason = ir.ReasonCancelled
	r.Final.Current = ""

	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertTerminated, Reason: "completed"},
		{Type: AssertAtStep, Step: "c"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "Actual: terminated (cancelled)")
	assert.Contains(t, errs[1], "Actual: terminated (cancelled)")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertVisited,
		Expected: "x",
		Actual:   "y",
		Trace:    sampleResult().Trace,
	}
	msg := err.Error()
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "[1] present a")
	assert.Contains(t, msg, "[5] error STEP_MISMATCH")
}
