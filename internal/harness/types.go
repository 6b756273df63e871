package harness

import "github.com/roach88/stepnav/internal/ir"

// Trace event types.
const (
	EventPresent    = "present"
	EventVeto       = "veto"
	EventComplete   = "complete"
	EventBack       = "back"
	EventCancel     = "cancel"
	EventFail       = "fail"
	EventError      = "error"
	EventTerminated = "terminated"
)

// TraceEvent is one observable thing that happened during a scenario run.
type TraceEvent struct {
	Seq    int            `json:"seq"`
	Type   string         `json:"type"`
	Step   ir.StepID      `json:"step,omitempty"`
	Answer ir.AnswerValue `json:"answer,omitempty"`

	// Prior is set on present events when the step had a recorded result.
	Prior bool `json:"prior,omitempty"`

	Reason  ir.TerminationReason `json:"reason,omitempty"`
	Code    string               `json:"code,omitempty"`
	Message string               `json:"message,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause, assertion and restore check held.
	Pass bool `json:"pass"`

	RunID string       `json:"run_id"`
	Trace []TraceEvent `json:"trace"`

	// Errors lists every failed check. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the run's snapshot after the last flow action.
	Final ir.TaskResult `json:"final"`

	// Digest is ir.TaskResultDigest of Final.
	Digest string `json:"digest"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEvent appends ev with the next sequence number.
func (r *Result) addEvent(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}

// Presented returns the steps of every present event, in order.
func (r *Result) Presented() []ir.StepID {
	out := []ir.StepID{}
	for _, ev := range r.Trace {
		if ev.Type == EventPresent {
			out = append(out, ev.Step)
		}
	}
	return out
}
