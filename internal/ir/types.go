package ir

import (
	"slices"
	"time"
)

// StepID identifies a step uniquely within a task.
type StepID string

// NullStepID is the reserved destination meaning "end the task here".
// A DirectRule pointing at it terminates the run regardless of the steps
// declared after the trigger.
const NullStepID StepID = "org.stepnav.step.null"

// IsNull reports whether id is the null-step sentinel.
func (id StepID) IsNull() bool {
	return id == NullStepID
}

// Capabilities is the navigation-relevant view of a step.
type Capabilities interface {
	IsOptional() bool
	AllowsBack() bool
}

// Step is one unit of interaction in a task.
//
// Steps are plain data. Rendering is owned by the presenter; the engine only
// reads the identifier and the two capability flags.
type Step struct {
	ID       StepID `json:"id"`
	Kind     string `json:"kind,omitempty"`  // opaque presenter hint ("question", "instruction", ...)
	Title    string `json:"title,omitempty"` // opaque presenter hint
	Position int    `json:"position"`        // ordinal in the declared sequence, set by the graph

	// Optional steps may be completed with a Skipped answer.
	Optional bool `json:"optional,omitempty"`

	// NoBack vetoes back-navigation past this step once it has been completed.
	NoBack bool `json:"no_back,omitempty"`
}

// IsOptional implements Capabilities.
func (s Step) IsOptional() bool { return s.Optional }

// AllowsBack implements Capabilities.
func (s Step) AllowsBack() bool { return !s.NoBack }

// StepResult is the outcome recorded for a step.
//
// For sub-results inside a Collection answer, ID is the sub-result identifier
// rather than a declared step identifier.
type StepResult struct {
	ID        StepID      `json:"id"`
	Answer    AnswerValue `json:"answer"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at"`
}

// Child returns the sub-result with the given identifier when the answer is a
// Collection.
func (r StepResult) Child(id string) (StepResult, bool) {
	coll, ok := r.Answer.(Collection)
	if !ok {
		return StepResult{}, false
	}
	for _, child := range coll {
		if string(child.ID) == id {
			return child, true
		}
	}
	return StepResult{}, false
}

// ResultSelector locates an answer inside a set of results.
type ResultSelector struct {
	// TaskID selects another completed task's results. Empty means the
	// ongoing run.
	TaskID string `json:"task_id,omitempty"`

	StepID StepID `json:"step_id"`

	// SubResultID selects a child of a Collection answer. See ResultID for
	// the fallback applied when it is empty.
	SubResultID string `json:"sub_result_id,omitempty"`
}

// ResultID returns the effective sub-result identifier.
//
// When SubResultID is empty it falls back to the step identifier. For a plain
// question step the step's own answer is addressed. For a Collection answer
// the child whose identifier equals the step identifier is addressed, which
// finds nothing on a form whose fields are named differently; callers must
// name the field explicitly in that case.
func (s ResultSelector) ResultID() string {
	if s.SubResultID != "" {
		return s.SubResultID
	}
	return string(s.StepID)
}

// Resolve extracts the selected answer from the step result r, which must be
// the result recorded for s.StepID.
func (s ResultSelector) Resolve(r StepResult) (AnswerValue, bool) {
	resultID := s.ResultID()
	if child, ok := r.Child(resultID); ok {
		return child.Answer, child.Answer != nil
	}
	if _, isCollection := r.Answer.(Collection); isCollection {
		return nil, false
	}
	if resultID != string(r.ID) || r.Answer == nil {
		return nil, false
	}
	return r.Answer, true
}

// String renders the selector as task/step/sub.
func (s ResultSelector) String() string {
	out := string(s.StepID)
	if s.TaskID != "" {
		out = s.TaskID + "/" + out
	}
	if s.SubResultID != "" {
		out += "/" + s.SubResultID
	}
	return out
}

// TerminationReason explains why a run ended.
type TerminationReason string

const (
	// ReasonNone marks a run still in progress.
	ReasonNone TerminationReason = ""

	// ReasonCompleted means the declared sequence was exhausted.
	ReasonCompleted TerminationReason = "completed"

	// ReasonDirectedToNull means a DirectRule pointed at NullStepID.
	ReasonDirectedToNull TerminationReason = "directed_to_null"

	// ReasonCancelled means the host cancelled the run.
	ReasonCancelled TerminationReason = "cancelled"

	// ReasonFailed means the host or the engine failed the run.
	ReasonFailed TerminationReason = "failed"
)

// ValidReasons lists every terminal reason.
var ValidReasons = map[TerminationReason]bool{
	ReasonCompleted:      true,
	ReasonDirectedToNull: true,
	ReasonCancelled:      true,
	ReasonFailed:         true,
}

// IsPartial reports whether a run ended before reaching a natural end.
func (r TerminationReason) IsPartial() bool {
	return r == ReasonCancelled || r == ReasonFailed
}

// TaskResult is the snapshot of one run.
//
// A terminal TaskResult (Reason != ReasonNone) is immutable. A TaskResult with
// ReasonNone is a checkpoint of a run in progress and is the contract for
// restoring that run.
type TaskResult struct {
	TaskID string            `json:"task_id"`
	RunID  string            `json:"run_id"`
	Reason TerminationReason `json:"reason,omitempty"`

	// Results in the order steps were first visited. Re-visiting a step
	// overwrites its entry in place.
	Results []StepResult `json:"results"`

	// Path is the visited-step stack at the time of the snapshot.
	Path []StepID `json:"path"`

	// Current is the step being presented, empty when terminated.
	Current StepID `json:"current,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Error     string    `json:"error,omitempty"`
	Version   string    `json:"version"`
}

// IsTerminal reports whether the run has ended.
func (t TaskResult) IsTerminal() bool {
	return t.Reason != ReasonNone
}

// StepIDs returns the identifiers of Results in order.
func (t TaskResult) StepIDs() []StepID {
	ids := make([]StepID, len(t.Results))
	for i, r := range t.Results {
		ids[i] = r.ID
	}
	return ids
}

// Result returns the recorded result for id.
func (t TaskResult) Result(id StepID) (StepResult, bool) {
	for _, r := range t.Results {
		if r.ID == id {
			return r, true
		}
	}
	return StepResult{}, false
}

// Clone returns a deep copy of the slices so callers cannot mutate the
// snapshot they were handed.
func (t TaskResult) Clone() TaskResult {
	out := t
	out.Results = slices.Clone(t.Results)
	out.Path = slices.Clone(t.Path)
	return out
}
