package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stepnav/internal/ir"
)

// Scenario scripts one run of a task and the checks made against it.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Task is the path to a CUE file or directory defining the task.
	// Relative paths are resolved against the scenario file's directory.
	Task string `yaml:"task"`

	// TaskID selects a task when the CUE defines more than one.
	TaskID string `yaml:"task_id,omitempty"`

	// RunID fixes the run identifier. Defaults to "run-test-default".
	RunID string `yaml:"run_id,omitempty"`

	StrictRules bool `yaml:"strict_rules,omitempty"`

	// MaxSteps overrides the presentation quota. Zero keeps the engine default.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Veto lists steps the ShouldPresent hook refuses.
	Veto []string `yaml:"veto,omitempty"`

	// Start checks the outcome of starting the run.
	Start *ExpectClause `yaml:"start,omitempty"`

	Flow       []FlowStep  `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one host action. Exactly one of Complete, Back, Cancel and
// Fail is set.
type FlowStep struct {
	// Complete names the step being completed.
	Complete string `yaml:"complete,omitempty"`

	// Answer is the native answer value; omitted means skipped.
	Answer any `yaml:"answer,omitempty"`

	// Kind is passed to ir.AnswerFromNative as a hint ("date", "choices").
	Kind string `yaml:"kind,omitempty"`

	Back   bool   `yaml:"back,omitempty"`
	Cancel bool   `yaml:"cancel,omitempty"`
	Fail   string `yaml:"fail,omitempty"`

	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Flow action names.
const (
	ActionComplete = "complete"
	ActionBack     = "back"
	ActionCancel   = "cancel"
	ActionFail     = "fail"
)

// Action returns the name of the action the step performs, or "" when it
// names none or several.
func (f FlowStep) Action() string {
	var actions []string
	if f.Complete != "" {
		actions = append(actions, ActionComplete)
	}
	if f.Back {
		actions = append(actions, ActionBack)
	}
	if f.Cancel {
		actions = append(actions, ActionCancel)
	}
	if f.Fail != "" {
		actions = append(actions, ActionFail)
	}
	if len(actions) != 1 {
		return ""
	}
	return actions[0]
}

// AnswerValue converts the native answer into an ir.AnswerValue.
func (f FlowStep) AnswerValue() (ir.AnswerValue, error) {
	return ir.AnswerFromNative(f.Answer, ir.AnswerKind(f.Kind))
}

// ExpectClause checks the run right after an action.
type ExpectClause struct {
	// At is the step the run must be presenting.
	At string `yaml:"at,omitempty"`

	// Terminated is the termination reason the run must have.
	Terminated string `yaml:"terminated,omitempty"`

	// Error is the error code the action must fail with: a
	// NavigationErrorCode, or STEPS_EXCEEDED for the presentation quota.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the final snapshot.
type Assertion struct {
	Type string `yaml:"type"`

	// Step is used by visited, not_visited, at_step, answer_equals and,
	// optionally, trace_count.
	Step string `yaml:"step,omitempty"`

	// Steps is used by path_equals, results_order and presented_order.
	Steps []string `yaml:"steps,omitempty"`

	// Reason is used by terminated.
	Reason string `yaml:"reason,omitempty"`

	// Answer and Kind are used by answer_equals, as in FlowStep.
	Answer any    `yaml:"answer,omitempty"`
	Kind   string `yaml:"kind,omitempty"`

	// Event and Count are used by trace_count.
	Event string `yaml:"event,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertPathEquals     = "path_equals"
	AssertResultsOrder   = "results_order"
	AssertPresentedOrder = "presented_order"
	AssertVisited        = "visited"
	AssertNotVisited     = "not_visited"
	AssertTerminated     = "terminated"
	AssertAtStep         = "at_step"
	AssertAnswerEquals   = "answer_equals"
	AssertTraceCount     = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The task path is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Task != "" && !filepath.IsAbs(scenario.Task) {
		scenario.Task = filepath.Join(filepath.Dir(path), scenario.Task)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Task == "" {
		return fmt.Errorf("task is required")
	}
	if _, err := os.Stat(s.Task); os.IsNotExist(err) {
		return fmt.Errorf("task file not found: %s", s.Task)
	}

	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if err := validateExpect("start", s.Start); err != nil {
		return err
	}

	for i, step := range s.Flow {
		if step.Action() == "" {
			return fmt.Errorf("flow[%d]: exactly one of complete, back, cancel or fail is required", i)
		}
		if step.Action() != ActionComplete && (step.Answer != nil || step.Kind != "") {
			return fmt.Errorf("flow[%d]: answer is only valid with complete", i)
		}
		if step.Action() == ActionComplete {
			if _, err := step.AnswerValue(); err != nil {
				return fmt.Errorf("flow[%d]: %w", i, err)
			}
		}
		if err := validateExpect(fmt.Sprintf("flow[%d].expect", i), step.Expect); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateExpect(field string, e *ExpectClause) error {
	if e == nil {
		return nil
	}
	if e.At == "" && e.Terminated == "" && e.Error == "" {
		return fmt.Errorf("%s: one of at, terminated or error is required", field)
	}
	if e.At != "" && e.Terminated != "" {
		return fmt.Errorf("%s: at and terminated cannot both be set", field)
	}
	if e.Terminated != "" && !ir.ValidReasons[ir.TerminationReason(e.Terminated)] {
		return fmt.Errorf("%s: unknown termination reason %q", field, e.Terminated)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertPathEquals, AssertResultsOrder, AssertPresentedOrder:
		if a.Steps == nil {
			return fmt.Errorf("assertions[%d]: steps list is required for %s", index, a.Type)
		}
	case AssertVisited, AssertNotVisited, AssertAtStep:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for %s", index, a.Type)
		}
	case AssertTerminated:
		if !ir.ValidReasons[ir.TerminationReason(a.Reason)] {
			return fmt.Errorf("assertions[%d]: unknown termination reason %q", index, a.Reason)
		}
	case AssertAnswerEquals:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for answer_equals", index)
		}
		if _, err := ir.AnswerFromNative(a.Answer, ir.AnswerKind(a.Kind)); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
