package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/stepnav/internal/compiler"
	"github.com/roach88/stepnav/internal/engine"
	"github.com/roach88/stepnav/internal/graph"
	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/predicate"
	"github.com/roach88/stepnav/internal/store"
	"github.com/roach88/stepnav/internal/testutil"
)

// CodeStepsExceeded is the expect code for a run that hit the presentation
// quota.
const CodeStepsExceeded = "STEPS_EXCEEDED"

// Harness is the scenario execution engine.
// It drives one TaskController with a deterministic clock and run id.
type Harness struct {
	scenario *Scenario
	graph    *graph.Graph
	store    *store.Store
	ctrl     *engine.TaskController
	veto     map[ir.StepID]bool
	logger   *slog.Logger
	result   *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Compile the task and build its graph
// 2. Start the run and check the start clause
// 3. Execute flow steps with expect and restore checks
// 4. Evaluate assertions against the trace and final snapshot
//
// An error is returned only when the scenario cannot run at all; failed
// checks are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	def, err := compiler.LoadTask(scenario.Task, scenario.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	var opts []graph.Option
	if scenario.StrictRules {
		opts = append(opts, graph.WithStrictRules())
	}
	g, err := def.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		graph:    g,
		store:    st,
		veto:     make(map[ir.StepID]bool, len(scenario.Veto)),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		result:   NewResult(),
	}
	for _, id := range scenario.Veto {
		h.veto[ir.StepID(id)] = true
	}

	maxSteps := engine.DefaultMaxSteps
	if scenario.MaxSteps > 0 {
		maxSteps = scenario.MaxSteps
	}
	h.ctrl = engine.NewTaskController(g, engine.PresenterFunc(h.present),
		engine.WithClock(testutil.NewStepClock(testutil.Epoch, 0)),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithCheckpointer(st),
		engine.WithHooks(engine.Hooks{ShouldPresent: h.shouldPresent}),
		engine.WithMaxSteps(maxSteps),
		engine.WithLogger(h.logger),
	)

	h.settle(ctx, "start", scenario.Start, h.ctrl.Start(ctx))
	for i, step := range scenario.Flow {
		err := h.execute(ctx, step)
		h.settle(ctx, fmt.Sprintf("flow[%d]", i), step.Expect, err)
	}

	result := h.result
	result.Final = h.ctrl.Checkpoint()
	result.RunID = result.Final.RunID
	result.Digest, err = ir.TaskResultDigest(result.Final)
	if err != nil {
		return nil, fmt.Errorf("failed to digest final snapshot: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// execute performs one flow action on the controller.
func (h *Harness) execute(ctx context.Context, step FlowStep) error {
	current := h.ctrl.State().Step

	switch step.Action() {
	case ActionComplete:
		answer, err := step.AnswerValue()
		if err != nil {
			return err
		}
		id := ir.StepID(step.Complete)
		h.result.addEvent(TraceEvent{Type: EventComplete, Step: id, Answer: answer})
		return h.ctrl.StepDidComplete(ctx, ir.StepResult{ID: id, Answer: answer})
	case ActionBack:
		h.result.addEvent(TraceEvent{Type: EventBack, Step: current})
		return h.ctrl.GoBack(ctx)
	case ActionCancel:
		h.result.addEvent(TraceEvent{Type: EventCancel, Step: current})
		return h.ctrl.Cancel(ctx)
	case ActionFail:
		h.result.addEvent(TraceEvent{Type: EventFail, Step: current, Message: step.Fail})
		return h.ctrl.Fail(ctx, errors.New(step.Fail))
	}
	return fmt.Errorf("flow step names no action")
}

// settle records the outcome of an action and checks it against expect.
func (h *Harness) settle(ctx context.Context, label string, expect *ExpectClause, err error) {
	if err != nil {
		h.result.addEvent(TraceEvent{Type: EventError, Code: errorCode(err), Message: err.Error()})
	}
	h.traceTermination()

	wantErr := ""
	if expect != nil {
		wantErr = expect.Error
	}
	switch {
	case err != nil && wantErr == "":
		h.result.AddError(fmt.Sprintf("%s: unexpected error: %v", label, err))
	case err != nil && errorCode(err) != wantErr:
		h.result.AddError(fmt.Sprintf("%s: expected error %s, got %s", label, wantErr, errorCode(err)))
	case err == nil && wantErr != "":
		h.result.AddError(fmt.Sprintf("%s: expected error %s, got none", label, wantErr))
	}

	state := h.ctrl.State()
	if expect != nil && expect.At != "" {
		if state.Phase != engine.AtStep || state.Step != ir.StepID(expect.At) {
			h.result.AddError(fmt.Sprintf("%s: expected run at %s, run is %s", label, expect.At, state))
		}
	}
	if expect != nil && expect.Terminated != "" {
		if !state.IsTerminal() || state.Reason != ir.TerminationReason(expect.Terminated) {
			h.result.AddError(fmt.Sprintf("%s: expected run terminated (%s), run is %s", label, expect.Terminated, state))
		}
	}

	h.checkRestore(ctx, label)
}

// traceTermination adds a terminated event the first time the run is seen
// terminated.
func (h *Harness) traceTermination() {
	final, ok := h.ctrl.Result()
	if !ok {
		return
	}
	for _, ev := range h.result.Trace {
		if ev.Type == EventTerminated {
			return
		}
	}
	h.result.addEvent(TraceEvent{Type: EventTerminated, Reason: final.Reason, Message: final.Error})
}

// checkRestore verifies that the stored checkpoint and a controller restored
// from it both match the live run.
func (h *Harness) checkRestore(ctx context.Context, label string) {
	live := h.ctrl.Checkpoint()
	if live.RunID == "" {
		return
	}
	want, err := ir.TaskResultDigest(live)
	if err != nil {
		h.result.AddError(fmt.Sprintf("%s: digest live snapshot: %v", label, err))
		return
	}

	stored, err := h.store.LoadRun(ctx, live.RunID)
	if err != nil {
		h.result.AddError(fmt.Sprintf("%s: load checkpoint: %v", label, err))
		return
	}
	if got := ir.MustTaskResultDigest(stored); got != want {
		h.result.AddError(fmt.Sprintf("%s: stored checkpoint digest %s, live run %s", label, short(got), short(want)))
		return
	}

	discard := engine.PresenterFunc(func(context.Context, ir.Step, *ir.StepResult) error { return nil })
	restored, err := engine.Restore(h.graph, discard, stored, engine.WithLogger(h.logger))
	if err != nil {
		h.result.AddError(fmt.Sprintf("%s: restore: %v", label, err))
		return
	}
	if got := ir.MustTaskResultDigest(restored.Checkpoint()); got != want {
		h.result.AddError(fmt.Sprintf("%s: restored run digest %s, live run %s", label, short(got), short(want)))
	}
}

func (h *Harness) present(_ context.Context, step ir.Step, prior *ir.StepResult) error {
	ev := TraceEvent{Type: EventPresent, Step: step.ID}
	if prior != nil {
		ev.Prior = true
		ev.Answer = prior.Answer
	}
	h.result.addEvent(ev)
	return nil
}

func (h *Harness) shouldPresent(_ context.Context, step ir.Step, _ predicate.Source) bool {
	if h.veto[step.ID] {
		h.result.addEvent(TraceEvent{Type: EventVeto, Step: step.ID})
		return false
	}
	return true
}

// errorCode maps an engine error to the code used in expect clauses.
func errorCode(err error) string {
	if code := engine.NavigationCode(err); code != "" {
		return string(code)
	}
	if engine.IsStepsExceededError(err) {
		return CodeStepsExceeded
	}
	return "ERROR"
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
