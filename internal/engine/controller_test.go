package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepnav/internal/graph"
	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/predicate"
	"github.com/roach88/stepnav/internal/testutil"
)

// TestEndToEndTriage drives intro → form (severity true) → severe → end.
func TestEndToEndTriage(t *testing.T) {
	ctx := context.Background()
	c, p := newController(t, triageGraph(t))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("intro")))
	require.NoError(t, c.StepDidComplete(ctx, formAnswer(true)))
	require.NoError(t, c.StepDidComplete(ctx, complete("severe")))
	require.NoError(t, c.StepDidComplete(ctx, complete("end")))

	assert.Equal(t, []ir.StepID{"intro", "form", "severe", "end"}, p.Presented())

	res, ok := c.Result()
	require.True(t, ok)
	assert.Equal(t, ir.ReasonCompleted, res.Reason)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, []ir.StepID{"intro", "form", "severe", "end"}, res.StepIDs())
	assert.Equal(t, []ir.StepID{"intro", "form", "severe", "end"}, res.Path)
	assert.Empty(t, res.Current)
	assert.False(t, res.StartedAt.IsZero())
	assert.True(t, res.EndedAt.After(res.StartedAt))
}

func TestVisitationOrderUnderBranching(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, buildGraph(t, declare("a", "b", "c", "d"), direct("a", "c")))

	require.NoError(t, c.Start(ctx))
	for _, id := range []string{"a", "c", "d"} {
		require.NoError(t, c.StepDidComplete(ctx, complete(id)))
	}

	res, ok := c.Result()
	require.True(t, ok)
	assert.Equal(t, []ir.StepID{"a", "c", "d"}, res.StepIDs())
	_, hasB := res.Result("b")
	assert.False(t, hasB)
}

func TestNullStepTermination(t *testing.T) {
	ctx := context.Background()
	c, p := newController(t, buildGraph(t, declare("a", "b", "c"), direct("a", string(ir.NullStepID))))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("a")))

	assert.Equal(t, StateTerminated(ir.ReasonDirectedToNull), c.State())
	assert.Equal(t, []ir.StepID{"a"}, p.Presented())
}

func TestLifecycleErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, buildGraph(t, declare("a", "b")))

	assert.Equal(t, ErrCodeNotStarted, NavigationCode(c.StepDidComplete(ctx, complete("a"))))
	assert.Equal(t, ErrCodeNotStarted, NavigationCode(c.GoBack(ctx)))

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, ErrCodeAlreadyStarted, NavigationCode(c.Start(ctx)))
	assert.Equal(t, ErrCodeStepMismatch, NavigationCode(c.StepDidComplete(ctx, complete("b"))))

	require.NoError(t, c.Cancel(ctx))
	assert.Equal(t, ErrCodeTerminated, NavigationCode(c.Start(ctx)))
	assert.Equal(t, ErrCodeTerminated, NavigationCode(c.StepDidComplete(ctx, complete("a"))))
	assert.Equal(t, ErrCodeTerminated, NavigationCode(c.Cancel(ctx)))
	assert.Equal(t, ErrCodeTerminated, NavigationCode(c.Fail(ctx, nil)))
}

func TestSkippedAnswerRequiresOptional(t *testing.T) {
	ctx := context.Background()
	steps := []ir.Step{{ID: "req"}, {ID: "opt", Optional: true}, {ID: "end"}}
	c, _ := newController(t, buildGraph(t, steps))

	require.NoError(t, c.Start(ctx))
	err := c.StepDidComplete(ctx, ir.StepResult{ID: "req", Answer: ir.Skipped{}})
	assert.Equal(t, ErrCodeAnswerRequired, NavigationCode(err))
	assert.Equal(t, StateAt("req"), c.State(), "rejected completion leaves the run unchanged")

	require.NoError(t, c.StepDidComplete(ctx, ir.StepResult{ID: "req", Answer: ir.Number(1)}))
	require.NoError(t, c.StepDidComplete(ctx, ir.StepResult{ID: "opt", Answer: ir.Skipped{}}))
	assert.Equal(t, StateAt("end"), c.State())
}

func TestUnknownDestinationLeavesRunUnchanged(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, buildGraph(t, declare("a", "b"), direct("a", "ghost")))

	require.NoError(t, c.Start(ctx))
	before := c.Checkpoint()

	err := c.StepDidComplete(ctx, ir.StepResult{ID: "a", Answer: ir.Text("x")})
	require.Error(t, err)
	assert.True(t, IsUnknownDestination(err))

	var ne *NavigationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "run-1", ne.RunID)

	after := c.Checkpoint()
	assert.Equal(t, before.Path, after.Path)
	assert.Equal(t, before.Results, after.Results)
	assert.Equal(t, StateAt("a"), c.State())
}

func TestResultOverwriteOnRevisit(t *testing.T) {
	ctx := context.Background()
	c, p := newController(t, buildGraph(t, declare("a", "b", "c")))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, ir.StepResult{ID: "a", Answer: ir.Number(1)}))
	require.NoError(t, c.GoBack(ctx))

	last, ok := p.Last()
	require.True(t, ok)
	assert.Equal(t, ir.StepID("a"), last.Step.ID)
	require.NotNil(t, last.Prior, "re-presented with previous result")
	assert.Equal(t, ir.Number(1), last.Prior.Answer)

	require.NoError(t, c.StepDidComplete(ctx, ir.StepResult{ID: "a", Answer: ir.Number(2)}))

	snap := c.Checkpoint()
	require.Len(t, snap.Results, 1)
	assert.Equal(t, ir.Number(2), snap.Results[0].Answer)
	assert.Equal(t, []ir.StepID{"a"}, snap.Path)
	assert.Equal(t, ir.StepID("b"), snap.Current)
}

func TestGoBackKeepsStaleForwardAnswers(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, triageGraph(t))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("intro")))
	require.NoError(t, c.StepDidComplete(ctx, formAnswer(true)))
	require.NoError(t, c.StepDidComplete(ctx, ir.StepResult{ID: "severe", Answer: ir.Text("notes")}))

	// At end; go back twice to form.
	require.NoError(t, c.GoBack(ctx))
	require.NoError(t, c.GoBack(ctx))
	assert.Equal(t, StateAt("form"), c.State())
	assert.Equal(t, []ir.StepID{"intro"}, c.Path())

	_, ok := c.Results().Result("severe")
	assert.True(t, ok, "forward answer kept until overwritten")

	require.NoError(t, c.StepDidComplete(ctx, formAnswer(false)))
	assert.Equal(t, StateAt("light"), c.State())
	require.NoError(t, c.StepDidComplete(ctx, complete("light")))
	require.NoError(t, c.StepDidComplete(ctx, complete("end")))

	res, _ := c.Result()
	assert.Equal(t, []ir.StepID{"intro", "form", "light", "end"}, res.Path)
	assert.Equal(t, []ir.StepID{"intro", "form", "severe", "light", "end"}, res.StepIDs())
}

func TestBackNavigationVeto(t *testing.T) {
	ctx := context.Background()
	steps := []ir.Step{{ID: "a"}, {ID: "b", NoBack: true}, {ID: "c"}, {ID: "d"}}
	c, _ := newController(t, buildGraph(t, steps))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("a")))
	require.NoError(t, c.StepDidComplete(ctx, complete("b")))
	require.NoError(t, c.StepDidComplete(ctx, complete("c")))

	// At d: back to c is allowed.
	require.NoError(t, c.GoBack(ctx))
	assert.Equal(t, StateAt("c"), c.State())

	// At c: top of stack is b, which vetoes.
	err := c.GoBack(ctx)
	assert.Equal(t, ErrCodeBackNotAllowed, NavigationCode(err))
	assert.Equal(t, StateAt("c"), c.State())
	assert.Equal(t, []ir.StepID{"a", "b"}, c.Path())
}

func TestGoBackFromFirstStep(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, buildGraph(t, declare("a", "b")))

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, ErrCodeNothingToPop, NavigationCode(c.GoBack(ctx)))
}

func TestBackNotAllowedFromCurrentStep(t *testing.T) {
	ctx := context.Background()
	steps := []ir.Step{{ID: "a"}, {ID: "b", NoBack: true}, {ID: "c"}}
	c, p := newController(t, buildGraph(t, steps))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("a")))

	err := c.GoBack(ctx)
	assert.Equal(t, ErrCodeBackNotAllowed, NavigationCode(err))
	assert.Equal(t, StateAt("b"), c.State())
	assert.Equal(t, []ir.StepID{"a"}, c.Path())
	assert.Equal(t, []ir.StepID{"a", "b"}, p.Presented())
}

func TestLifecycleHookOrder(t *testing.T) {
	ctx := context.Background()
	var events []string
	c, _ := newController(t, buildGraph(t, declare("a", "b", "c")), WithHooks(Hooks{
		WillAppear:    func(_ context.Context, s ir.Step) { events = append(events, "appear "+string(s.ID)) },
		WillDisappear: func(_ context.Context, s ir.Step) { events = append(events, "disappear "+string(s.ID)) },
	}))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("a")))
	require.NoError(t, c.GoBack(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("a")))
	require.NoError(t, c.Cancel(ctx))

	assert.Equal(t, []string{
		"appear a",
		"disappear a", "appear b",
		"disappear b", "appear a",
		"disappear a", "appear b",
		"disappear b",
	}, events)

	// Rejected actions fire nothing.
	events = nil
	assert.Error(t, c.GoBack(ctx))
	assert.Empty(t, events)
}

func TestPresenterMayCompleteSynchronously(t *testing.T) {
	ctx := context.Background()
	var c *TaskController
	var shown []ir.StepID
	presenter := PresenterFunc(func(ctx context.Context, step ir.Step, _ *ir.StepResult) error {
		shown = append(shown, step.ID)
		if step.ID == "a" {
			return c.StepDidComplete(ctx, complete("a"))
		}
		return nil
	})
	c = NewTaskController(buildGraph(t, declare("a", "b")), presenter,
		WithClock(testutil.NewStepClock(testutil.Epoch, 0)),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-1")),
	)

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, StateAt("b"), c.State())
	assert.Equal(t, []ir.StepID{"a", "b"}, shown)
	assert.Equal(t, []ir.StepID{"a"}, c.Path())
}

func TestPresenterErrorAfterRunMovedOn(t *testing.T) {
	ctx := context.Background()
	var c *TaskController
	presenter := PresenterFunc(func(ctx context.Context, step ir.Step, _ *ir.StepResult) error {
		if step.ID != "a" {
			return nil
		}
		if err := c.StepDidComplete(ctx, complete("a")); err != nil {
			return err
		}
		return errors.New("window closed")
	})
	c = NewTaskController(buildGraph(t, declare("a", "b")), presenter,
		WithClock(testutil.NewStepClock(testutil.Epoch, 0)),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-1")),
	)

	err := c.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "present a")

	// The stale error does not fail the run presenting b.
	assert.Equal(t, StateAt("b"), c.State())
	_, done := c.Result()
	assert.False(t, done)
}

func TestCancelProducesPartialResult(t *testing.T) {
	ctx := context.Background()
	var disappeared []ir.StepID
	c, _ := newController(t, triageGraph(t), WithHooks(Hooks{
		WillDisappear: func(_ context.Context, s ir.Step) { disappeared = append(disappeared, s.ID) },
	}))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, ir.StepResult{ID: "intro", Answer: ir.Bool(true)}))
	require.NoError(t, c.Cancel(ctx))

	res, ok := c.Result()
	require.True(t, ok)
	assert.Equal(t, ir.ReasonCancelled, res.Reason)
	assert.True(t, res.Reason.IsPartial())
	assert.Equal(t, []ir.StepID{"intro"}, res.StepIDs())
	assert.Equal(t, []ir.StepID{"intro", "form"}, disappeared)
}

func TestFailRecordsCause(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, triageGraph(t))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Fail(ctx, errors.New("sensor unavailable")))

	res, ok := c.Result()
	require.True(t, ok)
	assert.Equal(t, ir.ReasonFailed, res.Reason)
	assert.Equal(t, "sensor unavailable", res.Error)
}

func TestCancelBeforeStart(t *testing.T) {
	c, p := newController(t, triageGraph(t))
	require.NoError(t, c.Cancel(context.Background()))

	res, ok := c.Result()
	require.True(t, ok)
	assert.Equal(t, "run-1", res.RunID)
	assert.Empty(t, res.Results)
	assert.Empty(t, p.Presented())
}

func TestShouldPresentVeto(t *testing.T) {
	ctx := context.Background()
	var appeared []ir.StepID
	c, p := newController(t, buildGraph(t, declare("a", "b", "c")), WithHooks(Hooks{
		ShouldPresent: func(_ context.Context, s ir.Step, _ predicate.Source) bool { return s.ID != "b" },
		WillAppear:    func(_ context.Context, s ir.Step) { appeared = append(appeared, s.ID) },
	}))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("a")))
	assert.Equal(t, StateAt("c"), c.State())
	require.NoError(t, c.StepDidComplete(ctx, complete("c")))

	assert.Equal(t, []ir.StepID{"a", "c"}, p.Presented())
	assert.Equal(t, []ir.StepID{"a", "c"}, appeared)

	res, _ := c.Result()
	assert.Equal(t, []ir.StepID{"a", "c"}, res.StepIDs(), "vetoed step records no result")
	assert.Equal(t, []ir.StepID{"a", "c"}, res.Path)
}

func TestShouldPresentSeesPendingResult(t *testing.T) {
	ctx := context.Background()
	c, p := newController(t, buildGraph(t, declare("q", "followup", "end")), WithHooks(Hooks{
		ShouldPresent: func(_ context.Context, s ir.Step, src predicate.Source) bool {
			if s.ID != "followup" {
				return true
			}
			ok, _ := predicate.BoolEquals{Selector: ir.ResultSelector{StepID: "q"}, Expected: true}.Evaluate(src)
			return ok
		},
	}))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, ir.StepResult{ID: "q", Answer: ir.Bool(false)}))
	assert.Equal(t, []ir.StepID{"q", "end"}, p.Presented())
}

func TestSkipCycleDetected(t *testing.T) {
	ctx := context.Background()
	g := buildGraph(t, declare("start", "x", "y", "end"), direct("x", "y"), direct("y", "x"))
	c, _ := newController(t, g, WithHooks(Hooks{
		ShouldPresent: func(_ context.Context, s ir.Step, _ predicate.Source) bool {
			return s.ID != "x" && s.ID != "y"
		},
	}))

	require.NoError(t, c.Start(ctx))
	err := c.StepDidComplete(ctx, complete("start"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeSkipCycle, NavigationCode(err))
	assert.Equal(t, StateAt("start"), c.State())
	assert.Empty(t, c.Path())
}

func TestAllStepsVetoedCompletes(t *testing.T) {
	c, p := newController(t, buildGraph(t, declare("a", "b")), WithHooks(Hooks{
		ShouldPresent: func(context.Context, ir.Step, predicate.Source) bool { return false },
	}))

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateTerminated(ir.ReasonCompleted), c.State())
	assert.Empty(t, p.Presented())
}

func TestQuotaFailsRun(t *testing.T) {
	ctx := context.Background()
	g := buildGraph(t, declare("a", "b"), direct("b", "a"))
	c, _ := newController(t, g, WithMaxSteps(3))

	// Presentations: a, b, a, then b exceeds the quota.
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("a")))
	require.NoError(t, c.StepDidComplete(ctx, complete("b")))
	err := c.StepDidComplete(ctx, complete("a"))
	require.Error(t, err)
	assert.True(t, IsStepsExceededError(err))

	res, ok := c.Result()
	require.True(t, ok)
	assert.Equal(t, ir.ReasonFailed, res.Reason)
	assert.Contains(t, res.Error, "exceeded max steps")
}

func TestPresenterErrorFailsRun(t *testing.T) {
	c, p := newController(t, buildGraph(t, declare("a")))
	p.Err = errors.New("no window")

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "present a")

	res, ok := c.Result()
	require.True(t, ok)
	assert.Equal(t, ir.ReasonFailed, res.Reason)
}

func TestTimestampsFilled(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, buildGraph(t, declare("a", "b")))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, ir.StepResult{ID: "a", Answer: ir.Bool(true)}))

	r, ok := c.Results().Result("a")
	require.True(t, ok)
	assert.False(t, r.StartedAt.IsZero())
	assert.True(t, r.EndedAt.After(r.StartedAt))
}

func TestAdditionalResultsReachPredicates(t *testing.T) {
	ctx := context.Background()
	intake := ir.TaskResult{
		TaskID:  "intake",
		RunID:   "run-0",
		Reason:  ir.ReasonCompleted,
		Results: []ir.StepResult{{ID: "smoker", Answer: ir.Bool(true)}},
	}
	g := buildGraph(t, declare("intro", "general", "smoking"),
		graph.TriggeredRule{Trigger: "intro", Rule: graph.PredicateRule{Branches: []graph.Branch{{
			Predicate:   predicate.BoolEquals{Selector: ir.ResultSelector{TaskID: "intake", StepID: "smoker"}, Expected: true},
			Destination: "smoking",
		}}}},
	)
	c, _ := newController(t, g, WithAdditionalResults(intake))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("intro")))
	assert.Equal(t, StateAt("smoking"), c.State())
}

func TestTransitionsRecorded(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, triageGraph(t))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("intro")))
	require.NoError(t, c.StepDidComplete(ctx, formAnswer(true)))

	trs := c.Transitions()
	require.Len(t, trs, 3)
	assert.Equal(t, ViaFirst, trs[0].Via)
	assert.Equal(t, ViaDeclared, trs[1].Via)
	assert.Equal(t, ViaPredicate, trs[2].Via)
	assert.Equal(t, 0, trs[2].Branch)
}

type recordingCheckpointer struct {
	snapshots []ir.TaskResult
	err       error
}

func (r *recordingCheckpointer) SaveCheckpoint(_ context.Context, s ir.TaskResult) error {
	r.snapshots = append(r.snapshots, s)
	return r.err
}

func TestCheckpointerCalledOnEveryChange(t *testing.T) {
	ctx := context.Background()
	cp := &recordingCheckpointer{}
	c, _ := newController(t, buildGraph(t, declare("a", "b")), WithCheckpointer(cp))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("a")))
	require.NoError(t, c.GoBack(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("a")))
	require.NoError(t, c.StepDidComplete(ctx, complete("b")))

	require.Len(t, cp.snapshots, 5)
	assert.Equal(t, ir.StepID("a"), cp.snapshots[0].Current)
	assert.Equal(t, ir.StepID("b"), cp.snapshots[1].Current)
	assert.Equal(t, ir.StepID("a"), cp.snapshots[2].Current)
	last := cp.snapshots[4]
	assert.Equal(t, ir.ReasonCompleted, last.Reason)
}

func TestCheckpointErrorDoesNotStopRun(t *testing.T) {
	ctx := context.Background()
	cp := &recordingCheckpointer{err: errors.New("disk full")}
	c, _ := newController(t, buildGraph(t, declare("a")), WithCheckpointer(cp))

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.StepDidComplete(ctx, complete("a")))
	assert.Equal(t, StateTerminated(ir.ReasonCompleted), c.State())
}
