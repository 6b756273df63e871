package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stepnav/internal/graph"
	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/predicate"
	"github.com/roach88/stepnav/internal/testutil"
)

func declare(ids ...string) []ir.Step {
	out := make([]ir.Step, len(ids))
	for i, id := range ids {
		out[i] = ir.Step{ID: ir.StepID(id)}
	}
	return out
}

func buildGraph(t *testing.T, steps []ir.Step, rules ...graph.TriggeredRule) *graph.Graph {
	t.Helper()
	g, err := graph.Definition{TaskID: "task", Steps: steps, Rules: rules}.Build()
	require.NoError(t, err)
	return g
}

func direct(trigger, dest string) graph.TriggeredRule {
	return graph.TriggeredRule{Trigger: ir.StepID(trigger), Rule: graph.DirectRule{Destination: ir.StepID(dest)}}
}

func severity(v bool) predicate.Predicate {
	return predicate.BoolEquals{
		Selector: ir.ResultSelector{StepID: "form", SubResultID: "severity"},
		Expected: v,
	}
}

// triageGraph declares [intro, form, severe, light, end] with a predicate
// rule at form and direct rules severe → end, light → end.
func triageGraph(t *testing.T) *graph.Graph {
	return buildGraph(t, declare("intro", "form", "severe", "light", "end"),
		graph.TriggeredRule{Trigger: "form", Rule: graph.PredicateRule{Branches: []graph.Branch{
			{Predicate: severity(true), Destination: "severe"},
			{Predicate: severity(false), Destination: "light"},
		}}},
		direct("severe", "end"),
		direct("light", "end"),
	)
}

func formAnswer(severe bool) ir.StepResult {
	return ir.StepResult{ID: "form", Answer: ir.Collection{
		{ID: "severity", Answer: ir.Bool(severe)},
	}}
}

func newController(t *testing.T, g *graph.Graph, opts ...Option) (*TaskController, *testutil.RecordingPresenter) {
	t.Helper()
	p := &testutil.RecordingPresenter{}
	base := []Option{
		WithClock(testutil.NewStepClock(testutil.Epoch, 0)),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-1")),
	}
	return NewTaskController(g, p, append(base, opts...)...), p
}

func complete(id string) ir.StepResult {
	return ir.StepResult{ID: ir.StepID(id)}
}
