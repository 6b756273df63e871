package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/stepnav/internal/graph"
	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/results"
)

// Restore rebuilds a controller from a snapshot produced by Checkpoint.
//
// The restored controller's result store, visited stack and current step are
// those of the snapshot, so Checkpoint on it returns a snapshot with the same
// digest. Nothing is presented until Resume is called.
//
// A terminal snapshot restores a terminated controller whose Result is the
// snapshot itself.
func Restore(g *graph.Graph, p Presenter, snapshot ir.TaskResult, opts ...Option) (*TaskController, error) {
	if snapshot.TaskID != g.TaskID() {
		return nil, fmt.Errorf("restore: snapshot is for task %q, graph is for %q", snapshot.TaskID, g.TaskID())
	}
	if snapshot.RunID == "" {
		return nil, fmt.Errorf("restore: snapshot has no run id")
	}
	for _, id := range snapshot.Path {
		if !g.Has(id) {
			return nil, navErr(ErrCodeStepMismatch, snapshot.RunID, id, "visited step is not declared")
		}
	}

	c := NewTaskController(g, p, opts...)
	c.runID = snapshot.RunID
	c.startedAt = snapshot.StartedAt
	c.path = slices.Clone(snapshot.Path)
	c.store = results.FromResults(g.TaskID(), snapshot.Results)
	for _, tr := range c.additional {
		c.store.AddTaskResult(tr)
	}

	if snapshot.IsTerminal() {
		if !ir.ValidReasons[snapshot.Reason] {
			return nil, fmt.Errorf("restore: unknown termination reason %q", snapshot.Reason)
		}
		c.state = StateTerminated(snapshot.Reason)
		c.endedAt = snapshot.EndedAt
		c.errMsg = snapshot.Error
		final := snapshot.Clone()
		c.final = &final
		return c, nil
	}

	if snapshot.Current == "" {
		return nil, fmt.Errorf("restore: in-progress snapshot has no current step")
	}
	if !g.Has(snapshot.Current) {
		return nil, navErr(ErrCodeStepMismatch, snapshot.RunID, snapshot.Current, "current step is not declared")
	}
	c.state = StateAt(snapshot.Current)
	return c, nil
}
