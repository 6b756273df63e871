package graph

import (
	"fmt"

	"github.com/roach88/stepnav/internal/ir"
)

// Definition is the plain-data form of a task: what the compiler produces and
// what Build assembles into a Graph.
type Definition struct {
	TaskID string
	Steps  []ir.Step
	Rules  []TriggeredRule
}

// Build assembles a Graph from the definition.
func (d Definition) Build(opts ...Option) (*Graph, error) {
	g := New(d.TaskID, opts...)
	if err := g.DeclareSteps(d.Steps); err != nil {
		return nil, fmt.Errorf("task %s: %w", d.TaskID, err)
	}
	for _, tr := range d.Rules {
		if err := g.SetRule(tr.Trigger, tr.Rule); err != nil {
			return nil, fmt.Errorf("task %s: %w", d.TaskID, err)
		}
	}
	return g, nil
}

// Definition returns the graph's plain-data form.
func (g *Graph) Definition() Definition {
	return Definition{
		TaskID: g.taskID,
		Steps:  g.Steps(),
		Rules:  g.Rules(),
	}
}
