// Package graph holds a task's declared steps and navigation rules.
//
// A Graph is assembled once (DeclareSteps, then SetRule for each trigger) and
// then shared by every run of the task. Assembly is not safe for concurrent
// use; reads of an assembled graph are.
//
// Rule destinations are not checked against the declared steps when a rule
// is registered. A destination that names no step is reported by the
// navigator when it is traversed.
package graph

import (
	"slices"

	"github.com/roach88/stepnav/internal/ir"
)

// Graph is the step graph of one task.
type Graph struct {
	taskID   string
	steps    []ir.Step
	index    map[ir.StepID]int
	declared bool

	rules     map[ir.StepID]Rule
	ruleOrder []ir.StepID // registration order

	strict bool
}

// Option configures a Graph.
type Option func(*Graph)

// WithStrictRules rejects a second rule for the same trigger with
// DUPLICATE_RULE. Without it the later registration replaces the earlier one.
func WithStrictRules() Option {
	return func(g *Graph) {
		g.strict = true
	}
}

// New creates an empty graph for taskID.
func New(taskID string, opts ...Option) *Graph {
	g := &Graph{
		taskID: taskID,
		index:  make(map[ir.StepID]int),
		rules:  make(map[ir.StepID]Rule),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TaskID returns the task identifier.
func (g *Graph) TaskID() string { return g.taskID }

// Strict reports whether duplicate rule registration is rejected.
func (g *Graph) Strict() bool { return g.strict }

// DeclareSteps sets the declared linear order. Positions are assigned from the
// slice order. Declaring again replaces the steps, unless a rule has already
// been registered.
func (g *Graph) DeclareSteps(steps []ir.Step) error {
	if len(g.rules) > 0 {
		return configErr(ErrCodeStepsAlreadyDeclared, "", "steps cannot be re-declared after rules are registered")
	}

	index := make(map[ir.StepID]int, len(steps))
	declared := make([]ir.Step, len(steps))
	for i, s := range steps {
		switch {
		case s.ID == "":
			return configErr(ErrCodeEmptyStepID, "", "step at position %d has no identifier", i)
		case s.ID.IsNull():
			return configErr(ErrCodeReservedStepID, s.ID, "the null-step identifier cannot be declared")
		}
		if prev, dup := index[s.ID]; dup {
			return configErr(ErrCodeDuplicateStep, s.ID, "declared at positions %d and %d", prev, i)
		}
		index[s.ID] = i
		s.Position = i
		declared[i] = s
	}

	g.steps = declared
	g.index = index
	g.declared = true
	return nil
}

// SetRule registers rule for trigger, replacing any existing rule unless the
// graph is strict.
func (g *Graph) SetRule(trigger ir.StepID, rule Rule) error {
	if !g.declared {
		return configErr(ErrCodeStepsNotDeclared, trigger, "rules cannot be registered before steps are declared")
	}
	switch {
	case trigger == "":
		return configErr(ErrCodeInvalidRule, "", "rule has no trigger step")
	case trigger.IsNull():
		return configErr(ErrCodeReservedStepID, trigger, "the null step cannot trigger a rule")
	}
	if err := validateRule(trigger, rule); err != nil {
		return err
	}

	if _, exists := g.rules[trigger]; exists {
		if g.strict {
			return configErr(ErrCodeDuplicateRule, trigger, "a rule is already registered for this trigger")
		}
	} else {
		g.ruleOrder = append(g.ruleOrder, trigger)
	}
	g.rules[trigger] = normalize(rule)
	return nil
}

// RemoveRule drops the rule for trigger and reports whether one existed.
func (g *Graph) RemoveRule(trigger ir.StepID) bool {
	if _, ok := g.rules[trigger]; !ok {
		return false
	}
	delete(g.rules, trigger)
	g.ruleOrder = slices.DeleteFunc(g.ruleOrder, func(id ir.StepID) bool { return id == trigger })
	return true
}

// Rule returns the rule registered for trigger.
func (g *Graph) Rule(trigger ir.StepID) (Rule, bool) {
	r, ok := g.rules[trigger]
	return r, ok
}

// TriggeredRule is a rule together with its trigger.
type TriggeredRule struct {
	Trigger ir.StepID
	Rule    Rule
}

// Rules returns every registered rule in registration order.
func (g *Graph) Rules() []TriggeredRule {
	out := make([]TriggeredRule, len(g.ruleOrder))
	for i, id := range g.ruleOrder {
		out[i] = TriggeredRule{Trigger: id, Rule: g.rules[id]}
	}
	return out
}

// Steps returns a copy of the declared steps in order.
func (g *Graph) Steps() []ir.Step {
	return slices.Clone(g.steps)
}

// Len returns the number of declared steps.
func (g *Graph) Len() int { return len(g.steps) }

// Step returns the declared step with identifier id.
func (g *Graph) Step(id ir.StepID) (ir.Step, bool) {
	i, ok := g.index[id]
	if !ok {
		return ir.Step{}, false
	}
	return g.steps[i], true
}

// Has reports whether id is a declared step.
func (g *Graph) Has(id ir.StepID) bool {
	_, ok := g.index[id]
	return ok
}

// First returns the first declared step.
func (g *Graph) First() (ir.StepID, bool) {
	if len(g.steps) == 0 {
		return "", false
	}
	return g.steps[0].ID, true
}

// NextDeclaredAfter returns the step declared after id. It reports false when
// id is the last step or is not declared.
func (g *Graph) NextDeclaredAfter(id ir.StepID) (ir.StepID, bool) {
	i, ok := g.index[id]
	if !ok || i+1 >= len(g.steps) {
		return "", false
	}
	return g.steps[i+1].ID, true
}

func normalize(r Rule) Rule {
	switch rule := r.(type) {
	case *DirectRule:
		return *rule
	case *PredicateRule:
		return clonePredicateRule(*rule)
	case PredicateRule:
		return clonePredicateRule(rule)
	}
	return r
}

func clonePredicateRule(r PredicateRule) PredicateRule {
	r.Branches = slices.Clone(r.Branches)
	return r
}
