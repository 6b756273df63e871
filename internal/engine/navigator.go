package engine

import (
	"github.com/roach88/stepnav/internal/graph"
	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/predicate"
)

// Via names how a transition chose its destination.
type Via string

const (
	ViaFirst     Via = "first"     // first declared step
	ViaPredicate Via = "predicate" // a predicate branch matched
	ViaDefault   Via = "default"   // predicate rule default
	ViaDirect    Via = "direct"    // direct rule
	ViaDeclared  Via = "declared"  // declared linear order
)

// Transition is one computed forward move.
type Transition struct {
	From State
	To   State
	Via  Via

	// Branch is the index of the matching predicate branch, or -1.
	Branch int

	// Diagnostics holds predicate evaluation errors. Each one was treated
	// as "no match".
	Diagnostics []error
}

// Navigator computes forward transitions over a step graph.
//
// Navigator holds no run state and never looks at history: back-navigation
// is the TaskController's visited stack. It is safe for concurrent use as long
// as the graph is not being assembled.
type Navigator struct {
	graph *graph.Graph
}

// NewNavigator creates a navigator for g.
func NewNavigator(g *graph.Graph) *Navigator {
	return &Navigator{graph: g}
}

// Graph returns the navigator's graph.
func (n *Navigator) Graph() *graph.Graph { return n.graph }

// Next computes the transition out of from, evaluating predicates against src.
//
// From NotStarted the first declared step is chosen. From AtStep(id):
//  1. A rule registered for id is applied. A predicate rule takes the first
//     matching branch in order, then its default; a direct rule always yields
//     its destination.
//  2. Without a rule, or when a predicate rule produced nothing, the step
//     declared after id is chosen. None left terminates with completed.
//  3. The null step terminates with directed_to_null.
//  4. Any other destination must be declared, else UNKNOWN_DESTINATION.
func (n *Navigator) Next(from State, src predicate.Source) (Transition, error) {
	tr := Transition{From: from, Branch: -1}

	switch from.Phase {
	case NotStarted:
		tr.Via = ViaFirst
		first, ok := n.graph.First()
		if !ok {
			tr.To = StateTerminated(ir.ReasonCompleted)
			return tr, nil
		}
		tr.To = StateAt(first)
		return tr, nil
	case Terminated:
		return tr, navErr(ErrCodeTerminated, "", "", "run already terminated (%s)", from.Reason)
	}

	id := from.Step
	if !n.graph.Has(id) {
		return tr, navErr(ErrCodeStepMismatch, "", id, "current step is not declared")
	}

	dest, via, branch, diags := n.applyRule(id, src)
	tr.Diagnostics = diags
	tr.Branch = branch

	if dest == "" {
		tr.Via = ViaDeclared
		next, ok := n.graph.NextDeclaredAfter(id)
		if !ok {
			tr.To = StateTerminated(ir.ReasonCompleted)
			return tr, nil
		}
		tr.To = StateAt(next)
		return tr, nil
	}

	tr.Via = via
	if dest.IsNull() {
		tr.To = StateTerminated(ir.ReasonDirectedToNull)
		return tr, nil
	}
	if !n.graph.Has(dest) {
		return tr, NewUnknownDestinationError("", id, dest)
	}
	tr.To = StateAt(dest)
	return tr, nil
}

// applyRule returns the rule's destination for trigger, or "" when the rule
// yields nothing.
func (n *Navigator) applyRule(trigger ir.StepID, src predicate.Source) (ir.StepID, Via, int, []error) {
	rule, ok := n.graph.Rule(trigger)
	if !ok {
		return "", "", -1, nil
	}

	switch r := rule.(type) {
	case graph.DirectRule:
		return r.Destination, ViaDirect, -1, nil
	case graph.PredicateRule:
		var diags []error
		for i, b := range r.Branches {
			matched, err := b.Predicate.Evaluate(src)
			if err != nil {
				diags = append(diags, err)
				continue
			}
			if matched {
				return b.Destination, ViaPredicate, i, diags
			}
		}
		if r.Default != "" {
			return r.Default, ViaDefault, -1, diags
		}
		return "", "", -1, diags
	}
	return "", "", -1, nil
}
