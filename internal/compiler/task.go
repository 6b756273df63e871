// Package compiler turns CUE task definitions into graph definitions.
//
// A task is written as:
//
//	task: triage: {
//		steps: [
//			{id: "intro", kind: "instruction"},
//			{id: "symptoms", kind: "form"},
//			{id: "severe"},
//			{id: "mild", optional: true},
//			{id: "done", no_back: true},
//		]
//		rules: {
//			symptoms: predicate: {
//				branches: [{
//					when: number: {step: "symptoms", result: "pain", min: 7}
//					to:   "severe"
//				}]
//				default: "mild"
//			}
//			severe: direct: "done"
//			done: direct: null
//		}
//	}
//
// A null destination is the null step and ends the run. Steps without a rule
// follow declared order. Compilation checks shape only: a destination that
// names no declared step is accepted here and reported by Analyze.
package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/stepnav/internal/graph"
	"github.com/roach88/stepnav/internal/ir"
)

// CompileTask parses a CUE task value into a graph.Definition.
//
// The task id is the value's label unless an explicit id field is present:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	def, err := CompileTask(v.LookupPath(cue.ParsePath("task.triage")))
func CompileTask(v cue.Value) (*graph.Definition, error) {
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &graph.Definition{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.TaskID = strings.Trim(labels[len(labels)-1].String(), `"`)
	}
	id, ok, err := optionalString(v, "id")
	if err != nil {
		return nil, err
	}
	if ok {
		def.TaskID = id
	}
	if def.TaskID == "" {
		return nil, compileErr("id", v, "task id is required")
	}

	def.Steps, err = parseSteps(v)
	if err != nil {
		return nil, err
	}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if rulesVal.Exists() {
		def.Rules, err = parseRules(rulesVal)
		if err != nil {
			return nil, err
		}
	}

	return def, nil
}

// CompileAll compiles every task under the top-level "task" field of v, in
// source order.
func CompileAll(v cue.Value) ([]*graph.Definition, error) {
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}
	tasksVal := v.LookupPath(cue.ParsePath("task"))
	if !tasksVal.Exists() {
		return nil, nil
	}

	iter, err := tasksVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var defs []*graph.Definition
	for iter.Next() {
		def, err := CompileTask(iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func parseSteps(v cue.Value) ([]ir.Step, error) {
	stepsVal := v.LookupPath(cue.ParsePath("steps"))
	if !stepsVal.Exists() {
		return nil, compileErr("steps", v, "steps is required")
	}

	iter, err := stepsVal.List()
	if err != nil {
		return nil, compileErr("steps", stepsVal, "steps must be a list")
	}

	var steps []ir.Step
	for i := 0; iter.Next(); i++ {
		step, err := parseStep(iter.Value(), i)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseStep(v cue.Value, index int) (ir.Step, error) {
	field := fmt.Sprintf("steps[%d]", index)

	idVal := v.LookupPath(cue.ParsePath("id"))
	if !idVal.Exists() {
		return ir.Step{}, compileErr(field+".id", v, "step id is required")
	}
	id, err := idVal.String()
	if err != nil {
		return ir.Step{}, compileErr(field+".id", idVal, "step id must be a string")
	}

	step := ir.Step{ID: ir.StepID(id)}
	if step.Kind, _, err = optionalString(v, "kind"); err != nil {
		return ir.Step{}, err
	}
	if step.Title, _, err = optionalString(v, "title"); err != nil {
		return ir.Step{}, err
	}
	if step.Optional, err = optionalBool(v, "optional"); err != nil {
		return ir.Step{}, err
	}
	if step.NoBack, err = optionalBool(v, "no_back"); err != nil {
		return ir.Step{}, err
	}
	return step, nil
}

// parseRules reads the rules struct. Field order is kept so that Rules()
// reports registration order.
func parseRules(v cue.Value) ([]graph.TriggeredRule, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, compileErr("rules", v, "rules must be a struct keyed by trigger step")
	}

	var out []graph.TriggeredRule
	for iter.Next() {
		trigger := iter.Selector().Unquoted()
		rule, err := parseRule("rules."+trigger, iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, graph.TriggeredRule{Trigger: ir.StepID(trigger), Rule: rule})
	}
	return out, nil
}

func parseRule(field string, v cue.Value) (graph.Rule, error) {
	directVal := v.LookupPath(cue.ParsePath("direct"))
	predVal := v.LookupPath(cue.ParsePath("predicate"))

	switch {
	case directVal.Exists() && predVal.Exists():
		return nil, compileErr(field, v, "rule must be either direct or predicate, not both")
	case directVal.Exists():
		dest, err := parseDestination(field+".direct", directVal)
		if err != nil {
			return nil, err
		}
		return graph.DirectRule{Destination: dest}, nil
	case predVal.Exists():
		return parsePredicateRule(field+".predicate", predVal)
	default:
		return nil, compileErr(field, v, "rule must have a direct or predicate field")
	}
}

func parsePredicateRule(field string, v cue.Value) (graph.Rule, error) {
	rule := graph.PredicateRule{}

	branchesVal := v.LookupPath(cue.ParsePath("branches"))
	if branchesVal.Exists() {
		iter, err := branchesVal.List()
		if err != nil {
			return nil, compileErr(field+".branches", branchesVal, "branches must be a list")
		}
		for i := 0; iter.Next(); i++ {
			bf := fmt.Sprintf("%s.branches[%d]", field, i)
			b := iter.Value()

			whenVal := b.LookupPath(cue.ParsePath("when"))
			if !whenVal.Exists() {
				return nil, compileErr(bf+".when", b, "branch condition is required")
			}
			pred, err := parsePredicate(bf+".when", whenVal)
			if err != nil {
				return nil, err
			}

			toVal := b.LookupPath(cue.ParsePath("to"))
			if !toVal.Exists() {
				return nil, compileErr(bf+".to", b, "branch destination is required")
			}
			dest, err := parseDestination(bf+".to", toVal)
			if err != nil {
				return nil, err
			}
			rule.Branches = append(rule.Branches, graph.Branch{Predicate: pred, Destination: dest})
		}
	}

	defaultVal := v.LookupPath(cue.ParsePath("default"))
	if defaultVal.Exists() {
		dest, err := parseDestination(field+".default", defaultVal)
		if err != nil {
			return nil, err
		}
		rule.Default = dest
	}

	if len(rule.Branches) == 0 && rule.Default == "" {
		return nil, compileErr(field, v, "predicate rule needs at least one branch or a default")
	}
	return rule, nil
}

// parseDestination maps null to the null step.
func parseDestination(field string, v cue.Value) (ir.StepID, error) {
	if v.IsNull() {
		return ir.NullStepID, nil
	}
	s, err := v.String()
	if err != nil {
		return "", compileErr(field, v, "destination must be a step id or null")
	}
	if s == "" {
		return "", compileErr(field, v, "destination must not be empty")
	}
	return ir.StepID(s), nil
}

func optionalString(v cue.Value, name string) (string, bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", false, compileErr(name, f, "%s must be a string", name)
	}
	return s, true, nil
}

func optionalBool(v cue.Value, name string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, compileErr(name, f, "%s must be a bool", name)
	}
	return b, nil
}
