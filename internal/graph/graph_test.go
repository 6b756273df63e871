package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/predicate"
)

func steps(ids ...string) []ir.Step {
	out := make([]ir.Step, len(ids))
	for i, id := range ids {
		out[i] = ir.Step{ID: ir.StepID(id)}
	}
	return out
}

func severityIs(v bool) predicate.Predicate {
	return predicate.BoolEquals{Selector: ir.ResultSelector{StepID: "form", SubResultID: "severity"}, Expected: v}
}

func TestDeclareSteps(t *testing.T) {
	g := New("survey")
	require.NoError(t, g.DeclareSteps(steps("a", "b", "c")))

	assert.Equal(t, 3, g.Len())
	first, ok := g.First()
	require.True(t, ok)
	assert.Equal(t, ir.StepID("a"), first)

	s, ok := g.Step("c")
	require.True(t, ok)
	assert.Equal(t, 2, s.Position)
	assert.True(t, g.Has("b"))
	assert.False(t, g.Has("z"))
}

func TestDeclareStepsErrors(t *testing.T) {
	tests := []struct {
		name  string
		steps []ir.Step
		code  ConfigurationErrorCode
	}{
		{"duplicate", steps("a", "b", "a"), ErrCodeDuplicateStep},
		{"empty id", steps("a", ""), ErrCodeEmptyStepID},
		{"reserved", []ir.Step{{ID: ir.NullStepID}}, ErrCodeReservedStepID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New("t").DeclareSteps(tt.steps)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Equal(t, tt.code, ConfigurationCode(err))
		})
	}
}

func TestRedeclareBeforeRulesAllowed(t *testing.T) {
	g := New("t")
	require.NoError(t, g.DeclareSteps(steps("a")))
	require.NoError(t, g.DeclareSteps(steps("x", "y")))
	assert.False(t, g.Has("a"))
	assert.True(t, g.Has("y"))
}

func TestRedeclareAfterRulesRejected(t *testing.T) {
	g := New("t")
	require.NoError(t, g.DeclareSteps(steps("a", "b")))
	require.NoError(t, g.SetRule("a", DirectRule{Destination: "b"}))

	err := g.DeclareSteps(steps("a", "b", "c"))
	assert.Equal(t, ErrCodeStepsAlreadyDeclared, ConfigurationCode(err))
}

func TestSetRuleBeforeDeclare(t *testing.T) {
	err := New("t").SetRule("a", DirectRule{Destination: "b"})
	assert.Equal(t, ErrCodeStepsNotDeclared, ConfigurationCode(err))
}

func TestSetRuleInvalid(t *testing.T) {
	g := New("t")
	require.NoError(t, g.DeclareSteps(steps("a", "b")))

	tests := []struct {
		name    string
		trigger ir.StepID
		rule    Rule
		code    ConfigurationErrorCode
	}{
		{"nil rule", "a", nil, ErrCodeInvalidRule},
		{"empty trigger", "", DirectRule{Destination: "b"}, ErrCodeInvalidRule},
		{"null trigger", ir.NullStepID, DirectRule{Destination: "b"}, ErrCodeReservedStepID},
		{"direct without destination", "a", DirectRule{}, ErrCodeInvalidRule},
		{"empty predicate rule", "a", PredicateRule{}, ErrCodeInvalidRule},
		{"branch without predicate", "a", PredicateRule{Branches: []Branch{{Destination: "b"}}}, ErrCodeInvalidRule},
		{"branch without destination", "a", PredicateRule{Branches: []Branch{{Predicate: severityIs(true)}}}, ErrCodeInvalidRule},
		{"nil pointer", "a", (*DirectRule)(nil), ErrCodeInvalidRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.SetRule(tt.trigger, tt.rule)
			assert.Equal(t, tt.code, ConfigurationCode(err))
		})
	}
}

func TestSetRuleLazyDestination(t *testing.T) {
	g := New("t")
	require.NoError(t, g.DeclareSteps(steps("a")))
	assert.NoError(t, g.SetRule("a", DirectRule{Destination: "not-yet-declared"}))
}

func TestDuplicateRulePermissive(t *testing.T) {
	g := New("t")
	require.NoError(t, g.DeclareSteps(steps("a", "b", "c")))
	require.NoError(t, g.SetRule("a", DirectRule{Destination: "b"}))
	require.NoError(t, g.SetRule("a", DirectRule{Destination: "c"}))

	r, ok := g.Rule("a")
	require.True(t, ok)
	assert.Equal(t, DirectRule{Destination: "c"}, r, "last registration wins")
	assert.Len(t, g.Rules(), 1)
}

func TestDuplicateRuleStrict(t *testing.T) {
	g := New("t", WithStrictRules())
	assert.True(t, g.Strict())
	require.NoError(t, g.DeclareSteps(steps("a", "b", "c")))
	require.NoError(t, g.SetRule("a", DirectRule{Destination: "b"}))

	err := g.SetRule("a", DirectRule{Destination: "c"})
	assert.Equal(t, ErrCodeDuplicateRule, ConfigurationCode(err))

	r, _ := g.Rule("a")
	assert.Equal(t, DirectRule{Destination: "b"}, r)
}

func TestRemoveRule(t *testing.T) {
	g := New("t")
	require.NoError(t, g.DeclareSteps(steps("a", "b", "c")))
	require.NoError(t, g.SetRule("a", DirectRule{Destination: "c"}))
	require.NoError(t, g.SetRule("b", &DirectRule{Destination: ir.NullStepID}))

	assert.True(t, g.RemoveRule("a"))
	assert.False(t, g.RemoveRule("a"))

	rules := g.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, ir.StepID("b"), rules[0].Trigger)
	assert.Equal(t, DirectRule{Destination: ir.NullStepID}, rules[0].Rule, "pointer rules are stored by value")
}

func TestNextDeclaredAfter(t *testing.T) {
	g := New("t")
	require.NoError(t, g.DeclareSteps(steps("a", "b")))

	next, ok := g.NextDeclaredAfter("a")
	require.True(t, ok)
	assert.Equal(t, ir.StepID("b"), next)

	_, ok = g.NextDeclaredAfter("b")
	assert.False(t, ok, "last step has no successor")

	_, ok = g.NextDeclaredAfter("zzz")
	assert.False(t, ok)
}

func TestRuleDestinations(t *testing.T) {
	r := PredicateRule{
		Branches: []Branch{
			{Predicate: severityIs(true), Destination: "severe"},
			{Predicate: severityIs(false), Destination: "light"},
		},
		Default: "end",
	}
	assert.Equal(t, []ir.StepID{"severe", "light", "end"}, r.Destinations())
	assert.Equal(t, []ir.StepID{ir.NullStepID}, DirectRule{Destination: ir.NullStepID}.Destinations())
	assert.Contains(t, r.String(), "default -> end")
}

func TestDefinitionBuild(t *testing.T) {
	def := Definition{
		TaskID: "triage",
		Steps:  steps("intro", "form", "severe", "light", "end"),
		Rules: []TriggeredRule{
			{Trigger: "form", Rule: PredicateRule{Branches: []Branch{
				{Predicate: severityIs(true), Destination: "severe"},
				{Predicate: severityIs(false), Destination: "light"},
			}}},
			{Trigger: "severe", Rule: DirectRule{Destination: "end"}},
			{Trigger: "light", Rule: DirectRule{Destination: "end"}},
		},
	}

	g, err := def.Build()
	require.NoError(t, err)
	assert.Equal(t, "triage", g.TaskID())
	assert.Len(t, g.Rules(), 3)

	back := g.Definition()
	assert.Equal(t, def.TaskID, back.TaskID)
	assert.Len(t, back.Steps, 5)
	assert.Equal(t, 4, back.Steps[4].Position)
}

func TestDefinitionBuildStrictDuplicate(t *testing.T) {
	def := Definition{
		TaskID: "t",
		Steps:  steps("a", "b"),
		Rules: []TriggeredRule{
			{Trigger: "a", Rule: DirectRule{Destination: "b"}},
			{Trigger: "a", Rule: DirectRule{Destination: ir.NullStepID}},
		},
	}

	_, err := def.Build(WithStrictRules())
	require.Error(t, err)
	assert.Equal(t, ErrCodeDuplicateRule, ConfigurationCode(err))
	assert.Contains(t, err.Error(), "task t")

	_, err = def.Build()
	assert.NoError(t, err)
}
