package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepnav/internal/ir"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "triage_severe_back.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "triage_severe_back", s.Name)
	assert.Equal(t, filepath.Join("testdata", "tasks", "triage.cue"), s.Task)
	assert.Equal(t, "run-triage-back", s.RunID)
	require.Len(t, s.Flow, 6)
	assert.Equal(t, ActionComplete, s.Flow[0].Action())
	assert.Equal(t, ActionBack, s.Flow[2].Action())
	assert.Equal(t, "severe", s.Flow[1].Expect.At)

	answer, err := s.Flow[1].AnswerValue()
	require.NoError(t, err)
	assert.Equal(t, ir.Collection{
		{ID: "breathless", Answer: ir.Bool(false)},
		{ID: "pain", Answer: ir.Number(8)},
	}, answer)
}

func TestLoadScenario_AllTestdata(t *testing.T) {
	files, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		_, err := LoadScenario(f)
		assert.NoError(t, err, f)
	}
}

func TestFlowStepAnswerValue(t *testing.T) {
	tests := []struct {
		name string
		step FlowStep
		want ir.AnswerValue
	}{
		{"omitted is skipped", FlowStep{Complete: "a"}, ir.Skipped{}},
		{"bool", FlowStep{Complete: "a", Answer: true}, ir.Bool(true)},
		{"int", FlowStep{Complete: "a", Answer: 4}, ir.Number(4)},
		{"text", FlowStep{Complete: "a", Answer: "hi"}, ir.Text("hi")},
		{"choices list", FlowStep{Complete: "a", Answer: []any{"x", "y"}}, ir.Choices{"x", "y"}},
		{"choices hint", FlowStep{Complete: "a", Answer: "x", Kind: "choices"}, ir.Choices{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.step.AnswerValue()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlowStepAction(t *testing.T) {
	assert.Equal(t, ActionCancel, FlowStep{Cancel: true}.Action())
	assert.Equal(t, ActionFail, FlowStep{Fail: "boom"}.Action())
	assert.Equal(t, "", FlowStep{}.Action())
	assert.Equal(t, "", FlowStep{Complete: "a", Back: true}.Action())
}

func TestLoadScenario_Errors(t *testing.T) {
	dir := t.TempDir()
	task := filepath.Join(dir, "task.cue")
	require.NoError(t, os.WriteFile(task, []byte(`task: t: steps: [{id: "a"}]`), 0o644))

	const header = "name: s\ndescription: d\ntask: task.cue\n"
	const flow = "flow:\n  - complete: a\n"
	const assertions = "assertions:\n  - type: terminated\n    reason: completed\n"

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing name", "description: d\ntask: task.cue\n" + flow + assertions, "name is required"},
		{"missing description", "name: s\ntask: task.cue\n" + flow + assertions, "description is required"},
		{"missing task", "name: s\ndescription: d\n" + flow + assertions, "task is required"},
		{"task not found", "name: s\ndescription: d\ntask: nope.cue\n" + flow + assertions, "task file not found"},
		{"empty flow", header + "flow: []\n" + assertions, "flow list is required"},
		{"no assertions", header + flow, "assertions list is required"},
		{"unknown field", header + flow + assertions + "assertion: []\n", "field assertion not found"},
		{"no action", header + "flow:\n  - expect: {at: a}\n" + assertions, "exactly one of complete, back, cancel or fail"},
		{"two actions", header + "flow:\n  - complete: a\n    back: true\n" + assertions, "exactly one of complete"},
		{"answer on back", header + "flow:\n  - back: true\n    answer: 1\n" + assertions, "answer is only valid with complete"},
		{"bad date", header + "flow:\n  - complete: a\n    answer: soon\n    kind: date\n" + assertions, "flow[0]: date"},
		{"empty expect", header + "flow:\n  - complete: a\n    expect: {}\n" + assertions, "one of at, terminated or error"},
		{"at and terminated", header + "flow:\n  - complete: a\n    expect: {at: a, terminated: completed}\n" + assertions, "cannot both be set"},
		{"bad reason", header + "flow:\n  - complete: a\n    expect: {terminated: done}\n" + assertions, `unknown termination reason "done"`},
		{"bad start", header + "start: {}\n" + flow + assertions, "start: one of at"},
		{"negative max_steps", header + "max_steps: -1\n" + flow + assertions, "max_steps must be non-negative"},
		{"assertion type", header + flow + "assertions:\n  - type: nope\n", `unknown assertion type "nope"`},
		{"assertion no type", header + flow + "assertions:\n  - step: a\n", "type is required"},
		{"path without steps", header + flow + "assertions:\n  - type: path_equals\n", "steps list is required for path_equals"},
		{"visited without step", header + flow + "assertions:\n  - type: visited\n", "step is required for visited"},
		{"terminated bad reason", header + flow + "assertions:\n  - type: terminated\n    reason: gone\n", `unknown termination reason "gone"`},
		{"answer_equals without step", header + flow + "assertions:\n  - type: answer_equals\n", "step is required for answer_equals"},
		{"trace_count without event", header + flow + "assertions:\n  - type: trace_count\n", "event is required"},
		{"trace_count negative", header + flow + "assertions:\n  - type: trace_count\n    event: present\n    count: -1\n", "count must be non-negative"},
		{"malformed", "name: [", "failed to parse YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "scenario.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join("testdata", "scenarios", "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
