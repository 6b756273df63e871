package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/store"
)

// seedRuns stores one terminated and one paused triage run.
func seedRuns(t *testing.T, opts *RootOptions) {
	t.Helper()
	runOpts := &RootOptions{Format: "text", Database: opts.Database}

	_, err := execute(t, NewRunCommand(runOpts), testdata("tasks", "triage.cue"),
		"--answers", testdata("answers", "triage_mild.yaml"), "--run-id", "run-a")
	require.NoError(t, err)
	_, err = execute(t, NewRunCommand(runOpts), testdata("tasks", "triage.cue"),
		"--answers", testdata("answers", "triage_partial.yaml"), "--run-id", "run-b")
	require.NoError(t, err)
}

func TestShowListsRuns(t *testing.T) {
	opts := dbOptions(t, "text")
	seedRuns(t, opts)

	out, err := execute(t, NewShowCommand(opts))
	require.NoError(t, err)
	assert.Contains(t, out, "run-a")
	assert.Contains(t, out, "directed_to_null")
	assert.Contains(t, out, "run-b")
	assert.Contains(t, out, "at severe")
}

func TestShowIncompleteJSON(t *testing.T) {
	opts := dbOptions(t, "json")
	seedRuns(t, opts)

	out, err := execute(t, NewShowCommand(opts), "--incomplete")
	require.NoError(t, err)

	var runs []store.RunSummary
	decodeResponse(t, out, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-b", runs[0].RunID)
	assert.Equal(t, ir.StepID("severe"), runs[0].Current)
	assert.Equal(t, 2, runs[0].Steps)
}

func TestShowSingleRun(t *testing.T) {
	opts := dbOptions(t, "text")
	seedRuns(t, opts)

	out, err := execute(t, NewShowCommand(opts), "run-a")
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-a (task triage)")
	assert.Contains(t, out, "(directed_to_null)")
	assert.Contains(t, out, "path:    intro → symptoms → mild → done")
	assert.Contains(t, out, `"kind":"skipped"`)
}

func TestShowSingleRunJSON(t *testing.T) {
	opts := dbOptions(t, "json")
	seedRuns(t, opts)

	out, err := execute(t, NewShowCommand(opts), "run-b")
	require.NoError(t, err)

	var tr ir.TaskResult
	decodeResponse(t, out, &tr)
	assert.Equal(t, "run-b", tr.RunID)
	assert.Equal(t, ir.StepID("severe"), tr.Current)
	assert.Equal(t, []ir.StepID{"intro", "symptoms"}, tr.StepIDs())
}

func TestShowErrors(t *testing.T) {
	_, err := execute(t, NewShowCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db is required")

	_, err = execute(t, NewShowCommand(dbOptions(t, "text")), "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E005")
}

func TestShowEmpty(t *testing.T) {
	out, err := execute(t, NewShowCommand(dbOptions(t, "text")))
	require.NoError(t, err)
	assert.Contains(t, out, "No runs")
}
