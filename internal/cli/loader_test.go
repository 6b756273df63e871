package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepnav/internal/compiler"
)

func loadErrCode(t *testing.T, err error) string {
	t.Helper()
	le, ok := err.(*LoadError)
	require.True(t, ok, "expected *LoadError, got %T: %v", err, err)
	return le.Code
}

func TestLoadTasksFile(t *testing.T) {
	res, errs := LoadTasks(testdata("tasks", "triage.cue"), FailFast)
	require.Empty(t, errs)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "triage", res.Tasks[0].TaskID)
	assert.Equal(t, 1, res.FileCount)
}

func TestLoadTasksDirectory(t *testing.T) {
	res, errs := LoadTasks(testdata("clinic"), FailFast)
	require.Empty(t, errs)
	assert.Equal(t, 2, res.FileCount)

	var ids []string
	for _, def := range res.Tasks {
		ids = append(ids, def.TaskID)
	}
	assert.ElementsMatch(t, []string{"screening", "followup"}, ids)
}

func TestLoadTasksModes(t *testing.T) {
	res, errs := LoadTasks(testdata("mixed"), FailFast)
	require.Len(t, errs, 1)
	assert.Empty(t, res.Tasks, "fail-fast stops at the first bad task")
	assert.Equal(t, compiler.ErrEmptyRule, loadErrCode(t, errs[0]))

	res, errs = LoadTasks(testdata("mixed"), CollectAll)
	require.Len(t, errs, 1)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "good", res.Tasks[0].TaskID)
}

func TestLoadTasksErrors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		res, errs := LoadTasks("/nonexistent/tasks", FailFast)
		assert.Nil(t, res)
		require.Len(t, errs, 1)
		assert.Equal(t, ErrCodeNotFound, loadErrCode(t, errs[0]))
	})

	t.Run("no cue files", func(t *testing.T) {
		res, errs := LoadTasks(t.TempDir(), FailFast)
		assert.Nil(t, res)
		require.Len(t, errs, 1)
		assert.Equal(t, ErrCodeNoFiles, loadErrCode(t, errs[0]))
	})

	t.Run("syntax error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.cue")
		require.NoError(t, os.WriteFile(path, []byte("task: x: {steps: [\n"), 0o644))

		res, errs := LoadTasks(path, CollectAll)
		assert.Nil(t, res)
		require.Len(t, errs, 1)
		assert.Equal(t, ErrCodeLoadFailed, loadErrCode(t, errs[0]))
	})

	t.Run("no task field", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "other.cue")
		require.NoError(t, os.WriteFile(path, []byte("other: 1\n"), 0o644))

		_, errs := LoadTasks(path, CollectAll)
		require.Len(t, errs, 1)
		assert.Equal(t, ErrCodeNoFiles, loadErrCode(t, errs[0]))
	})
}

func TestLoadTaskSelection(t *testing.T) {
	g, err := loadTask(testdata("clinic"), "followup", false)
	require.NoError(t, err)
	assert.Equal(t, "followup", g.TaskID())

	_, err = loadTask(testdata("clinic"), "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defines 2 tasks")

	_, err = loadTask(testdata("clinic"), "nope", false)
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotFound, loadErrCode(t, err))
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"rules.a.predicate.branches[0].when.text.matches", compiler.ErrInvalidPattern},
		{"rules.a.predicate.branches[0].to", compiler.ErrInvalidBranch},
		{"rules.a.predicate", compiler.ErrEmptyRule},
		{"steps[2].id", compiler.ErrStepIDEmpty},
		{"id", compiler.ErrTaskIDEmpty},
		{"cue", ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field))
		})
	}
}
