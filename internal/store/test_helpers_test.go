package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/testutil"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func at(seconds int) time.Time {
	return testutil.Epoch.Add(time.Duration(seconds) * time.Second)
}

// createTestCheckpoint creates an in-progress snapshot positioned at current,
// with one answered step per entry of path.
func createTestCheckpoint(runID string, current ir.StepID, path ...ir.StepID) ir.TaskResult {
	results := []ir.StepResult{}
	for i, id := range path {
		results = append(results, ir.StepResult{
			ID:        id,
			Answer:    ir.Text("answer-" + string(id)),
			StartedAt: at(2 * i),
			EndedAt:   at(2*i + 1),
		})
	}
	return ir.TaskResult{
		TaskID:    "intake",
		RunID:     runID,
		Results:   results,
		Path:      append([]ir.StepID{}, path...),
		Current:   current,
		StartedAt: at(0),
		Version:   ir.SnapshotVersion,
	}
}
