package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stepnav/internal/ir"
)

// LoadRun reads the latest checkpoint of a run.
// Returns ErrRunNotFound if no run has the id, and ErrDigestMismatch if the
// stored rows no longer hash to the digest written with them.
func (s *Store) LoadRun(ctx context.Context, runID string) (ir.TaskResult, error) {
	tr, digest, err := s.readRun(ctx, runID)
	if err != nil {
		return ir.TaskResult{}, err
	}

	got, err := ir.TaskResultDigest(tr)
	if err != nil {
		return ir.TaskResult{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	if got != digest {
		return ir.TaskResult{}, fmt.Errorf("load run %s: %w: stored %s, computed %s", runID, ErrDigestMismatch, digest, got)
	}
	return tr, nil
}

// readRun assembles a TaskResult from the three tables without checking the
// digest.
func (s *Store) readRun(ctx context.Context, runID string) (ir.TaskResult, string, error) {
	var (
		tr                 ir.TaskResult
		reason, current    string
		startedAt, endedAt string
		digest             string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, task_id, reason, current_step, started_at, ended_at, error, version, digest
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(&tr.RunID, &tr.TaskID, &reason, &current, &startedAt, &endedAt, &tr.Error, &tr.Version, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.TaskResult{}, "", fmt.Errorf("load run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return ir.TaskResult{}, "", fmt.Errorf("load run %s: %w", runID, err)
	}

	tr.Reason = ir.TerminationReason(reason)
	tr.Current = ir.StepID(current)
	if tr.StartedAt, err = parseTime(startedAt); err != nil {
		return ir.TaskResult{}, "", fmt.Errorf("load run %s: %w", runID, err)
	}
	if tr.EndedAt, err = parseTime(endedAt); err != nil {
		return ir.TaskResult{}, "", fmt.Errorf("load run %s: %w", runID, err)
	}

	if tr.Results, err = s.readStepResults(ctx, runID); err != nil {
		return ir.TaskResult{}, "", err
	}
	if tr.Path, err = s.readPath(ctx, runID); err != nil {
		return ir.TaskResult{}, "", err
	}
	return tr, digest, nil
}

// readStepResults returns a run's results ordered by position.
// Returns an empty slice (not nil) when the run has none.
func (s *Store) readStepResults(ctx context.Context, runID string) ([]ir.StepResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, answer, started_at, ended_at
		FROM step_results
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query step results: %w", err)
	}
	defer rows.Close()

	results := []ir.StepResult{}
	for rows.Next() {
		r, err := scanStepResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step results: %w", err)
	}
	return results, nil
}

func scanStepResult(rows *sql.Rows) (ir.StepResult, error) {
	var (
		id, answer, startedAt, endedAt string
		r                              ir.StepResult
		err                            error
	)
	if err := rows.Scan(&id, &answer, &startedAt, &endedAt); err != nil {
		return ir.StepResult{}, fmt.Errorf("scan step result: %w", err)
	}
	r.ID = ir.StepID(id)
	if r.Answer, err = unmarshalAnswer(answer); err != nil {
		return ir.StepResult{}, fmt.Errorf("step %s: %w", id, err)
	}
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return ir.StepResult{}, fmt.Errorf("step %s: %w", id, err)
	}
	if r.EndedAt, err = parseTime(endedAt); err != nil {
		return ir.StepResult{}, fmt.Errorf("step %s: %w", id, err)
	}
	return r, nil
}

// readPath returns a run's visited stack, bottom first.
func (s *Store) readPath(ctx context.Context, runID string) ([]ir.StepID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id FROM run_path
		WHERE run_id = ?
		ORDER BY depth ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query path: %w", err)
	}
	defer rows.Close()

	path := []ir.StepID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		path = append(path, ir.StepID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate path: %w", err)
	}
	return path, nil
}
