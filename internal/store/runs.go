package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/stepnav/internal/ir"
)

// RunSummary is the run row without results, for listings.
type RunSummary struct {
	RunID       string               `json:"run_id"`
	TaskID      string               `json:"task_id"`
	Seq         int64                `json:"seq"`
	Reason      ir.TerminationReason `json:"reason,omitempty"`
	Current     ir.StepID            `json:"current,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	EndedAt     time.Time            `json:"ended_at,omitzero"`
	Steps       int                  `json:"steps"`       // recorded results
	Checkpoints int                  `json:"checkpoints"` // writes since the run was first saved
	Digest      string               `json:"digest"`
}

// IsComplete reports whether the run has ended.
func (r RunSummary) IsComplete() bool {
	return r.Reason != ir.ReasonNone
}

// RunFilter narrows ListRuns. The zero value lists every run.
type RunFilter struct {
	TaskID     string
	Incomplete bool // only runs still in progress
	Limit      int  // 0 means no limit
}

// ListRuns returns run summaries ordered by seq ASC, run_id ASC.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]RunSummary, error) {
	var (
		where []string
		args  []any
	)
	if f.TaskID != "" {
		where = append(where, "r.task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.Incomplete {
		where = append(where, "r.reason = ''")
	}

	query := `
		SELECT r.run_id, r.task_id, r.seq, r.reason, r.current_step, r.started_at, r.ended_at,
		       r.checkpoints, r.digest,
		       (SELECT COUNT(*) FROM step_results sr WHERE sr.run_id = r.run_id)
		FROM runs r`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY r.seq ASC, r.run_id COLLATE BINARY ASC"
	if f.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var (
			r                  RunSummary
			reason, current    string
			startedAt, endedAt string
		)
		if err := rows.Scan(&r.RunID, &r.TaskID, &r.Seq, &reason, &current, &startedAt, &endedAt,
			&r.Checkpoints, &r.Digest, &r.Steps); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Reason = ir.TerminationReason(reason)
		r.Current = ir.StepID(current)
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.RunID, err)
		}
		if r.EndedAt, err = parseTime(endedAt); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.RunID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// FindIncompleteRuns returns every run still in progress, oldest first.
//
// Used after a crash to find runs a host can resume from their last
// checkpoint.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]RunSummary, error) {
	runs, err := s.ListRuns(ctx, RunFilter{Incomplete: true})
	if err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
	}
	return runs, nil
}

// CompletedResults loads every terminal, non-partial run of a task, oldest
// first. Hosts pass these to engine.WithAdditionalResults so predicates can
// refer to earlier tasks.
func (s *Store) CompletedResults(ctx context.Context, taskID string) ([]ir.TaskResult, error) {
	runs, err := s.ListRuns(ctx, RunFilter{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	var out []ir.TaskResult
	for _, r := range runs {
		if !r.IsComplete() || r.Reason.IsPartial() {
			continue
		}
		tr, err := s.LoadRun(ctx, r.RunID)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}
