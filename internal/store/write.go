package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stepnav/internal/ir"
)

// SaveCheckpoint writes a run snapshot, replacing whatever was stored for
// the run before. It implements engine.Checkpointer.
//
// The write is one transaction: the run row, its results and its path are
// replaced together. Saving the snapshot a run already holds is a no-op.
// Changing a terminal run returns ErrRunTerminated, and a run id cannot move
// to another task.
func (s *Store) SaveCheckpoint(ctx context.Context, tr ir.TaskResult) error {
	if tr.RunID == "" {
		return errors.New("save checkpoint: run id is required")
	}

	digest, err := ir.TaskResultDigest(tr)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", tr.RunID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: begin tx: %w", tr.RunID, err)
	}
	defer tx.Rollback() // No-op if committed

	var existingTask, existingReason, existingDigest string
	err = tx.QueryRowContext(ctx, `
		SELECT task_id, reason, digest FROM runs WHERE run_id = ?
	`, tr.RunID).Scan(&existingTask, &existingReason, &existingDigest)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO runs
			(run_id, task_id, seq, reason, current_step, started_at, ended_at, error, version, digest)
			VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?, ?, ?, ?, ?)
		`,
			tr.RunID,
			tr.TaskID,
			string(tr.Reason),
			string(tr.Current),
			formatTime(tr.StartedAt),
			formatTime(tr.EndedAt),
			tr.Error,
			tr.Version,
			digest,
		)
		if err != nil {
			return fmt.Errorf("save checkpoint %s: insert run: %w", tr.RunID, err)
		}

	case err != nil:
		return fmt.Errorf("save checkpoint %s: read run: %w", tr.RunID, err)

	default:
		if existingDigest == digest {
			return nil
		}
		if existingTask != tr.TaskID {
			return fmt.Errorf("save checkpoint %s: run belongs to task %q, not %q", tr.RunID, existingTask, tr.TaskID)
		}
		if existingReason != "" {
			return fmt.Errorf("save checkpoint %s: %w (%s)", tr.RunID, ErrRunTerminated, existingReason)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE runs SET
				reason = ?, current_step = ?, started_at = ?, ended_at = ?,
				error = ?, version = ?, digest = ?, checkpoints = checkpoints + 1
			WHERE run_id = ?
		`,
			string(tr.Reason),
			string(tr.Current),
			formatTime(tr.StartedAt),
			formatTime(tr.EndedAt),
			tr.Error,
			tr.Version,
			digest,
			tr.RunID,
		)
		if err != nil {
			return fmt.Errorf("save checkpoint %s: update run: %w", tr.RunID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM step_results WHERE run_id = ?`, tr.RunID); err != nil {
			return fmt.Errorf("save checkpoint %s: clear results: %w", tr.RunID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_path WHERE run_id = ?`, tr.RunID); err != nil {
			return fmt.Errorf("save checkpoint %s: clear path: %w", tr.RunID, err)
		}
	}

	for i, r := range tr.Results {
		answer, err := marshalAnswer(r.Answer)
		if err != nil {
			return fmt.Errorf("save checkpoint %s: step %s: %w", tr.RunID, r.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_results (run_id, position, step_id, answer, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, tr.RunID, i, string(r.ID), answer, formatTime(r.StartedAt), formatTime(r.EndedAt))
		if err != nil {
			return fmt.Errorf("save checkpoint %s: step %s: %w", tr.RunID, r.ID, err)
		}
	}

	for depth, id := range tr.Path {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_path (run_id, depth, step_id) VALUES (?, ?, ?)
		`, tr.RunID, depth, string(id))
		if err != nil {
			return fmt.Errorf("save checkpoint %s: path: %w", tr.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save checkpoint %s: commit: %w", tr.RunID, err)
	}
	return nil
}

// DeleteRun removes a run with its results and path. Deleting an unknown run
// returns ErrRunNotFound.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("delete run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}
