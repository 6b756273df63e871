package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stepnav/internal/engine"
	"github.com/roach88/stepnav/internal/graph"
	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/store"
)

// VerifyResult is the output of the verify command.
type VerifyResult struct {
	Checked int           `json:"checked"`
	Failed  int           `json:"failed"`
	Runs    []RunVerified `json:"runs"`
}

// RunVerified is the verdict for one stored run.
type RunVerified struct {
	RunID  string `json:"run_id"`
	TaskID string `json:"task_id"`
	OK     bool   `json:"ok"`
	Digest string `json:"digest,omitempty"`

	// Restored is set when the run was restored against its task graph.
	Restored bool   `json:"restored,omitempty"`
	Problem  string `json:"problem,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var tasks string

	cmd := &cobra.Command{
		Use:   "verify [run-id]",
		Short: "Verify stored run checkpoints",
		Long: `Check that each stored run still hashes to the digest written with it. With
--tasks, each run is also restored against its task graph and the restored
checkpoint must have the same digest.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			st, err := requireStore(f, rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			var graphs map[string]*graph.Graph
			if tasks != "" {
				graphs, err = buildGraphs(tasks, rootOpts.StrictRules)
				if err != nil {
					return failLoad(f, err)
				}
			}

			var ids []string
			if len(args) == 1 {
				ids = args
			} else {
				runs, err := st.ListRuns(ctx, store.RunFilter{})
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
				}
				for _, r := range runs {
					ids = append(ids, r.RunID)
				}
			}

			result := VerifyResult{Runs: []RunVerified{}}
			for _, id := range ids {
				v := verifyRun(ctx, st, id, graphs)
				result.Checked++
				if !v.OK {
					result.Failed++
				}
				result.Runs = append(result.Runs, v)
			}
			return reportVerify(f, result)
		},
	}

	cmd.Flags().StringVar(&tasks, "tasks", "", "CUE task definitions to restore runs against")

	return cmd
}

func verifyRun(ctx context.Context, st *store.Store, runID string, graphs map[string]*graph.Graph) RunVerified {
	v := RunVerified{RunID: runID}

	tr, err := st.LoadRun(ctx, runID)
	switch {
	case errors.Is(err, store.ErrDigestMismatch):
		v.Problem = "digest mismatch"
		return v
	case errors.Is(err, store.ErrRunNotFound):
		v.Problem = "run not found"
		return v
	case err != nil:
		v.Problem = err.Error()
		return v
	}
	v.TaskID = tr.TaskID
	v.Digest = ir.MustTaskResultDigest(tr)

	if graphs != nil {
		g, ok := graphs[tr.TaskID]
		if !ok {
			v.Problem = fmt.Sprintf("task %s not defined", tr.TaskID)
			return v
		}
		discard := engine.PresenterFunc(func(context.Context, ir.Step, *ir.StepResult) error { return nil })
		ctrl, err := engine.Restore(g, discard, tr)
		if err != nil {
			v.Problem = err.Error()
			return v
		}
		if got := ir.MustTaskResultDigest(ctrl.Checkpoint()); got != v.Digest {
			v.Problem = "restored checkpoint digest differs"
			return v
		}
		v.Restored = true
	}

	v.OK = true
	return v
}

func reportVerify(f *OutputFormatter, r VerifyResult) error {
	if f.IsJSON() {
		if r.Failed > 0 {
			_ = f.Error(ErrCodeLoadFailed, fmt.Sprintf("%d of %d run(s) failed verification", r.Failed, r.Checked), r)
			return NewExitError(ExitFailure, "verification failed")
		}
		return f.Success(r)
	}

	var b strings.Builder
	for _, v := range r.Runs {
		if v.OK {
			suffix := ""
			if v.Restored {
				suffix = ", restorable"
			}
			fmt.Fprintf(&b, "✓ %s (%s) %s%s\n", v.RunID, v.TaskID, short(v.Digest), suffix)
			continue
		}
		fmt.Fprintf(&b, "✗ %s: %s\n", v.RunID, v.Problem)
	}
	fmt.Fprintf(&b, "%d checked, %d failed\n", r.Checked, r.Failed)
	fmt.Fprint(f.Writer, b.String())

	if r.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d run(s) failed verification", r.Failed))
	}
	return nil
}

// buildGraphs compiles every task at path and builds its graph.
func buildGraphs(path string, strict bool) (map[string]*graph.Graph, error) {
	loaded, errs := LoadTasks(path, FailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	var opts []graph.Option
	if strict {
		opts = append(opts, graph.WithStrictRules())
	}
	out := make(map[string]*graph.Graph, len(loaded.Tasks))
	for _, def := range loaded.Tasks {
		g, err := def.Build(opts...)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
		}
		out[def.TaskID] = g
	}
	return out, nil
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
