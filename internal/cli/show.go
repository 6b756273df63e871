package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/store"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		task       string
		incomplete bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show stored runs",
		Long: `With a run id, print that run's checkpoint: results in visitation order, the
visited path and the current step or termination reason. Without one, list the
runs in the database.`,
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

			if len(args) == 1 {
				return showRun(ctx, f, st, args[0])
			}
			return listRuns(ctx, f, st, store.RunFilter{TaskID: task, Incomplete: incomplete, Limit: limit})
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "only runs of this task")
	cmd.Flags().BoolVar(&incomplete, "incomplete", false, "only runs still in progress")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum runs to list (0 = all)")

	return cmd
}

func showRun(ctx context.Context, f *OutputFormatter, st *store.Store, runID string) error {
	tr, err := st.LoadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run %s not found", runID), nil)
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeLoadFailed, err.Error(), nil)
	}

	if f.IsJSON() {
		return f.Success(tr)
	}
	fmt.Fprint(f.Writer, formatRunDetail(tr))
	return nil
}

func formatRunDetail(tr ir.TaskResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (task %s)\n", tr.RunID, tr.TaskID)
	fmt.Fprintf(&b, "  started: %s\n", tr.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	if tr.IsTerminal() {
		fmt.Fprintf(&b, "  ended:   %s (%s)\n", tr.EndedAt.Format("2006-01-02T15:04:05Z07:00"), tr.Reason)
		if tr.Error != "" {
			fmt.Fprintf(&b, "  error:   %s\n", tr.Error)
		}
	} else {
		fmt.Fprintf(&b, "  at:      %s\n", tr.Current)
	}
	fmt.Fprintf(&b, "  path:    %s\n", joinSteps(tr.Path))
	fmt.Fprintf(&b, "  results:\n")
	for _, r := range tr.Results {
		data, err := ir.MarshalCanonical(r.Answer)
		if err != nil {
			data = []byte(err.Error())
		}
		fmt.Fprintf(&b, "    %-16s %s\n", r.ID, data)
	}
	return b.String()
}

func listRuns(ctx context.Context, f *OutputFormatter, st *store.Store, filter store.RunFilter) error {
	runs, err := st.ListRuns(ctx, filter)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}

	if f.IsJSON() {
		return f.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(f.Writer, "No runs")
		return nil
	}
	for _, r := range runs {
		status := "at " + string(r.Current)
		if r.IsComplete() {
			status = string(r.Reason)
		}
		fmt.Fprintf(f.Writer, "%4d  %-36s  %-16s  %-20s  %d result(s)\n", r.Seq, r.RunID, r.TaskID, status, r.Steps)
	}
	return nil
}

// requireStore opens the database named by --db, failing when none is set.
func requireStore(f *OutputFormatter, opts *RootOptions) (*store.Store, error) {
	if opts.Database == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeGeneric, "--db is required", nil)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}
	return st, nil
}
