package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stepnav/internal/store"
)

// PruneResult lists the runs removed by prune.
type PruneResult struct {
	Deleted []string `json:"deleted"`
	Missing []string `json:"missing,omitempty"`
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	var incomplete bool

	cmd := &cobra.Command{
		Use:   "prune [run-id...]",
		Short: "Delete stored runs",
		Long: `Delete the named runs with their results and paths. With --incomplete, also
delete every run still in progress, for example runs abandoned after a crash.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if len(args) == 0 && !incomplete {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "pass run ids or --incomplete", nil)
			}
			st, err := requireStore(f, rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			return runPrune(ctx, f, st, args, incomplete)
		},
	}

	cmd.Flags().BoolVar(&incomplete, "incomplete", false, "delete every run still in progress")

	return cmd
}

func runPrune(ctx context.Context, f *OutputFormatter, st *store.Store, ids []string, incomplete bool) error {
	if incomplete {
		runs, err := st.FindIncompleteRuns(ctx)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeLoadFailed, err.Error(), nil)
		}
		for _, r := range runs {
			ids = append(ids, r.RunID)
		}
	}

	result := PruneResult{Deleted: []string{}}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		err := st.DeleteRun(ctx, id)
		switch {
		case errors.Is(err, store.ErrRunNotFound):
			result.Missing = append(result.Missing, id)
		case err != nil:
			return f.Fail(ExitFailure, ErrCodeWriteFailed, err.Error(), result)
		default:
			f.VerboseLog("deleted %s", id)
			result.Deleted = append(result.Deleted, id)
		}
	}

	if len(result.Missing) > 0 {
		return f.Fail(ExitFailure, ErrCodeNotFound,
			fmt.Sprintf("run(s) not found: %s", strings.Join(result.Missing, ", ")), result)
	}
	if f.IsJSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ Deleted %d run(s)\n", len(result.Deleted))
	return nil
}
