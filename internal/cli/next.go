package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stepnav/internal/engine"
	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/results"
	"github.com/roach88/stepnav/internal/store"
)

// NextPreview is the output of the next command.
type NextPreview struct {
	RunID       string          `json:"run_id"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Via         string          `json:"via"`
	Branch      int             `json:"branch"`
	Answer      json.RawMessage `json:"answer,omitempty"`
	Diagnostics []string        `json:"diagnostics,omitempty"`
	Destination ir.StepID       `json:"destination,omitempty"`
}

// NewNextCommand creates the next command.
func NewNextCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		answer string
		kind   string
	)

	cmd := &cobra.Command{
		Use:   "next <run-id> <path>",
		Short: "Preview where a run goes next",
		Long: `Compute the transition out of a stored run's current step without changing
the run. --answer is parsed as YAML and stands in for the current step's
result; without it the result already recorded for the step is used.`,
		Args:          cobra.ExactArgs(2),
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

			var override ir.AnswerValue
			if cmd.Flags().Changed("answer") {
				override, err = parseAnswerFlag(answer, kind)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
				}
			}
			return runNext(ctx, f, rootOpts, st, args[0], args[1], override)
		},
	}

	cmd.Flags().StringVar(&answer, "answer", "", "answer for the current step, as YAML")
	cmd.Flags().StringVar(&kind, "kind", "", "answer kind hint (date, choices)")

	return cmd
}

func runNext(ctx context.Context, f *OutputFormatter, opts *RootOptions, st *store.Store, runID, path string, override ir.AnswerValue) error {
	snapshot, err := st.LoadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run %s not found", runID), nil)
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeLoadFailed, err.Error(), nil)
	}
	if snapshot.IsTerminal() {
		return f.Fail(ExitFailure, string(engine.ErrCodeTerminated), fmt.Sprintf("run %s already terminated (%s)", runID, snapshot.Reason), nil)
	}

	g, err := loadTask(path, snapshot.TaskID, opts.StrictRules)
	if err != nil {
		return failLoad(f, err)
	}
	prior, err := priorResults(ctx, st, g.TaskID())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}

	src := results.FromResults(g.TaskID(), snapshot.Results)
	for _, tr := range prior {
		src.AddTaskResult(tr)
	}
	current := snapshot.Current
	if _, skipped := override.(ir.Skipped); skipped {
		if step, ok := g.Step(current); ok && !step.IsOptional() {
			return f.Fail(ExitFailure, string(engine.ErrCodeAnswerRequired),
				fmt.Sprintf("step %s is not optional and cannot be skipped", current), nil)
		}
	}
	if override != nil {
		src.Record(ir.StepResult{ID: current, Answer: override})
	} else if !src.Has(current) {
		return f.Fail(ExitFailure, string(engine.ErrCodeAnswerRequired),
			fmt.Sprintf("step %s has no recorded result; pass --answer", current), nil)
	}

	tr, err := engine.NewNavigator(g).Next(engine.StateAt(current), src)
	if err != nil {
		code := string(engine.NavigationCode(err))
		if code == "" {
			code = ErrCodeGeneric
		}
		return f.Fail(ExitFailure, code, err.Error(), nil)
	}

	preview := NextPreview{
		RunID:  runID,
		From:   tr.From.String(),
		To:     tr.To.String(),
		Via:    string(tr.Via),
		Branch: tr.Branch,
	}
	if tr.To.Phase == engine.AtStep {
		preview.Destination = tr.To.Step
	}
	if r, ok := src.Result(current); ok {
		preview.Answer, err = ir.MarshalAnswer(r.Answer)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
	}
	for _, d := range tr.Diagnostics {
		preview.Diagnostics = append(preview.Diagnostics, d.Error())
	}

	if f.IsJSON() {
		return f.Success(preview)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s → %s via %s", preview.From, preview.To, preview.Via)
	if preview.Branch >= 0 {
		fmt.Fprintf(&b, " (branch %d)", preview.Branch)
	}
	b.WriteByte('\n')
	for _, d := range preview.Diagnostics {
		fmt.Fprintf(&b, "  ⚠ %s\n", d)
	}
	fmt.Fprint(f.Writer, b.String())
	return nil
}

// parseAnswerFlag decodes a YAML scalar, list or map into an answer.
func parseAnswerFlag(raw, kind string) (ir.AnswerValue, error) {
	var native any
	if err := yaml.Unmarshal([]byte(raw), &native); err != nil {
		return nil, fmt.Errorf("parse --answer: %w", err)
	}
	v, err := ir.AnswerFromNative(native, ir.AnswerKind(kind))
	if err != nil {
		return nil, fmt.Errorf("parse --answer: %w", err)
	}
	return v, nil
}
