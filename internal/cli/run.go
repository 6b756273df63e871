package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stepnav/internal/engine"
	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/store"
)

// AnswerScript supplies answers for a non-interactive run.
//
//	answers:
//	  intro: true
//	  symptoms: { pain: 3, breathless: false }
//	  mild: null        # skipped
//	kinds:
//	  visit: date
//
// A step with no entry pauses the run there.
type AnswerScript struct {
	Answers map[string]any    `yaml:"answers"`
	Kinds   map[string]string `yaml:"kinds,omitempty"`
}

// LoadAnswerScript reads an answer script. An empty path yields an empty
// script.
func LoadAnswerScript(path string) (*AnswerScript, error) {
	script := &AnswerScript{Answers: map[string]any{}}
	if path == "" {
		return script, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answers file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(script); err != nil {
		return nil, fmt.Errorf("failed to parse answers file: %w", err)
	}
	if script.Answers == nil {
		script.Answers = map[string]any{}
	}
	for id := range script.Answers {
		if _, err := script.answer(ir.StepID(id)); err != nil {
			return nil, err
		}
	}
	return script, nil
}

// answer returns the scripted answer for id, or nil when there is none.
func (s *AnswerScript) answer(id ir.StepID) (ir.AnswerValue, error) {
	raw, ok := s.Answers[string(id)]
	if !ok {
		return nil, nil
	}
	v, err := ir.AnswerFromNative(raw, ir.AnswerKind(s.Kinds[string(id)]))
	if err != nil {
		return nil, fmt.Errorf("answer for %s: %w", id, err)
	}
	return v, nil
}

// RunReport summarizes a driven run.
type RunReport struct {
	RunID     string               `json:"run_id"`
	TaskID    string               `json:"task_id"`
	State     string               `json:"state"`
	Reason    ir.TerminationReason `json:"reason,omitempty"`
	Current   ir.StepID            `json:"current,omitempty"`
	Presented []ir.StepID          `json:"presented"`
	Path      []ir.StepID          `json:"path"`
	Results   int                  `json:"results"`
	Error     string               `json:"error,omitempty"`
	Digest    string               `json:"digest"`
}

type runOptions struct {
	task        string
	answers     string
	runID       string
	metricsFile string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var ro runOptions

	cmd := &cobra.Command{
		Use:   "run <path>",
		Short: "Run a task from an answer script",
		Long: `Start a run of a task and complete steps from an answer script until the run
terminates or reaches a step the script does not answer. With --db every
transition is checkpointed so the run can be resumed later, and completed runs
of other tasks in the database are visible to predicates.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, rootOpts, args[0], ro)
		},
	}

	cmd.Flags().StringVar(&ro.task, "task", "", "task id (required when the path defines several)")
	cmd.Flags().StringVar(&ro.answers, "answers", "", "YAML answer script")
	cmd.Flags().StringVar(&ro.runID, "run-id", "", "fixed run id (default UUIDv7)")
	cmd.Flags().StringVar(&ro.metricsFile, "metrics-file", "", "write Prometheus metrics to file")

	return cmd
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	var ro runOptions

	cmd := &cobra.Command{
		Use:   "resume <run-id> <path>",
		Short: "Resume a checkpointed run",
		Long: `Restore an in-progress run from the database, re-present its current step and
continue completing steps from an answer script.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, rootOpts, args[0], args[1], ro)
		},
	}

	cmd.Flags().StringVar(&ro.answers, "answers", "", "YAML answer script")
	cmd.Flags().StringVar(&ro.metricsFile, "metrics-file", "", "write Prometheus metrics to file")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RootOptions, path string, ro runOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	g, err := loadTask(path, ro.task, opts.StrictRules)
	if err != nil {
		return failLoad(f, err)
	}
	script, err := LoadAnswerScript(ro.answers)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}
	defer st.Close()

	prior, err := priorResults(ctx, st, g.TaskID())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}
	f.VerboseLog("Loaded %d prior task result(s)", len(prior))

	d := newDriver(f, script)
	reg := prometheus.NewRegistry()
	engineOpts := d.options(opts, st, reg)
	engineOpts = append(engineOpts, engine.WithAdditionalResults(prior...))
	if ro.runID != "" {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(engine.NewFixedGenerator(ro.runID)))
	}

	ctrl := engine.NewTaskController(g, engine.PresenterFunc(d.present), engineOpts...)
	if err := ctrl.Start(ctx); err != nil {
		return d.finish(ctrl, ro.metricsFile, reg, err)
	}
	return d.finish(ctrl, ro.metricsFile, reg, d.drive(ctx, ctrl))
}

func runResume(cmd *cobra.Command, opts *RootOptions, runID, path string, ro runOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Database == "" {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "resume requires --db", nil)
	}
	st, err := openStore(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}
	defer st.Close()

	snapshot, err := st.LoadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run %s not found", runID), nil)
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeLoadFailed, err.Error(), nil)
	}
	if snapshot.IsTerminal() {
		return f.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("run %s already terminated (%s)", runID, snapshot.Reason), nil)
	}

	g, err := loadTask(path, snapshot.TaskID, opts.StrictRules)
	if err != nil {
		return failLoad(f, err)
	}
	script, err := LoadAnswerScript(ro.answers)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}
	prior, err := priorResults(ctx, st, g.TaskID())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}

	d := newDriver(f, script)
	reg := prometheus.NewRegistry()
	engineOpts := append(d.options(opts, st, reg), engine.WithAdditionalResults(prior...))

	ctrl, err := engine.Restore(g, engine.PresenterFunc(d.present), snapshot, engineOpts...)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeBuildFailed, err.Error(), nil)
	}
	if err := ctrl.Resume(ctx); err != nil {
		return d.finish(ctrl, ro.metricsFile, reg, err)
	}
	return d.finish(ctrl, ro.metricsFile, reg, d.drive(ctx, ctrl))
}

// driver completes steps from an answer script.
//
// The presenter only records what was shown. Answers are fed back from drive
// once each call returns, so a long script never nests presenter calls.
type driver struct {
	f         *OutputFormatter
	script    *AnswerScript
	presented []ir.StepID
}

func newDriver(f *OutputFormatter, script *AnswerScript) *driver {
	return &driver{f: f, script: script}
}

func (d *driver) options(opts *RootOptions, st *store.Store, reg prometheus.Registerer) []engine.Option {
	out := []engine.Option{
		engine.WithCheckpointer(st),
		engine.WithMetrics(engine.MustNewMetrics(reg)),
		engine.WithLogger(slog.Default()),
	}
	if opts.MaxSteps > 0 {
		out = append(out, engine.WithMaxSteps(opts.MaxSteps))
	}
	return out
}

func (d *driver) present(_ context.Context, step ir.Step, prior *ir.StepResult) error {
	d.presented = append(d.presented, step.ID)
	if prior != nil {
		d.f.VerboseLog("→ %s (re-presented)", step.ID)
	} else {
		d.f.VerboseLog("→ %s", step.ID)
	}
	return nil
}

// drive completes the current step until the run terminates or the script
// has no answer for it.
func (d *driver) drive(ctx context.Context, ctrl *engine.TaskController) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		state := ctrl.State()
		if state.Phase != engine.AtStep {
			return nil
		}
		answer, err := d.script.answer(state.Step)
		if err != nil {
			return err
		}
		if answer == nil {
			return nil
		}
		if err := ctrl.StepDidComplete(ctx, ir.StepResult{ID: state.Step, Answer: answer}); err != nil {
			return err
		}
	}
}

// finish reports the run and writes metrics. A run that failed or an action
// the engine rejected exits with ExitFailure.
func (d *driver) finish(ctrl *engine.TaskController, metricsFile string, reg *prometheus.Registry, runErr error) error {
	snapshot := ctrl.Checkpoint()
	report := RunReport{
		RunID:     snapshot.RunID,
		TaskID:    snapshot.TaskID,
		State:     ctrl.State().String(),
		Reason:    snapshot.Reason,
		Current:   snapshot.Current,
		Presented: d.presented,
		Path:      snapshot.Path,
		Results:   len(snapshot.Results),
		Error:     snapshot.Error,
		Digest:    ir.MustTaskResultDigest(snapshot),
	}
	if report.Presented == nil {
		report.Presented = []ir.StepID{}
	}

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			return d.f.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("write metrics: %v", err), nil)
		}
	}

	if runErr != nil {
		code := string(engine.NavigationCode(runErr))
		if code == "" {
			code = ErrCodeGeneric
		}
		_ = d.f.Error(code, runErr.Error(), report)
		return WrapExitError(ExitFailure, "run stopped", runErr)
	}

	if d.f.IsJSON() {
		return d.f.Success(report)
	}
	fmt.Fprint(d.f.Writer, formatRunText(report))
	if report.Reason == ir.ReasonFailed {
		return NewExitError(ExitFailure, "run failed: "+report.Error)
	}
	return nil
}

func formatRunText(r RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (task %s)\n", r.RunID, r.TaskID)
	fmt.Fprintf(&b, "  presented: %s\n", joinSteps(r.Presented))
	fmt.Fprintf(&b, "  path:      %s\n", joinSteps(r.Path))
	switch {
	case r.Reason == ir.ReasonFailed:
		fmt.Fprintf(&b, "✗ failed: %s\n", r.Error)
	case r.Reason != ir.ReasonNone:
		fmt.Fprintf(&b, "✓ terminated (%s) with %d result(s)\n", r.Reason, r.Results)
	default:
		fmt.Fprintf(&b, "… paused at %s with %d result(s)\n", r.Current, r.Results)
	}
	return b.String()
}

func joinSteps(ids []ir.StepID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, " → ")
}

// openStore opens the run database, or an in-memory one when path is empty.
func openStore(path string) (*store.Store, error) {
	if path == "" {
		path = ":memory:"
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// priorResults returns the latest completed run of every task other than
// taskID, for predicates that look at earlier tasks.
func priorResults(ctx context.Context, st *store.Store, taskID string) ([]ir.TaskResult, error) {
	runs, err := st.ListRuns(ctx, store.RunFilter{})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{taskID: true}
	var out []ir.TaskResult
	for _, r := range runs {
		if seen[r.TaskID] {
			continue
		}
		seen[r.TaskID] = true
		trs, err := st.CompletedResults(ctx, r.TaskID)
		if err != nil {
			return nil, err
		}
		if len(trs) > 0 {
			out = append(out, trs[len(trs)-1])
		}
	}
	return out, nil
}

func failLoad(f *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		msg := le.Message
		if le.Pos.IsValid() {
			msg = fmt.Sprintf("%s:%d:%d: %s", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column(), msg)
		}
		return f.Fail(ExitCommandError, le.Code, msg, nil)
	}
	return f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
}
