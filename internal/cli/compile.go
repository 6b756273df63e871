package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/stepnav/internal/graph"
	"github.com/roach88/stepnav/internal/ir"
)

// TaskSummary is the compiled, JSON-serializable view of a task.
type TaskSummary struct {
	ID    string        `json:"id"`
	Steps []ir.Step     `json:"steps"`
	Rules []RuleSummary `json:"rules"`
}

// RuleSummary describes one rule in compile output.
type RuleSummary struct {
	Trigger      ir.StepID   `json:"trigger"`
	Kind         string      `json:"kind"` // "direct" | "predicate"
	Destinations []ir.StepID `json:"destinations"`
	Description  string      `json:"description"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "compile <path>",
		Short: "Compile task definitions to JSON",
		Long: `Compile every task in a CUE file or directory and print its declared steps
and rules as JSON. Steps carry their declared position.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, rootOpts, args[0], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write JSON to file instead of stdout")

	return cmd
}

func runCompile(cmd *cobra.Command, opts *RootOptions, path, output string) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, errs := LoadTasks(path, FailFast)
	if len(errs) > 0 {
		return failLoad(f, errs[0])
	}

	var buildOpts []graph.Option
	if opts.StrictRules {
		buildOpts = append(buildOpts, graph.WithStrictRules())
	}

	summaries := make([]TaskSummary, 0, len(loaded.Tasks))
	for _, def := range loaded.Tasks {
		g, err := def.Build(buildOpts...)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeBuildFailed, err.Error(), nil)
		}
		summaries = append(summaries, summarize(g))
	}
	f.VerboseLog("Compiled %d task(s) from %d file(s)", len(summaries), loaded.FileCount)

	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	data = append(data, '\n')

	if output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("write %s: %v", output, err), nil)
	}
	if !f.IsJSON() {
		fmt.Fprintf(f.Writer, "✓ Wrote %d task(s) to %s\n", len(summaries), output)
	}
	return nil
}

func summarize(g *graph.Graph) TaskSummary {
	s := TaskSummary{ID: g.TaskID(), Steps: g.Steps(), Rules: []RuleSummary{}}
	for _, tr := range g.Rules() {
		kind := "predicate"
		if _, ok := tr.Rule.(graph.DirectRule); ok {
			kind = "direct"
		}
		s.Rules = append(s.Rules, RuleSummary{
			Trigger:      tr.Trigger,
			Kind:         kind,
			Destinations: tr.Rule.Destinations(),
			Description:  tr.Rule.String(),
		})
	}
	return s
}
