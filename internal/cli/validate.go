package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stepnav/internal/compiler"
)

// ValidateResult is the output of the validate command.
type ValidateResult struct {
	Valid     bool               `json:"valid"`
	TaskCount int                `json:"task_count"`
	FileCount int                `json:"file_count"`
	Tasks     []string           `json:"tasks,omitempty"`
	Errors    []ValidationDetail `json:"errors,omitempty"`
	Warnings  []WarningDetail    `json:"warnings,omitempty"`
}

// ValidationDetail is one error in validate output.
type ValidationDetail struct {
	Task    string `json:"task,omitempty"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// WarningDetail is one static-analysis finding.
type WarningDetail struct {
	Task string `json:"task"`
	compiler.Warning
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var noWarnings bool

	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate task definitions",
		Long: `Compile every task in a CUE file or directory, check it, and run static
analysis. Errors make the command fail; warnings (loops, dangling destinations,
unreachable steps) are reported but do not.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, args[0], !noWarnings)
		},
	}

	cmd.Flags().BoolVar(&noWarnings, "no-warnings", false, "skip static analysis")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *RootOptions, path string, analyze bool) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	f.VerboseLog("Validating tasks in %s", path)

	loaded, errs := LoadTasks(path, CollectAll)
	if loaded == nil {
		return failLoad(f, errs[0])
	}

	result := ValidateResult{FileCount: loaded.FileCount}
	for _, err := range errs {
		detail := ValidationDetail{Code: ErrCodeGeneric, Message: err.Error()}
		if le, ok := err.(*LoadError); ok {
			detail.Code = le.Code
			detail.Message = le.Message
			if le.Pos.IsValid() {
				detail.Line = le.Pos.Line()
			}
		}
		result.Errors = append(result.Errors, detail)
	}

	for _, def := range loaded.Tasks {
		result.Tasks = append(result.Tasks, def.TaskID)
		for _, ve := range compiler.Validate(def) {
			result.Errors = append(result.Errors, ValidationDetail{
				Task:    def.TaskID,
				Code:    ve.Code,
				Field:   ve.Field,
				Message: ve.Message,
				Line:    ve.Line,
			})
		}
		if analyze {
			for _, w := range compiler.Analyze(def) {
				result.Warnings = append(result.Warnings, WarningDetail{Task: def.TaskID, Warning: w})
			}
		}
	}
	result.TaskCount = len(loaded.Tasks)
	result.Valid = len(result.Errors) == 0

	if f.IsJSON() {
		if !result.Valid {
			_ = f.Error(result.Errors[0].Code, "validation failed", result)
			return NewExitError(ExitFailure, "validation failed")
		}
		return f.Success(result)
	}

	fmt.Fprint(f.Writer, formatValidateText(result))
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed: %d error(s)", len(result.Errors)))
	}
	return nil
}

func formatValidateText(r ValidateResult) string {
	var b strings.Builder
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "%s %s [%s] %s: %s\n", levelMark(w.Level), w.Task, w.Code, strings.Join(w.Path, " -> "), w.Message)
	}
	if r.Valid {
		fmt.Fprintf(&b, "✓ %d task(s) valid in %d file(s)\n", r.TaskCount, r.FileCount)
		return b.String()
	}

	b.WriteString("✗ Validation failed\n")
	for _, e := range r.Errors {
		b.WriteString("  ")
		if e.Task != "" {
			b.WriteString(e.Task + ": ")
		}
		if e.Line > 0 {
			fmt.Fprintf(&b, "line %d: ", e.Line)
		}
		fmt.Fprintf(&b, "[%s] ", e.Code)
		if e.Field != "" {
			b.WriteString(e.Field + ": ")
		}
		b.WriteString(e.Message + "\n")
	}
	return b.String()
}

func levelMark(level string) string {
	if level == compiler.LevelInfo {
		return "ℹ"
	}
	return "⚠"
}
