package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/stepnav/internal/compiler"
	"github.com/roach88/stepnav/internal/graph"
)

// LoadMode controls how errors are handled during task compilation.
type LoadMode int

const (
	// FailFast stops at the first compilation error (for run, compile).
	FailFast LoadMode = iota
	// CollectAll collects all compilation errors (for validate).
	CollectAll
)

// LoadResult contains successfully compiled tasks and metadata.
type LoadResult struct {
	Tasks     []*graph.Definition
	CUEValue  cue.Value
	FileCount int
}

// LoadError represents a compilation error with position info.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: [%s] %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Error codes for task loading.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"
	ErrCodeWriteFailed = "E007"
)

// LoadTasks loads and compiles every task from the CUE at path.
//
// In FailFast mode compilation stops at the first task that does not
// compile. In CollectAll mode every task is tried and all errors are
// returned alongside the tasks that did compile.
func LoadTasks(path string, mode LoadMode) (*LoadResult, []error) {
	if _, err := os.Stat(path); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}}
	}

	v, n, err := compiler.BuildValue(path)
	if err != nil {
		code := ErrCodeLoadFailed
		if n == 0 && strings.Contains(err.Error(), "no CUE files") {
			code = ErrCodeNoFiles
		}
		return nil, []error{convertCompileError(code, err)}
	}

	result := &LoadResult{CUEValue: v, FileCount: n}

	tasks := v.LookupPath(cue.ParsePath("task"))
	if !tasks.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no tasks found in %s", path)}}
	}
	iter, err := tasks.Fields()
	if err != nil {
		return result, []error{convertCompileError(ErrCodeLoadFailed, err)}
	}

	var errs []error
	for iter.Next() {
		def, err := compiler.CompileTask(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError("", err))
			if mode == FailFast {
				return result, errs
			}
			continue
		}
		result.Tasks = append(result.Tasks, def)
	}
	return result, errs
}

// loadTask loads path and selects one task for a run. An empty id selects
// the only task.
func loadTask(path, id string, strict bool) (*graph.Graph, error) {
	res, errs := LoadTasks(path, FailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}

	var def *graph.Definition
	switch {
	case id == "" && len(res.Tasks) == 1:
		def = res.Tasks[0]
	case id == "":
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s defines %d tasks; pass --task", path, len(res.Tasks))}
	default:
		for _, d := range res.Tasks {
			if d.TaskID == id {
				def = d
			}
		}
	}
	if def == nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("task %q not found in %s", id, path)}
	}

	var opts []graph.Option
	if strict {
		opts = append(opts, graph.WithStrictRules())
	}
	g, err := def.Build(opts...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
	}
	return g, nil
}

// convertCompileError converts a compiler error into a LoadError, keeping
// the CUE position when there is one. An empty code is derived from the
// failing field.
func convertCompileError(code string, err error) *LoadError {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		if code == "" {
			code = MapFieldToErrorCode(ce.Field)
		}
		msg := ce.Message
		if ce.Field != "" && ce.Field != "cue" {
			msg = ce.Field + ": " + ce.Message
		}
		return &LoadError{Code: code, Message: msg, Pos: ce.Pos}
	}
	if code == "" {
		code = ErrCodeGeneric
	}
	return &LoadError{Code: code, Message: err.Error()}
}

// MapFieldToErrorCode maps a compile error field path to a validation code.
func MapFieldToErrorCode(field string) string {
	switch {
	case strings.Contains(field, ".matches"), strings.Contains(field, ".pattern"):
		return compiler.ErrInvalidPattern
	case strings.Contains(field, "branches"):
		return compiler.ErrInvalidBranch
	case strings.Contains(field, "rules"):
		return compiler.ErrEmptyRule
	case strings.Contains(field, "steps"):
		return compiler.ErrStepIDEmpty
	case strings.HasSuffix(field, ".id") || field == "id":
		return compiler.ErrTaskIDEmpty
	default:
		return ErrCodeGeneric
	}
}
