package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/stepnav/internal/graph"
)

// BuildValue evaluates the CUE at path, which is either a single .cue file
// or a directory holding one CUE package. It returns the value and the
// number of files read.
func BuildValue(path string) (cue.Value, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, 0, err
	}

	ctx := cuecontext.New()

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return cue.Value{}, 0, err
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return cue.Value{}, 1, formatCUEError(err)
		}
		return v, 1, nil
	}

	files, err := FindCUEFiles(path)
	if err != nil {
		return cue.Value{}, 0, err
	}
	if len(files) == 0 {
		return cue.Value{}, 0, fmt.Errorf("no CUE files found in %s", path)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return cue.Value{}, len(files), fmt.Errorf("no CUE instances loaded from %s", path)
	}
	if err := instances[0].Err; err != nil {
		return cue.Value{}, len(files), fmt.Errorf("loading CUE files: %w", err)
	}

	v := ctx.BuildInstance(instances[0])
	if err := v.Err(); err != nil {
		return cue.Value{}, len(files), formatCUEError(err)
	}
	return v, len(files), nil
}

// Load builds the CUE at path and compiles every task in it.
func Load(path string) ([]*graph.Definition, error) {
	v, _, err := BuildValue(path)
	if err != nil {
		return nil, err
	}
	defs, err := CompileAll(v)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no tasks found in %s", path)
	}
	return defs, nil
}

// LoadTask loads path and returns the task named id. An empty id selects
// the only task, and is an error when the CUE holds more than one.
func LoadTask(path, id string) (*graph.Definition, error) {
	defs, err := Load(path)
	if err != nil {
		return nil, err
	}
	if id == "" {
		if len(defs) > 1 {
			return nil, fmt.Errorf("%s defines %d tasks; name one", path, len(defs))
		}
		return defs[0], nil
	}
	for _, d := range defs {
		if d.TaskID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("task %q not found in %s", id, path)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
