package harness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioOutcome is the result of one scenario within a suite.
type ScenarioOutcome struct {
	Path   string
	Name   string
	Result *Result

	// Err is set when the scenario could not be loaded or run.
	Err error
}

// Pass reports whether the scenario ran and every check held.
func (o ScenarioOutcome) Pass() bool {
	return o.Err == nil && o.Result != nil && o.Result.Pass
}

// SuiteResult aggregates the outcomes of a scenario directory.
type SuiteResult struct {
	Outcomes []ScenarioOutcome
	Passed   int
	Failed   int
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// FindScenarios returns every .yaml or .yml file under path, sorted. A file
// path is returned as is.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(p)
		if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario under path. When filter is not
// empty, only scenarios whose name contains it are run.
func RunSuite(ctx context.Context, path, filter string) (*SuiteResult, error) {
	files, err := FindScenarios(path)
	if err != nil {
		return nil, fmt.Errorf("find scenarios: %w", err)
	}

	suite := &SuiteResult{Outcomes: []ScenarioOutcome{}}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		outcome := ScenarioOutcome{Path: file}
		scenario, err := LoadScenario(file)
		if err != nil {
			outcome.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			outcome.Err = err
		} else {
			outcome.Name = scenario.Name
		}
		if filter != "" && !strings.Contains(outcome.Name, filter) {
			continue
		}
		if scenario != nil {
			outcome.Result, outcome.Err = Run(ctx, scenario)
		}

		if outcome.Pass() {
			suite.Passed++
		} else {
			suite.Failed++
		}
		suite.Outcomes = append(suite.Outcomes, outcome)
	}
	return suite, nil
}
