// Package results holds the answers collected during a single run.
//
// Store records step results by step identifier, overwriting in place when a
// step is completed again, and returns them in visitation order. Lookups go
// through ir.ResultSelector and may address the results of other, already
// finished tasks registered with AddTaskResult.
package results

import (
	"slices"
	"sync"

	"github.com/roach88/stepnav/internal/ir"
)

// Store is the result store of one run.
//
// A Store is written by a single TaskController. Reads are guarded so a host
// may evaluate predicates from another goroutine; use Clone to obtain a view
// that does not change under the caller.
type Store struct {
	mu         sync.RWMutex
	taskID     string
	order      []ir.StepID // first-visit order
	byID       map[ir.StepID]ir.StepResult
	additional map[string]ir.TaskResult
}

// New creates an empty store for a run of taskID.
func New(taskID string) *Store {
	return &Store{
		taskID:     taskID,
		byID:       make(map[ir.StepID]ir.StepResult),
		additional: make(map[string]ir.TaskResult),
	}
}

// FromResults rebuilds a store from results in visitation order.
// A later entry for the same step overwrites an earlier one.
func FromResults(taskID string, rs []ir.StepResult) *Store {
	s := New(taskID)
	for _, r := range rs {
		s.Record(r)
	}
	return s
}

// TaskID returns the task this store collects answers for.
func (s *Store) TaskID() string {
	return s.taskID
}

// Record inserts r or overwrites the existing result for r.ID. An overwritten
// result keeps the position of the first visit.
func (s *Store) Record(r ir.StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	s.byID[r.ID] = r
}

// Result returns the result recorded for id.
func (s *Store) Result(id ir.StepID) (ir.StepResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	return r, ok
}

// Has reports whether id has a recorded result.
func (s *Store) Has(id ir.StepID) bool {
	_, ok := s.Result(id)
	return ok
}

// Len returns the number of distinct steps recorded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Lookup resolves sel against the recorded results.
//
// Absence is not an error: an unvisited step, a step recorded without an
// answer, or a missing sub-result all report false.
func (s *Store) Lookup(sel ir.ResultSelector) (ir.AnswerValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sel.TaskID != "" && sel.TaskID != s.taskID {
		tr, ok := s.additional[sel.TaskID]
		if !ok {
			return nil, false
		}
		r, ok := tr.Result(sel.StepID)
		if !ok {
			return nil, false
		}
		return sel.Resolve(r)
	}

	r, ok := s.byID[sel.StepID]
	if !ok {
		return nil, false
	}
	return sel.Resolve(r)
}

// Snapshot returns the recorded results in visitation order.
// The returned slice is a copy.
func (s *Store) Snapshot() []ir.StepResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ir.StepResult, len(s.order))
	for i, id := range s.order {
		out[i] = s.byID[id]
	}
	return out
}

// AddTaskResult registers the result of another task so selectors naming
// tr.TaskID can reach it. Registering the same task again replaces it.
func (s *Store) AddTaskResult(tr ir.TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.additional[tr.TaskID] = tr.Clone()
}

// TaskResults returns the registered additional task results sorted by task id.
func (s *Store) TaskResults() []ir.TaskResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.additional))
	for id := range s.additional {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]ir.TaskResult, len(ids))
	for i, id := range ids {
		out[i] = s.additional[id]
	}
	return out
}

// Clone returns an independent copy of the store.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &Store{
		taskID:     s.taskID,
		order:      slices.Clone(s.order),
		byID:       make(map[ir.StepID]ir.StepResult, len(s.byID)),
		additional: make(map[string]ir.TaskResult, len(s.additional)),
	}
	for k, v := range s.byID {
		c.byID[k] = v
	}
	for k, v := range s.additional {
		c.additional[k] = v
	}
	return c
}
