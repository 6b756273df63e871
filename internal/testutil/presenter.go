package testutil

import (
	"context"
	"sync"

	"github.com/roach88/stepnav/internal/ir"
)

// Presentation is one step handed to a RecordingPresenter.
type Presentation struct {
	Step  ir.Step
	Prior *ir.StepResult
}

// RecordingPresenter records every presented step.
//
// Implements engine.Presenter interface. Err, when set, is returned from
// Present after recording.
type RecordingPresenter struct {
	mu    sync.Mutex
	shown []Presentation
	Err   error
}

// Present records the step.
func (p *RecordingPresenter) Present(_ context.Context, step ir.Step, prior *ir.StepResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, Presentation{Step: step, Prior: prior})
	return p.Err
}

// Presented returns the identifiers of presented steps in order.
func (p *RecordingPresenter) Presented() []ir.StepID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]ir.StepID, len(p.shown))
	for i, s := range p.shown {
		ids[i] = s.Step.ID
	}
	return ids
}

// Last returns the most recent presentation.
func (p *RecordingPresenter) Last() (Presentation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.shown) == 0 {
		return Presentation{}, false
	}
	return p.shown[len(p.shown)-1], true
}
