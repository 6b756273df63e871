package engine

import (
	"context"

	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/predicate"
)

// Presenter renders steps for the host.
//
// Present hands the step to the UI and returns; the outcome arrives later
// through TaskController.StepDidComplete, Cancel or Fail. prior is the result
// recorded for the step on an earlier visit, or nil. Present runs after the
// controller lock is released and may call back into the controller, for
// example to complete the step at once.
type Presenter interface {
	Present(ctx context.Context, step ir.Step, prior *ir.StepResult) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, step ir.Step, prior *ir.StepResult) error

// Present implements Presenter.
func (f PresenterFunc) Present(ctx context.Context, step ir.Step, prior *ir.StepResult) error {
	return f(ctx, step, prior)
}

// Hooks are optional host callbacks. A nil field is skipped.
//
// ShouldPresent and WillDisappear run under the controller lock and must not
// call back into the controller. WillAppear runs outside it, right before
// Present.
type Hooks struct {
	// ShouldPresent may veto a step before it is presented. A vetoed step
	// records no result and is not pushed on the visited stack; navigation
	// continues forward from it.
	ShouldPresent func(ctx context.Context, step ir.Step, src predicate.Source) bool

	// WillAppear fires right before a step is handed to the presenter.
	WillAppear func(ctx context.Context, step ir.Step)

	// WillDisappear fires when the current step is left, forward, back or
	// by termination.
	WillDisappear func(ctx context.Context, step ir.Step)
}

func (h Hooks) shouldPresent(ctx context.Context, step ir.Step, src predicate.Source) bool {
	if h.ShouldPresent == nil {
		return true
	}
	return h.ShouldPresent(ctx, step, src)
}

func (h Hooks) willAppear(ctx context.Context, step ir.Step) {
	if h.WillAppear != nil {
		h.WillAppear(ctx, step)
	}
}

func (h Hooks) willDisappear(ctx context.Context, step ir.Step) {
	if h.WillDisappear != nil {
		h.WillDisappear(ctx, step)
	}
}

// Checkpointer persists run snapshots. *store.Store implements it.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, snapshot ir.TaskResult) error
}
