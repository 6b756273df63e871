package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/stepnav/internal/graph"
	"github.com/roach88/stepnav/internal/ir"
	"github.com/roach88/stepnav/internal/predicate"
	"github.com/roach88/stepnav/internal/results"
)

// DefaultMaxSteps is the default maximum number of presentations per run.
const DefaultMaxSteps = 1000

// TaskController drives a single run end-to-end.
//
// It owns the run's result store and visited stack, asks the Navigator for
// forward transitions, and hands steps to the Presenter.
//
// Thread-safety model:
//   - Every operation takes the controller lock, so at most one transition
//     is computed at a time.
//   - The lock is released before WillAppear and Present run, so a presenter
//     may complete the step from inside Present.
//   - A failed operation leaves the run unchanged, except where documented
//     (presenter errors and quota exhaustion fail the run).
//
// INVARIANTS:
//   - path holds completed steps in visit order; the current step is never on it
//   - store holds at most one result per step, in first-visit order
//   - once terminated, final never changes
type TaskController struct {
	mu sync.Mutex

	graph     *graph.Graph
	nav       *Navigator
	presenter Presenter

	state     State
	runID     string
	store     *results.Store
	path      []ir.StepID
	startedAt time.Time
	endedAt   time.Time
	errMsg    string
	shownAt   time.Time // when the current step was presented
	entered   uint64    // bumped on every step entry
	active    bool
	final     *ir.TaskResult

	transitions []Transition

	clock        Clock
	runIDs       RunIDGenerator
	hooks        Hooks
	checkpointer Checkpointer
	metrics      *Metrics
	logger       *slog.Logger
	quota        *QuotaEnforcer
	skips        *SkipChainDetector
	additional   []ir.TaskResult
}

// Option configures a TaskController.
type Option func(*TaskController)

// WithClock sets the clock used for timestamps. Default: SystemClock.
func WithClock(clock Clock) Option {
	return func(c *TaskController) { c.clock = clock }
}

// WithRunIDGenerator sets the run identifier source. Default: UUIDv7Generator.
func WithRunIDGenerator(gen RunIDGenerator) Option {
	return func(c *TaskController) { c.runIDs = gen }
}

// WithHooks installs host hooks.
func WithHooks(h Hooks) Option {
	return func(c *TaskController) { c.hooks = h }
}

// WithCheckpointer persists a snapshot after every committed change.
func WithCheckpointer(cp Checkpointer) Option {
	return func(c *TaskController) { c.checkpointer = cp }
}

// WithMetrics records Prometheus metrics. Default: none.
func WithMetrics(m *Metrics) Option {
	return func(c *TaskController) { c.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *TaskController) { c.logger = l }
}

// WithMaxSteps sets the presentation quota.
//
// Default: 1000 (DefaultMaxSteps). Zero disables the quota.
func WithMaxSteps(maxSteps int) Option {
	return func(c *TaskController) { c.quota = NewQuotaEnforcer(maxSteps) }
}

// WithAdditionalResults makes results of other tasks reachable from
// predicates through ResultSelector.TaskID.
func WithAdditionalResults(trs ...ir.TaskResult) Option {
	return func(c *TaskController) { c.additional = append(c.additional, trs...) }
}

// NewTaskController creates a controller for one run of g.
func NewTaskController(g *graph.Graph, p Presenter, opts ...Option) *TaskController {
	c := &TaskController{
		graph:     g,
		nav:       NewNavigator(g),
		presenter: p,
		state:     StateNotStarted(),
		clock:     SystemClock{},
		runIDs:    UUIDv7Generator{},
		logger:    slog.Default(),
		quota:     NewQuotaEnforcer(DefaultMaxSteps),
		skips:     NewSkipChainDetector(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// presentation is a step entered under the lock and handed to the presenter
// after the lock is released.
type presentation struct {
	step  ir.Step
	prior *ir.StepResult
	seq   uint64
}

// Start begins the run and presents the first step.
func (c *TaskController) Start(ctx context.Context) error {
	c.mu.Lock()
	p, err := c.start(ctx)
	c.mu.Unlock()
	return c.present(ctx, p, err)
}

func (c *TaskController) start(ctx context.Context) (*presentation, error) {
	switch c.state.Phase {
	case AtStep:
		return nil, navErr(ErrCodeAlreadyStarted, c.runID, c.state.Step, "run already started")
	case Terminated:
		return nil, navErr(ErrCodeTerminated, c.runID, "", "run already terminated (%s)", c.state.Reason)
	}

	runID := c.runIDs.Generate()
	store := c.newStore()

	tr, err := c.nav.Next(StateNotStarted(), store)
	if err != nil {
		return nil, c.annotate(err, runID)
	}
	to, trs, err := c.resolve(ctx, tr, store)
	if err != nil {
		return nil, c.annotate(err, runID)
	}

	c.runID = runID
	c.startedAt = c.clock.Now()
	c.store = store
	c.active = true
	c.metrics.IncActiveRuns()
	c.commit(trs)
	c.logger.Info("run started", "run", c.runID, "task", c.graph.TaskID())

	return c.enter(ctx, to)
}

// StepDidComplete records result for the current step and moves forward.
//
// A Skipped answer is only accepted for optional steps. Zero timestamps are
// filled in: StartedAt with the presentation time, EndedAt with now.
func (c *TaskController) StepDidComplete(ctx context.Context, result ir.StepResult) error {
	c.mu.Lock()
	p, err := c.stepDidComplete(ctx, result)
	c.mu.Unlock()
	return c.present(ctx, p, err)
}

func (c *TaskController) stepDidComplete(ctx context.Context, result ir.StepResult) (*presentation, error) {
	if err := c.requireAtStep(); err != nil {
		return nil, err
	}
	current := c.state.Step
	if result.ID != current {
		return nil, navErr(ErrCodeStepMismatch, c.runID, current, "result is for step %q", result.ID)
	}
	step, _ := c.graph.Step(current)
	if _, skipped := result.Answer.(ir.Skipped); skipped && !step.IsOptional() {
		return nil, navErr(ErrCodeAnswerRequired, c.runID, current, "step is not optional and cannot be skipped")
	}
	if result.StartedAt.IsZero() {
		result.StartedAt = c.shownAt
	}
	if result.EndedAt.IsZero() {
		result.EndedAt = c.clock.Now()
	}

	next := c.store.Clone()
	next.Record(result)

	tr, err := c.nav.Next(c.state, next)
	if err != nil {
		return nil, c.annotate(err, c.runID)
	}
	to, trs, err := c.resolve(ctx, tr, next)
	if err != nil {
		return nil, c.annotate(err, c.runID)
	}

	c.store = next
	c.path = append(c.path, current)
	c.commit(trs)
	c.hooks.willDisappear(ctx, step)
	c.logger.Debug("step completed", "run", c.runID, "step", current, "destination", to.String())

	return c.enter(ctx, to)
}

// GoBack returns to the most recently completed step and re-presents it with
// its recorded result.
//
// A step that disallows back-navigation can neither be left backward nor be
// popped past: the current step and the top of the visited stack must both
// allow it.
//
// Results recorded for steps ahead of the new position are kept. They stay in
// the store, and in any snapshot, until the user completes those steps again
// and overwrites them.
func (c *TaskController) GoBack(ctx context.Context) error {
	c.mu.Lock()
	p, err := c.goBack(ctx)
	c.mu.Unlock()
	return c.present(ctx, p, err)
}

func (c *TaskController) goBack(ctx context.Context) (*presentation, error) {
	if err := c.requireAtStep(); err != nil {
		return nil, err
	}
	current, _ := c.graph.Step(c.state.Step)
	if !current.AllowsBack() {
		c.metrics.ObserveBack(c.graph.TaskID(), string(ErrCodeBackNotAllowed))
		return nil, navErr(ErrCodeBackNotAllowed, c.runID, current.ID, "step %q does not allow back-navigation", current.ID)
	}
	if len(c.path) == 0 {
		c.metrics.ObserveBack(c.graph.TaskID(), string(ErrCodeNothingToPop))
		return nil, navErr(ErrCodeNothingToPop, c.runID, current.ID, "no completed step to return to")
	}
	top := c.path[len(c.path)-1]
	topStep, _ := c.graph.Step(top)
	if !topStep.AllowsBack() {
		c.metrics.ObserveBack(c.graph.TaskID(), string(ErrCodeBackNotAllowed))
		return nil, navErr(ErrCodeBackNotAllowed, c.runID, current.ID, "step %q does not allow back-navigation", top)
	}

	c.hooks.willDisappear(ctx, current)
	c.path = c.path[:len(c.path)-1]
	c.metrics.ObserveBack(c.graph.TaskID(), "ok")
	c.logger.Debug("back navigation", "run", c.runID, "step", current.ID, "destination", top)

	return c.enter(ctx, StateAt(top))
}

// Cancel ends the run with a partial result tagged cancelled.
func (c *TaskController) Cancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminateByHost(ctx, ir.ReasonCancelled, "")
}

// Fail ends the run with a partial result tagged failed. cause is recorded
// in TaskResult.Error.
func (c *TaskController) Fail(ctx context.Context, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := "failed"
	if cause != nil {
		msg = cause.Error()
	}
	return c.terminateByHost(ctx, ir.ReasonFailed, msg)
}

// Resume re-presents the current step of a restored run.
func (c *TaskController) Resume(ctx context.Context) error {
	c.mu.Lock()
	p, err := c.resume(ctx)
	c.mu.Unlock()
	return c.present(ctx, p, err)
}

func (c *TaskController) resume(ctx context.Context) (*presentation, error) {
	if err := c.requireAtStep(); err != nil {
		return nil, err
	}
	if !c.active {
		c.active = true
		c.metrics.IncActiveRuns()
	}
	c.logger.Info("run resumed", "run", c.runID, "task", c.graph.TaskID(), "step", c.state.Step)
	return c.enter(ctx, c.state)
}

// State returns the current navigator state.
func (c *TaskController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RunID returns the run identifier, empty before Start.
func (c *TaskController) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Path returns the visited stack, oldest first.
func (c *TaskController) Path() []ir.StepID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.path)
}

// Results returns an independent copy of the run's result store.
func (c *TaskController) Results() *results.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return c.newStore()
	}
	return c.store.Clone()
}

// Transitions returns every committed transition, in order.
func (c *TaskController) Transitions() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.transitions)
}

// Checkpoint returns a snapshot of the run. For a terminated run this is the
// final TaskResult; otherwise it is the restore contract for Restore.
func (c *TaskController) Checkpoint() ir.TaskResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final != nil {
		return c.final.Clone()
	}
	return c.snapshot()
}

// Result returns the final TaskResult once the run has terminated.
func (c *TaskController) Result() (ir.TaskResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final == nil {
		return ir.TaskResult{}, false
	}
	return c.final.Clone(), true
}

func (c *TaskController) newStore() *results.Store {
	s := results.New(c.graph.TaskID())
	for _, tr := range c.additional {
		s.AddTaskResult(tr)
	}
	return s
}

func (c *TaskController) requireAtStep() error {
	switch c.state.Phase {
	case NotStarted:
		return navErr(ErrCodeNotStarted, "", "", "run not started")
	case Terminated:
		return navErr(ErrCodeTerminated, c.runID, "", "run already terminated (%s)", c.state.Reason)
	}
	return nil
}

// resolve follows tr through steps vetoed by ShouldPresent and returns the
// state to enter together with every transition taken.
func (c *TaskController) resolve(ctx context.Context, tr Transition, src predicate.Source) (State, []Transition, error) {
	trs := []Transition{tr}
	to := tr.To

	c.skips.Clear()
	for to.Phase == AtStep {
		step, _ := c.graph.Step(to.Step)
		if c.hooks.shouldPresent(ctx, step, src) {
			return to, trs, nil
		}
		if c.skips.WouldCycle(step.ID) {
			return State{}, nil, &NavigationError{
				Code:    ErrCodeSkipCycle,
				Message: fmt.Sprintf("vetoed steps loop back to %q (chain %v)", step.ID, c.skips.Chain()),
				StepID:  step.ID,
			}
		}
		c.skips.Record(step.ID)
		c.logger.Debug("step vetoed", "task", c.graph.TaskID(), "step", step.ID)

		next, err := c.nav.Next(to, src)
		if err != nil {
			return State{}, nil, err
		}
		trs = append(trs, next)
		to = next.To
	}
	return to, trs, nil
}

func (c *TaskController) commit(trs []Transition) {
	for _, tr := range trs {
		c.metrics.ObserveTransition(c.graph.TaskID(), tr.Via)
		for _, diag := range tr.Diagnostics {
			c.metrics.ObservePredicateError(c.graph.TaskID(), tr.From.Step)
			c.logger.Warn("predicate treated as no match",
				"run", c.runID,
				"step", tr.From.Step,
				"error", diag,
			)
		}
	}
	c.transitions = append(c.transitions, trs...)
}

// enter moves the committed run into to: entering a step or finalizing.
// The returned presentation is handed to present once the lock is released.
func (c *TaskController) enter(ctx context.Context, to State) (*presentation, error) {
	if to.IsTerminal() {
		c.finalize(ctx, to.Reason, "")
		return nil, nil
	}

	step, _ := c.graph.Step(to.Step)
	c.state = to
	c.shownAt = c.clock.Now()
	c.entered++

	if err := c.quota.Check(c.runID); err != nil {
		c.finalize(ctx, ir.ReasonFailed, err.Error())
		return nil, err
	}

	var prior *ir.StepResult
	if r, ok := c.store.Result(step.ID); ok {
		prior = &r
	}

	c.checkpoint(ctx)
	c.metrics.ObservePresentation(c.graph.TaskID())
	return &presentation{step: step, prior: prior, seq: c.entered}, nil
}

// present runs outside the lock. A presenter error fails the run unless the
// run has already moved past the step.
func (c *TaskController) present(ctx context.Context, p *presentation, err error) error {
	if err != nil || p == nil {
		return err
	}
	c.hooks.willAppear(ctx, p.step)
	if err := c.presenter.Present(ctx, p.step, p.prior); err != nil {
		err = fmt.Errorf("present %s: %w", p.step.ID, err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state.Phase == AtStep && c.entered == p.seq {
			c.finalize(ctx, ir.ReasonFailed, err.Error())
		}
		return err
	}
	return nil
}

func (c *TaskController) terminateByHost(ctx context.Context, reason ir.TerminationReason, msg string) error {
	switch c.state.Phase {
	case Terminated:
		return navErr(ErrCodeTerminated, c.runID, "", "run already terminated (%s)", c.state.Reason)
	case NotStarted:
		c.runID = c.runIDs.Generate()
		c.startedAt = c.clock.Now()
		c.store = c.newStore()
	case AtStep:
		step, _ := c.graph.Step(c.state.Step)
		c.hooks.willDisappear(ctx, step)
	}
	c.finalize(ctx, reason, msg)
	return nil
}

func (c *TaskController) finalize(ctx context.Context, reason ir.TerminationReason, msg string) {
	c.state = StateTerminated(reason)
	c.endedAt = c.clock.Now()
	c.errMsg = msg

	final := c.snapshot()
	c.final = &final

	c.metrics.ObserveTermination(c.graph.TaskID(), reason)
	if c.active {
		c.active = false
		c.metrics.DecActiveRuns()
	}

	attrs := []any{"run", c.runID, "task", c.graph.TaskID(), "reason", reason, "steps", len(final.Results)}
	if msg != "" {
		attrs = append(attrs, "error", msg)
	}
	c.logger.Info("run terminated", attrs...)

	c.checkpoint(ctx)
}

func (c *TaskController) snapshot() ir.TaskResult {
	var rs []ir.StepResult
	if c.store != nil {
		rs = c.store.Snapshot()
	}
	if rs == nil {
		rs = []ir.StepResult{}
	}
	tr := ir.TaskResult{
		TaskID:    c.graph.TaskID(),
		RunID:     c.runID,
		Reason:    c.state.Reason,
		Results:   rs,
		Path:      append([]ir.StepID{}, c.path...),
		StartedAt: c.startedAt,
		EndedAt:   c.endedAt,
		Error:     c.errMsg,
		Version:   ir.SnapshotVersion,
	}
	if c.state.Phase == AtStep {
		tr.Current = c.state.Step
	}
	return tr
}

// checkpoint persists the current snapshot. Failures are logged and the run
// continues; the next committed change writes a complete snapshot again.
func (c *TaskController) checkpoint(ctx context.Context) {
	if c.checkpointer == nil || c.runID == "" {
		return
	}
	if err := c.checkpointer.SaveCheckpoint(ctx, c.snapshot()); err != nil {
		c.logger.Error("checkpoint failed", "run", c.runID, "error", err)
	}
}

// annotate stamps runID onto navigation errors produced without one.
func (c *TaskController) annotate(err error, runID string) error {
	var ne *NavigationError
	if errors.As(err, &ne) && ne.RunID == "" {
		ne.RunID = runID
	}
	return err
}
