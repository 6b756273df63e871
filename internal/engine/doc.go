// Package engine implements the stepnav navigation engine.
//
// The engine decides which step of a task comes next. It is split in two:
//
// Navigator:
// A stateless function from (state, results) to the next state. It reads
// the rules of a graph.Graph and evaluates predicates against a result
// source. It never looks backwards.
//
// TaskController:
// The owner of one run. It records results, keeps the visited stack used
// for back-navigation, consults host hooks, hands steps to a Presenter and
// produces the final ir.TaskResult.
//
// Run Lifecycle:
//  1. Start: NotStarted → first declared step (or terminated if none)
//  2. StepDidComplete: record result, push step, compute next transition
//  3. GoBack: pop the visited stack and re-present that step
//  4. Cancel / Fail: terminate with a partial result
//
// A step is never re-validated at registration time: a rule destination
// that names no declared step fails with UNKNOWN_DESTINATION when it is
// first traversed, and the run is left where it was.
//
// CRITICAL PATTERNS:
//
// Determinism:
// For a fixed graph and a fixed sequence of results, navigation from
// NotStarted yields the same sequence of steps. Wall-clock time only
// annotates results.
//
// One transition at a time:
// Every TaskController operation holds the controller lock, and all changes
// are computed on a copy of the result store and committed only on success.
// The lock is released before the entered step is handed to the Presenter.
package engine
