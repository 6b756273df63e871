// Package harness runs scripted navigation scenarios against the engine.
//
// A scenario names a CUE task, drives one run of it through a real
// engine.TaskController, and checks the outcome. Every run checkpoints into
// an in-memory store; after each action the harness reloads the stored
// snapshot and restores a second controller from it, and both must carry the
// same digest as the live run.
//
// # Scenario Format
//
//	name: triage_mild
//	description: "Low pain and no breathlessness lead to the mild branch"
//	task: ../tasks/triage.cue
//	run_id: run-triage-mild
//	veto: [intro]
//	start:
//	  at: intro
//	flow:
//	  - complete: intro
//	    answer: true
//	  - complete: symptoms
//	    answer: { pain: 3, breathless: false }
//	    expect: { at: mild }
//	  - back: true
//	  - cancel: true
//	    expect: { terminated: cancelled }
//	assertions:
//	  - type: presented_order
//	    steps: [intro, symptoms, mild, symptoms]
//	  - type: terminated
//	    reason: cancelled
//
// The task path is resolved relative to the scenario file. A complete action
// without an answer records a skipped result. kind: date or kind: choices
// forces the answer kind where YAML alone is ambiguous.
//
// # Assertion Types
//
//   - path_equals: the final visited stack
//   - results_order: the step ids of the final results, in order
//   - presented_order: every presentation, in order
//   - visited / not_visited: a step was or was never presented
//   - terminated: the run ended with the given reason
//   - at_step: the run is still presenting the given step
//   - answer_equals: the recorded answer for a step
//   - trace_count: the number of trace events of a type, optionally for one step
//
// # Deterministic Testing
//
// Runs use testutil.StepClock and a fixed run id (scenario run_id, or
// "run-test-default"), so traces and final snapshots are stable enough for
// golden comparison with RunWithGolden.
package harness
