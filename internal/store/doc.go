// Package store provides SQLite-backed durable storage for run checkpoints.
//
// A run is stored as the TaskResult snapshot the controller hands to its
// checkpointer:
//   - Runs: one row per run (task, reason, current step, timestamps, digest)
//   - Step Results: the recorded results in visitation order
//   - Run Path: the visited-step stack used for back-navigation
//
// # Critical Patterns
//
// Whole-snapshot writes:
//   - SaveCheckpoint replaces a run's results and path in one transaction
//   - A reader never sees half of a checkpoint
//
// Terminal runs are immutable:
//   - Once a run is saved with a terminal reason, only an identical snapshot
//     may be written again (same digest)
//
// Logical ordering:
//   - Runs are listed by seq INTEGER (insertion order), NEVER timestamps
//   - Results and path rows are ordered by their position column
//
// Digest on read:
//   - The content digest is stored with every checkpoint and recomputed by
//     LoadRun; a mismatch is reported as ErrDigestMismatch
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
