package ir

// Version constants for persisted snapshots and the engine.
const (
	// SnapshotVersion is the TaskResult serialization version.
	SnapshotVersion = "1"

	// EngineVersion is the stepnav engine version.
	EngineVersion = "0.1.0"
)
