package testutil

// FixedRunIDGenerator returns the same run id every time.
//
// Unlike engine.FixedGenerator, which returns ids in sequence, this generator
// suits scenarios where a single run id is set in the scenario file:
//
//	run_id: "run-test-0001"
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator for id.
// If id is empty, Generate returns "run-test-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "run-test-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
//
// Implements engine.RunIDGenerator interface.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
