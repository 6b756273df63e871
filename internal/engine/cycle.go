package engine

import "github.com/roach88/stepnav/internal/ir"

// SkipChainDetector tracks the steps vetoed by ShouldPresent during a single
// forward move.
//
// A vetoed step is skipped by navigating onward from it. When the rules of
// vetoed steps lead back to a step already vetoed in the same move, the
// controller would loop forever:
//
//	intro completes → consent (vetoed) → direct rule → eligibility (vetoed)
//	→ direct rule → consent (vetoed again) ← CYCLE DETECTED
//
// The chain is reset whenever a step is actually presented.
type SkipChainDetector struct {
	seen  map[ir.StepID]bool
	chain []ir.StepID
}

// NewSkipChainDetector creates an empty detector.
func NewSkipChainDetector() *SkipChainDetector {
	return &SkipChainDetector{seen: make(map[ir.StepID]bool)}
}

// WouldCycle reports whether id was already vetoed in the current move.
func (d *SkipChainDetector) WouldCycle(id ir.StepID) bool {
	return d.seen[id]
}

// Record marks id as vetoed in the current move.
func (d *SkipChainDetector) Record(id ir.StepID) {
	d.seen[id] = true
	d.chain = append(d.chain, id)
}

// Chain returns the vetoed steps of the current move in order.
func (d *SkipChainDetector) Chain() []ir.StepID {
	out := make([]ir.StepID, len(d.chain))
	copy(out, d.chain)
	return out
}

// Clear forgets the current move.
func (d *SkipChainDetector) Clear() {
	clear(d.seen)
	d.chain = d.chain[:0]
}
