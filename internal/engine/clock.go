package engine

import "time"

// Clock supplies wall-clock time for run and step timestamps.
//
// Navigation decisions never read the clock; timestamps only annotate
// results. Tests inject testutil.StepClock for reproducible snapshots.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system time in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
