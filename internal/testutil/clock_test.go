package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/stepnav/internal/ir"
)

func TestStepClockAdvances(t *testing.T) {
	c := NewStepClock(time.Time{}, 0)

	assert.Equal(t, Epoch, c.Peek())
	assert.Equal(t, Epoch.Add(time.Second), c.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), c.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), c.Peek())
}

func TestStepClockReset(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewStepClock(start, time.Minute)
	c.Now()
	c.Now()
	c.Reset()

	assert.Equal(t, start.Add(time.Minute), c.Now())
}

func TestStepClockConcurrent(t *testing.T) {
	c := NewStepClock(time.Time{}, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(1000*time.Millisecond), c.Peek())
}

func TestFixedRunIDGenerator(t *testing.T) {
	g := NewFixedRunIDGenerator("run-1")
	assert.Equal(t, "run-1", g.Generate())
	assert.Equal(t, "run-1", g.Generate())

	assert.Equal(t, "run-test-default", NewFixedRunIDGenerator("").Generate())
}

func TestRecordingPresenter(t *testing.T) {
	p := &RecordingPresenter{}
	_, ok := p.Last()
	assert.False(t, ok)

	prior := &ir.StepResult{ID: "b", Answer: ir.Bool(true)}
	assert.NoError(t, p.Present(context.Background(), ir.Step{ID: "a"}, nil))
	assert.NoError(t, p.Present(context.Background(), ir.Step{ID: "b"}, prior))

	assert.Equal(t, []ir.StepID{"a", "b"}, p.Presented())
	last, ok := p.Last()
	assert.True(t, ok)
	assert.Equal(t, prior, last.Prior)

	p.Err = errors.New("render failed")
	assert.Error(t, p.Present(context.Background(), ir.Step{ID: "c"}, nil))
	assert.Len(t, p.Presented(), 3)
}
