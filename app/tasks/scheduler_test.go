package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingRunner struct {
	runs    atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
	err     error
}

func (r *countingRunner) Execute(ctx context.Context) (*Report, error) {
	if r.running.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.running.Add(-1)

	r.runs.Add(1)
	time.Sleep(5 * time.Millisecond)
	return &Report{}, r.err
}

func TestSchedulerRunsImmediatelyAndOnTicks(t *testing.T) {
	runner := &countingRunner{}
	scheduler := NewScheduler(runner, 10*time.Millisecond)

	scheduler.Start()
	assert.Eventually(t, func() bool { return runner.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	scheduler.Stop()

	stopped := runner.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, runner.runs.Load(), "no runs after Stop")
	assert.False(t, runner.overlap.Load(), "runs must not overlap")
}

func TestSchedulerKeepsRunningAfterFailure(t *testing.T) {
	runner := &countingRunner{err: ErrRender}
	scheduler := NewScheduler(runner, 10*time.Millisecond)

	scheduler.Start()
	defer scheduler.Stop()

	assert.Eventually(t, func() bool { return runner.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}
