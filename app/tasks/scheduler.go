package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs a digest immediately and then on every tick. Runs happen on
// a single goroutine and never overlap.
type Scheduler struct {
	runner   DigestRunner
	interval time.Duration
	timeout  time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewScheduler(runner DigestRunner, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:   runner,
		interval: interval,
		timeout:  30 * time.Minute,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.execute()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.execute()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) execute() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	_, err := s.runner.Execute(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		slog.Debug("Scheduled digest canceled")
	default:
		slog.Error("Scheduled digest failed", "error", err)
	}
}
