package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/lysyi3m/rss-digest/app/logger"
	"golang.org/x/sync/errgroup"
)

// FetchPool fetches every source exactly once with at most concurrency
// requests in flight. Request starts are at least delay apart across all
// workers. Outcomes are returned in source order.
type FetchPool struct {
	fetcher     Fetcher
	concurrency int
	delay       time.Duration
}

func NewFetchPool(fetcher Fetcher, concurrency int, delay time.Duration) *FetchPool {
	return &FetchPool{
		fetcher:     fetcher,
		concurrency: max(concurrency, 1),
		delay:       max(delay, 0),
	}
}

func (p *FetchPool) Run(ctx context.Context, sources []feed.Source) []feed.FetchOutcome {
	outcomes := make([]feed.FetchOutcome, len(sources))

	pace := &pacer{delay: p.delay}

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, source := range sources {
		g.Go(func() error {
			if err := pace.wait(ctx); err != nil {
				outcomes[i] = feed.FetchOutcome{
					SourceName:  source.Name,
					Category:    source.Category,
					URL:         source.URL,
					ErrorDetail: err.Error(),
				}
				return nil
			}
			outcomes[i] = p.fetch(ctx, source)
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

func (p *FetchPool) fetch(ctx context.Context, source feed.Source) feed.FetchOutcome {
	task := NewTask(TaskTypeFetchFeed, source.Name)
	task.Start()

	ctx = logger.Ctx(ctx, slog.String("feed", source.Name))
	outcome := p.fetcher.Fetch(ctx, source)

	if !outcome.Succeeded {
		slog.WarnContext(ctx, "Feed fetch failed",
			"url", source.URL,
			"duration", task.GetDuration(),
			"error", outcome.ErrorDetail)
		return outcome
	}

	slog.InfoContext(ctx, "Task completed",
		"type", task.GetType(),
		"duration", task.GetDuration(),
		"items", len(outcome.Items))

	return outcome
}

// pacer hands out start slots spaced delay apart. The first slot is
// immediate.
type pacer struct {
	mu    sync.Mutex
	delay time.Duration
	next  time.Time
}

func (p *pacer) wait(ctx context.Context) error {
	p.mu.Lock()
	slot := time.Now()
	if p.next.After(slot) {
		slot = p.next
	}
	p.next = slot.Add(p.delay)
	p.mu.Unlock()

	d := time.Until(slot)
	if d <= 0 {
		return nil
	}
	return sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
