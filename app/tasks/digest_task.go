package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-digest/app/config"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/digest"
	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/lysyi3m/rss-digest/app/logger"
	"github.com/lysyi3m/rss-digest/app/render"
	"github.com/samber/lo"
)

var (
	// ErrLedger means dedup state could not be prepared. Nothing was
	// rendered or persisted.
	ErrLedger = errors.New("ledger unavailable")

	// ErrCanceled means the run was canceled before rendering. Nothing was
	// rendered or persisted.
	ErrCanceled = errors.New("digest run canceled")

	// ErrRender means the digest could not be written. Nothing was persisted.
	ErrRender = errors.New("render failed")

	// ErrRecordSeen means the digest was written but its items were not
	// recorded, so they may be published again by the next run.
	ErrRecordSeen = errors.New("failed to record published items")
)

// Report describes a finished run.
type Report struct {
	RunID     string
	Outcomes  []feed.FetchOutcome
	Selection digest.Result
	Stats     database.DigestRunStat
	Duration  time.Duration
}

// DigestTask performs one complete digest run against an open ledger.
type DigestTask struct {
	config   *config.Config
	ledger   database.Ledger
	pool     *FetchPool
	renderer Renderer
	now      func() time.Time
}

func NewDigestTask(cfg *config.Config, ledger database.Ledger, pool *FetchPool, renderer Renderer) *DigestTask {
	return &DigestTask{
		config:   cfg,
		ledger:   ledger,
		pool:     pool,
		renderer: renderer,
		now:      time.Now,
	}
}

// Execute evicts stale history, loads the seen set, fetches every enabled
// source, selects and renders the digest, then records what was published.
// A failing source never fails the run.
func (t *DigestTask) Execute(ctx context.Context) (*Report, error) {
	task := NewTask(TaskTypeDigest, "")
	task.Start()

	ctx = logger.Ctx(ctx, slog.String("run_id", task.GetID()))
	newsletter := t.config.Newsletter

	evicted, err := t.ledger.EvictOlderThan(ctx, newsletter.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	if evicted > 0 {
		slog.InfoContext(ctx, "Evicted seen urls", "count", evicted, "retention_days", newsletter.RetentionDays)
	}

	seen, err := t.ledger.LoadSeenSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}

	outcomes := t.pool.Run(ctx, t.sources())
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCanceled, err)
	}

	items := lo.FlatMap(outcomes, func(o feed.FetchOutcome, _ int) []feed.Item {
		if !o.Succeeded {
			return nil
		}
		return o.Items
	})

	selection := digest.Select(items, seen, newsletter.PerFeedCap(), newsletter.TotalCap())

	succeeded := lo.CountBy(outcomes, func(o feed.FetchOutcome) bool { return o.Succeeded })
	stats := database.DigestRunStat{
		RunID:            task.GetID(),
		TotalSources:     len(outcomes),
		SucceededSources: succeeded,
		FailedSources:    len(outcomes) - succeeded,
		NewItemCount:     selection.NewCount,
		PublishedCount:   len(selection.Items),
		DuplicateCount:   selection.DuplicateCount,
		EvictedCount:     evicted,
		GeneratedAt:      t.now(),
	}

	err = t.renderer.Render(render.Digest{
		Newsletter: newsletter,
		Items:      selection.Items,
		Stats:      stats,
		Outcomes:   outcomes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}

	seenErr := t.recordSeen(ctx, selection.Items)
	t.recordStats(ctx, stats, outcomes, selection)

	report := &Report{
		RunID:     task.GetID(),
		Outcomes:  outcomes,
		Selection: selection,
		Stats:     stats,
		Duration:  task.GetDuration(),
	}

	slog.InfoContext(ctx, "Task completed",
		"type", task.GetType(),
		"duration", report.Duration,
		"sources", stats.TotalSources,
		"failed", stats.FailedSources,
		"candidates", selection.Candidates,
		"duplicates", stats.DuplicateCount,
		"new", stats.NewItemCount,
		"published", stats.PublishedCount,
		"evicted", stats.EvictedCount)

	if seenErr != nil {
		return report, seenErr
	}
	return report, nil
}

func (t *DigestTask) sources() []feed.Source {
	settings := t.config.Settings
	perFeedCap := t.config.Newsletter.PerFeedCap()

	return lo.Map(t.config.EnabledFeeds(), func(f config.Feed, _ int) feed.Source {
		return feed.Source{
			Name:           f.Name,
			URL:            f.URL,
			Category:       f.Category,
			Timeout:        f.GetTimeout(settings),
			ExtractContent: f.ExtractContent,
			MaxExtractions: perFeedCap,
			Filters: lo.Map(f.Filters, func(cf config.Filter, _ int) feed.Filter {
				return feed.Filter{Field: cf.Field, Includes: cf.Includes, Excludes: cf.Excludes}
			}),
		}
	})
}

func (t *DigestTask) recordSeen(ctx context.Context, items []feed.Item) error {
	records := lo.Map(items, func(item feed.Item, _ int) database.SeenRecord {
		return database.SeenRecord{
			URL:        item.Link,
			SourceName: item.SourceName,
			Title:      item.Title,
		}
	})

	if err := t.ledger.RecordSeen(ctx, records); err != nil {
		slog.ErrorContext(ctx, "Published items were not recorded and may repeat in the next digest",
			"unrecorded", len(records),
			"error", err)
		return fmt.Errorf("%w: %w", ErrRecordSeen, err)
	}

	return nil
}

// recordStats writes run statistics. Failures are logged only.
func (t *DigestTask) recordStats(ctx context.Context, stats database.DigestRunStat, outcomes []feed.FetchOutcome, selection digest.Result) {
	published := selection.PublishedBySource()

	for _, o := range outcomes {
		stat := database.FeedRunStat{
			RunID:          stats.RunID,
			SourceName:     o.SourceName,
			ItemsFetched:   len(o.Items),
			ItemsNew:       selection.NewBySource[o.SourceName],
			ItemsPublished: published[o.SourceName],
			Succeeded:      o.Succeeded,
			ErrorDetail:    o.ErrorDetail,
			DurationMs:     o.Duration.Milliseconds(),
			RecordedAt:     stats.GeneratedAt,
		}
		if err := t.ledger.RecordFeedRunStat(ctx, stat); err != nil {
			slog.WarnContext(ctx, "Failed to record feed run stat", "feed", o.SourceName, "error", err)
		}
	}

	if err := t.ledger.RecordDigestRunStat(ctx, stats); err != nil {
		slog.WarnContext(ctx, "Failed to record digest run stat", "error", err)
	}
}
